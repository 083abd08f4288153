package bthost

import "context"

// PairingKeys is the opaque-to-the-core bundle a Keystore stores and
// returns per address. The core only reaches into its IRK/LTK/LinkKey
// substructure during provisioning (§6); SMP pairing-state internals that
// would populate these fields are an external collaborator's concern.
type PairingKeys struct {
	IRK     *[16]byte
	LTK     *[16]byte
	LinkKey *[16]byte

	// EDiv/Rand accompany an LTK derived via the legacy SMP distribution
	// scheme; both nil means a Secure Connections LTK that needs neither.
	EDiv *uint16
	Rand *[8]byte
}

// ResolvingEntry pairs an IRK with the identity address it resolves,
// returned by Keystore.ResolvingKeys for loading the controller's
// resolving list during power-on (§4.5).
type ResolvingEntry struct {
	IRK     [16]byte
	Address Address
}

// Keystore is the external collaborator that persists pairing material
// across connections (§6). The core never chooses a storage backend;
// callers supply one (file-backed, OS keychain, in-memory for tests).
type Keystore interface {
	Get(ctx context.Context, addr Address) (*PairingKeys, error)
	Update(ctx context.Context, addr Address, keys PairingKeys) error
	ResolvingKeys(ctx context.Context) ([]ResolvingEntry, error)
}
