package bthost

import "sync"

// Transport identifies the physical link type underlying a Connection.
type Transport uint8

const (
	TransportLE Transport = iota
	TransportBREDR
)

// Role is the link-layer role this stack played in establishing the
// connection.
type Role uint8

const (
	RoleCentral Role = iota
	RolePeripheral
)

// EncryptionState tracks a connection's link-layer encryption per §3.
type EncryptionState uint8

const (
	EncryptionOff EncryptionState = iota
	EncryptionE0OrCCM
	EncryptionAESCCM
)

// ConnectionParameters mirrors the negotiated LE connection parameters.
type ConnectionParameters struct {
	IntervalUnits    uint16 // 1.25ms units
	LatencyEvents    uint16
	TimeoutUnits     uint16 // 10ms units
	PHY              uint8
}

// DataLength is the negotiated LE Data Length quadruple.
type DataLength struct {
	TxOctets, TxTime, RxOctets, RxTime uint16
}

// Connection is per-link state keyed by a 12-bit controller-assigned
// handle, owned exclusively by the Device's connection map (§3). It is
// created on a Connection Complete / Enhanced Connection Complete / LE
// (Enhanced) Connection Complete event and destroyed on Disconnection
// Complete.
type Connection struct {
	mu sync.RWMutex

	Handle               uint16
	Transport            Transport
	PeerAddress          Address
	ResolvablePeerAddress *Address
	Role                 Role
	Parameters           ConnectionParameters
	ATTMTU               uint16
	DataLength           DataLength
	Encryption           EncryptionState
	Authenticated        bool

	GATTClient GATTClient
	GATTServer GATTServer

	// disconnectListeners are invoked once, with the disconnection reason, when
	// the owning Device tears this connection down; used to cancel
	// abort-on-disconnection futures (§5).
	disconnectListeners []func(reason uint8)
	disconnected        bool
}

// NewConnection constructs a Connection with the default 23-byte ATT MTU
// (§3).
func NewConnection(handle uint16, transport Transport, peer Address, role Role) *Connection {
	return &Connection{
		Handle:      handle,
		Transport:   transport,
		PeerAddress: peer,
		Role:        role,
		ATTMTU:      23,
	}
}

// OnDisconnect registers a callback invoked when this connection is torn
// down, supporting the abort-on-disconnection cancellation policy of §5.
// If the connection is already torn down, fn is invoked immediately.
func (c *Connection) OnDisconnect(fn func(reason uint8)) {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		fn(0)
		return
	}
	c.disconnectListeners = append(c.disconnectListeners, fn)
	c.mu.Unlock()
}

// MarkDisconnected fires every registered disconnect listener exactly
// once.
func (c *Connection) MarkDisconnected(reason uint8) {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return
	}
	c.disconnected = true
	listeners := c.disconnectListeners
	c.disconnectListeners = nil
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(reason)
	}
}

// SetParameters updates the negotiated connection parameters, e.g. after
// an LE Connection Update completes.
func (c *Connection) SetParameters(p ConnectionParameters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Parameters = p
}

// SetEncryption updates the encryption state after an Encryption Change
// or Encryption Key Refresh Complete event.
func (c *Connection) SetEncryption(s EncryptionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Encryption = s
}
