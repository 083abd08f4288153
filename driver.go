package bthost

import "github.com/greywire/bthost/internal/hci"

// Driver re-exports the HCI-level controller driver hook (§6) at the
// package a caller actually imports: an optional per-controller plug-in
// invoked during power-on, before the standard reset sequence is
// considered complete.
type Driver = hci.Driver
