// Package bthost is a host-side Bluetooth stack: HCI framing, an L2CAP
// channel manager (fixed channels, classic dynamic channels with ERM, and
// LE Credit-Based channels), an SDP client/server, and a Device orchestrator
// that ties them together for advertising, scanning, connecting and
// pairing handoff.
//
// The stack is transport-agnostic: it is driven by anything implementing
// hci.Transport (see internal/hci), so it can run against a real USB/UART
// HCI controller or against the in-process link simulator in
// internal/link. This package's own tests drive a Device through an
// in-memory fake transport instead of a radio.
//
// Concrete transports, GATT profile services, SMP pairing internals, key
// storage backends and CLI tooling are not part of this package; see the
// Keystore, Driver and GATT interfaces in keystore.go, driver.go and
// gattio.go for the seams where those plug in.
package bthost
