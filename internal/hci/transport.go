package hci

import "io"

// PacketSource yields whole, already-framed HCI packets. The core never
// sees partial reads: framing (if any) is the transport's job.
type PacketSource interface {
	Receive() (Packet, error)
}

// PacketSink accepts whole HCI packets for transmission.
type PacketSink interface {
	Send(Packet) error
}

// Transport is the seam between this codec/host and a concrete link (USB,
// UART, a TCP socket, or the in-process link simulator). The Host does not
// own the transport's lifecycle beyond closing it on shutdown.
type Transport interface {
	PacketSource
	PacketSink
	io.Closer
}
