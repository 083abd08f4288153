package hci

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport: every command it sees is
// answered with a Command-Complete carrying response bytes supplied by the
// test, and outbound/inbound event and ACL traffic is driven explicitly
// through its exported channels.
type fakeTransport struct {
	mu        sync.Mutex
	responses map[OpCode][]byte
	silent    bool
	outbox    chan Packet
	inbox     chan Packet
	closed    bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		responses: make(map[OpCode][]byte),
		outbox:    make(chan Packet, 64),
		inbox:     make(chan Packet, 64),
	}
}

func (t *fakeTransport) respondTo(op OpCode, ret []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses[op] = ret
}

func (t *fakeTransport) Send(p Packet) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return errClosed
	}
	t.outbox <- p
	if p.Type == PacketTypeCommand {
		t.mu.Lock()
		ret, ok := t.responses[p.Command.Opcode]
		silent := t.silent
		t.mu.Unlock()
		if silent {
			return nil
		}
		if !ok {
			ret = nil
		}
		go func() {
			t.inbox <- Packet{Type: PacketTypeEvent, Event: &EventPacket{
				Code:       EventCommandComplete,
				Parameters: encodeCommandCompleteParams(p.Command.Opcode, ret),
			}}
		}()
	}
	return nil
}

func (t *fakeTransport) Receive() (Packet, error) {
	p, ok := <-t.inbox
	if !ok {
		return Packet{}, errClosed
	}
	return p, nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.inbox)
	}
	return nil
}

var errClosed = &InvalidPacketError{Msg: "fake transport closed"}

func encodeCommandCompleteParams(op OpCode, ret []byte) []byte {
	out := make([]byte, 3+len(ret))
	out[0] = 1 // Num_HCI_Command_Packets
	putU16LE(out[1:3], uint16(op))
	copy(out[3:], ret)
	return out
}

func TestHostStartRunsPowerOnSequence(t *testing.T) {
	tr := newFakeTransport()
	tr.respondTo(OpReadBufferSize, make([]byte, 7))
	tr.respondTo(OpLEReadBufferSizeV2, make([]byte, 5))
	tr.respondTo(OpLEReadLocalSupportedFeatures, make([]byte, 9))

	h := NewHost(tr, nil)
	h.CommandTimeout = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Start(ctx))
	require.NoError(t, h.Stop())
}

func TestSendCommandTimesOut(t *testing.T) {
	tr := newFakeTransport()
	tr.mu.Lock()
	tr.silent = true // never answer
	tr.mu.Unlock()

	h := NewHost(tr, nil)
	h.CommandTimeout = 20 * time.Millisecond

	_, err := h.SendCommand(context.Background(), Reset{})
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}

func TestHandleACLReassemblySingleFragment(t *testing.T) {
	tr := newFakeTransport()
	h := NewHost(tr, nil)

	var got []byte
	var gotHandle uint16
	done := make(chan struct{})
	h.OnACLPDU = func(handle uint16, pdu []byte) {
		gotHandle, got = handle, pdu
		close(done)
	}

	l2capPDU := append([]byte{0x02, 0x00, 0x04, 0x00}, []byte{0xAA, 0xBB}...)
	h.handleACL(&ACLDataPacket{ConnectionHandle: 0x0040, PBFlag: PBFirstFlushable, Data: l2capPDU})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnACLPDU was not invoked")
	}
	require.Equal(t, uint16(0x0040), gotHandle)
	require.Equal(t, l2capPDU, got)
}

func TestHandleACLReassemblyTwoFragments(t *testing.T) {
	tr := newFakeTransport()
	h := NewHost(tr, nil)

	var got []byte
	done := make(chan struct{})
	h.OnACLPDU = func(handle uint16, pdu []byte) {
		got = pdu
		close(done)
	}

	full := append([]byte{0x06, 0x00, 0x04, 0x00}, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}...)
	first := full[:6]
	second := full[6:]

	h.handleACL(&ACLDataPacket{ConnectionHandle: 0x0041, PBFlag: PBFirstFlushable, Data: first})
	h.handleACL(&ACLDataPacket{ConnectionHandle: 0x0041, PBFlag: PBContinuation, Data: second})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnACLPDU was not invoked")
	}
	require.Equal(t, full, got)
}

func TestHandleACLContinuationWithoutFirstFragmentDropped(t *testing.T) {
	tr := newFakeTransport()
	h := NewHost(tr, nil)

	called := false
	h.OnACLPDU = func(handle uint16, pdu []byte) { called = true }

	h.handleACL(&ACLDataPacket{ConnectionHandle: 0x0099, PBFlag: PBContinuation, Data: []byte{0x01, 0x02}})
	require.False(t, called)
}

func TestRestoreCreditsCapsAtTotal(t *testing.T) {
	tr := newFakeTransport()
	h := NewHost(tr, nil)
	h.totalACLPackets = 4
	h.aclAvailable = 1

	h.restoreCredits(NumberOfCompletedPacketsEvent{Handles: []uint16{1}, Completed: []uint16{10}})
	require.Equal(t, 4, h.aclAvailable)
}
