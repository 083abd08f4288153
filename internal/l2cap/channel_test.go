package l2cap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLECreditChannelSDUSegmentationAndReassembly(t *testing.T) {
	sender := NewLECreditChannel(1, 0x40, 0x80, 512, 23, 5)
	sender.MarkOpen(0x41, 512, 23, 5)

	receiver := NewLECreditChannel(2, 0x41, 0x80, 512, 23, 5)
	receiver.MarkOpen(0x40, 512, 23, 5)

	sender.Send = func(payload []byte) error {
		return receiver.HandleKFrame(payload)
	}

	var got []byte
	receiver.OnSDU = func(sdu []byte) { got = sdu }

	sdu := make([]byte, 100)
	for i := range sdu {
		sdu[i] = byte(i)
	}
	require.NoError(t, sender.SendSDU(sdu))
	require.Equal(t, sdu, got)
}

func TestLECreditChannelCreditTopUp(t *testing.T) {
	receiver := NewLECreditChannel(2, 0x41, 0x80, 512, 23, 4)
	receiver.MarkOpen(0x40, 512, 23, 4)

	var toppedUpBy uint16
	toppedUp := false
	receiver.OnCredit = func(cid uint16, credits uint16) {
		toppedUp = true
		toppedUpBy = credits
	}

	// Consume credits by receiving complete one-frame SDUs until the
	// peerCredits half-exhausted threshold (PeerMaxCredits/2 = 2) trips.
	for i := 0; i < 3; i++ {
		payload := append([]byte{0x01, 0x00}, 0x42)
		require.NoError(t, receiver.HandleKFrame(payload))
	}
	require.True(t, toppedUp)
	require.Equal(t, uint16(3), toppedUpBy)
}

func TestLECreditChannelSDUOverflow(t *testing.T) {
	receiver := NewLECreditChannel(2, 0x41, 0x80, 512, 23, 4)
	receiver.MarkOpen(0x40, 512, 23, 4)

	err := receiver.HandleKFrame([]byte{0x01, 0x00, 0xAA, 0xBB})
	require.Error(t, err)
}

func TestLECreditChannelWaitOpen(t *testing.T) {
	c := NewLECreditChannel(1, 0x40, 0x80, 512, 23, 5)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.WaitOpen(ctx) }()

	c.MarkOpen(0x41, 512, 23, 5)
	require.NoError(t, <-done)
	cancel()
}

func TestChannelERMIFrameReassembly(t *testing.T) {
	c := NewChannel(1, 0x40, 0x41, 0x0003)
	c.ERM = RetransmissionFlowControlParams{Mode: ERMModeEnhancedRetrans, TxWindowSize: 10, PeerMPS: 20}

	var got []byte
	c.OnData = func(sdu []byte) { got = sdu }

	sdu := make([]byte, 50)
	for i := range sdu {
		sdu[i] = byte(i + 1)
	}
	for i, seg := range Segment(sdu, 20) {
		f := IFrame{TxSeq: uint8(i), ReqSeq: 0, SAR: seg.SAR, Payload: seg.Payload}
		if seg.SAR == SARStart {
			f.SDULen = uint16(len(sdu))
		}
		require.NoError(t, c.HandlePDU(f.Marshal()))
	}
	require.Equal(t, sdu, got)
}

func TestChannelBasicModeDeliversPDUDirectly(t *testing.T) {
	c := NewChannel(1, 0x40, 0x41, 0x0003)
	var got []byte
	c.OnData = func(sdu []byte) { got = sdu }

	require.NoError(t, c.HandlePDU([]byte{0xDE, 0xAD}))
	require.Equal(t, []byte{0xDE, 0xAD}, got)
}

func TestChannelConfigHandshakeOpensOnBothDirections(t *testing.T) {
	c := NewChannel(1, 0x40, 0x41, 0x0003)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.WaitOpen(ctx) }()

	c.ApplyPeerConfig([]ConfigOption{MTUOption(200)})
	select {
	case <-done:
		t.Fatal("channel opened before local config was acked")
	default:
	}

	c.MarkConfigAcked()
	require.NoError(t, <-done)
	require.Equal(t, StateOpen, c.State)
	require.Equal(t, uint16(200), c.PeerMTU)
}
