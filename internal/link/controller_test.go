package link

import (
	"testing"
	"time"

	"github.com/greywire/bthost/internal/hci"
	"github.com/stretchr/testify/require"
)

func TestSimulatedControllerACLRoundTripBetweenPeers(t *testing.T) {
	sim := NewSimulator()
	aAddr := AddressKey{Bytes: [6]byte{1}}
	bAddr := AddressKey{Bytes: [6]byte{2}}
	a := NewSimulatedController(sim, aAddr)
	b := NewSimulatedController(sim, bAddr)
	defer a.Close()
	defer b.Close()

	require.NoError(t, sim.Connect(aAddr, bAddr))
	require.Eventually(t, func() bool {
		_, ok := a.HandleForPeer(bAddr)
		return ok
	}, time.Second, time.Millisecond)
	_, ok := b.HandleForPeer(aAddr)
	require.True(t, ok)

	handleOnA, _ := a.HandleForPeer(bAddr)
	pkt := hci.Packet{Type: hci.PacketTypeACLData, ACL: &hci.ACLDataPacket{
		ConnectionHandle: handleOnA, PBFlag: hci.PBFirstFlushable, Data: []byte{0x01, 0x02, 0x03},
	}}
	require.NoError(t, a.Send(pkt))

	got, err := b.Receive()
	require.NoError(t, err)
	require.Equal(t, hci.PacketTypeACLData, got.Type)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, got.ACL.Data)
}

func TestSimulatedControllerSendUnknownHandleErrors(t *testing.T) {
	sim := NewSimulator()
	a := NewSimulatedController(sim, AddressKey{Bytes: [6]byte{1}})
	defer a.Close()

	pkt := hci.Packet{Type: hci.PacketTypeACLData, ACL: &hci.ACLDataPacket{ConnectionHandle: 99, Data: []byte{0x01}}}
	err := a.Send(pkt)
	require.Error(t, err)
}

func TestSimulatedControllerDropsNonACLPackets(t *testing.T) {
	sim := NewSimulator()
	a := NewSimulatedController(sim, AddressKey{Bytes: [6]byte{1}})
	defer a.Close()

	// Command packets have nothing upstream to answer them in the
	// simulator; Send silently accepts and drops them rather than erroring.
	err := a.Send(hci.Packet{Type: hci.PacketTypeCommand, Command: &hci.CommandPacket{Opcode: hci.OpReset}})
	require.NoError(t, err)
}

func TestSimulatedControllerSendAfterCloseErrors(t *testing.T) {
	sim := NewSimulator()
	a := NewSimulatedController(sim, AddressKey{Bytes: [6]byte{1}})
	require.NoError(t, a.Close())

	err := a.Send(hci.Packet{Type: hci.PacketTypeACLData, ACL: &hci.ACLDataPacket{ConnectionHandle: 1}})
	require.Error(t, err)
}

func TestSimulatedControllerReceiveAfterCloseErrors(t *testing.T) {
	sim := NewSimulator()
	a := NewSimulatedController(sim, AddressKey{Bytes: [6]byte{1}})
	require.NoError(t, a.Close())

	_, err := a.Receive()
	require.Error(t, err)
}
