package bthost

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewConnectionDefaultsATTMTU(t *testing.T) {
	c := NewConnection(0x0001, TransportLE, NewAddress([]byte{1, 2, 3, 4, 5, 6}, AddressTypePublic), RoleCentral)
	require.Equal(t, uint16(23), c.ATTMTU)
}

func TestConnectionMarkDisconnectedFiresListenersOnce(t *testing.T) {
	c := NewConnection(0x0002, TransportLE, NewAddress([]byte{1, 2, 3, 4, 5, 6}, AddressTypePublic), RoleCentral)

	var calls int
	var lastReason uint8
	c.OnDisconnect(func(reason uint8) {
		calls++
		lastReason = reason
	})

	c.MarkDisconnected(0x16)
	c.MarkDisconnected(0x13) // second call must be a no-op

	require.Equal(t, 1, calls)
	require.Equal(t, uint8(0x16), lastReason)
}

func TestConnectionOnDisconnectFiresImmediatelyIfAlreadyDisconnected(t *testing.T) {
	c := NewConnection(0x0003, TransportLE, NewAddress([]byte{1, 2, 3, 4, 5, 6}, AddressTypePublic), RoleCentral)
	c.MarkDisconnected(0x08)

	called := false
	c.OnDisconnect(func(uint8) { called = true })
	require.True(t, called)
}

func TestConnectionSetParametersAndEncryption(t *testing.T) {
	c := NewConnection(0x0004, TransportLE, NewAddress([]byte{1, 2, 3, 4, 5, 6}, AddressTypePublic), RoleCentral)

	c.SetParameters(ConnectionParameters{IntervalUnits: 0x0020, LatencyEvents: 4, TimeoutUnits: 0x01F4})
	require.Equal(t, uint16(0x0020), c.Parameters.IntervalUnits)

	c.SetEncryption(EncryptionAESCCM)
	require.Equal(t, EncryptionAESCCM, c.Encryption)
}
