package bthost

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/greywire/bthost/internal/hci"
)

// fakeTransport is an in-memory hci.Transport: every command is answered
// with a Command Complete carrying response bytes supplied by the test,
// matching internal/hci's own fakeTransport idiom since the Device-level
// power-on sequence drives the same command/event correlation.
type fakeTransport struct {
	mu        sync.Mutex
	responses map[hci.OpCode][]byte
	outbox    []hci.Packet
	inbox     chan hci.Packet
	closed    bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		responses: make(map[hci.OpCode][]byte),
		inbox:     make(chan hci.Packet, 64),
	}
}

func (t *fakeTransport) respondTo(op hci.OpCode, ret []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses[op] = ret
}

func (t *fakeTransport) Send(p hci.Packet) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return &InvalidPacket{Msg: "fake transport closed"}
	}
	t.outbox = append(t.outbox, p)
	t.mu.Unlock()

	if p.Type == hci.PacketTypeCommand {
		t.mu.Lock()
		ret, ok := t.responses[p.Command.Opcode]
		t.mu.Unlock()
		if !ok {
			ret = []byte{0x00}
		}
		params := make([]byte, 3+len(ret))
		params[0] = 1
		params[1] = byte(p.Command.Opcode)
		params[2] = byte(p.Command.Opcode >> 8)
		copy(params[3:], ret)
		go func() {
			t.inbox <- hci.Packet{Type: hci.PacketTypeEvent, Event: &hci.EventPacket{
				Code:       hci.EventCommandComplete,
				Parameters: params,
			}}
		}()
	}
	return nil
}

func (t *fakeTransport) Receive() (hci.Packet, error) {
	p, ok := <-t.inbox
	if !ok {
		return hci.Packet{}, &InvalidPacket{Msg: "fake transport closed"}
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

func newTestDevice(t *testing.T) (*Device, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	tr.respondTo(hci.OpReadBufferSize, make([]byte, 7))
	tr.respondTo(hci.OpLEReadBufferSizeV2, make([]byte, 5))
	tr.respondTo(hci.OpLEReadLocalSupportedFeatures, make([]byte, 9))
	tr.respondTo(hci.OpReadBDADDR, append([]byte{0x00}, []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}...))

	d := NewDevice(Config{}, tr, nil, nil, nil)
	d.Host.CommandTimeout = time.Second
	return d, tr
}

func TestDevicePowerOnResolvesAddressAndReachesPoweredOn(t *testing.T) {
	d, _ := newTestDevice(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.PowerOn(ctx))

	require.Equal(t, StatePoweredOn, d.State())
	require.Equal(t, [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, d.Address().Bytes())
}

func TestDevicePowerOnUsesConfiguredAddressWithoutReadBDADDR(t *testing.T) {
	tr := newFakeTransport()
	tr.respondTo(hci.OpReadBufferSize, make([]byte, 7))
	tr.respondTo(hci.OpLEReadBufferSizeV2, make([]byte, 5))
	tr.respondTo(hci.OpLEReadLocalSupportedFeatures, make([]byte, 9))

	d := NewDevice(Config{Address: "11:22:33:44:55:66"}, tr, nil, nil, nil)
	d.Host.CommandTimeout = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.PowerOn(ctx))
	require.Equal(t, [6]byte{0x66, 0x55, 0x44, 0x33, 0x22, 0x11}, d.Address().Bytes())
}

func TestDeviceConnectClassicResolvesOnConnectionComplete(t *testing.T) {
	d, tr := newTestDevice(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.PowerOn(ctx))

	var captured *Connection
	d.OnConnection = func(c *Connection) { captured = c }

	peer := NewAddress([]byte{1, 2, 3, 4, 5, 6}, AddressTypePublic)
	done := make(chan struct {
		conn *Connection
		err  error
	}, 1)
	go func() {
		conn, err := d.Connect(context.Background(), peer, TransportBREDR, ConnectionParameters{}, 2*time.Second)
		done <- struct {
			conn *Connection
			err  error
		}{conn, err}
	}()

	require.Eventually(t, func() bool {
		return d.pendingClassicConnect != nil
	}, time.Second, time.Millisecond)

	d.handleConnectionComplete(hci.ConnectionCompleteEvent{
		Status:           0,
		ConnectionHandle: 0x0010,
		BDAddr:           peer.Bytes(),
	})

	result := <-done
	require.NoError(t, result.err)
	require.Equal(t, uint16(0x0010), result.conn.Handle)
	require.Equal(t, RoleCentral, result.conn.Role)
	require.NotNil(t, captured)
	require.Equal(t, result.conn, captured)

	_, ok := d.Connection(0x0010)
	require.True(t, ok)
	_ = tr
}

func TestDeviceConnectClassicSurfacesControllerError(t *testing.T) {
	d, _ := newTestDevice(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.PowerOn(ctx))

	peer := NewAddress([]byte{1, 2, 3, 4, 5, 6}, AddressTypePublic)
	done := make(chan error, 1)
	go func() {
		_, err := d.Connect(context.Background(), peer, TransportBREDR, ConnectionParameters{}, 2*time.Second)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return d.pendingClassicConnect != nil
	}, time.Second, time.Millisecond)

	d.handleConnectionComplete(hci.ConnectionCompleteEvent{Status: 0x0E, BDAddr: peer.Bytes()})

	err := <-done
	var ctrlErr *ControllerError
	require.ErrorAs(t, err, &ctrlErr)
	require.Equal(t, uint8(0x0E), ctrlErr.Code)
}

func TestDeviceHandleDisconnectionTearsDownConnectionAndFiresListeners(t *testing.T) {
	d, _ := newTestDevice(t)
	conn := NewConnection(0x0020, TransportLE, NewAddress([]byte{9, 9, 9, 9, 9, 9}, AddressTypePublic), RoleCentral)
	d.addConnection(conn)

	var gotReason uint8
	fired := make(chan struct{})
	conn.OnDisconnect(func(reason uint8) {
		gotReason = reason
		close(fired)
	})

	d.handleDisconnection(0x0020, 0x13)

	<-fired
	require.Equal(t, uint8(0x13), gotReason)
	_, ok := d.Connection(0x0020)
	require.False(t, ok)
}

func TestDeviceHandleDisconnectionRestartsAdvertisingOnPeripheralAutoRestart(t *testing.T) {
	d, tr := newTestDevice(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.PowerOn(ctx))

	require.NoError(t, d.StartAdvertising(ctx, AdvertisingParameters{
		Type:        Undirected,
		Data:        []byte{0x02, 0x01, 0x06},
		AutoRestart: true,
	}))

	conn := NewConnection(0x0030, TransportLE, NewAddress([]byte{1, 1, 1, 1, 1, 1}, AddressTypePublic), RolePeripheral)
	d.addConnection(conn)

	tr.mu.Lock()
	before := len(tr.outbox)
	tr.mu.Unlock()

	d.handleDisconnection(0x0030, 0x16)

	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.outbox) > before
	}, time.Second, time.Millisecond)
}

func TestRunAuthOpAbortsOnDisconnection(t *testing.T) {
	d, _ := newTestDevice(t)
	conn := NewConnection(0x0040, TransportLE, NewAddress([]byte{2, 2, 2, 2, 2, 2}, AddressTypePublic), RoleCentral)
	d.addConnection(conn)

	blocked := make(chan struct{})
	d.Authenticator = blockingAuthenticator{unblockedBy: blocked}

	done := make(chan error, 1)
	go func() {
		done <- d.Pair(context.Background(), conn)
	}()

	d.handleDisconnection(0x0040, 0x08)

	err := <-done
	var discErr *Disconnected
	require.ErrorAs(t, err, &discErr)
	require.Equal(t, uint16(0x0040), discErr.Handle)
	close(blocked)
}

type blockingAuthenticator struct{ unblockedBy chan struct{} }

func (a blockingAuthenticator) Pair(ctx context.Context, conn *Connection) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.unblockedBy:
		return nil
	}
}

func (a blockingAuthenticator) Encrypt(ctx context.Context, conn *Connection) error { return nil }

func (a blockingAuthenticator) Authenticate(ctx context.Context, conn *Connection) error { return nil }

func TestDispatchATTRoutesByOpcodeParity(t *testing.T) {
	var clientGot, serverGot uint8
	client := recordingGATT{record: &clientGot}
	server := recordingGATT{record: &serverGot}

	DispatchATT(client, server, 1, []byte{0x1B}) // odd -> client (notification)
	require.Equal(t, uint8(0x1B), clientGot)
	require.Equal(t, uint8(0), serverGot)

	DispatchATT(client, server, 1, []byte{0x0A}) // even -> server (read request)
	require.Equal(t, uint8(0x0A), serverGot)
}

type recordingGATT struct{ record *uint8 }

func (g recordingGATT) HandleATT(connHandle uint16, opcode uint8, payload []byte) {
	*g.record = opcode
}
