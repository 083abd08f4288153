package bthost

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/greywire/bthost/internal/hci"
	"github.com/greywire/bthost/internal/l2cap"
	"github.com/greywire/bthost/internal/sdp"
)

var log = logrus.WithField("component", "bthost")

// State is a Device's coarse power/capability lifecycle state.
type State int

const (
	StateUnknown State = iota
	StateResetting
	StateUnsupported
	StatePoweredOff
	StatePoweredOn
)

func (s State) String() string {
	switch s {
	case StateResetting:
		return "Resetting"
	case StateUnsupported:
		return "Unsupported"
	case StatePoweredOff:
		return "PoweredOff"
	case StatePoweredOn:
		return "PoweredOn"
	default:
		return "Unknown"
	}
}

// Device orchestrates a full host-side stack: power-on, advertising,
// scanning, connection establishment, pairing handoff and GATT PDU
// dispatch (§4.5). It owns one Host, one L2CAP Manager and one SDP server,
// and aggregates per-connection state in Connection.
type Device struct {
	mu sync.RWMutex

	Config Config
	Host   *hci.Host
	L2CAP  *l2cap.Manager

	// SDP is the shared record server; callers populate it with AddRecord
	// before or after PowerOn.
	SDP *sdp.Server

	Keystore      Keystore
	GATT          GATTServer
	Authenticator Authenticator

	// OnConnection fires for every new connection, whether locally
	// initiated (Connect) or accepted while advertising.
	OnConnection func(*Connection)

	address Address
	state   State

	connections map[uint16]*Connection

	pendingLEConnect      *connectFuture
	pendingClassicConnect *connectFuture
	pendingConnectSem     *semaphore.Weighted

	advertising *advertisingState
	scanning    *scanningState

	sessionID    string
	stateChanged func(State)
}

// NewDevice constructs a Device bound to transport, wiring the L2CAP fixed
// channels (ATT, classic and LE signaling) and the SDP server's PSM so
// inbound traffic is routed without further caller setup.
func NewDevice(cfg Config, transport hci.Transport, driver Driver, keystore Keystore, gatt GATTServer) *Device {
	d := &Device{
		Config:            cfg,
		Keystore:          keystore,
		GATT:              gatt,
		connections:       make(map[uint16]*Connection),
		pendingConnectSem: semaphore.NewWeighted(1),
		sessionID:         uuid.NewString(),
	}
	d.advertising = newAdvertisingState(d)
	d.scanning = newScanningState(d)

	d.Host = hci.NewHost(transport, driver)
	d.L2CAP = l2cap.NewManager(d.Host)
	d.SDP = sdp.NewServer()

	d.L2CAP.RegisterPSM(sdp.PSM, d.acceptSDPChannel)
	d.L2CAP.RegisterFixedChannel(l2cap.CIDATT, d.handleATT)

	d.Host.OnACLPDU = d.L2CAP.HandleACLPDU
	d.Host.OnDisconnection = d.handleDisconnection
	d.Host.OnConnectionComplete = d.handleConnectionComplete
	d.Host.OnLEConnectionComplete = d.handleLEConnectionComplete
	d.Host.OnLEEnhancedConnection = d.handleLEEnhancedConnectionComplete
	d.Host.OnAdvertisingReport = d.handleAdvertisingReport
	return d
}

// OnStateChange registers the single callback invoked on every state
// transition (mirrors the teacher's stateChanged idiom from NewDevice's
// Init hook, generalized to an assignable field).
func (d *Device) OnStateChange(fn func(State)) {
	d.mu.Lock()
	d.stateChanged = fn
	d.mu.Unlock()
}

func (d *Device) setState(s State) {
	d.mu.Lock()
	d.state = s
	cb := d.stateChanged
	d.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// State reports the device's current lifecycle state.
func (d *Device) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Address reports the device's local address, valid once PowerOn returns.
func (d *Device) Address() Address {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.address
}

// PowerOn runs the reset+capability-discovery sequence, reads BD_ADDR,
// applies LE host support and the resolving list, and (if classic is
// enabled) applies scan-enable/local-name/CoD/SSP/SC settings (§4.5).
func (d *Device) PowerOn(ctx context.Context) error {
	d.setState(StateResetting)
	if err := d.Host.Start(ctx); err != nil {
		d.setState(StateUnsupported)
		return fmt.Errorf("bthost: power-on: %w", err)
	}

	addr, err := d.resolveLocalAddress(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.address = addr
	d.mu.Unlock()

	if d.Config.LEEnabled {
		if err := d.powerOnLE(ctx, addr); err != nil {
			return err
		}
	}
	if d.Config.ClassicSCEnabled || d.Config.ClassicSSPEnabled || d.Config.Connectable || d.Config.Discoverable {
		if err := d.powerOnClassic(ctx); err != nil {
			return err
		}
	}

	d.setState(StatePoweredOn)
	return nil
}

func (d *Device) resolveLocalAddress(ctx context.Context) (Address, error) {
	if d.Config.Address != "" {
		return ParseAddress(d.Config.Address, AddressTypePublic)
	}
	cc, err := d.Host.SendCommand(ctx, hci.ReadBDADDR{})
	if err != nil {
		return Address{}, fmt.Errorf("bthost: read BD_ADDR: %w", err)
	}
	fields, ok := hci.DecodeReturnFields(hci.ReadBDADDR{}.ReturnFields(), cc.ReturnParameters)
	if !ok {
		return Address{}, &InvalidPacket{Msg: "Read_BD_ADDR return parameters truncated"}
	}
	return NewAddress(fields["BD_ADDR"], AddressTypePublic), nil
}

func (d *Device) powerOnLE(ctx context.Context, addr Address) error {
	if _, err := d.Host.SendCommand(ctx, hci.WriteLEHostSupport{LESupportedHost: 1}); err != nil {
		return fmt.Errorf("bthost: write LE host support: %w", err)
	}
	if addr.Type() != AddressTypePublic {
		if _, err := d.Host.SendCommand(ctx, hci.LESetRandomAddress{RandomAddress: addr.Bytes()}); err != nil {
			return fmt.Errorf("bthost: set random address: %w", err)
		}
	}
	return d.reloadResolvingList(ctx)
}

// reloadResolvingList clears the controller's resolving list and reloads
// it from the keystore (§4.5), disabling address resolution around the
// reload since the controller rejects list edits while it is enabled.
func (d *Device) reloadResolvingList(ctx context.Context) error {
	if d.Keystore == nil {
		return nil
	}
	if _, err := d.Host.SendCommand(ctx, hci.LESetAddressResolutionEnable{Enable: 0}); err != nil {
		return fmt.Errorf("bthost: disable address resolution: %w", err)
	}
	if _, err := d.Host.SendCommand(ctx, hci.LEClearResolvingList{}); err != nil {
		return fmt.Errorf("bthost: clear resolving list: %w", err)
	}
	entries, err := d.Keystore.ResolvingKeys(ctx)
	if err != nil {
		return fmt.Errorf("bthost: resolving keys: %w", err)
	}
	localIRK, err := d.Config.IRK(d.address)
	if err != nil {
		return fmt.Errorf("bthost: local IRK: %w", err)
	}
	for _, e := range entries {
		peerType := uint8(0)
		if !e.Address.IsPublic() {
			peerType = 1
		}
		_, err := d.Host.SendCommand(ctx, hci.LEAddDeviceToResolvingList{
			PeerIdentityAddrType: peerType,
			PeerIdentityAddr:     e.Address.Bytes(),
			PeerIRK:              e.IRK,
			LocalIRK:             localIRK,
		})
		if err != nil {
			return fmt.Errorf("bthost: add resolving list entry: %w", err)
		}
	}
	if len(entries) > 0 {
		if _, err := d.Host.SendCommand(ctx, hci.LESetAddressResolutionEnable{Enable: 1}); err != nil {
			return fmt.Errorf("bthost: enable address resolution: %w", err)
		}
	}
	return nil
}

func (d *Device) powerOnClassic(ctx context.Context) error {
	if d.Config.Name != "" {
		if _, err := d.Host.SendCommand(ctx, hci.WriteLocalName{Name: d.Config.Name}); err != nil {
			return fmt.Errorf("bthost: write local name: %w", err)
		}
	}
	if _, err := d.Host.SendCommand(ctx, hci.WriteClassOfDevice{ClassOfDevice: d.Config.ClassOfDevice}); err != nil {
		return fmt.Errorf("bthost: write class of device: %w", err)
	}
	if d.Config.ClassicSSPEnabled {
		if _, err := d.Host.SendCommand(ctx, hci.WriteSimplePairingMode{Enable: 1}); err != nil {
			return fmt.Errorf("bthost: write simple pairing mode: %w", err)
		}
	}
	if d.Config.ClassicSCEnabled {
		if _, err := d.Host.SendCommand(ctx, hci.WriteSecureConnectionsHostSupport{Enable: 1}); err != nil {
			return fmt.Errorf("bthost: write secure connections host support: %w", err)
		}
	}
	var scanEnable uint8
	if d.Config.Connectable {
		scanEnable |= 0x02
	}
	if d.Config.Discoverable {
		scanEnable |= 0x01
	}
	if _, err := d.Host.SendCommand(ctx, hci.WriteScanEnable{ScanEnable: scanEnable}); err != nil {
		return fmt.Errorf("bthost: write scan enable: %w", err)
	}
	return nil
}

// acceptSDPChannel is the PSMAcceptor for inbound SDP connections: every
// reassembled SDU is a complete SDP request PDU, answered synchronously by
// the shared SDP server.
func (d *Device) acceptSDPChannel(handle uint16, ch *l2cap.Channel) (func([]byte), bool) {
	return func(raw []byte) {
		resp := d.SDP.HandleRequest(raw)
		if resp != nil {
			if err := ch.SendSDU(resp); err != nil {
				log.WithError(err).Warn("failed to send SDP response")
			}
		}
	}, true
}

// handleATT routes an inbound ATT PDU to the owning connection's GATT
// client, or the shared GATT server, by op-code parity (§4.5).
func (d *Device) handleATT(handle uint16, payload []byte) {
	conn, ok := d.Connection(handle)
	if !ok {
		return
	}
	DispatchATT(conn.GATTClient, d.GATT, handle, payload)
}

// Connection looks up a live connection by handle.
func (d *Device) Connection(handle uint16) (*Connection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.connections[handle]
	return c, ok
}

// Connections returns a snapshot of all live connections.
func (d *Device) Connections() []*Connection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Connection, 0, len(d.connections))
	for _, c := range d.connections {
		out = append(out, c)
	}
	return out
}

func (d *Device) addConnection(c *Connection) {
	d.mu.Lock()
	d.connections[c.Handle] = c
	d.mu.Unlock()
}

// handleDisconnection tears down every L2CAP channel owned by handle (§3
// "Ownership summary"), fires the Connection's disconnect listeners, and
// re-arms advertising if the lost connection was a peripheral-role link
// with auto_restart set (§4.5).
func (d *Device) handleDisconnection(handle uint16, reason uint8) {
	d.L2CAP.AbortConnection(handle)

	d.mu.Lock()
	conn, ok := d.connections[handle]
	delete(d.connections, handle)
	d.mu.Unlock()
	if !ok {
		return
	}
	conn.MarkDisconnected(reason)

	if conn.Role == RolePeripheral {
		d.advertising.onPeripheralDisconnect()
	}
}

// connectFuture resolves exactly once, either to a Connection or an error,
// the mechanism Connect blocks on while the matching HCI connection-complete
// event is still pending.
type connectFuture struct {
	done chan struct{}
	once sync.Once
	conn *Connection
	err  error
}

func newConnectFuture() *connectFuture { return &connectFuture{done: make(chan struct{})} }

func (f *connectFuture) resolve(c *Connection, err error) {
	f.once.Do(func() {
		f.conn, f.err = c, err
		close(f.done)
	})
}

func (d *Device) handleConnectionComplete(e hci.ConnectionCompleteEvent) {
	d.mu.Lock()
	pending := d.pendingClassicConnect
	d.mu.Unlock()

	if e.Status != 0 {
		if pending != nil {
			pending.resolve(nil, &ControllerError{Code: e.Status})
		}
		return
	}
	conn := NewConnection(e.ConnectionHandle, TransportBREDR, NewAddress(e.BDAddr[:], AddressTypePublic), RoleCentral)
	d.addConnection(conn)
	if pending != nil {
		pending.resolve(conn, nil)
	}
	if d.OnConnection != nil {
		d.OnConnection(conn)
	}
}

func roleFromHCI(r uint8) Role {
	if r == 1 {
		return RolePeripheral
	}
	return RoleCentral
}

func (d *Device) handleLEConnectionComplete(e hci.LEConnectionCompleteEvent) {
	d.completeLEConnection(e, nil)
}

func (d *Device) handleLEEnhancedConnectionComplete(e hci.LEEnhancedConnectionCompleteEvent) {
	peer := NewAddress(e.PeerResolvablePrivateAddr[:], AddressTypeRandom)
	d.completeLEConnection(e.LEConnectionCompleteEvent, &peer)
}

func (d *Device) completeLEConnection(e hci.LEConnectionCompleteEvent, peerRPA *Address) {
	d.mu.Lock()
	pending := d.pendingLEConnect
	d.mu.Unlock()

	if e.Status != 0 {
		if pending != nil {
			pending.resolve(nil, &ControllerError{Code: e.Status})
		}
		return
	}
	conn := NewConnection(e.ConnectionHandle, TransportLE, NewAddress(e.PeerAddr[:], AddressType(e.PeerAddrType)), roleFromHCI(e.Role))
	if peerRPA != nil && peerRPA.IsResolvable() {
		conn.ResolvablePeerAddress = peerRPA
	}
	conn.SetParameters(ConnectionParameters{
		IntervalUnits: e.ConnInterval,
		LatencyEvents: e.ConnLatency,
		TimeoutUnits:  e.SupervisionTimeout,
	})
	d.addConnection(conn)
	if pending != nil {
		pending.resolve(conn, nil)
	}
	if d.OnConnection != nil {
		d.OnConnection(conn)
	}
}

// Connect issues the appropriate HCI command for transport and blocks
// until the connection completes, fails, or timeout elapses (§4.5). At
// most one LE connection may be pending at a time.
func (d *Device) Connect(ctx context.Context, addr Address, transport Transport, prefs ConnectionParameters, timeout time.Duration) (*Connection, error) {
	if transport == TransportBREDR {
		return d.connectClassic(ctx, addr, timeout)
	}
	return d.connectLE(ctx, addr, prefs, timeout)
}

func (d *Device) connectLE(ctx context.Context, addr Address, prefs ConnectionParameters, timeout time.Duration) (*Connection, error) {
	if !d.pendingConnectSem.TryAcquire(1) {
		return nil, &InvalidState{Msg: "an LE connection is already pending"}
	}
	defer d.pendingConnectSem.Release(1)

	future := newConnectFuture()
	d.mu.Lock()
	d.pendingLEConnect = future
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.pendingLEConnect = nil
		d.mu.Unlock()
	}()

	ownAddrType := uint8(0)
	if d.Address().Type() != AddressTypePublic {
		ownAddrType = 1
	}
	peerType := uint8(0)
	if !addr.IsPublic() {
		peerType = 1
	}
	interval := nonZero16(prefs.IntervalUnits, 0x0018)
	timeoutUnits := nonZero16(prefs.TimeoutUnits, 0x01F4)

	cmd := hci.LECreateConnection{
		ScanInterval:        0x0060,
		ScanWindow:          0x0030,
		InitiatorFilterPlcy: 0,
		PeerAddrType:        peerType,
		PeerAddr:            addr.Bytes(),
		OwnAddrType:         ownAddrType,
		ConnIntervalMin:     interval,
		ConnIntervalMax:     interval,
		ConnLatency:         prefs.LatencyEvents,
		SupervisionTimeout:  timeoutUnits,
	}
	if _, err := d.Host.SendCommand(ctx, cmd); err != nil {
		return nil, fmt.Errorf("bthost: LE Create Connection: %w", err)
	}
	return d.waitConnect(ctx, future, timeout, func() {
		d.Host.SendCommand(context.Background(), hci.LECreateConnectionCancel{})
	})
}

func (d *Device) connectClassic(ctx context.Context, addr Address, timeout time.Duration) (*Connection, error) {
	future := newConnectFuture()
	d.mu.Lock()
	d.pendingClassicConnect = future
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.pendingClassicConnect = nil
		d.mu.Unlock()
	}()

	cmd := hci.CreateConnection{
		BDAddr:            addr.Bytes(),
		PacketType:        0xCC18, // DM1/DH1/DM3/DH3/DM5/DH5
		PageScanRepetMode: 0x02,   // R2
		AllowRoleSwitch:   1,
	}
	if _, err := d.Host.SendCommand(ctx, cmd); err != nil {
		return nil, fmt.Errorf("bthost: Create Connection: %w", err)
	}
	return d.waitConnect(ctx, future, timeout, nil)
}

func (d *Device) waitConnect(ctx context.Context, future *connectFuture, timeout time.Duration, onTimeout func()) (*Connection, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-future.done:
		return future.conn, future.err
	case <-timer.C:
		if onTimeout != nil {
			onTimeout()
		}
		select {
		case <-future.done:
			return future.conn, future.err
		case <-time.After(2 * time.Second):
		}
		return nil, &Timeout{Msg: "connection attempt timed out"}
	case <-ctx.Done():
		if onTimeout != nil {
			onTimeout()
		}
		return nil, ctx.Err()
	}
}

func nonZero16(v, def uint16) uint16 {
	if v == 0 {
		return def
	}
	return v
}

// Disconnect tears down a connection with the given HCI disconnect reason
// code (e.g. 0x13 "Remote User Terminated Connection").
func (d *Device) Disconnect(ctx context.Context, handle uint16, reason uint8) error {
	_, err := d.Host.SendCommand(ctx, hci.Disconnect{ConnectionHandle: handle, Reason: reason})
	return err
}

// Stop releases the Host's transport.
func (d *Device) Stop() error {
	d.setState(StatePoweredOff)
	return d.Host.Stop()
}
