package hci

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultCommandTimeout is the default time a single outstanding command
// is allowed to take before the pipeline declares a timeout (§4.2).
const DefaultCommandTimeout = 10 * time.Second

// LongTermKeyProvider resolves an LTK for an LE Long Term Key Request. ok
// is false to send the negative reply.
type LongTermKeyProvider func(handle uint16, rand [8]byte, ediv uint16) (key [16]byte, ok bool)

// LinkKeyProvider resolves a classic link key for a Link Key Request.
type LinkKeyProvider func(bdAddr [6]byte) (key [16]byte, ok bool)

// Host owns the HCI transport, runs the startup sequence, correlates
// commands with their Command-Complete/Command-Status, dispatches events
// to listeners, reassembles ACL fragments into L2CAP PDUs, and paces
// outbound ACL by the controller's completed-packets credit (§4.2).
type Host struct {
	transport Transport
	driver    Driver

	CommandTimeout time.Duration

	cmdSem      *semaphore.Weighted
	pendingMu   sync.Mutex
	pendingOp   OpCode
	pendingDone chan commandResult

	listenerMu     sync.Mutex
	eventListeners map[EventCode][]func(*EventPacket)
	leListeners    map[LESubeventCode][]func([]byte)

	reassemblyMu sync.Mutex
	reassembly   map[uint16]*aclReassembly

	flowMu          sync.Mutex
	aclPacketLen    int
	totalACLPackets int
	aclAvailable    int
	aclWait         chan struct{}

	// OnACLPDU is invoked with a complete, reassembled L2CAP PDU for a
	// connection handle. Set by whatever owns L2CAP demultiplexing.
	OnACLPDU func(handle uint16, pdu []byte)

	// OnDisconnection is invoked after a Disconnection_Complete event so
	// owners can abort dependent channels/connections (§3 "Ownership
	// summary").
	OnDisconnection func(handle uint16, reason uint8)

	// OnConnectionComplete/OnLEConnectionComplete/OnLEEnhancedConnection let the Device
	// layer learn about new connections without a bespoke listener.
	OnConnectionComplete       func(ConnectionCompleteEvent)
	OnLEConnectionComplete     func(LEConnectionCompleteEvent)
	OnLEEnhancedConnection     func(LEEnhancedConnectionCompleteEvent)
	OnAdvertisingReport        func(LEAdvertisingReportEvent)

	LongTermKey LongTermKeyProvider
	LinkKey     LinkKeyProvider

	stopOnce sync.Once
	stopCh   chan struct{}
}

type commandResult struct {
	status uint8
	ret    []byte
	err    error
}

type aclReassembly struct {
	buf      []byte
	expected int
}

// NewHost constructs a Host bound to transport. Call Start to run the
// power-on sequence and begin the read loop.
func NewHost(transport Transport, driver Driver) *Host {
	return &Host{
		transport:      transport,
		driver:         driver,
		CommandTimeout: DefaultCommandTimeout,
		cmdSem:         semaphore.NewWeighted(1),
		eventListeners: make(map[EventCode][]func(*EventPacket)),
		leListeners:    make(map[LESubeventCode][]func([]byte)),
		reassembly:     make(map[uint16]*aclReassembly),
		aclWait:        make(chan struct{}),
		stopCh:         make(chan struct{}),
	}
}

// RegisterEventListener adds a typed-event listener. Multiple listeners
// per code may be registered; all are invoked in registration order.
func (h *Host) RegisterEventListener(code EventCode, fn func(*EventPacket)) {
	h.listenerMu.Lock()
	defer h.listenerMu.Unlock()
	h.eventListeners[code] = append(h.eventListeners[code], fn)
}

// RegisterLEEventListener adds a listener for one LE meta subevent code.
func (h *Host) RegisterLEEventListener(code LESubeventCode, fn func([]byte)) {
	h.listenerMu.Lock()
	defer h.listenerMu.Unlock()
	h.leListeners[code] = append(h.leListeners[code], fn)
}

// Start runs the reset+capability-discovery sequence (§4.2) and begins the
// background read loop. It returns once the sequence (including the
// optional Driver hook) has completed and emits a ready state to the
// caller by returning nil.
func (h *Host) Start(ctx context.Context) error {
	go h.readLoop()

	steps := []CmdParam{
		Reset{},
		ReadLocalVersionInformation{},
		ReadLocalSupportedCommands{},
		ReadLocalSupportedFeatures{},
		ReadBufferSize{},
	}
	for _, s := range steps {
		if _, err := h.SendCommand(ctx, s); err != nil {
			return fmt.Errorf("hci: startup step %s: %w", s.Opcode(), err)
		}
	}

	// LE buffer size: try v2 (also reports ISO buffers) and fall back.
	if cc, err := h.SendCommand(ctx, LEReadBufferSizeV2{}); err == nil {
		h.applyLEBufferSize(cc)
	} else if cc, err := h.SendCommand(ctx, LEReadBufferSize{}); err == nil {
		h.applyLEBufferSize(cc)
	}
	if _, err := h.SendCommand(ctx, LEReadLocalSupportedFeatures{}); err != nil {
		return err
	}

	if _, err := h.SendCommand(ctx, SetEventMask{Mask: defaultEventMask}); err != nil {
		return err
	}
	if _, err := h.SendCommand(ctx, LESetEventMask{Mask: defaultLEEventMask}); err != nil {
		return err
	}

	if h.driver != nil {
		if err := h.driver.InitController(ctx, h); err != nil {
			return fmt.Errorf("hci: driver init: %w", err)
		}
	}
	return nil
}

const (
	defaultEventMask   uint64 = 0x3FFFFFFFFFFFFFFF
	defaultLEEventMask uint64 = 0x000000000000079F
)

func (h *Host) applyLEBufferSize(cc CommandCompleteEvent) {
	fields, ok := DecodeReturnFields(LEReadBufferSize{}.ReturnFields(), cc.ReturnParameters)
	if !ok {
		return
	}
	h.flowMu.Lock()
	defer h.flowMu.Unlock()
	h.aclPacketLen = int(getU16LE(fields["LE_ACL_Data_Packet_Length"]))
	h.totalACLPackets = int(fields["Total_Num_LE_ACL_Data_Packets"][0])
	h.aclAvailable = h.totalACLPackets
}

// Stop closes the transport and releases the read loop.
func (h *Host) Stop() error {
	h.stopOnce.Do(func() { close(h.stopCh) })
	return h.transport.Close()
}

// SendCommand sends a command and blocks until its Command-Complete (or,
// for commands with no structured return, Command-Status) arrives, the
// context is cancelled, or CommandTimeout elapses. At most one command is
// outstanding at a time (§4.2's "simplest correct policy").
func (h *Host) SendCommand(ctx context.Context, p CmdParam) (CommandCompleteEvent, error) {
	if err := h.cmdSem.Acquire(ctx, 1); err != nil {
		return CommandCompleteEvent{}, err
	}
	defer h.cmdSem.Release(1)

	done := make(chan commandResult, 1)
	h.pendingMu.Lock()
	h.pendingOp = p.Opcode()
	h.pendingDone = done
	h.pendingMu.Unlock()

	if err := h.transport.Send(EncodeCommand(p)); err != nil {
		h.clearPending()
		return CommandCompleteEvent{}, err
	}

	timeout := h.CommandTimeout
	if timeout == 0 {
		timeout = DefaultCommandTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			return CommandCompleteEvent{}, res.err
		}
		return CommandCompleteEvent{Opcode: p.Opcode(), ReturnParameters: res.ret}, nil
	case <-timer.C:
		h.clearPending()
		log.WithField("opcode", p.Opcode()).Warn("command timeout, flushing pipeline")
		return CommandCompleteEvent{}, &TimeoutError{Opcode: p.Opcode()}
	case <-ctx.Done():
		h.clearPending()
		return CommandCompleteEvent{}, ctx.Err()
	}
}

func (h *Host) clearPending() {
	h.pendingMu.Lock()
	h.pendingDone = nil
	h.pendingMu.Unlock()
}

// TimeoutError reports a command that did not complete within
// Host.CommandTimeout.
type TimeoutError struct{ Opcode OpCode }

func (e *TimeoutError) Error() string { return fmt.Sprintf("hci: command %s timed out", e.Opcode) }

func (h *Host) readLoop() {
	for {
		select {
		case <-h.stopCh:
			return
		default:
		}
		p, err := h.transport.Receive()
		if err != nil {
			return
		}
		switch p.Type {
		case PacketTypeEvent:
			h.handleEvent(p.Event)
		case PacketTypeACLData:
			h.handleACL(p.ACL)
		default:
			log.WithField("type", p.Type).Debug("ignoring non-event/ACL packet")
		}
	}
}

func (h *Host) handleEvent(ep *EventPacket) {
	switch ep.Code {
	case EventCommandComplete:
		cc, err := DecodeCommandComplete(ep.Parameters)
		if err != nil {
			log.WithError(err).Warnf("bad Command_Complete: % x", ep.Parameters)
			return
		}
		h.resolvePending(cc.Opcode, commandResult{ret: cc.ReturnParameters})
	case EventCommandStatus:
		cs, err := DecodeCommandStatus(ep.Parameters)
		if err != nil {
			log.WithError(err).Warnf("bad Command_Status: % x", ep.Parameters)
			return
		}
		var cerr error
		if cs.Status != 0 {
			cerr = &ControllerStatusError{Status: cs.Status}
		}
		h.resolvePending(cs.Opcode, commandResult{status: cs.Status, err: cerr})
	case EventDisconnectionComplete:
		dc, err := DecodeDisconnectionComplete(ep.Parameters)
		if err != nil {
			log.WithError(err).Warn("bad Disconnection_Complete")
			return
		}
		h.reassemblyMu.Lock()
		delete(h.reassembly, dc.ConnectionHandle)
		h.reassemblyMu.Unlock()
		if h.OnDisconnection != nil {
			h.OnDisconnection(dc.ConnectionHandle, dc.Reason)
		}
	case EventConnectionComplete:
		cc, err := DecodeConnectionComplete(ep.Parameters)
		if err == nil && h.OnConnectionComplete != nil {
			h.OnConnectionComplete(cc)
		}
	case EventNumberOfCompletedPackets:
		nc, err := DecodeNumberOfCompletedPackets(ep.Parameters)
		if err != nil {
			log.WithError(err).Warn("bad Number_Of_Completed_Packets")
			return
		}
		h.restoreCredits(nc)
	case EventLinkKeyRequest:
		lk, err := DecodeLinkKeyRequest(ep.Parameters)
		if err != nil {
			return
		}
		h.handleLinkKeyRequest(lk)
	case EventLEMeta:
		h.handleLEMeta(ep)
	default:
		h.dispatchListeners(ep)
	}
}

func (h *Host) dispatchListeners(ep *EventPacket) {
	h.listenerMu.Lock()
	ls := append([]func(*EventPacket){}, h.eventListeners[ep.Code]...)
	h.listenerMu.Unlock()
	if len(ls) == 0 {
		log.WithField("code", ep.Code).Debug("no listener for event")
		return
	}
	for _, fn := range ls {
		fn(ep)
	}
}

func (h *Host) handleLEMeta(ep *EventPacket) {
	sub, rest, ok := ep.Subevent()
	if !ok {
		return
	}
	switch sub {
	case LESubeventConnectionComplete:
		cc, err := DecodeLEConnectionComplete(rest)
		if err == nil && h.OnLEConnectionComplete != nil {
			h.OnLEConnectionComplete(cc)
		}
	case LESubeventEnhancedConnectionComplete:
		cc, err := DecodeLEEnhancedConnectionComplete(rest)
		if err == nil && h.OnLEEnhancedConnection != nil {
			h.OnLEEnhancedConnection(cc)
		}
	case LESubeventAdvertisingReport:
		ar, err := DecodeLEAdvertisingReport(rest)
		if err == nil && h.OnAdvertisingReport != nil {
			h.OnAdvertisingReport(ar)
		}
	case LESubeventLongTermKeyRequest:
		lr, err := DecodeLELongTermKeyRequest(rest)
		if err == nil {
			h.handleLongTermKeyRequest(lr)
		}
	}
	h.listenerMu.Lock()
	ls := append([]func([]byte){}, h.leListeners[sub]...)
	h.listenerMu.Unlock()
	for _, fn := range ls {
		fn(rest)
	}
}

func (h *Host) handleLongTermKeyRequest(req LELongTermKeyRequestEvent) {
	ctx := context.Background()
	if h.LongTermKey == nil {
		h.SendCommand(ctx, LELongTermKeyRequestNegativeReply{ConnectionHandle: req.ConnectionHandle})
		return
	}
	key, ok := h.LongTermKey(req.ConnectionHandle, req.RandomNumber, req.EncryptedDiversifier)
	if !ok {
		h.SendCommand(ctx, LELongTermKeyRequestNegativeReply{ConnectionHandle: req.ConnectionHandle})
		return
	}
	h.SendCommand(ctx, LELongTermKeyRequestReply{ConnectionHandle: req.ConnectionHandle, LongTermKey: key})
}

func (h *Host) handleLinkKeyRequest(req LinkKeyRequestEvent) {
	ctx := context.Background()
	if h.LinkKey == nil {
		h.SendCommand(ctx, LinkKeyRequestNegativeReply{BDAddr: req.BDAddr})
		return
	}
	key, ok := h.LinkKey(req.BDAddr)
	if !ok {
		h.SendCommand(ctx, LinkKeyRequestNegativeReply{BDAddr: req.BDAddr})
		return
	}
	h.SendCommand(ctx, LinkKeyRequestReply{BDAddr: req.BDAddr, LinkKey: key})
}

func (h *Host) resolvePending(op OpCode, res commandResult) {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	if h.pendingDone == nil || h.pendingOp != op {
		log.WithField("opcode", op).Debug("no outstanding command for this response")
		return
	}
	h.pendingDone <- res
	h.pendingDone = nil
}

// ControllerStatusError wraps a non-zero HCI status code returned via
// Command_Status.
type ControllerStatusError struct{ Status uint8 }

func (e *ControllerStatusError) Error() string {
	return fmt.Sprintf("hci: controller status 0x%02X", e.Status)
}

// handleACL reassembles inbound ACL fragments into complete L2CAP PDUs
// (§4.2: "Per connection handle, maintain a buffer and expected L2CAP PDU
// length..."). A first-fragment's first two bytes are the L2CAP PDU's own
// length prefix; continuations only append. Oversized accumulation is a
// protocol error: drop the buffer and log.
func (h *Host) handleACL(p *ACLDataPacket) {
	h.reassemblyMu.Lock()
	r, ok := h.reassembly[p.ConnectionHandle]
	switch p.PBFlag {
	case PBFirstNonFlushable, PBFirstFlushable:
		if len(p.Data) < 4 {
			h.reassemblyMu.Unlock()
			log.WithField("handle", p.ConnectionHandle).Warn("first ACL fragment too short for L2CAP header")
			return
		}
		expected := int(getU16LE(p.Data[0:2])) + 4
		r = &aclReassembly{buf: append([]byte(nil), p.Data...), expected: expected}
		h.reassembly[p.ConnectionHandle] = r
	case PBContinuation:
		if !ok {
			h.reassemblyMu.Unlock()
			log.WithField("handle", p.ConnectionHandle).Warn("ACL continuation with no pending reassembly")
			return
		}
		r.buf = append(r.buf, p.Data...)
	default:
		h.reassemblyMu.Unlock()
		return
	}

	if len(r.buf) > r.expected {
		delete(h.reassembly, p.ConnectionHandle)
		h.reassemblyMu.Unlock()
		log.WithField("handle", p.ConnectionHandle).Warn("ACL reassembly overflow, dropping")
		return
	}
	var complete []byte
	if len(r.buf) == r.expected {
		complete = r.buf
		delete(h.reassembly, p.ConnectionHandle)
	}
	h.reassemblyMu.Unlock()

	if complete != nil && h.OnACLPDU != nil {
		h.OnACLPDU(p.ConnectionHandle, complete)
	}
}

// restoreCredits applies a Number_Of_Completed_Packets event to the
// outbound ACL credit pool and wakes any SendACL callers blocked on it.
func (h *Host) restoreCredits(e NumberOfCompletedPacketsEvent) {
	h.flowMu.Lock()
	for _, n := range e.Completed {
		h.aclAvailable += int(n)
	}
	if h.aclAvailable > h.totalACLPackets {
		h.aclAvailable = h.totalACLPackets
	}
	waiters := h.aclWait
	h.aclWait = make(chan struct{})
	h.flowMu.Unlock()
	close(waiters)
}

// SendACL fragments a complete L2CAP PDU into the controller's ACL buffer
// size and blocks until enough outbound packet credit is available for
// each fragment, restoring the policy described in §4.2's "Flow control"
// paragraph.
func (h *Host) SendACL(ctx context.Context, handle uint16, pdu []byte) error {
	h.flowMu.Lock()
	maxLen := h.aclPacketLen
	h.flowMu.Unlock()
	if maxLen == 0 {
		maxLen = len(pdu)
		if maxLen == 0 {
			maxLen = 1
		}
	}

	pb := PBFirstFlushable
	for off := 0; off < len(pdu) || (off == 0 && len(pdu) == 0); {
		end := off + maxLen
		if end > len(pdu) {
			end = len(pdu)
		}
		frag := pdu[off:end]

		if err := h.waitForCredit(ctx); err != nil {
			return err
		}
		if err := h.transport.Send(NewACLDataPacket(handle, pb, 0, frag)); err != nil {
			return err
		}
		pb = PBContinuation
		off = end
		if off >= len(pdu) {
			break
		}
	}
	return nil
}

func (h *Host) waitForCredit(ctx context.Context) error {
	for {
		h.flowMu.Lock()
		if h.aclAvailable > 0 {
			h.aclAvailable--
			wait := h.aclWait
			h.flowMu.Unlock()
			_ = wait
			return nil
		}
		wait := h.aclWait
		h.flowMu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
