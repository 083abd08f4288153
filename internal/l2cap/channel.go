package l2cap

import (
	"context"
	"encoding/binary"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ChannelState enumerates a classic dynamic channel's lifecycle (§3).
type ChannelState int

const (
	StateClosed ChannelState = iota
	StateWaitConnect
	StateWaitConnectRsp
	StateWaitConfig
	StateWaitSendConfig
	StateWaitConfigReqRsp
	StateWaitConfigRsp
	StateWaitConfigReq
	StateOpen
	StateWaitDisconnect
)

func (s ChannelState) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateWaitConnect:
		return "WaitConnect"
	case StateWaitConnectRsp:
		return "WaitConnectRsp"
	case StateWaitConfig:
		return "WaitConfig"
	case StateWaitSendConfig:
		return "WaitSendConfig"
	case StateWaitConfigReqRsp:
		return "WaitConfigReqRsp"
	case StateWaitConfigRsp:
		return "WaitConfigRsp"
	case StateWaitConfigReq:
		return "WaitConfigReq"
	case StateOpen:
		return "Open"
	case StateWaitDisconnect:
		return "WaitDisconnect"
	default:
		return "Unknown"
	}
}

// Channel is a classic dynamic L2CAP channel: two endpoints negotiating
// PSM, MTU, and optionally Enhanced Retransmission Mode over a four-way
// configuration handshake (§4.3.1).
type Channel struct {
	mu sync.Mutex

	ConnectionHandle uint16
	SCID, DCID       uint16
	PSM              uint16
	State            ChannelState

	LocalMTU, PeerMTU uint16
	FCS               bool

	// ERM parameters, populated once negotiated; Mode == ERMModeBasic
	// means no retransmission/flow-control is in effect.
	ERM RetransmissionFlowControlParams

	txSeq, reqSeq uint8
	lastAckedSeq  uint8
	unackedSent   []IFrame

	sentConfig, recvConfig bool

	// OnData delivers a reassembled upper-layer SDU (Basic mode: one PDU
	// per SDU; ERM mode: reassembled across Start/Continue/End frames).
	OnData func(sdu []byte)
	// Send transmits a raw L2CAP PDU on this channel's connection; set by
	// the owning Manager.
	Send func(pdu PDU) error

	sarBuf []byte
	sarLen int
	sarOn  bool

	openOnce sync.Once
	openCh   chan struct{}
}

// NewChannel constructs a channel in WaitConnectRsp, the state a freshly
// allocated local endpoint starts in before a Connection Response arrives
// (or, on the accepting side, before we've sent one).
func NewChannel(handle, scid, dcid, psm uint16) *Channel {
	return &Channel{ConnectionHandle: handle, SCID: scid, DCID: dcid, PSM: psm, State: StateWaitConnectRsp, openCh: make(chan struct{})}
}

// WaitOpen blocks until the four-way configuration handshake completes on
// both directions (sentConfig && recvConfig) or ctx is done.
func (c *Channel) WaitOpen(ctx doneWaiter) error {
	select {
	case <-c.openCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// doneWaiter is the minimal slice of context.Context that WaitOpen needs
// for its blocking select.
type doneWaiter interface {
	Done() <-chan struct{}
	Err() error
}

// ApplyPeerConfig records the peer's Configure Request options against this
// channel (their requested PeerMTU, ERM mode, FCS) and marks our side of
// the handshake as having received it.
func (c *Channel) ApplyPeerConfig(opts []ConfigOption) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range opts {
		switch o.Type.Base() {
		case ConfigOptMTU:
			c.PeerMTU = o.MTU()
		case ConfigOptRetransmissionFlowCtrl:
			if p, ok := o.RetransmissionFlowControl(); ok {
				c.ERM = p
			}
		case ConfigOptFCS:
			c.FCS = o.FCSEnabled()
		}
	}
	c.recvConfig = true
	c.maybeOpenLocked()
}

// MarkConfigAcked records that our own Configure Request was accepted.
func (c *Channel) MarkConfigAcked() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentConfig = true
	c.maybeOpenLocked()
}

func (c *Channel) maybeOpenLocked() {
	if c.sentConfig && c.recvConfig && c.State != StateOpen {
		c.State = StateOpen
		c.openOnce.Do(func() { close(c.openCh) })
	}
}

// HandlePDU processes one inbound PDU already addressed to this channel's
// CID, either as an ERM I/S-frame or, in Basic mode, as a complete SDU.
func (c *Channel) HandlePDU(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ERM.Mode != ERMModeEnhancedRetrans {
		if c.OnData != nil {
			c.OnData(payload)
		}
		return nil
	}
	if len(payload) < 2 {
		return &InvalidPDUError{Msg: "ERM frame too short"}
	}
	if payload[0]&0x01 == 1 {
		return c.handleSFrameLocked(payload)
	}
	return c.handleIFrameLocked(payload)
}

func (c *Channel) handleSFrameLocked(b []byte) error {
	sf, err := DecodeSFrame(b)
	if err != nil {
		return err
	}
	if sf.Type == SFrameRR {
		c.lastAckedSeq = sf.ReqSeq
		c.pruneAckedLocked()
	}
	// REJ/SREJ retransmission scheduling is implementation-defined
	// (§4.3.1); this implementation retransmits go-back-N on REJ and
	// resends only the frame whose TxSeq equals ReqSeq on SREJ.
	switch sf.Type {
	case SFrameREJ:
		c.retransmitFromLocked(sf.ReqSeq)
	case SFrameSREJ:
		for _, f := range c.unackedSent {
			if f.TxSeq == sf.ReqSeq && c.Send != nil {
				c.Send(PDU{CID: c.DCID, Payload: f.Marshal(), HasFCS: c.FCS})
			}
		}
	}
	return nil
}

func (c *Channel) handleIFrameLocked(b []byte) error {
	frame, err := DecodeIFrame(b)
	if err != nil {
		return err
	}
	c.reqSeq = (frame.TxSeq + 1) % 64

	switch frame.SAR {
	case SARUnsegmented:
		if c.OnData != nil {
			c.OnData(frame.Payload)
		}
	case SARStart:
		c.sarBuf = append([]byte(nil), frame.Payload...)
		c.sarLen = int(frame.SDULen)
		c.sarOn = true
	case SARContinue, SAREnd:
		if c.sarOn {
			c.sarBuf = append(c.sarBuf, frame.Payload...)
		}
		if frame.SAR == SAREnd && c.sarOn {
			if len(c.sarBuf) == c.sarLen && c.OnData != nil {
				c.OnData(c.sarBuf)
			}
			c.sarOn = false
			c.sarBuf = nil
		}
	}

	threshold := int(c.ERM.TxWindowSize) / 2
	if threshold < 1 {
		threshold = 1
	}
	if int(c.reqSeq) >= threshold || c.reqSeq == 0 {
		c.sendRRLocked()
	}
	return nil
}

func (c *Channel) sendRRLocked() {
	if c.Send == nil {
		return
	}
	sf := SFrame{Type: SFrameRR, ReqSeq: c.reqSeq}
	c.Send(PDU{CID: c.DCID, Payload: sf.Marshal(), HasFCS: c.FCS})
}

func (c *Channel) pruneAckedLocked() {
	kept := c.unackedSent[:0]
	for _, f := range c.unackedSent {
		if f.TxSeq >= c.lastAckedSeq {
			kept = append(kept, f)
		}
	}
	c.unackedSent = kept
}

func (c *Channel) retransmitFromLocked(from uint8) {
	if c.Send == nil {
		return
	}
	for _, f := range c.unackedSent {
		if f.TxSeq >= from {
			c.Send(PDU{CID: c.DCID, Payload: f.Marshal(), HasFCS: c.FCS})
		}
	}
}

// SendSDU segments sdu per the negotiated peer MPS (ERM mode) or sends it
// as a single PDU (Basic mode).
func (c *Channel) SendSDU(sdu []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Send == nil {
		return &InvalidPDUError{Msg: "channel has no transmit path"}
	}
	if c.ERM.Mode != ERMModeEnhancedRetrans {
		return c.Send(PDU{CID: c.DCID, Payload: sdu, HasFCS: c.FCS})
	}
	mps := int(c.ERM.PeerMPS)
	if mps <= 0 {
		mps = 1009
	}
	for _, seg := range Segment(sdu, mps) {
		f := IFrame{TxSeq: c.txSeq, ReqSeq: c.reqSeq, SAR: seg.SAR, Payload: seg.Payload}
		if seg.SAR == SARStart {
			f.SDULen = uint16(len(sdu))
		}
		c.unackedSent = append(c.unackedSent, f)
		if err := c.Send(PDU{CID: c.DCID, Payload: f.Marshal(), HasFCS: c.FCS}); err != nil {
			return err
		}
		c.txSeq = (c.txSeq + 1) % 64
	}
	return nil
}

// LECreditState enumerates an LE Credit-Based channel's lifecycle (§3).
type LECreditState int

const (
	LEStateInit LECreditState = iota
	LEStateConnecting
	LEStateConnected
	LEStateDisconnecting
	LEStateDisconnected
	LEStateConnectionError
)

// LECreditChannel is an LE Credit-Based Connection-oriented Channel:
// fixed MTU/MPS once connected, credit-gated sends, SDU reassembly on
// receive (§4.3.2).
type LECreditChannel struct {
	mu sync.Mutex

	ConnectionHandle uint16
	SCID, DCID       uint16
	LEPSM            uint16
	MTU, MPS         uint16
	PeerMaxCredits   uint16

	credits     uint16 // granted to us by the peer, ours to spend sending
	peerCredits uint16 // granted by us to the peer, theirs to spend sending
	sendSem     *semaphore.Weighted
	creditCh    chan struct{}

	State LECreditState

	recvBuf []byte
	recvLen int

	// OnSDU delivers one fully reassembled SDU.
	OnSDU func(sdu []byte)
	// Send transmits a raw K-frame payload (already length-prefixed where
	// applicable) on the DCID; set by the owning Manager.
	Send func(payload []byte) error
	// OnCredit is invoked to emit an outbound LE Flow Control Credit
	// frame once peerCredits needs topping up.
	OnCredit func(cid uint16, credits uint16)

	openOnce sync.Once
	openCh   chan struct{}
}

// WaitOpen blocks until MarkOpen is called (the LE Credit-Based Connection
// Response arrived with a success result) or ctx is done.
func (c *LECreditChannel) WaitOpen(ctx doneWaiter) error {
	select {
	case <-c.openCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MarkOpen transitions the channel to LEStateConnected and releases any
// WaitOpen caller.
func (c *LECreditChannel) MarkOpen(dcid, mtu, mps, credits uint16) {
	c.mu.Lock()
	c.DCID = dcid
	c.MTU = mtu
	c.MPS = mps
	c.credits = credits
	c.State = LEStateConnected
	c.mu.Unlock()
	c.openOnce.Do(func() { close(c.openCh) })
}

// NewLECreditChannel constructs a channel not yet connected.
func NewLECreditChannel(handle uint16, scid, lePSM, mtu, mps, peerMaxCredits uint16) *LECreditChannel {
	return &LECreditChannel{
		ConnectionHandle: handle,
		SCID:             scid,
		LEPSM:            lePSM,
		MTU:              mtu,
		MPS:              mps,
		PeerMaxCredits:   peerMaxCredits,
		peerCredits:      peerMaxCredits,
		sendSem:          semaphore.NewWeighted(1),
		creditCh:         make(chan struct{}),
		openCh:           make(chan struct{}),
		State:            LEStateInit,
	}
}

// HandleKFrame processes one inbound K-frame payload addressed to this
// channel's DCID.
func (c *LECreditChannel) HandleKFrame(payload []byte) error {
	c.mu.Lock()
	first := c.recvBuf == nil && c.recvLen == 0
	if first {
		if len(payload) < 2 {
			c.mu.Unlock()
			return &InvalidPDUError{Msg: "LE CoC first K-frame too short"}
		}
		c.recvLen = int(binary.LittleEndian.Uint16(payload[0:2]))
		c.recvBuf = append([]byte(nil), payload[2:]...)
	} else {
		c.recvBuf = append(c.recvBuf, payload...)
	}
	if len(c.recvBuf) > c.recvLen {
		c.State = LEStateDisconnecting
		c.mu.Unlock()
		return &InvalidPDUError{Msg: "LE CoC SDU overflow"}
	}
	complete := len(c.recvBuf) == c.recvLen
	var sdu []byte
	if complete {
		sdu = c.recvBuf
		c.recvBuf = nil
		c.recvLen = 0
	}
	c.peerCredits--
	needTopUp := c.peerCredits < c.PeerMaxCredits/2
	var topUp uint16
	if needTopUp {
		topUp = c.PeerMaxCredits - c.peerCredits
		c.peerCredits = c.PeerMaxCredits
	}
	c.mu.Unlock()

	if complete && c.OnSDU != nil {
		c.OnSDU(sdu)
	}
	if needTopUp && c.OnCredit != nil {
		c.OnCredit(c.SCID, topUp)
	}
	return nil
}

// AddCredits applies a received LE Flow Control Credit grant.
func (c *LECreditChannel) AddCredits(n uint16) {
	c.mu.Lock()
	c.credits += n
	c.mu.Unlock()
	select {
	case c.creditCh <- struct{}{}:
	default:
	}
}

// SendSDU transmits sdu as a run of credit-gated K-frames no larger than
// MPS, the first prefixed with the 2-byte SDU length (§4.3.2).
func (c *LECreditChannel) SendSDU(sdu []byte) error {
	if err := c.sendSem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer c.sendSem.Release(1)

	prefix := make([]byte, 2)
	binary.LittleEndian.PutUint16(prefix, uint16(len(sdu)))
	first := append(prefix, sdu[:min(len(sdu), int(c.MPS)-2)]...)
	rest := sdu[min(len(sdu), int(c.MPS)-2):]

	frames := [][]byte{first}
	for len(rest) > 0 {
		n := min(len(rest), int(c.MPS))
		frames = append(frames, rest[:n])
		rest = rest[n:]
	}
	for _, f := range frames {
		if err := c.waitCredit(); err != nil {
			return err
		}
		if err := c.Send(f); err != nil {
			return err
		}
	}
	return nil
}

func (c *LECreditChannel) waitCredit() error {
	for {
		c.mu.Lock()
		if c.credits > 0 {
			c.credits--
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()
		<-c.creditCh
	}
}
