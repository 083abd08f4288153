package l2cap

import (
	"context"
	"fmt"
	"sync"
)

// PSMAcceptor is consulted on an inbound classic Connection Request; it
// returns the handler for reassembled SDUs on the new channel, or ok=false
// to refuse the PSM.
type PSMAcceptor func(handle uint16, ch *Channel) (onData func([]byte), ok bool)

// LEPSMAcceptor is the LE Credit-Based equivalent, consulted on an inbound
// LE Credit Connection Request.
type LEPSMAcceptor func(handle uint16, ch *LECreditChannel) (onSDU func([]byte), ok bool)

// ACLSender transmits a complete L2CAP PDU over a connection handle's ACL
// link, fragmenting per the controller's buffer size. This is satisfied by
// *hci.Host.SendACL; the manager depends only on the method shape so it
// never imports the hci package, keeping the layering in §2's component
// table.
type ACLSender interface {
	SendACL(ctx context.Context, handle uint16, pdu []byte) error
}

// FixedChannelHandler processes inbound payloads on a registered fixed
// CID for a given connection handle.
type FixedChannelHandler func(handle uint16, payload []byte)

// Manager demultiplexes ACL-delivered L2CAP PDUs to fixed-channel
// handlers or to per-connection dynamic/LE-CoC channels, and allocates
// CIDs for newly opened dynamic channels (§4.3).
type Manager struct {
	acl ACLSender

	mu       sync.Mutex
	fixed    map[uint16]FixedChannelHandler
	classic  map[uint16]map[uint16]*Channel         // handle -> scid -> channel
	leCredit map[uint16]map[uint16]*LECreditChannel // handle -> scid -> channel
	nextCID  map[uint16]uint16                      // handle -> next dynamic cid to allocate

	psmMu     sync.Mutex
	psm       map[uint16]PSMAcceptor
	lePSM     map[uint16]LEPSMAcceptor
	nextSigID map[uint16]uint8
	pending   map[string]chan SignalFrame

	infoMu   sync.Mutex
	peerInfo map[uint16]map[uint16]InformationResponse // handle -> info type -> cached response

	// LocalMTU is offered in every Configure Request this Manager sends and
	// as the MTU of its LE Credit-Based connection responses; 672 matches
	// the Core Spec's L2CAP default.
	LocalMTU uint16
}

// NewManager constructs a Manager bound to an outbound ACL sender. It
// self-registers the classic and LE signaling fixed channels so classic
// dynamic and LE Credit-Based channel negotiation (§4.3.1, §4.3.2) works
// without further caller wiring.
func NewManager(acl ACLSender) *Manager {
	m := &Manager{
		acl:       acl,
		fixed:     make(map[uint16]FixedChannelHandler),
		classic:   make(map[uint16]map[uint16]*Channel),
		leCredit:  make(map[uint16]map[uint16]*LECreditChannel),
		nextCID:   make(map[uint16]uint16),
		psm:       make(map[uint16]PSMAcceptor),
		lePSM:     make(map[uint16]LEPSMAcceptor),
		nextSigID: make(map[uint16]uint8),
		pending:   make(map[string]chan SignalFrame),
		peerInfo:  make(map[uint16]map[uint16]InformationResponse),
		LocalMTU:  672,
	}
	m.fixed[CIDSignaling] = m.handleSignalingPDU
	m.fixed[CIDLESignaling] = m.handleSignalingPDU
	return m
}

// RegisterPSM installs an acceptor for inbound classic Connection Requests
// targeting psm (e.g. the SDP server's well-known PSM 0x0001).
func (m *Manager) RegisterPSM(psm uint16, a PSMAcceptor) {
	m.psmMu.Lock()
	defer m.psmMu.Unlock()
	m.psm[psm] = a
}

// RegisterLEPSM installs an acceptor for inbound LE Credit Connection
// Requests targeting lePSM.
func (m *Manager) RegisterLEPSM(lePSM uint16, a LEPSMAcceptor) {
	m.psmMu.Lock()
	defer m.psmMu.Unlock()
	m.lePSM[lePSM] = a
}

func (m *Manager) nextIdentifier(handle uint16) uint8 {
	m.psmMu.Lock()
	defer m.psmMu.Unlock()
	id := m.nextSigID[handle] + 1
	if id == 0 {
		id = 1 // 0 is reserved
	}
	m.nextSigID[handle] = id
	return id
}

func pendingKey(handle uint16, id uint8) string { return fmt.Sprintf("%d:%d", handle, id) }

func (m *Manager) awaitResponse(handle uint16, id uint8) chan SignalFrame {
	ch := make(chan SignalFrame, 1)
	m.psmMu.Lock()
	m.pending[pendingKey(handle, id)] = ch
	m.psmMu.Unlock()
	return ch
}

func (m *Manager) resolveResponse(handle uint16, id uint8, f SignalFrame) bool {
	key := pendingKey(handle, id)
	m.psmMu.Lock()
	ch, ok := m.pending[key]
	if ok {
		delete(m.pending, key)
	}
	m.psmMu.Unlock()
	if ok {
		ch <- f
	}
	return ok
}

// handleSignalingPDU is the fixed-channel handler for both the classic and
// LE signaling CIDs: it decodes every frame in the PDU and either resolves
// a pending local request or reacts to an inbound peer request.
func (m *Manager) handleSignalingPDU(handle uint16, payload []byte) {
	frames, err := ParseSignalFrames(payload)
	if err != nil {
		log.WithError(err).Warn("malformed signaling PDU")
		return
	}
	for _, f := range frames {
		m.handleSignalFrame(handle, f)
	}
}

func (m *Manager) handleSignalFrame(handle uint16, f SignalFrame) {
	switch f.Code {
	case SigConnectionResponse, SigConfigureResponse, SigDisconnectionResponse,
		SigLECreditBasedConnResponse, SigInformationResponse, SigConnParamUpdateResponse,
		SigCommandReject, SigEchoResponse:
		if m.resolveResponse(handle, f.ID, f) {
			return
		}
		log.WithField("code", f.Code).Debug("signaling response with no matching pending request")
	case SigConnectionRequest:
		m.acceptConnectionRequest(handle, f)
	case SigConfigureRequest:
		m.acceptConfigureRequest(handle, f)
	case SigDisconnectionRequest:
		m.acceptDisconnectionRequest(handle, f)
	case SigLECreditBasedConnRequest:
		m.acceptLECreditRequest(handle, f)
	case SigLEFlowControlCredit:
		m.applyFlowControlCredit(handle, f)
	case SigEchoRequest:
		m.SendSignal(handle, CIDSignaling, SignalFrame{Code: SigEchoResponse, ID: f.ID, Data: f.Data})
	case SigInformationRequest:
		m.replyInformationRequest(handle, f)
	default:
		m.SendSignal(handle, CIDSignaling, SignalFrame{
			Code: SigCommandReject, ID: f.ID,
			Data: CommandReject{Reason: RejectCommandNotUnderstood}.Marshal(),
		})
	}
}

func (m *Manager) acceptConnectionRequest(handle uint16, f SignalFrame) {
	req, err := DecodeConnectionRequest(f.Data)
	if err != nil {
		log.WithError(err).Warn("malformed Connection_Request")
		return
	}
	m.psmMu.Lock()
	acceptor, ok := m.psm[req.PSM]
	m.psmMu.Unlock()
	if !ok {
		m.SendSignal(handle, CIDSignaling, SignalFrame{Code: SigConnectionResponse, ID: f.ID, Data: ConnectionResponse{
			DCID: 0, SCID: req.SCID, Result: ConnResultRefusedPSM,
		}.Marshal()})
		return
	}
	scid := m.AllocateCID(handle)
	ch := m.OpenClassicChannel(handle, scid, req.SCID, req.PSM)
	onData, ok := acceptor(handle, ch)
	if !ok {
		m.CloseClassicChannel(handle, scid)
		m.SendSignal(handle, CIDSignaling, SignalFrame{Code: SigConnectionResponse, ID: f.ID, Data: ConnectionResponse{
			DCID: 0, SCID: req.SCID, Result: ConnResultRefusedResources,
		}.Marshal()})
		return
	}
	ch.OnData = onData
	m.SendSignal(handle, CIDSignaling, SignalFrame{Code: SigConnectionResponse, ID: f.ID, Data: ConnectionResponse{
		DCID: scid, SCID: req.SCID, Result: ConnResultSuccess,
	}.Marshal()})

	// Initiate our half of the configuration handshake immediately.
	reqID := m.nextIdentifier(handle)
	m.SendSignal(handle, CIDSignaling, SignalFrame{Code: SigConfigureRequest, ID: reqID, Data: ConfigureRequest{
		DCID: req.SCID, Options: []ConfigOption{MTUOption(m.LocalMTU)},
	}.Marshal()})
}

func (m *Manager) acceptConfigureRequest(handle uint16, f SignalFrame) {
	req, err := DecodeConfigureRequest(f.Data)
	if err != nil {
		log.WithError(err).Warn("malformed Configure_Request")
		return
	}
	ch, ok := m.ClassicChannel(handle, req.DCID)
	if !ok {
		return
	}
	var unknown []ConfigOption
	for _, o := range req.Options {
		if !o.Type.IsHint() && (o.Type < ConfigOptMTU || o.Type > ConfigOptExtendedWindowSize) {
			unknown = append(unknown, o)
		}
	}
	if len(unknown) > 0 {
		m.SendSignal(handle, CIDSignaling, SignalFrame{Code: SigConfigureResponse, ID: f.ID, Data: ConfigureResponse{
			SCID: ch.DCID, Result: ConfigResultUnknownOptions, Options: unknown,
		}.Marshal()})
		return
	}
	ch.ApplyPeerConfig(req.Options)
	m.SendSignal(handle, CIDSignaling, SignalFrame{Code: SigConfigureResponse, ID: f.ID, Data: ConfigureResponse{
		SCID: ch.DCID, Result: ConfigResultSuccess,
	}.Marshal()})
}

func (m *Manager) acceptDisconnectionRequest(handle uint16, f SignalFrame) {
	req, err := DecodeDisconnectionRequest(f.Data)
	if err != nil {
		log.WithError(err).Warn("malformed Disconnection_Request")
		return
	}
	m.CloseClassicChannel(handle, req.DCID)
	m.SendSignal(handle, CIDSignaling, SignalFrame{Code: SigDisconnectionResponse, ID: f.ID, Data: DisconnectionResponse{
		DCID: req.DCID, SCID: req.SCID,
	}.Marshal()})
}

func (m *Manager) acceptLECreditRequest(handle uint16, f SignalFrame) {
	req, err := DecodeLECreditConnRequest(f.Data)
	if err != nil {
		log.WithError(err).Warn("malformed LE_Credit_Based_Connection_Request")
		return
	}
	m.psmMu.Lock()
	acceptor, ok := m.lePSM[req.LEPSM]
	m.psmMu.Unlock()
	if !ok {
		m.SendSignal(handle, CIDLESignaling, SignalFrame{Code: SigLECreditBasedConnResponse, ID: f.ID, Data: LECreditConnResponse{
			Result: LECreditResultRefusedPSM,
		}.Marshal()})
		return
	}
	scid := m.AllocateCID(handle)
	ch := m.OpenLECreditChannel(handle, scid, req.SCID, req.LEPSM, req.MTU, req.MPS, req.InitialCredits)
	onSDU, ok := acceptor(handle, ch)
	if !ok {
		m.CloseLECreditChannel(handle, scid)
		m.SendSignal(handle, CIDLESignaling, SignalFrame{Code: SigLECreditBasedConnResponse, ID: f.ID, Data: LECreditConnResponse{
			Result: LECreditResultRefusedResources,
		}.Marshal()})
		return
	}
	ch.OnSDU = onSDU
	ch.MarkOpen(req.SCID, req.MTU, req.MPS, req.InitialCredits)
	m.SendSignal(handle, CIDLESignaling, SignalFrame{Code: SigLECreditBasedConnResponse, ID: f.ID, Data: LECreditConnResponse{
		DCID: scid, MTU: m.LocalMTU, MPS: req.MPS, InitialCredits: req.InitialCredits, Result: LECreditResultSuccess,
	}.Marshal()})
}

func (m *Manager) applyFlowControlCredit(handle uint16, f SignalFrame) {
	cr, err := DecodeLEFlowControlCredit(f.Data)
	if err != nil {
		log.WithError(err).Warn("malformed LE_Flow_Control_Credit")
		return
	}
	if ch, ok := m.LECreditChannelByDCID(handle, cr.CID); ok {
		ch.AddCredits(cr.Credits)
	}
}

func (m *Manager) replyInformationRequest(handle uint16, f SignalFrame) {
	req, err := DecodeInformationRequest(f.Data)
	if err != nil {
		log.WithError(err).Warn("malformed Information_Request")
		return
	}
	resp := InformationResponse{InfoType: req.InfoType, Result: InfoResultNotSupported}
	switch req.InfoType {
	case InfoTypeConnectionlessMTU:
		resp.Result = InfoResultSuccess
		resp.Data = []byte{0, 0} // connectionless data not supported
	case InfoTypeFixedChannelsSupported:
		resp.Result = InfoResultSuccess
		resp.Data = make([]byte, 8)
		resp.Data[0] = 0x06 // bit 1 (signaling) + bit 2 (connectionless), always present
	}
	m.SendSignal(handle, CIDSignaling, SignalFrame{Code: SigInformationResponse, ID: f.ID, Data: resp.Marshal()})
}

// peerInformation returns the peer's answer to an Information Request for
// infoType, querying it over the signaling channel at most once per
// connection handle: the first caller pays the round trip, every later
// caller on the same handle (e.g. a second dynamic channel opened to the
// same peer) is served from the cache.
func (m *Manager) peerInformation(ctx context.Context, handle uint16, infoType uint16) (InformationResponse, error) {
	m.infoMu.Lock()
	if cached, ok := m.peerInfo[handle][infoType]; ok {
		m.infoMu.Unlock()
		return cached, nil
	}
	m.infoMu.Unlock()

	id := m.nextIdentifier(handle)
	wait := m.awaitResponse(handle, id)
	if err := m.SendSignal(handle, CIDSignaling, SignalFrame{Code: SigInformationRequest, ID: id, Data: InformationRequest{InfoType: infoType}.Marshal()}); err != nil {
		return InformationResponse{}, err
	}
	select {
	case f := <-wait:
		resp, err := DecodeInformationResponse(f.Data)
		if err != nil {
			return InformationResponse{}, err
		}
		m.infoMu.Lock()
		if m.peerInfo[handle] == nil {
			m.peerInfo[handle] = make(map[uint16]InformationResponse)
		}
		m.peerInfo[handle][infoType] = resp
		m.infoMu.Unlock()
		return resp, nil
	case <-ctx.Done():
		return InformationResponse{}, ctx.Err()
	}
}

// ConnectClassicChannel drives the outgoing half of a classic dynamic
// channel open: Connection Request/Response followed by our Configure
// Request/Response. It returns once our own handshake half completes; the
// peer's Configure Request (received asynchronously) completes the other
// half via acceptConfigureRequest/ApplyPeerConfig.
func (m *Manager) ConnectClassicChannel(ctx context.Context, handle uint16, psm uint16, extraOptions ...ConfigOption) (*Channel, error) {
	if _, err := m.peerInformation(ctx, handle, InfoTypeExtendedFeatures); err != nil {
		log.WithError(err).WithField("handle", handle).Debug("peer extended features query failed, continuing")
	}

	scid := m.AllocateCID(handle)
	ch := m.OpenClassicChannel(handle, scid, 0, psm)

	connID := m.nextIdentifier(handle)
	connWait := m.awaitResponse(handle, connID)
	if err := m.SendSignal(handle, CIDSignaling, SignalFrame{Code: SigConnectionRequest, ID: connID, Data: ConnectionRequest{
		PSM: psm, SCID: scid,
	}.Marshal()}); err != nil {
		return nil, err
	}
	var connRsp ConnectionResponse
	select {
	case f := <-connWait:
		var err error
		connRsp, err = DecodeConnectionResponse(f.Data)
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if connRsp.Result != ConnResultSuccess {
		m.CloseClassicChannel(handle, scid)
		return nil, fmt.Errorf("l2cap: connection request refused: result 0x%04X", connRsp.Result)
	}
	ch.DCID = connRsp.DCID

	cfgID := m.nextIdentifier(handle)
	cfgWait := m.awaitResponse(handle, cfgID)
	opts := append([]ConfigOption{MTUOption(m.LocalMTU)}, extraOptions...)
	if err := m.SendSignal(handle, CIDSignaling, SignalFrame{Code: SigConfigureRequest, ID: cfgID, Data: ConfigureRequest{
		DCID: ch.DCID, Options: opts,
	}.Marshal()}); err != nil {
		return nil, err
	}
	select {
	case f := <-cfgWait:
		cfgRsp, err := DecodeConfigureResponse(f.Data)
		if err != nil {
			return nil, err
		}
		if cfgRsp.Result != ConfigResultSuccess {
			return nil, fmt.Errorf("l2cap: configure request refused: result 0x%04X", cfgRsp.Result)
		}
		ch.MarkConfigAcked()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return ch, nil
}

// ConnectLECreditChannel drives the outgoing half of an LE Credit-Based
// channel open: a single LE Credit Connection Request/Response round trip.
func (m *Manager) ConnectLECreditChannel(ctx context.Context, handle uint16, lePSM, mtu, mps, initialCredits uint16) (*LECreditChannel, error) {
	scid := m.AllocateCID(handle)
	ch := m.OpenLECreditChannel(handle, scid, 0, lePSM, mtu, mps, initialCredits)

	id := m.nextIdentifier(handle)
	wait := m.awaitResponse(handle, id)
	if err := m.SendSignal(handle, CIDLESignaling, SignalFrame{Code: SigLECreditBasedConnRequest, ID: id, Data: LECreditConnRequest{
		LEPSM: lePSM, SCID: scid, MTU: mtu, MPS: mps, InitialCredits: initialCredits,
	}.Marshal()}); err != nil {
		return nil, err
	}
	select {
	case f := <-wait:
		rsp, err := DecodeLECreditConnResponse(f.Data)
		if err != nil {
			return nil, err
		}
		if rsp.Result != LECreditResultSuccess {
			m.CloseLECreditChannel(handle, scid)
			return nil, fmt.Errorf("l2cap: LE credit connection refused: result 0x%04X", rsp.Result)
		}
		ch.MarkOpen(rsp.DCID, rsp.MTU, rsp.MPS, rsp.InitialCredits)
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RegisterFixedChannel installs a handler for a well-known CID
// (signaling, LE signaling, ATT, SMP, SMP-BR).
func (m *Manager) RegisterFixedChannel(cid uint16, h FixedChannelHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixed[cid] = h
}

// HandleACLPDU is the Host's OnACLPDU callback: it parses the L2CAP
// header and routes to a fixed handler or a dynamic/LE-CoC channel.
func (m *Manager) HandleACLPDU(handle uint16, raw []byte) {
	pdu, err := ParsePDU(raw, m.wantsFCS(handle, raw))
	if err != nil {
		log.WithError(err).Warnf("dropping malformed L2CAP PDU: % x", raw)
		return
	}

	m.mu.Lock()
	if h, ok := m.fixed[pdu.CID]; ok {
		m.mu.Unlock()
		h(handle, pdu.Payload)
		return
	}
	var classicCh *Channel
	if byCID, ok := m.classic[handle]; ok {
		classicCh = byCID[pdu.CID]
	}
	var leCh *LECreditChannel
	if byCID, ok := m.leCredit[handle]; ok {
		leCh = byCID[pdu.CID]
	}
	m.mu.Unlock()

	switch {
	case classicCh != nil:
		if err := classicCh.HandlePDU(pdu.Payload); err != nil {
			log.WithError(err).Warn("classic channel rejected PDU")
		}
	case leCh != nil:
		if err := leCh.HandleKFrame(pdu.Payload); err != nil {
			log.WithError(err).Warn("LE CoC channel rejected K-frame")
		}
	default:
		log.WithField("cid", pdu.CID).Debug("PDU for unknown CID, dropping")
	}
}

// wantsFCS reports whether the classic channel owning this PDU's CID
// negotiated FCS. Unknown CIDs (fixed channels, not-yet-open dynamic
// channels) never carry FCS.
func (m *Manager) wantsFCS(handle uint16, raw []byte) bool {
	if len(raw) < 4 {
		return false
	}
	cid := uint16(raw[2]) | uint16(raw[3])<<8
	m.mu.Lock()
	defer m.mu.Unlock()
	if byCID, ok := m.classic[handle]; ok {
		if ch, ok := byCID[cid]; ok {
			return ch.FCS
		}
	}
	return false
}

// AllocateCID hands out the next free dynamic CID for a connection,
// starting at CIDDynamicStart (§4.3, shared classic/LE dynamic pool).
func (m *Manager) AllocateCID(handle uint16) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	cid, ok := m.nextCID[handle]
	if !ok {
		cid = CIDDynamicStart
	}
	m.nextCID[handle] = cid + 1
	return cid
}

// OpenClassicChannel registers a new classic dynamic channel under its
// own local SCID, wiring its Send to fragment PDUs back out over the
// connection's ACL link.
func (m *Manager) OpenClassicChannel(handle uint16, scid, dcid, psm uint16) *Channel {
	ch := NewChannel(handle, scid, dcid, psm)
	ch.Send = func(pdu PDU) error {
		return m.acl.SendACL(context.Background(), handle, pdu.Marshal())
	}
	m.mu.Lock()
	if m.classic[handle] == nil {
		m.classic[handle] = make(map[uint16]*Channel)
	}
	m.classic[handle][scid] = ch
	m.mu.Unlock()
	return ch
}

// CloseClassicChannel removes a channel's manager-side entry after a
// Disconnection Request/Response exchange completes.
func (m *Manager) CloseClassicChannel(handle, scid uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if byCID, ok := m.classic[handle]; ok {
		delete(byCID, scid)
	}
}

// OpenLECreditChannel registers a new LE Credit-Based channel.
func (m *Manager) OpenLECreditChannel(handle uint16, scid, dcid, lePSM, mtu, mps, peerMaxCredits uint16) *LECreditChannel {
	ch := NewLECreditChannel(handle, scid, lePSM, mtu, mps, peerMaxCredits)
	ch.DCID = dcid
	ch.Send = func(payload []byte) error {
		pdu := PDU{CID: ch.DCID, Payload: payload}
		return m.acl.SendACL(context.Background(), handle, pdu.Marshal())
	}
	ch.OnCredit = func(cid uint16, credits uint16) {
		frame := SignalFrame{Code: SigLEFlowControlCredit, Data: LEFlowControlCredit{CID: cid, Credits: credits}.Marshal()}
		pdu := PDU{CID: CIDLESignaling, Payload: frame.Marshal()}
		m.acl.SendACL(context.Background(), handle, pdu.Marshal())
	}
	m.mu.Lock()
	if m.leCredit[handle] == nil {
		m.leCredit[handle] = make(map[uint16]*LECreditChannel)
	}
	m.leCredit[handle][scid] = ch
	m.mu.Unlock()
	return ch
}

// CloseLECreditChannel removes a channel's manager-side entry.
func (m *Manager) CloseLECreditChannel(handle, scid uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if byCID, ok := m.leCredit[handle]; ok {
		delete(byCID, scid)
	}
}

// AbortConnection drops every dynamic and LE-CoC channel belonging to a
// connection handle, per §3's "Ownership summary": when a disconnection
// event arrives, the owner aborts all dependent channels.
func (m *Manager) AbortConnection(handle uint16) {
	m.mu.Lock()
	delete(m.classic, handle)
	delete(m.leCredit, handle)
	delete(m.nextCID, handle)
	m.mu.Unlock()

	m.infoMu.Lock()
	delete(m.peerInfo, handle)
	m.infoMu.Unlock()
}

// SendSignal frames and transmits one or more signaling frames on the
// given signaling CID (classic 0x0001 or LE 0x0005).
func (m *Manager) SendSignal(handle uint16, sigCID uint16, frames ...SignalFrame) error {
	var payload []byte
	for _, f := range frames {
		payload = append(payload, f.Marshal()...)
	}
	pdu := PDU{CID: sigCID, Payload: payload}
	return m.acl.SendACL(context.Background(), handle, pdu.Marshal())
}

// ClassicChannel looks up a connection's classic channel by SCID.
func (m *Manager) ClassicChannel(handle, scid uint16) (*Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byCID, ok := m.classic[handle]
	if !ok {
		return nil, false
	}
	ch, ok := byCID[scid]
	return ch, ok
}

// LECreditChannelByDCID looks up a connection's LE CoC channel by its
// destination CID (the peer's SCID, which the peer puts in the LE Flow
// Control Credit frames it sends), used when resolving those frames.
func (m *Manager) LECreditChannelByDCID(handle, cid uint16) (*LECreditChannel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.leCredit[handle] {
		if ch.DCID == cid {
			return ch, true
		}
	}
	return nil, false
}

var errNoChannel = fmt.Errorf("l2cap: no channel for that CID")
