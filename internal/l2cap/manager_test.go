package l2cap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// relayACL wires one Manager's outbound ACL traffic directly into a peer
// Manager's HandleACLPDU, so a full signaling round trip (Connection
// Request/Response, Configure Request/Response, LE Credit handshake)
// completes synchronously within a single test goroutine.
type relayACL struct {
	peer *Manager
}

func (r *relayACL) SendACL(ctx context.Context, handle uint16, pdu []byte) error {
	r.peer.HandleACLPDU(handle, pdu)
	return nil
}

func newPairedManagers() (*Manager, *Manager) {
	relayA, relayB := &relayACL{}, &relayACL{}
	mgrA := NewManager(relayA)
	mgrB := NewManager(relayB)
	relayA.peer = mgrB
	relayB.peer = mgrA
	return mgrA, mgrB
}

func TestManagerClassicChannelHandshakeAndData(t *testing.T) {
	mgrA, mgrB := newPairedManagers()

	const handle = 0x0040
	const psm = 0x1001

	var serverCh *Channel
	var gotOnServer []byte
	mgrB.RegisterPSM(psm, func(handle uint16, ch *Channel) (func([]byte), bool) {
		serverCh = ch
		return func(b []byte) { gotOnServer = b }, true
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	clientCh, err := mgrA.ConnectClassicChannel(ctx, handle, psm)
	require.NoError(t, err)
	require.Equal(t, StateOpen, clientCh.State)
	require.NotNil(t, serverCh)

	require.NoError(t, clientCh.SendSDU([]byte("hello")))
	require.Equal(t, []byte("hello"), gotOnServer)
}

func TestManagerClassicChannelRefusedUnknownPSM(t *testing.T) {
	mgrA, _ := newPairedManagers()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := mgrA.ConnectClassicChannel(ctx, 0x0040, 0x9999)
	require.Error(t, err)
}

func TestManagerLECreditChannelHandshakeAndData(t *testing.T) {
	mgrA, mgrB := newPairedManagers()

	const handle = 0x0041
	const lePSM = 0x0080

	var serverCh *LECreditChannel
	var gotOnServer []byte
	mgrB.RegisterLEPSM(lePSM, func(handle uint16, ch *LECreditChannel) (func([]byte), bool) {
		serverCh = ch
		return func(sdu []byte) { gotOnServer = sdu }, true
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	clientCh, err := mgrA.ConnectLECreditChannel(ctx, handle, lePSM, 512, 100, 5)
	require.NoError(t, err)
	require.Equal(t, LEStateConnected, clientCh.State)
	require.NotNil(t, serverCh)
	require.Equal(t, LEStateConnected, serverCh.State)

	require.NoError(t, clientCh.SendSDU([]byte("ping")))
	require.Equal(t, []byte("ping"), gotOnServer)
}

func TestManagerLECreditChannelRefusedUnknownPSM(t *testing.T) {
	mgrA, _ := newPairedManagers()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := mgrA.ConnectLECreditChannel(ctx, 0x0041, 0x9999, 512, 100, 5)
	require.Error(t, err)
}

func TestManagerAbortConnectionDropsChannels(t *testing.T) {
	mgrA, mgrB := newPairedManagers()
	const handle = 0x0042
	const psm = 0x1002

	mgrB.RegisterPSM(psm, func(handle uint16, ch *Channel) (func([]byte), bool) {
		return func([]byte) {}, true
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	clientCh, err := mgrA.ConnectClassicChannel(ctx, handle, psm)
	require.NoError(t, err)

	mgrA.AbortConnection(handle)
	_, ok := mgrA.ClassicChannel(handle, clientCh.SCID)
	require.False(t, ok)
}

func TestManagerPeerInformationCachedAcrossChannelOpens(t *testing.T) {
	mgrA, mgrB := newPairedManagers()
	const handle = 0x0043
	const psmA, psmB = 0x1003, 0x1004

	mgrB.RegisterPSM(psmA, func(uint16, *Channel) (func([]byte), bool) { return func([]byte) {}, true })
	mgrB.RegisterPSM(psmB, func(uint16, *Channel) (func([]byte), bool) { return func([]byte) {}, true })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := mgrA.ConnectClassicChannel(ctx, handle, psmA)
	require.NoError(t, err)

	mgrA.infoMu.Lock()
	cached, ok := mgrA.peerInfo[handle][InfoTypeExtendedFeatures]
	mgrA.infoMu.Unlock()
	require.True(t, ok)
	require.Equal(t, InfoResultNotSupported, cached.Result)

	// A second dynamic channel open on the same handle must reuse the
	// cached answer rather than issuing another Information Request: the
	// signaling identifier sequence only advances by the Connection
	// Request/Response and Configure Request/Response pairs, not by an
	// extra Information Request round trip.
	before := mgrA.nextSigID[handle]
	_, err = mgrA.ConnectClassicChannel(ctx, handle, psmB)
	require.NoError(t, err)
	require.Equal(t, before+2, mgrA.nextSigID[handle])

	mgrA.AbortConnection(handle)
	mgrA.infoMu.Lock()
	_, stillCached := mgrA.peerInfo[handle]
	mgrA.infoMu.Unlock()
	require.False(t, stillCached)
}

func TestSignalFrameRoundTrip(t *testing.T) {
	frames := []SignalFrame{
		{Code: SigEchoRequest, ID: 1, Data: []byte("ping")},
		{Code: SigEchoResponse, ID: 2, Data: []byte("pong")},
	}
	var raw []byte
	for _, f := range frames {
		raw = append(raw, f.Marshal()...)
	}

	got, err := ParseSignalFrames(raw)
	require.NoError(t, err)
	require.Equal(t, frames, got)
}

func TestParseSignalFramesTruncated(t *testing.T) {
	_, err := ParseSignalFrames([]byte{0x08, 0x01, 0x05, 0x00, 0x01, 0x02})
	require.Error(t, err)
}
