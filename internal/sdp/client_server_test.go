package sdp

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// directTransaction drives a Client straight into a Server's HandleRequest,
// synchronously, bypassing any L2CAP channel — enough to exercise the
// request/response and continuation-state logic on both sides.
type directTransaction struct{ srv *Server }

func (d directTransaction) SendPDU(ctx context.Context, pdu PDU) (PDU, error) {
	raw := d.srv.HandleRequest(pdu.Marshal())
	return ParsePDU(raw)
}

func uuidOf(b byte) []byte { return bytes.Repeat([]byte{b}, 16) }

func TestServiceSearchFindsMatchingRecord(t *testing.T) {
	srv := NewServer()
	uuid := uuidOf(0x11)
	srv.AddRecord(&Record{
		Handle: 1,
		Attributes: map[AttributeID]Element{
			0x0001: NewSequence(Element{Type: TypeUUID, Bytes: uuid}),
		},
	})
	srv.AddRecord(&Record{
		Handle: 2,
		Attributes: map[AttributeID]Element{
			0x0001: NewSequence(Element{Type: TypeUUID, Bytes: uuidOf(0x22)}),
		},
	})

	client := NewClient(directTransaction{srv: srv})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	handles, err := client.ServiceSearch(ctx, []Element{{Type: TypeUUID, Bytes: uuid}}, 0xFFFF)
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, handles)
}

func TestServiceAttributeFetchesRequestedIDs(t *testing.T) {
	srv := NewServer()
	srv.AddRecord(&Record{
		Handle: 7,
		Attributes: map[AttributeID]Element{
			0x0000: NewUint(4, 7),
			0x0001: NewText("a service"),
			0x0004: NewUint(2, 0x0100),
		},
	})

	client := NewClient(directTransaction{srv: srv})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	attrs, err := client.ServiceAttribute(ctx, 7, []AttributeIDRange{{Start: 0x0001, End: 0x0001}})
	require.NoError(t, err)
	require.Len(t, attrs.Seq, 2) // [id, value]
	require.Equal(t, uint64(0x0001), attrs.Seq[0].Uint)
	require.Equal(t, []byte("a service"), attrs.Seq[1].Bytes)
}

func TestServiceAttributeUnknownHandleErrors(t *testing.T) {
	srv := NewServer()
	client := NewClient(directTransaction{srv: srv})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.ServiceAttribute(ctx, 99, []AttributeIDRange{{Start: 0, End: 0xFFFF}})
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, ErrInvalidServiceRecordHandle, protoErr.Code)
}

func TestServiceSearchAttributeCombinesSearchAndFetch(t *testing.T) {
	srv := NewServer()
	uuid := uuidOf(0x33)
	srv.AddRecord(&Record{
		Handle: 5,
		Attributes: map[AttributeID]Element{
			0x0001: NewSequence(Element{Type: TypeUUID, Bytes: uuid}),
			0x0100: NewText("printer"),
		},
	})

	client := NewClient(directTransaction{srv: srv})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := client.ServiceSearchAttribute(ctx,
		[]Element{{Type: TypeUUID, Bytes: uuid}},
		[]AttributeIDRange{{Start: 0x0100, End: 0x0100}})
	require.NoError(t, err)
	require.Len(t, result.Seq, 1)
	require.Len(t, result.Seq[0].Seq, 2)
	require.Equal(t, []byte("printer"), result.Seq[0].Seq[1].Bytes)
}

func TestServiceSearchContinuationOverManyRecords(t *testing.T) {
	srv := NewServer()
	srv.MaxResponseBytes = 40 // chunkMax = 10 handles/round, forcing continuation
	uuid := uuidOf(0x44)
	for h := uint32(1); h <= 100; h++ {
		srv.AddRecord(&Record{
			Handle: h,
			Attributes: map[AttributeID]Element{
				0x0001: NewSequence(Element{Type: TypeUUID, Bytes: uuid}),
			},
		})
	}

	client := NewClient(directTransaction{srv: srv})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handles, err := client.ServiceSearch(ctx, []Element{{Type: TypeUUID, Bytes: uuid}}, 0xFFFF)
	require.NoError(t, err)
	require.Len(t, handles, 100)

	seen := make(map[uint32]bool)
	for _, h := range handles {
		seen[h] = true
	}
	require.Len(t, seen, 100)
}

func TestServiceSearchAttributeContinuationOverManyAttributeBytes(t *testing.T) {
	srv := NewServer()
	srv.MaxResponseBytes = 30 // small enough to force several attribute-chunk rounds
	uuid := uuidOf(0x55)
	longText := bytes.Repeat([]byte{'z'}, 200)
	srv.AddRecord(&Record{
		Handle: 9,
		Attributes: map[AttributeID]Element{
			0x0001: NewSequence(Element{Type: TypeUUID, Bytes: uuid}),
			0x0200: NewText(string(longText)),
		},
	})

	client := NewClient(directTransaction{srv: srv})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := client.ServiceSearchAttribute(ctx,
		[]Element{{Type: TypeUUID, Bytes: uuid}},
		[]AttributeIDRange{{Start: 0x0200, End: 0x0200}})
	require.NoError(t, err)
	require.Len(t, result.Seq, 1)
	require.Equal(t, longText, result.Seq[0].Seq[1].Bytes)
}

func TestChannelTransactionDeliverRoutesByTransactionID(t *testing.T) {
	var sent []byte
	tx := NewChannelTransaction(func(b []byte) error {
		sent = b
		return nil
	})

	done := make(chan struct{})
	var resp PDU
	var sendErr error
	go func() {
		resp, sendErr = tx.SendPDU(context.Background(), PDU{ID: PDUServiceSearchRequest, TransactionID: 42})
		close(done)
	}()

	require.Eventually(t, func() bool { return sent != nil }, time.Second, time.Millisecond)
	reqPDU, err := ParsePDU(sent)
	require.NoError(t, err)
	require.Equal(t, uint16(42), reqPDU.TransactionID)

	tx.Deliver(PDU{ID: PDUServiceSearchResponse, TransactionID: 42, Params: []byte{0xAA}}.Marshal())

	<-done
	require.NoError(t, sendErr)
	require.Equal(t, PDUServiceSearchResponse, resp.ID)
	require.Equal(t, []byte{0xAA}, resp.Params)
}
