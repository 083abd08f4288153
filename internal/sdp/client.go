package sdp

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
)

// Transaction issues one PDU and waits for its counterpart response on
// the owning channel.
type Transaction interface {
	SendPDU(ctx context.Context, pdu PDU) (PDU, error)
}

// Client issues ServiceSearch/ServiceAttribute/ServiceSearchAttribute
// requests over a single SDP channel connection, looping on continuation
// state until a response completes (§4.4.2).
type Client struct {
	tx     Transaction
	nextID uint32
}

// NewClient constructs a Client bound to a transaction issuer (normally
// an L2CAP classic channel opened on the SDP PSM).
func NewClient(tx Transaction) *Client { return &Client{tx: tx} }

func (c *Client) newTransactionID() uint16 {
	return uint16(atomic.AddUint32(&c.nextID, 1))
}

// ServiceSearch finds record handles matching pattern, looping on
// continuation state until the server signals completion.
func (c *Client) ServiceSearch(ctx context.Context, pattern []Element, maxRecords uint16) ([]uint32, error) {
	var handles []uint32
	cont := continuationTerminator[:0]
	txID := c.newTransactionID()
	for round := 0; ; round++ {
		if round >= maxContinuationRounds {
			return nil, fmt.Errorf("sdp: continuation watchdog exceeded")
		}
		params := NewSequence(pattern...).Marshal()
		params = append(params, make([]byte, 2)...)
		binary.BigEndian.PutUint16(params[len(params)-2:], maxRecords)
		params = append(params, byte(len(cont)))
		params = append(params, cont...)

		resp, err := c.roundTrip(ctx, txID, PDUServiceSearchRequest, params)
		if err != nil {
			return nil, err
		}
		if len(resp.Params) < 4 {
			return nil, fmt.Errorf("sdp: ServiceSearchResponse truncated")
		}
		totalCount := binary.BigEndian.Uint16(resp.Params[0:2])
		currentCount := binary.BigEndian.Uint16(resp.Params[2:4])
		off := 4
		for i := 0; i < int(currentCount); i++ {
			if off+4 > len(resp.Params) {
				return nil, fmt.Errorf("sdp: ServiceSearchResponse handle list truncated")
			}
			handles = append(handles, binary.BigEndian.Uint32(resp.Params[off:off+4]))
			off += 4
		}
		if off >= len(resp.Params) {
			return nil, fmt.Errorf("sdp: ServiceSearchResponse missing continuation state")
		}
		n := int(resp.Params[off])
		cont = resp.Params[off+1 : off+1+n]
		_ = totalCount
		if n == 0 {
			break
		}
	}
	return handles, nil
}

// ServiceAttribute fetches attributes from a specific record handle.
func (c *Client) ServiceAttribute(ctx context.Context, handle uint32, ids []AttributeIDRange) (Element, error) {
	var attrList []Element
	cont := continuationTerminator[:0]
	txID := c.newTransactionID()
	for round := 0; ; round++ {
		if round >= maxContinuationRounds {
			return Element{}, fmt.Errorf("sdp: continuation watchdog exceeded")
		}
		params := make([]byte, 4)
		binary.BigEndian.PutUint32(params, handle)
		params = append(params, make([]byte, 2)...)
		binary.BigEndian.PutUint16(params[4:6], 0xFFFF)
		params = append(params, AttributeIDListElement(ids).Marshal()...)
		params = append(params, byte(len(cont)))
		params = append(params, cont...)

		resp, err := c.roundTrip(ctx, txID, PDUServiceAttributeRequest, params)
		if err != nil {
			return Element{}, err
		}
		chunk, rest, err := parseAttributeListChunk(resp.Params)
		if err != nil {
			return Element{}, err
		}
		attrList = append(attrList, chunk...)
		n := int(rest[0])
		cont = rest[1 : 1+n]
		if n == 0 {
			break
		}
	}
	return NewSequence(attrList...), nil
}

// ServiceSearchAttribute combines search and attribute fetch in one
// transaction pair.
func (c *Client) ServiceSearchAttribute(ctx context.Context, pattern []Element, ids []AttributeIDRange) (Element, error) {
	var attrList []Element
	cont := continuationTerminator[:0]
	txID := c.newTransactionID()
	for round := 0; ; round++ {
		if round >= maxContinuationRounds {
			return Element{}, fmt.Errorf("sdp: continuation watchdog exceeded")
		}
		params := NewSequence(pattern...).Marshal()
		params = append(params, make([]byte, 2)...)
		binary.BigEndian.PutUint16(params[len(params)-2:], 0xFFFF)
		params = append(params, AttributeIDListElement(ids).Marshal()...)
		params = append(params, byte(len(cont)))
		params = append(params, cont...)

		resp, err := c.roundTrip(ctx, txID, PDUServiceSearchAttributeRequest, params)
		if err != nil {
			return Element{}, err
		}
		chunk, rest, err := parseAttributeListChunk(resp.Params)
		if err != nil {
			return Element{}, err
		}
		attrList = append(attrList, chunk...)
		n := int(rest[0])
		cont = rest[1 : 1+n]
		if n == 0 {
			break
		}
	}
	return NewSequence(attrList...), nil
}

// parseAttributeListChunk decodes `[byte_count:2 BE][attribute_list_bytes]
// [cont_len:1][cont:cont_len]`, returning the decoded elements within the
// byte-count-bounded region and the trailing continuation bytes.
func parseAttributeListChunk(params []byte) ([]Element, []byte, error) {
	if len(params) < 2 {
		return nil, nil, fmt.Errorf("sdp: attribute response truncated")
	}
	n := int(binary.BigEndian.Uint16(params[0:2]))
	if len(params) < 2+n {
		return nil, nil, fmt.Errorf("sdp: attribute response byte count mismatch")
	}
	elems, err := ParseAll(params[2 : 2+n])
	if err != nil {
		return nil, nil, err
	}
	return elems, params[2+n:], nil
}

func (c *Client) roundTrip(ctx context.Context, txID uint16, id PDUID, params []byte) (PDU, error) {
	resp, err := c.tx.SendPDU(ctx, PDU{ID: id, TransactionID: txID, Params: params})
	if err != nil {
		return PDU{}, err
	}
	if resp.ID == PDUErrorResponse {
		ep, err := DecodeErrorResponse(resp.Params)
		if err != nil {
			return PDU{}, err
		}
		return PDU{}, &ProtocolError{Code: ep.ErrorCode}
	}
	return resp, nil
}

// ProtocolError reports a non-zero SDP Error Response.
type ProtocolError struct{ Code uint16 }

func (e *ProtocolError) Error() string { return fmt.Sprintf("sdp: error response 0x%04X", e.Code) }

// channelTransaction adapts a request/response channel keyed by
// transaction id into a Transaction, matching responses to requests
// under a mutex since a single SDP channel serializes transactions.
type channelTransaction struct {
	mu      sync.Mutex
	send    func([]byte) error
	pending map[uint16]chan PDU
}

// NewChannelTransaction builds a Transaction over a raw byte-SDU sender;
// Deliver must be called with each inbound PDU payload.
func NewChannelTransaction(send func([]byte) error) *channelTransaction {
	return &channelTransaction{send: send, pending: make(map[uint16]chan PDU)}
}

func (t *channelTransaction) SendPDU(ctx context.Context, pdu PDU) (PDU, error) {
	ch := make(chan PDU, 1)
	t.mu.Lock()
	t.pending[pdu.TransactionID] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, pdu.TransactionID)
		t.mu.Unlock()
	}()

	if err := t.send(pdu.Marshal()); err != nil {
		return PDU{}, err
	}
	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return PDU{}, ctx.Err()
	}
}

// Deliver routes one inbound PDU to its waiting transaction.
func (t *channelTransaction) Deliver(raw []byte) {
	pdu, err := ParsePDU(raw)
	if err != nil {
		log.WithError(err).Warn("dropping malformed SDP PDU")
		return
	}
	t.mu.Lock()
	ch, ok := t.pending[pdu.TransactionID]
	t.mu.Unlock()
	if !ok {
		log.WithField("txid", pdu.TransactionID).Debug("no pending SDP transaction")
		return
	}
	ch <- pdu
}
