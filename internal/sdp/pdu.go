package sdp

import (
	"encoding/binary"
	"fmt"
)

// SDP's fixed L2CAP PSM (§4.4.2).
const PSM uint16 = 0x0001

// PDU ids.
type PDUID uint8

const (
	PDUErrorResponse                    PDUID = 0x01
	PDUServiceSearchRequest              PDUID = 0x02
	PDUServiceSearchResponse             PDUID = 0x03
	PDUServiceAttributeRequest           PDUID = 0x04
	PDUServiceAttributeResponse          PDUID = 0x05
	PDUServiceSearchAttributeRequest     PDUID = 0x06
	PDUServiceSearchAttributeResponse    PDUID = 0x07
)

// Error codes carried in an Error Response's parameters.
const (
	ErrInvalidSDPVersion          uint16 = 0x0001
	ErrInvalidServiceRecordHandle uint16 = 0x0002
	ErrInvalidRequestSyntax       uint16 = 0x0003
	ErrInvalidPDUSize             uint16 = 0x0004
	ErrInvalidContinuationState   uint16 = 0x0005
	ErrInsufficientResources      uint16 = 0x0006
)

// PDU is `[pdu_id:1][transaction_id:2 BE][param_length:2 BE][params]`.
type PDU struct {
	ID            PDUID
	TransactionID uint16
	Params        []byte
}

func ParsePDU(b []byte) (PDU, error) {
	if len(b) < 5 {
		return PDU{}, fmt.Errorf("sdp: PDU header truncated")
	}
	n := int(binary.BigEndian.Uint16(b[3:5]))
	if len(b) != 5+n {
		return PDU{}, fmt.Errorf("sdp: PDU length mismatch: declared %d, have %d", n, len(b)-5)
	}
	return PDU{
		ID:            PDUID(b[0]),
		TransactionID: binary.BigEndian.Uint16(b[1:3]),
		Params:        append([]byte(nil), b[5:]...),
	}, nil
}

func (p PDU) Marshal() []byte {
	out := make([]byte, 5+len(p.Params))
	out[0] = byte(p.ID)
	binary.BigEndian.PutUint16(out[1:3], p.TransactionID)
	binary.BigEndian.PutUint16(out[3:5], uint16(len(p.Params)))
	copy(out[5:], p.Params)
	return out
}

// ErrorResponseParams is the parameter layout of an Error Response.
type ErrorResponseParams struct {
	ErrorCode uint16
	Info      []byte
}

func (p ErrorResponseParams) Marshal() []byte {
	out := make([]byte, 2+len(p.Info))
	binary.BigEndian.PutUint16(out[0:2], p.ErrorCode)
	copy(out[2:], p.Info)
	return out
}

func DecodeErrorResponse(b []byte) (ErrorResponseParams, error) {
	if len(b) < 2 {
		return ErrorResponseParams{}, fmt.Errorf("sdp: Error_Response truncated")
	}
	return ErrorResponseParams{ErrorCode: binary.BigEndian.Uint16(b[0:2]), Info: append([]byte(nil), b[2:]...)}, nil
}

// continuationTerminator is the single zero byte signaling "no more
// data" (§4.4.2).
var continuationTerminator = []byte{0x00}

// maxContinuationRounds bounds the client's continuation loop against a
// misbehaving or malicious server (§4.4.2's watchdog requirement).
const maxContinuationRounds = 64

// AttributeIDRange is either a single 16-bit id (Start == End) or a
// 32-bit (start<<16 | end) range, per §4.4.2's attribute-id list rule.
type AttributeIDRange struct{ Start, End uint16 }

// AttributeIDListElement builds the Sequence of uint16/uint32 elements an
// attribute-id list is encoded as.
func AttributeIDListElement(ranges []AttributeIDRange) Element {
	var items []Element
	for _, r := range ranges {
		if r.Start == r.End {
			items = append(items, NewUint(2, uint64(r.Start)))
		} else {
			items = append(items, NewUint(4, uint64(r.Start)<<16|uint64(r.End)))
		}
	}
	return NewSequence(items...)
}
