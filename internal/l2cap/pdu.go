// Package l2cap implements the L2CAP channel manager: fixed-channel
// dispatch, classic dynamic channels with configuration negotiation and
// Enhanced Retransmission Mode, and LE Credit-Based channels with SDU
// segmentation/reassembly and credit flow control.
package l2cap

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "l2cap")

// Well-known fixed CIDs (§4.3).
const (
	CIDSignaling   uint16 = 0x0001
	CIDConnless    uint16 = 0x0002
	CIDATT         uint16 = 0x0004
	CIDLESignaling uint16 = 0x0005
	CIDSMP         uint16 = 0x0006
	CIDSMPBR       uint16 = 0x0007
	// CIDDynamicStart is the first classic dynamic CID; LE dynamic CIDs
	// use the same range in this implementation, consistent with the
	// Core Spec's shared allocation pool.
	CIDDynamicStart uint16 = 0x0040
)

// PDU is one framed L2CAP Basic- or Enhanced-mode frame:
// `[len:2 LE][cid:2 LE][payload:len]` with an optional trailing 2-byte FCS
// whose presence is counted in len.
type PDU struct {
	CID     uint16
	Payload []byte
	HasFCS  bool
}

// ParsePDU decodes one complete PDU from b. withFCS tells the parser
// whether the channel this PDU arrived on negotiated FCS, since the frame
// itself carries no flag distinguishing an FCS'd payload from a longer
// plain one.
func ParsePDU(b []byte, withFCS bool) (PDU, error) {
	if len(b) < 4 {
		return PDU{}, &InvalidPDUError{Msg: "L2CAP header truncated"}
	}
	n := int(binary.LittleEndian.Uint16(b[0:2]))
	cid := binary.LittleEndian.Uint16(b[2:4])
	if len(b) != 4+n {
		return PDU{}, &InvalidPDUError{Msg: "L2CAP length mismatch"}
	}
	payload := b[4:]
	if withFCS {
		if len(payload) < 2 {
			return PDU{}, &InvalidPDUError{Msg: "L2CAP FCS truncated"}
		}
		body, fcs := payload[:len(payload)-2], payload[len(payload)-2:]
		want := CRC16(body)
		got := binary.LittleEndian.Uint16(fcs)
		if want != got {
			return PDU{}, &InvalidPDUError{Msg: "L2CAP FCS mismatch"}
		}
		payload = body
	}
	return PDU{CID: cid, Payload: append([]byte(nil), payload...), HasFCS: withFCS}, nil
}

// Marshal frames the PDU, appending the FCS when HasFCS is set.
func (p PDU) Marshal() []byte {
	body := p.Payload
	trailer := 0
	if p.HasFCS {
		trailer = 2
	}
	out := make([]byte, 4+len(body)+trailer)
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(body)+trailer))
	binary.LittleEndian.PutUint16(out[2:4], p.CID)
	copy(out[4:], body)
	if p.HasFCS {
		fcs := CRC16(body)
		binary.LittleEndian.PutUint16(out[4+len(body):], fcs)
	}
	return out
}

// InvalidPDUError reports a malformed or FCS-failing L2CAP frame.
type InvalidPDUError struct{ Msg string }

func (e *InvalidPDUError) Error() string { return "l2cap: invalid pdu: " + e.Msg }

var crc16Table [256]uint16

func init() {
	const poly = 0xA001
	for i := 0; i < 256; i++ {
		c := uint16(i)
		for j := 0; j < 8; j++ {
			if c&1 != 0 {
				c = (c >> 1) ^ poly
			} else {
				c >>= 1
			}
		}
		crc16Table[i] = c
	}
}

// CRC16 computes the L2CAP FCS: table-driven CRC-16 over polynomial
// 0xA001, initial value 0.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = (crc >> 8) ^ crc16Table[(crc^uint16(b))&0xFF]
	}
	return crc
}
