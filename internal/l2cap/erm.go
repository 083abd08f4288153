package l2cap

import "encoding/binary"

// SAR values tag the segmentation role of an I-frame (§4.3.1).
type SAR uint8

const (
	SARUnsegmented SAR = 0
	SARStart       SAR = 1
	SAREnd         SAR = 2
	SARContinue    SAR = 3
)

// Supervisory frame types.
type SFrameType uint8

const (
	SFrameRR   SFrameType = 0
	SFrameREJ  SFrameType = 1
	SFrameRNR  SFrameType = 2
	SFrameSREJ SFrameType = 3
)

// IFrame is an Enhanced Retransmission Mode information frame. On the
// wire its control field is 2 bytes: `[bit0=0|txSeq:6|r:1]
// [reqSeq:6|sar:2]`, followed by a 2-byte SDU length when sar is Start,
// then the payload, then the FCS if negotiated (handled by PDU).
type IFrame struct {
	TxSeq    uint8
	ReqSeq   uint8
	SAR      SAR
	RBit     bool
	SDULen   uint16 // only meaningful when SAR == SARStart
	Payload  []byte
}

func DecodeIFrame(b []byte) (IFrame, error) {
	if len(b) < 2 {
		return IFrame{}, &InvalidPDUError{Msg: "I-frame control field truncated"}
	}
	c0, c1 := b[0], b[1]
	if c0&0x01 != 0 {
		return IFrame{}, &InvalidPDUError{Msg: "not an I-frame"}
	}
	f := IFrame{
		TxSeq:  (c0 >> 1) & 0x3F,
		RBit:   c0&0x80 != 0,
		ReqSeq: c1 & 0x3F,
		SAR:    SAR((c1 >> 6) & 0x3),
	}
	rest := b[2:]
	if f.SAR == SARStart {
		if len(rest) < 2 {
			return IFrame{}, &InvalidPDUError{Msg: "I-frame SDU length truncated"}
		}
		f.SDULen = binary.LittleEndian.Uint16(rest[0:2])
		rest = rest[2:]
	}
	f.Payload = append([]byte(nil), rest...)
	return f, nil
}

func (f IFrame) Marshal() []byte {
	c0 := (f.TxSeq&0x3F)<<1
	if f.RBit {
		c0 |= 0x80
	}
	c1 := (f.ReqSeq & 0x3F) | uint8(f.SAR)<<6
	var out []byte
	out = append(out, c0, c1)
	if f.SAR == SARStart {
		l := make([]byte, 2)
		binary.LittleEndian.PutUint16(l, f.SDULen)
		out = append(out, l...)
	}
	out = append(out, f.Payload...)
	return out
}

// SFrame is an Enhanced Retransmission Mode supervisory frame: control
// field `[bit0=1|_:1|s:2|_:3|r:1][reqSeq:6|sar:2]`, no payload.
type SFrame struct {
	Type   SFrameType
	ReqSeq uint8
	RBit   bool
}

func DecodeSFrame(b []byte) (SFrame, error) {
	if len(b) < 2 {
		return SFrame{}, &InvalidPDUError{Msg: "S-frame control field truncated"}
	}
	c0, c1 := b[0], b[1]
	if c0&0x01 != 1 {
		return SFrame{}, &InvalidPDUError{Msg: "not an S-frame"}
	}
	return SFrame{
		Type:   SFrameType((c0 >> 2) & 0x3),
		RBit:   c0&0x01 != 0 && c0&0x80 != 0,
		ReqSeq: c1 & 0x3F,
	}, nil
}

func (f SFrame) Marshal() []byte {
	c0 := uint8(0x01) | uint8(f.Type)<<2
	if f.RBit {
		c0 |= 0x80
	}
	c1 := f.ReqSeq & 0x3F
	return []byte{c0, c1}
}

// Segment splits sdu into SAR-tagged I-frame payload chunks no larger
// than mps (the peer's Maximum PDU Size), per §4.3.1's segmentation rule:
// a single chunk is Unsegmented; multiple chunks are Start, then zero or
// more Continue, then End.
func Segment(sdu []byte, mps int) []struct {
	SAR     SAR
	Payload []byte
} {
	type seg = struct {
		SAR     SAR
		Payload []byte
	}
	// The Start frame's own 2-byte SDU length prefix eats into its budget.
	if len(sdu) <= mps {
		return []seg{{SAR: SARUnsegmented, Payload: sdu}}
	}
	var out []seg
	first := mps - 2
	if first < 0 {
		first = 0
	}
	out = append(out, seg{SAR: SARStart, Payload: sdu[:first]})
	rest := sdu[first:]
	for len(rest) > mps {
		out = append(out, seg{SAR: SARContinue, Payload: rest[:mps]})
		rest = rest[mps:]
	}
	out = append(out, seg{SAR: SAREnd, Payload: rest})
	return out
}
