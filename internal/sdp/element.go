// Package sdp implements the Service Discovery Protocol: the data-element
// codec, client request/response transactions with continuation-state
// looping, and a server matching records against search patterns.
package sdp

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "sdp")

// ElementType is the 5-bit type field of a data element header.
type ElementType uint8

const (
	TypeNil        ElementType = 0
	TypeUint       ElementType = 1
	TypeInt        ElementType = 2
	TypeUUID       ElementType = 3
	TypeText       ElementType = 4
	TypeBool       ElementType = 5
	TypeSequence   ElementType = 6
	TypeAlternative ElementType = 7
	TypeURL        ElementType = 8
)

// Element is a decoded SDP data element. raw caches the exact encoded
// bytes of every element Parse returns (leaf or container) so that
// Marshal can replay them byte-for-byte
// (§4.4.1's canonical round-trip invariant) instead of re-deriving a
// width that might differ from the original (e.g. a "small" 2-byte
// integer re-encoded as 4 bytes).
type Element struct {
	Type ElementType

	Uint  uint64
	Int   int64
	Bytes []byte // UUID (at its 2-, 4- or 16-byte wire width), Text, URL
	Bool  bool
	Seq   []Element // Sequence or Alternative children

	width int // 1, 2, 4, 8, or 16 for fixed-width leaf types
	raw   []byte
}

// sizeIndexWidths maps a header's 3-bit size index to a fixed value
// width for non-variable-length types (§4.4.1).
var sizeIndexWidths = map[uint8]int{0: 1, 1: 2, 2: 4, 3: 8, 4: 16}

// Parse decodes one data element from the front of b, returning it and
// the number of bytes consumed.
func Parse(b []byte) (Element, int, error) {
	if len(b) < 1 {
		return Element{}, 0, fmt.Errorf("sdp: empty element")
	}
	header := b[0]
	typ := ElementType(header >> 3)
	sizeIdx := header & 0x07

	var valueLen int
	off := 1
	switch {
	case typ == TypeNil:
		valueLen = 0
	case sizeIdx <= 4:
		w, ok := sizeIndexWidths[sizeIdx]
		if !ok {
			return Element{}, 0, fmt.Errorf("sdp: bad size index %d for type %d", sizeIdx, typ)
		}
		valueLen = w
	case sizeIdx == 5:
		if len(b) < off+1 {
			return Element{}, 0, fmt.Errorf("sdp: truncated 1-byte length")
		}
		valueLen = int(b[off])
		off++
	case sizeIdx == 6:
		if len(b) < off+2 {
			return Element{}, 0, fmt.Errorf("sdp: truncated 2-byte length")
		}
		valueLen = int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
	case sizeIdx == 7:
		if len(b) < off+4 {
			return Element{}, 0, fmt.Errorf("sdp: truncated 4-byte length")
		}
		valueLen = int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
	}

	if len(b) < off+valueLen {
		return Element{}, 0, fmt.Errorf("sdp: element value truncated")
	}
	value := b[off : off+valueLen]
	total := off + valueLen
	e := Element{Type: typ, width: valueLen, raw: append([]byte(nil), b[:total]...)}

	switch typ {
	case TypeNil:
	case TypeUint:
		e.Uint = beUint(value)
	case TypeInt:
		e.Int = beInt(value)
	case TypeUUID:
		e.Bytes = uuidToInternal(value)
	case TypeText, TypeURL:
		e.Bytes = append([]byte(nil), value...)
	case TypeBool:
		e.Bool = len(value) == 1 && value[0] != 0
	case TypeSequence, TypeAlternative:
		children, err := ParseAll(value)
		if err != nil {
			return Element{}, 0, err
		}
		e.Seq = children
	default:
		return Element{}, 0, fmt.Errorf("sdp: unknown element type %d", typ)
	}
	return e, total, nil
}

// ParseAll decodes a back-to-back run of elements filling b exactly.
func ParseAll(b []byte) ([]Element, error) {
	var out []Element
	for len(b) > 0 {
		e, n, err := Parse(b)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		b = b[n:]
	}
	return out, nil
}

// Marshal re-encodes the element, replaying its original bytes exactly
// when they were cached by Parse (the round-trip invariant). Freshly
// constructed elements encode integers at their declared width (4 bytes
// if none) and UUIDs at their stored width; text, URLs and sequences use
// the shortest length header that fits.
func (e Element) Marshal() []byte {
	if e.raw != nil {
		return e.raw
	}
	switch e.Type {
	case TypeNil:
		return []byte{byte(TypeNil) << 3}
	case TypeUint, TypeInt:
		w := e.width
		if w == 0 {
			w = 4
		}
		idx, ok := widthToSizeIndex(w)
		if !ok {
			idx = 2
			w = 4
		}
		value := make([]byte, w)
		if e.Type == TypeUint {
			putBEUint(value, e.Uint)
		} else {
			putBEInt(value, e.Int)
		}
		return append([]byte{byte(e.Type)<<3 | idx}, value...)
	case TypeUUID:
		value := uuidFromInternal(e.Bytes)
		idx, _ := widthToSizeIndex(len(value))
		return append([]byte{byte(TypeUUID)<<3 | idx}, value...)
	case TypeText, TypeURL:
		return marshalVarLen(e.Type, e.Bytes)
	case TypeBool:
		v := byte(0)
		if e.Bool {
			v = 1
		}
		return []byte{byte(TypeBool)<<3 | 0, v}
	case TypeSequence, TypeAlternative:
		var body []byte
		for _, c := range e.Seq {
			body = append(body, c.Marshal()...)
		}
		return marshalVarLen(e.Type, body)
	default:
		return nil
	}
}

func marshalVarLen(typ ElementType, value []byte) []byte {
	n := len(value)
	switch {
	case n <= 0xFF:
		return append(append([]byte{byte(typ)<<3 | 5, byte(n)}, value...))
	case n <= 0xFFFF:
		h := make([]byte, 3)
		h[0] = byte(typ)<<3 | 6
		binary.BigEndian.PutUint16(h[1:3], uint16(n))
		return append(h, value...)
	default:
		h := make([]byte, 5)
		h[0] = byte(typ)<<3 | 7
		binary.BigEndian.PutUint32(h[1:5], uint32(n))
		return append(h, value...)
	}
}

func widthToSizeIndex(w int) (uint8, bool) {
	for idx, width := range sizeIndexWidths {
		if width == w {
			return idx, true
		}
	}
	return 0, false
}

func beUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func beInt(b []byte) int64 {
	u := beUint(b)
	bits := uint(len(b) * 8)
	if bits == 0 || bits >= 64 {
		return int64(u)
	}
	signBit := uint64(1) << (bits - 1)
	if u&signBit != 0 {
		return int64(u) - int64(1<<bits)
	}
	return int64(u)
}

func putBEUint(b []byte, v uint64) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func putBEInt(b []byte, v int64) { putBEUint(b, uint64(v)) }

// NewUint builds a fixed-width unsigned integer element.
func NewUint(width int, v uint64) Element { return Element{Type: TypeUint, width: width, Uint: v} }

// NewSequence builds a Sequence element from children.
func NewSequence(children ...Element) Element { return Element{Type: TypeSequence, Seq: children} }

// NewText builds a UTF-8 text-string element.
func NewText(s string) Element { return Element{Type: TypeText, Bytes: []byte(s)} }

// uuidToInternal/uuidFromInternal copy UUID bytes between the MSB-first
// wire form and Element.Bytes unchanged. A UUID keeps the 2-, 4- or
// 16-byte width it arrived with; no conversion to a common width is made,
// so the 16-bit and 128-bit forms of the same UUID hold different bytes.
func uuidToInternal(wire []byte) []byte { return append([]byte(nil), wire...) }
func uuidFromInternal(b []byte) []byte  { return append([]byte(nil), b...) }
