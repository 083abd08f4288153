package bthost

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// baseUUID is the Bluetooth Base UUID (00000000-0000-1000-8000-00805F9B34FB)
// that 16- and 32-bit UUIDs expand into.
var baseUUID = [16]byte{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00,
	0x80, 0x00, 0x00, 0x80, 0x5F, 0x9B, 0x34, 0xFB,
}

// UUID is a Bluetooth UUID: 16-, 32- or 128-bit, stored internally as 16
// big-endian bytes (RFC 4122 order) regardless of its shortest encoding, so
// that two UUIDs of different declared width but equal value compare equal.
// The optional Name is carried only for logging and is ignored by Equal.
type UUID struct {
	b    [16]byte
	Name string
}

// UUID16 builds a UUID from a 16-bit assigned number, expanded against the
// Bluetooth Base UUID.
func UUID16(v uint16) UUID {
	u := UUID{b: baseUUID}
	binary.BigEndian.PutUint16(u.b[2:4], v)
	return u
}

// UUID32 builds a UUID from a 32-bit assigned number, expanded against the
// Bluetooth Base UUID.
func UUID32(v uint32) UUID {
	u := UUID{b: baseUUID}
	binary.BigEndian.PutUint32(u.b[0:4], v)
	return u
}

// UUID128FromBytes builds a UUID from 16 bytes in RFC 4122 (big-endian, MSB
// first) order.
func UUID128FromBytes(b []byte) (UUID, error) {
	if len(b) != 16 {
		return UUID{}, fmt.Errorf("bthost: UUID must be 16 bytes, got %d", len(b))
	}
	var u UUID
	copy(u.b[:], b)
	return u, nil
}

// ParseUUID parses the canonical hyphenated 128-bit form
// ("xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx") or a bare 4/8-hex-digit short
// form ("180d" / "0000180d").
func ParseUUID(s string) (UUID, error) {
	s = strings.ReplaceAll(s, "-", "")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return UUID{}, fmt.Errorf("bthost: invalid UUID %q: %w", s, err)
	}
	switch len(raw) {
	case 2:
		return UUID16(binary.BigEndian.Uint16(raw)), nil
	case 4:
		return UUID32(binary.BigEndian.Uint32(raw)), nil
	case 16:
		return UUID128FromBytes(raw)
	default:
		return UUID{}, fmt.Errorf("bthost: invalid UUID %q: unexpected length %d", s, len(raw))
	}
}

// MustParseUUID is ParseUUID but panics on error; useful for package-level
// UUID tables built from literals.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// is16Bit reports whether u fits the 16-bit short form (the top and bottom
// of the base UUID match exactly, save for the 2 assigned-number bytes).
func (u UUID) is16Bit() bool {
	return bytes.Equal(u.b[0:2], baseUUID[0:2]) && bytes.Equal(u.b[4:16], baseUUID[4:16])
}

// is32Bit reports whether u fits the 32-bit short form.
func (u UUID) is32Bit() bool {
	return bytes.Equal(u.b[4:16], baseUUID[4:16])
}

// Len returns the shortest encoding width in bytes: 2, 4 or 16.
func (u UUID) Len() int {
	switch {
	case u.is16Bit():
		return 2
	case u.is32Bit():
		return 4
	default:
		return 16
	}
}

// ToPDUBytes renders the UUID in little-endian wire order at its shortest
// fitting width, as required for HCI/ATT/L2CAP PDUs.
func (u UUID) ToPDUBytes() []byte {
	n := u.Len()
	switch n {
	case 2:
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, binary.BigEndian.Uint16(u.b[2:4]))
		return out
	case 4:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, binary.BigEndian.Uint32(u.b[0:4]))
		return out
	default:
		return reverse(u.b[:])
	}
}

// Bytes128 returns the full 128-bit value in big-endian (RFC 4122) order.
func (u UUID) Bytes128() [16]byte { return u.b }

// Equal reports whether two UUIDs denote the same value, ignoring Name.
func (u UUID) Equal(o UUID) bool { return u.b == o.b }

func (u UUID) String() string {
	if u.Name != "" {
		return u.Name
	}
	b := u.b[:]
	return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7],
		b[8], b[9], b[10], b[11], b[12], b[13], b[14], b[15])
}

// reverse returns a new slice with b's bytes in reverse order. It is used
// by UUID wire conversion.
func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
