package hci

import "encoding/binary"

// FieldSpec is one entry in a command's declarative return-parameter
// layout: a named field of a fixed byte Size. The command-complete decoder
// walks a CmdParam's ReturnFields() in order to slice up the raw return
// bytes, the same way every concrete command below declares its own
// Marshal/Unmarshal but shares this one table-driven path for return
// values, since return shapes are pure data (name, width) with no
// marshaling logic of their own.
type FieldSpec struct {
	Name string
	Size int // byte width; 0 means "rest of buffer"
}

// DecodeReturnFields slices raw according to spec, returning a map from
// each field's name to its []byte slice. If raw is short, it returns the
// fields that fit and false.
func DecodeReturnFields(spec []FieldSpec, raw []byte) (map[string][]byte, bool) {
	out := make(map[string][]byte, len(spec))
	off := 0
	for _, f := range spec {
		size := f.Size
		if size == 0 {
			size = len(raw) - off
		}
		if off+size > len(raw) {
			return out, false
		}
		out[f.Name] = raw[off : off+size]
		off += size
	}
	return out, true
}

func putU16LE(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func getU16LE(b []byte) uint16    { return binary.LittleEndian.Uint16(b) }
func putU32LE(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func getU32LE(b []byte) uint32    { return binary.LittleEndian.Uint32(b) }

// putU24LE writes the low 24 bits of v, little-endian - used for
// Class_of_Device and similar 3-byte fields.
func putU24LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

func getU24LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}
