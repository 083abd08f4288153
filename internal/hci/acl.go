package hci

import "fmt"

// PB flag values for ACL data packets (top 4 bits of the handle+flags
// field carry pb_flag:2, bc_flag:2).
const (
	PBFirstNonFlushable uint8 = 0
	PBContinuation      uint8 = 1
	PBFirstFlushable    uint8 = 2
	PBComplete          uint8 = 3
)

// ACLDataPacket is `[2][handle+flags:2 LE][len:2 LE][data:len]`.
type ACLDataPacket struct {
	ConnectionHandle uint16 // 12 bits
	PBFlag           uint8  // 2 bits
	BCFlag           uint8  // 2 bits
	Data             []byte
}

func parseACL(b []byte) (*ACLDataPacket, error) {
	if len(b) < 4 {
		return nil, &InvalidPacketError{Msg: "ACL header truncated"}
	}
	hf := getU16LE(b[0:2])
	n := int(getU16LE(b[2:4]))
	if len(b) != 4+n {
		return nil, &InvalidPacketError{Msg: fmt.Sprintf("ACL length mismatch: declared %d, have %d", n, len(b)-4)}
	}
	return &ACLDataPacket{
		ConnectionHandle: hf & 0x0FFF,
		PBFlag:           uint8((hf >> 12) & 0x3),
		BCFlag:           uint8((hf >> 14) & 0x3),
		Data:             append([]byte(nil), b[4:]...),
	}, nil
}

func (p *ACLDataPacket) marshal() []byte {
	out := make([]byte, 4+len(p.Data))
	hf := (p.ConnectionHandle & 0x0FFF) | uint16(p.PBFlag&0x3)<<12 | uint16(p.BCFlag&0x3)<<14
	putU16LE(out[0:2], hf)
	putU16LE(out[2:4], uint16(len(p.Data)))
	copy(out[4:], p.Data)
	return out
}

// NewACLDataPacket frames a Packet wrapping a single ACL fragment.
func NewACLDataPacket(handle uint16, pb, bc uint8, data []byte) Packet {
	return Packet{Type: PacketTypeACLData, ACL: &ACLDataPacket{
		ConnectionHandle: handle, PBFlag: pb, BCFlag: bc, Data: data,
	}}
}

// SyncDataPacket is the SCO packet shape; the core does not decode voice
// payloads, only frames them, since SCO audio routing is out of scope.
type SyncDataPacket struct {
	ConnectionHandle uint16
	Status           uint8
	Data             []byte
}

func parseSCO(b []byte) (*SyncDataPacket, error) {
	if len(b) < 3 {
		return nil, &InvalidPacketError{Msg: "SCO header truncated"}
	}
	hf := getU16LE(b[0:2])
	n := int(b[2])
	if len(b) != 3+n {
		return nil, &InvalidPacketError{Msg: "SCO length mismatch"}
	}
	return &SyncDataPacket{
		ConnectionHandle: hf & 0x0FFF,
		Status:           uint8((hf >> 12) & 0x3),
		Data:             append([]byte(nil), b[3:]...),
	}, nil
}

func (p *SyncDataPacket) marshal() []byte {
	out := make([]byte, 3+len(p.Data))
	hf := (p.ConnectionHandle & 0x0FFF) | uint16(p.Status&0x3)<<12
	putU16LE(out[0:2], hf)
	out[2] = byte(len(p.Data))
	copy(out[3:], p.Data)
	return out
}
