package hci

import "fmt"

// EventPacket is the parsed/to-be-serialized form of an HCI event:
// `[4][code:1][len:1][params:len]`, with the leading type octet handled by
// Packet.Serialize/Parse. For the LE meta-event (code 0x3E) Parameters
// starts with the one-byte subevent code; use Subevent to split it off.
type EventPacket struct {
	Code       EventCode
	Parameters []byte
}

func parseEvent(b []byte) (*EventPacket, error) {
	if len(b) < 2 {
		return nil, &InvalidPacketError{Msg: "event header truncated"}
	}
	code := EventCode(b[0])
	n := int(b[1])
	if len(b) != 2+n {
		return nil, &InvalidPacketError{Msg: fmt.Sprintf("event length mismatch: declared %d, have %d", n, len(b)-2)}
	}
	params := append([]byte(nil), b[2:]...)
	return &EventPacket{Code: code, Parameters: params}, nil
}

func (e *EventPacket) marshal() []byte {
	out := make([]byte, 2+len(e.Parameters))
	out[0] = byte(e.Code)
	out[1] = byte(len(e.Parameters))
	copy(out[2:], e.Parameters)
	return out
}

// Subevent splits the LE meta-event's subevent code from the rest of its
// parameters. ok is false for any non-LEMeta event or a truncated one.
func (e *EventPacket) Subevent() (code LESubeventCode, rest []byte, ok bool) {
	if e.Code != EventLEMeta || len(e.Parameters) < 1 {
		return 0, nil, false
	}
	return LESubeventCode(e.Parameters[0]), e.Parameters[1:], true
}

// CommandCompleteEvent is the decoded form of a Command_Complete event.
// ReturnParameters is handed to the originating CmdParam's ReturnFields
// descriptor by the Host for further decoding.
type CommandCompleteEvent struct {
	NumHCICommandPackets uint8
	Opcode               OpCode
	ReturnParameters     []byte
}

func DecodeCommandComplete(params []byte) (CommandCompleteEvent, error) {
	if len(params) < 3 {
		return CommandCompleteEvent{}, &InvalidPacketError{Msg: "Command_Complete truncated"}
	}
	return CommandCompleteEvent{
		NumHCICommandPackets: params[0],
		Opcode:               OpCode(getU16LE(params[1:3])),
		ReturnParameters:     params[3:],
	}, nil
}

// CommandStatusEvent is the decoded form of a Command_Status event.
type CommandStatusEvent struct {
	Status               uint8
	NumHCICommandPackets uint8
	Opcode               OpCode
}

func DecodeCommandStatus(params []byte) (CommandStatusEvent, error) {
	if len(params) != 4 {
		return CommandStatusEvent{}, &InvalidPacketError{Msg: "Command_Status malformed"}
	}
	return CommandStatusEvent{
		Status:               params[0],
		NumHCICommandPackets: params[1],
		Opcode:               OpCode(getU16LE(params[2:4])),
	}, nil
}

// ConnectionCompleteEvent is the classic BR/EDR Connection_Complete event.
type ConnectionCompleteEvent struct {
	Status            uint8
	ConnectionHandle  uint16
	BDAddr            [6]byte
	LinkType          uint8
	EncryptionEnabled uint8
}

func DecodeConnectionComplete(params []byte) (ConnectionCompleteEvent, error) {
	if len(params) != 11 {
		return ConnectionCompleteEvent{}, &InvalidPacketError{Msg: "Connection_Complete malformed"}
	}
	var e ConnectionCompleteEvent
	e.Status = params[0]
	e.ConnectionHandle = getU16LE(params[1:3])
	copy(e.BDAddr[:], params[3:9])
	e.LinkType = params[9]
	e.EncryptionEnabled = params[10]
	return e, nil
}

// DisconnectionCompleteEvent reports a torn-down connection.
type DisconnectionCompleteEvent struct {
	Status           uint8
	ConnectionHandle uint16
	Reason           uint8
}

func DecodeDisconnectionComplete(params []byte) (DisconnectionCompleteEvent, error) {
	if len(params) != 4 {
		return DisconnectionCompleteEvent{}, &InvalidPacketError{Msg: "Disconnection_Complete malformed"}
	}
	return DisconnectionCompleteEvent{
		Status:           params[0],
		ConnectionHandle: getU16LE(params[1:3]),
		Reason:           params[3],
	}, nil
}

// NumberOfCompletedPacketsEvent reports ACL/ISO credit returns. The wire
// layout is a leading count byte followed by that many (handle, count)
// pairs - the "list_begin/list_end" declarative shape called out in §4.1.
type NumberOfCompletedPacketsEvent struct {
	Handles   []uint16
	Completed []uint16
}

func DecodeNumberOfCompletedPackets(params []byte) (NumberOfCompletedPacketsEvent, error) {
	if len(params) < 1 {
		return NumberOfCompletedPacketsEvent{}, &InvalidPacketError{Msg: "Number_Of_Completed_Packets truncated"}
	}
	n := int(params[0])
	if len(params) != 1+4*n {
		return NumberOfCompletedPacketsEvent{}, &InvalidPacketError{Msg: "Number_Of_Completed_Packets length mismatch"}
	}
	e := NumberOfCompletedPacketsEvent{Handles: make([]uint16, n), Completed: make([]uint16, n)}
	off := 1
	for i := 0; i < n; i++ {
		e.Handles[i] = getU16LE(params[off : off+2])
		e.Completed[i] = getU16LE(params[off+2 : off+4])
		off += 4
	}
	return e, nil
}

// LinkKeyRequestEvent asks the host for a classic link key.
type LinkKeyRequestEvent struct{ BDAddr [6]byte }

func DecodeLinkKeyRequest(params []byte) (LinkKeyRequestEvent, error) {
	if len(params) != 6 {
		return LinkKeyRequestEvent{}, &InvalidPacketError{Msg: "Link_Key_Request malformed"}
	}
	var e LinkKeyRequestEvent
	copy(e.BDAddr[:], params)
	return e, nil
}

// LEConnectionCompleteEvent is LE meta subevent 0x01.
type LEConnectionCompleteEvent struct {
	Status              uint8
	ConnectionHandle    uint16
	Role                uint8
	PeerAddrType        uint8
	PeerAddr            [6]byte
	ConnInterval        uint16
	ConnLatency         uint16
	SupervisionTimeout  uint16
	MasterClockAccuracy uint8
}

func DecodeLEConnectionComplete(params []byte) (LEConnectionCompleteEvent, error) {
	if len(params) != 18 {
		return LEConnectionCompleteEvent{}, &InvalidPacketError{Msg: "LE_Connection_Complete malformed"}
	}
	var e LEConnectionCompleteEvent
	e.Status = params[0]
	e.ConnectionHandle = getU16LE(params[1:3])
	e.Role = params[3]
	e.PeerAddrType = params[4]
	copy(e.PeerAddr[:], params[5:11])
	e.ConnInterval = getU16LE(params[11:13])
	e.ConnLatency = getU16LE(params[13:15])
	e.SupervisionTimeout = getU16LE(params[15:17])
	e.MasterClockAccuracy = params[17]
	return e, nil
}

// LEEnhancedConnectionCompleteEvent is LE meta subevent 0x0A: the same
// fields as LEConnectionComplete plus the local/peer resolvable private
// addresses used at the time of connection.
type LEEnhancedConnectionCompleteEvent struct {
	LEConnectionCompleteEvent
	LocalResolvablePrivateAddr [6]byte
	PeerResolvablePrivateAddr  [6]byte
}

func DecodeLEEnhancedConnectionComplete(params []byte) (LEEnhancedConnectionCompleteEvent, error) {
	if len(params) != 30 {
		return LEEnhancedConnectionCompleteEvent{}, &InvalidPacketError{Msg: "LE_Enhanced_Connection_Complete malformed"}
	}
	var e LEEnhancedConnectionCompleteEvent
	e.Status = params[0]
	e.ConnectionHandle = getU16LE(params[1:3])
	e.Role = params[3]
	e.PeerAddrType = params[4]
	copy(e.PeerAddr[:], params[5:11])
	copy(e.LocalResolvablePrivateAddr[:], params[11:17])
	copy(e.PeerResolvablePrivateAddr[:], params[17:23])
	e.ConnInterval = getU16LE(params[23:25])
	e.ConnLatency = getU16LE(params[25:27])
	e.SupervisionTimeout = getU16LE(params[27:29])
	e.MasterClockAccuracy = params[29]
	return e, nil
}

// LELongTermKeyRequestEvent is LE meta subevent 0x05.
type LELongTermKeyRequestEvent struct {
	ConnectionHandle     uint16
	RandomNumber         [8]byte
	EncryptedDiversifier uint16
}

func DecodeLELongTermKeyRequest(params []byte) (LELongTermKeyRequestEvent, error) {
	if len(params) != 12 {
		return LELongTermKeyRequestEvent{}, &InvalidPacketError{Msg: "LE_Long_Term_Key_Request malformed"}
	}
	var e LELongTermKeyRequestEvent
	e.ConnectionHandle = getU16LE(params[0:2])
	copy(e.RandomNumber[:], params[2:10])
	e.EncryptedDiversifier = getU16LE(params[10:12])
	return e, nil
}

// LEAdvertisingReportEntry is one report within an LE Advertising Report
// subevent's list.
type LEAdvertisingReportEntry struct {
	EventType uint8
	AddrType  uint8
	Addr      [6]byte
	Data      []byte
	RSSI      int8
}

// LEAdvertisingReportEvent is LE meta subevent 0x02: a leading count byte
// followed by that many fixed-prefix, variable-data reports (§4.1 "list"
// descriptor shape).
type LEAdvertisingReportEvent struct {
	Reports []LEAdvertisingReportEntry
}

func DecodeLEAdvertisingReport(params []byte) (LEAdvertisingReportEvent, error) {
	if len(params) < 1 {
		return LEAdvertisingReportEvent{}, &InvalidPacketError{Msg: "LE_Advertising_Report truncated"}
	}
	n := int(params[0])
	off := 1
	eventTypes := make([]uint8, n)
	addrTypes := make([]uint8, n)
	addrs := make([][6]byte, n)
	for i := 0; i < n; i++ {
		if off+8 > len(params) {
			return LEAdvertisingReportEvent{}, &InvalidPacketError{Msg: "LE_Advertising_Report truncated header"}
		}
		eventTypes[i] = params[off]
		addrTypes[i] = params[off+1]
		copy(addrs[i][:], params[off+2:off+8])
		off += 8
	}
	lens := make([]uint8, n)
	for i := 0; i < n; i++ {
		if off+1 > len(params) {
			return LEAdvertisingReportEvent{}, &InvalidPacketError{Msg: "LE_Advertising_Report truncated length"}
		}
		lens[i] = params[off]
		off++
	}
	out := LEAdvertisingReportEvent{Reports: make([]LEAdvertisingReportEntry, n)}
	for i := 0; i < n; i++ {
		l := int(lens[i])
		if off+l > len(params) {
			return LEAdvertisingReportEvent{}, &InvalidPacketError{Msg: "LE_Advertising_Report truncated data"}
		}
		out.Reports[i] = LEAdvertisingReportEntry{
			EventType: eventTypes[i],
			AddrType:  addrTypes[i],
			Addr:      addrs[i],
			Data:      append([]byte(nil), params[off:off+l]...),
		}
		off += l
	}
	for i := 0; i < n; i++ {
		if off+1 > len(params) {
			return LEAdvertisingReportEvent{}, &InvalidPacketError{Msg: "LE_Advertising_Report truncated rssi"}
		}
		out.Reports[i].RSSI = int8(params[off])
		off++
	}
	return out, nil
}
