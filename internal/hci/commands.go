package hci

import "fmt"

// CommandPacket is the parsed/to-be-serialized form of an HCI command:
// opcode plus raw parameter bytes. `[1][opcode:2 LE][len:1][params:len]`,
// with the leading type octet handled by Packet.Serialize/Parse.
type CommandPacket struct {
	Opcode     OpCode
	Parameters []byte
}

func parseCommand(b []byte) (*CommandPacket, error) {
	if len(b) < 3 {
		return nil, &InvalidPacketError{Msg: "command header truncated"}
	}
	op := OpCode(getU16LE(b[0:2]))
	n := int(b[2])
	if len(b) != 3+n {
		return nil, &InvalidPacketError{Msg: fmt.Sprintf("command length mismatch: declared %d, have %d", n, len(b)-3)}
	}
	params := append([]byte(nil), b[3:]...)
	return &CommandPacket{Opcode: op, Parameters: params}, nil
}

func (c *CommandPacket) marshal() []byte {
	out := make([]byte, 3+len(c.Parameters))
	putU16LE(out[0:2], uint16(c.Opcode))
	out[2] = byte(len(c.Parameters))
	copy(out[3:], c.Parameters)
	return out
}

// CmdParam is implemented by every concrete HCI command. ReturnFields
// describes the shape of the command's Command-Complete return parameters
// (nil for commands answered by Command Status; commands that return only
// a status byte use statusOnlyReturn).
type CmdParam interface {
	Opcode() OpCode
	Marshal() []byte
	ReturnFields() []FieldSpec
}

// EncodeCommand frames a CmdParam as a ready-to-send Packet.
func EncodeCommand(p CmdParam) Packet {
	return Packet{Type: PacketTypeCommand, Command: &CommandPacket{Opcode: p.Opcode(), Parameters: p.Marshal()}}
}

// statusOnlyReturn is the return-parameter shape shared by the large
// majority of commands: a single status byte.
var statusOnlyReturn = []FieldSpec{{Name: "Status", Size: 1}}

// --- Host Control / Info Param commands used by the reset sequence (§4.2) ---

type Reset struct{}

func (Reset) Opcode() OpCode             { return OpReset }
func (Reset) Marshal() []byte            { return nil }
func (Reset) ReturnFields() []FieldSpec  { return statusOnlyReturn }

type SetEventMask struct{ Mask uint64 }

func (c SetEventMask) Opcode() OpCode { return OpSetEventMask }
func (c SetEventMask) Marshal() []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(c.Mask >> (8 * i))
	}
	return b
}
func (SetEventMask) ReturnFields() []FieldSpec { return statusOnlyReturn }

type ReadLocalVersionInformation struct{}

func (ReadLocalVersionInformation) Opcode() OpCode  { return OpReadLocalVersionInformation }
func (ReadLocalVersionInformation) Marshal() []byte { return nil }
func (ReadLocalVersionInformation) ReturnFields() []FieldSpec {
	return []FieldSpec{
		{Name: "Status", Size: 1},
		{Name: "HCI_Version", Size: 1},
		{Name: "HCI_Revision", Size: 2},
		{Name: "LMP_Version", Size: 1},
		{Name: "Manufacturer_Name", Size: 2},
		{Name: "LMP_Subversion", Size: 2},
	}
}

type ReadLocalSupportedCommands struct{}

func (ReadLocalSupportedCommands) Opcode() OpCode  { return OpReadLocalSupportedCommands }
func (ReadLocalSupportedCommands) Marshal() []byte { return nil }
func (ReadLocalSupportedCommands) ReturnFields() []FieldSpec {
	return []FieldSpec{{Name: "Status", Size: 1}, {Name: "Supported_Commands", Size: 64}}
}

type ReadLocalSupportedFeatures struct{}

func (ReadLocalSupportedFeatures) Opcode() OpCode  { return OpReadLocalSupportedFeatures }
func (ReadLocalSupportedFeatures) Marshal() []byte { return nil }
func (ReadLocalSupportedFeatures) ReturnFields() []FieldSpec {
	return []FieldSpec{{Name: "Status", Size: 1}, {Name: "LMP_Features", Size: 8}}
}

type ReadBufferSize struct{}

func (ReadBufferSize) Opcode() OpCode  { return OpReadBufferSize }
func (ReadBufferSize) Marshal() []byte { return nil }
func (ReadBufferSize) ReturnFields() []FieldSpec {
	return []FieldSpec{
		{Name: "Status", Size: 1},
		{Name: "ACL_Data_Packet_Length", Size: 2},
		{Name: "Synchronous_Data_Packet_Length", Size: 1},
		{Name: "Total_Num_ACL_Data_Packets", Size: 2},
		{Name: "Total_Num_Synchronous_Data_Packets", Size: 2},
	}
}

type ReadBDADDR struct{}

func (ReadBDADDR) Opcode() OpCode  { return OpReadBDADDR }
func (ReadBDADDR) Marshal() []byte { return nil }
func (ReadBDADDR) ReturnFields() []FieldSpec {
	return []FieldSpec{{Name: "Status", Size: 1}, {Name: "BD_ADDR", Size: 6}}
}

type WriteScanEnable struct{ ScanEnable uint8 }

func (c WriteScanEnable) Opcode() OpCode             { return OpWriteScanEnable }
func (c WriteScanEnable) Marshal() []byte            { return []byte{c.ScanEnable} }
func (WriteScanEnable) ReturnFields() []FieldSpec    { return statusOnlyReturn }

type WriteLocalName struct{ Name string }

func (c WriteLocalName) Opcode() OpCode { return OpWriteLocalName }
func (c WriteLocalName) Marshal() []byte {
	b := make([]byte, 248)
	copy(b, c.Name)
	return b
}
func (WriteLocalName) ReturnFields() []FieldSpec { return statusOnlyReturn }

type WriteClassOfDevice struct{ ClassOfDevice uint32 }

func (c WriteClassOfDevice) Opcode() OpCode { return OpWriteClassOfDevice }
func (c WriteClassOfDevice) Marshal() []byte {
	b := make([]byte, 3)
	putU24LE(b, c.ClassOfDevice)
	return b
}
func (WriteClassOfDevice) ReturnFields() []FieldSpec { return statusOnlyReturn }

type WriteSimplePairingMode struct{ Enable uint8 }

func (c WriteSimplePairingMode) Opcode() OpCode          { return OpWriteSimplePairingMode }
func (c WriteSimplePairingMode) Marshal() []byte         { return []byte{c.Enable} }
func (WriteSimplePairingMode) ReturnFields() []FieldSpec { return statusOnlyReturn }

type WriteSecureConnectionsHostSupport struct{ Enable uint8 }

func (c WriteSecureConnectionsHostSupport) Opcode() OpCode  { return OpWriteSecureConnectionsHostSupp }
func (c WriteSecureConnectionsHostSupport) Marshal() []byte { return []byte{c.Enable} }
func (WriteSecureConnectionsHostSupport) ReturnFields() []FieldSpec {
	return statusOnlyReturn
}

type LinkKeyRequestReply struct {
	BDAddr  [6]byte
	LinkKey [16]byte
}

func (c LinkKeyRequestReply) Opcode() OpCode { return OpLinkKeyRequestReply }
func (c LinkKeyRequestReply) Marshal() []byte {
	b := make([]byte, 22)
	copy(b[0:6], c.BDAddr[:])
	copy(b[6:22], c.LinkKey[:])
	return b
}
func (LinkKeyRequestReply) ReturnFields() []FieldSpec {
	return []FieldSpec{{Name: "Status", Size: 1}, {Name: "BD_ADDR", Size: 6}}
}

type LinkKeyRequestNegativeReply struct{ BDAddr [6]byte }

func (c LinkKeyRequestNegativeReply) Opcode() OpCode  { return OpLinkKeyRequestNegativeReply }
func (c LinkKeyRequestNegativeReply) Marshal() []byte { return c.BDAddr[:] }
func (LinkKeyRequestNegativeReply) ReturnFields() []FieldSpec {
	return []FieldSpec{{Name: "Status", Size: 1}, {Name: "BD_ADDR", Size: 6}}
}

type Disconnect struct {
	ConnectionHandle uint16
	Reason           uint8
}

func (c Disconnect) Opcode() OpCode { return OpDisconnect }
func (c Disconnect) Marshal() []byte {
	b := make([]byte, 3)
	putU16LE(b[0:2], c.ConnectionHandle)
	b[2] = c.Reason
	return b
}
func (Disconnect) ReturnFields() []FieldSpec { return nil } // status arrives via Command Status

// --- LE Controller commands (§4.2, §4.5) ---

type LESetEventMask struct{ Mask uint64 }

func (c LESetEventMask) Opcode() OpCode { return OpLESetEventMask }
func (c LESetEventMask) Marshal() []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(c.Mask >> (8 * i))
	}
	return b
}
func (LESetEventMask) ReturnFields() []FieldSpec { return statusOnlyReturn }

type LEReadBufferSize struct{}

func (LEReadBufferSize) Opcode() OpCode  { return OpLEReadBufferSize }
func (LEReadBufferSize) Marshal() []byte { return nil }
func (LEReadBufferSize) ReturnFields() []FieldSpec {
	return []FieldSpec{
		{Name: "Status", Size: 1},
		{Name: "LE_ACL_Data_Packet_Length", Size: 2},
		{Name: "Total_Num_LE_ACL_Data_Packets", Size: 1},
	}
}

type LEReadBufferSizeV2 struct{}

func (LEReadBufferSizeV2) Opcode() OpCode  { return OpLEReadBufferSizeV2 }
func (LEReadBufferSizeV2) Marshal() []byte { return nil }
func (LEReadBufferSizeV2) ReturnFields() []FieldSpec {
	return []FieldSpec{
		{Name: "Status", Size: 1},
		{Name: "LE_ACL_Data_Packet_Length", Size: 2},
		{Name: "Total_Num_LE_ACL_Data_Packets", Size: 1},
		{Name: "ISO_Data_Packet_Length", Size: 2},
		{Name: "Total_Num_ISO_Data_Packets", Size: 1},
	}
}

type LEReadLocalSupportedFeatures struct{}

func (LEReadLocalSupportedFeatures) Opcode() OpCode  { return OpLEReadLocalSupportedFeatures }
func (LEReadLocalSupportedFeatures) Marshal() []byte { return nil }
func (LEReadLocalSupportedFeatures) ReturnFields() []FieldSpec {
	return []FieldSpec{{Name: "Status", Size: 1}, {Name: "LE_Features", Size: 8}}
}

type LESetRandomAddress struct{ RandomAddress [6]byte }

func (c LESetRandomAddress) Opcode() OpCode          { return OpLESetRandomAddress }
func (c LESetRandomAddress) Marshal() []byte         { return c.RandomAddress[:] }
func (LESetRandomAddress) ReturnFields() []FieldSpec { return statusOnlyReturn }

type LESetAdvertisingParameters struct {
	IntervalMin    uint16
	IntervalMax    uint16
	AdvType        uint8
	OwnAddrType    uint8
	DirectAddrType uint8
	DirectAddr     [6]byte
	ChannelMap     uint8
	FilterPolicy   uint8
}

func (c LESetAdvertisingParameters) Opcode() OpCode { return OpLESetAdvertisingParameters }
func (c LESetAdvertisingParameters) Marshal() []byte {
	b := make([]byte, 15)
	putU16LE(b[0:2], c.IntervalMin)
	putU16LE(b[2:4], c.IntervalMax)
	b[4] = c.AdvType
	b[5] = c.OwnAddrType
	b[6] = c.DirectAddrType
	copy(b[7:13], c.DirectAddr[:])
	b[13] = c.ChannelMap
	b[14] = c.FilterPolicy
	return b
}
func (LESetAdvertisingParameters) ReturnFields() []FieldSpec { return statusOnlyReturn }

type LESetAdvertisingData struct{ Data [31]byte; Length uint8 }

func (c LESetAdvertisingData) Opcode() OpCode { return OpLESetAdvertisingData }
func (c LESetAdvertisingData) Marshal() []byte {
	b := make([]byte, 32)
	b[0] = c.Length
	copy(b[1:], c.Data[:])
	return b
}
func (LESetAdvertisingData) ReturnFields() []FieldSpec { return statusOnlyReturn }

type LESetScanResponseData struct{ Data [31]byte; Length uint8 }

func (c LESetScanResponseData) Opcode() OpCode { return OpLESetScanResponseData }
func (c LESetScanResponseData) Marshal() []byte {
	b := make([]byte, 32)
	b[0] = c.Length
	copy(b[1:], c.Data[:])
	return b
}
func (LESetScanResponseData) ReturnFields() []FieldSpec { return statusOnlyReturn }

type LESetAdvertiseEnable struct{ Enable uint8 }

func (c LESetAdvertiseEnable) Opcode() OpCode          { return OpLESetAdvertiseEnable }
func (c LESetAdvertiseEnable) Marshal() []byte         { return []byte{c.Enable} }
func (LESetAdvertiseEnable) ReturnFields() []FieldSpec { return statusOnlyReturn }

type LESetScanParameters struct {
	ScanType       uint8
	ScanInterval   uint16
	ScanWindow     uint16
	OwnAddrType    uint8
	FilterPolicy   uint8
}

func (c LESetScanParameters) Opcode() OpCode { return OpLESetScanParameters }
func (c LESetScanParameters) Marshal() []byte {
	b := make([]byte, 7)
	b[0] = c.ScanType
	putU16LE(b[1:3], c.ScanInterval)
	putU16LE(b[3:5], c.ScanWindow)
	b[5] = c.OwnAddrType
	b[6] = c.FilterPolicy
	return b
}
func (LESetScanParameters) ReturnFields() []FieldSpec { return statusOnlyReturn }

type LESetScanEnable struct {
	Enable           uint8
	FilterDuplicates uint8
}

func (c LESetScanEnable) Opcode() OpCode          { return OpLESetScanEnable }
func (c LESetScanEnable) Marshal() []byte         { return []byte{c.Enable, c.FilterDuplicates} }
func (LESetScanEnable) ReturnFields() []FieldSpec { return statusOnlyReturn }

type LECreateConnection struct {
	ScanInterval        uint16
	ScanWindow          uint16
	InitiatorFilterPlcy uint8
	PeerAddrType        uint8
	PeerAddr            [6]byte
	OwnAddrType         uint8
	ConnIntervalMin     uint16
	ConnIntervalMax     uint16
	ConnLatency         uint16
	SupervisionTimeout  uint16
	MinCELength         uint16
	MaxCELength         uint16
}

func (c LECreateConnection) Opcode() OpCode { return OpLECreateConnection }
func (c LECreateConnection) Marshal() []byte {
	b := make([]byte, 25)
	putU16LE(b[0:2], c.ScanInterval)
	putU16LE(b[2:4], c.ScanWindow)
	b[4] = c.InitiatorFilterPlcy
	b[5] = c.PeerAddrType
	copy(b[6:12], c.PeerAddr[:])
	b[12] = c.OwnAddrType
	putU16LE(b[13:15], c.ConnIntervalMin)
	putU16LE(b[15:17], c.ConnIntervalMax)
	putU16LE(b[17:19], c.ConnLatency)
	putU16LE(b[19:21], c.SupervisionTimeout)
	putU16LE(b[21:23], c.MinCELength)
	putU16LE(b[23:25], c.MaxCELength)
	return b
}

// LECreateConnection has no Command-Complete return; it resolves via
// Command Status followed by an LE Connection Complete event.
func (LECreateConnection) ReturnFields() []FieldSpec { return nil }

type LECreateConnectionCancel struct{}

func (LECreateConnectionCancel) Opcode() OpCode          { return OpLECreateConnectionCancel }
func (LECreateConnectionCancel) Marshal() []byte         { return nil }
func (LECreateConnectionCancel) ReturnFields() []FieldSpec { return statusOnlyReturn }

type LEConnectionUpdate struct {
	ConnectionHandle   uint16
	ConnIntervalMin    uint16
	ConnIntervalMax    uint16
	ConnLatency        uint16
	SupervisionTimeout uint16
	MinCELength        uint16
	MaxCELength        uint16
}

func (c LEConnectionUpdate) Opcode() OpCode { return OpLEConnectionUpdate }
func (c LEConnectionUpdate) Marshal() []byte {
	b := make([]byte, 14)
	putU16LE(b[0:2], c.ConnectionHandle)
	putU16LE(b[2:4], c.ConnIntervalMin)
	putU16LE(b[4:6], c.ConnIntervalMax)
	putU16LE(b[6:8], c.ConnLatency)
	putU16LE(b[8:10], c.SupervisionTimeout)
	putU16LE(b[10:12], c.MinCELength)
	putU16LE(b[12:14], c.MaxCELength)
	return b
}
func (LEConnectionUpdate) ReturnFields() []FieldSpec { return nil }

type LELongTermKeyRequestReply struct {
	ConnectionHandle uint16
	LongTermKey      [16]byte
}

func (c LELongTermKeyRequestReply) Opcode() OpCode { return OpLELongTermKeyRequestReply }
func (c LELongTermKeyRequestReply) Marshal() []byte {
	b := make([]byte, 18)
	putU16LE(b[0:2], c.ConnectionHandle)
	copy(b[2:18], c.LongTermKey[:])
	return b
}
func (LELongTermKeyRequestReply) ReturnFields() []FieldSpec {
	return []FieldSpec{{Name: "Status", Size: 1}, {Name: "Connection_Handle", Size: 2}}
}

type LELongTermKeyRequestNegativeReply struct{ ConnectionHandle uint16 }

func (c LELongTermKeyRequestNegativeReply) Opcode() OpCode { return OpLELongTermKeyRequestNegReply }
func (c LELongTermKeyRequestNegativeReply) Marshal() []byte {
	b := make([]byte, 2)
	putU16LE(b, c.ConnectionHandle)
	return b
}
func (LELongTermKeyRequestNegativeReply) ReturnFields() []FieldSpec {
	return []FieldSpec{{Name: "Status", Size: 1}, {Name: "Connection_Handle", Size: 2}}
}

// --- Classic connection establishment and LE privacy commands (§4.5) ---

type CreateConnection struct {
	BDAddr               [6]byte
	PacketType           uint16
	PageScanRepetMode    uint8
	Reserved             uint8
	ClockOffset          uint16
	AllowRoleSwitch      uint8
}

func (c CreateConnection) Opcode() OpCode { return OpCreateConnection }
func (c CreateConnection) Marshal() []byte {
	b := make([]byte, 13)
	copy(b[0:6], c.BDAddr[:])
	putU16LE(b[6:8], c.PacketType)
	b[8] = c.PageScanRepetMode
	b[9] = c.Reserved
	putU16LE(b[10:12], c.ClockOffset)
	b[12] = c.AllowRoleSwitch
	return b
}

// CreateConnection has no Command-Complete return; it resolves via Command
// Status followed by a Connection Complete event.
func (CreateConnection) ReturnFields() []FieldSpec { return nil }

// LEExtendedCreateConnection covers the single-PHY-set case (1M only),
// which is all the Device orchestrator needs: one initiating PHY entry.
type LEExtendedCreateConnection struct {
	InitiatorFilterPlcy uint8
	OwnAddrType         uint8
	PeerAddrType        uint8
	PeerAddr            [6]byte
	InitiatingPHYs      uint8
	ScanInterval        uint16
	ScanWindow          uint16
	ConnIntervalMin     uint16
	ConnIntervalMax     uint16
	ConnLatency         uint16
	SupervisionTimeout  uint16
	MinCELength         uint16
	MaxCELength         uint16
}

func (c LEExtendedCreateConnection) Opcode() OpCode { return OpLEExtendedCreateConnection }
func (c LEExtendedCreateConnection) Marshal() []byte {
	b := make([]byte, 10+16)
	b[0] = c.InitiatorFilterPlcy
	b[1] = c.OwnAddrType
	b[2] = c.PeerAddrType
	copy(b[3:9], c.PeerAddr[:])
	b[9] = c.InitiatingPHYs
	putU16LE(b[10:12], c.ScanInterval)
	putU16LE(b[12:14], c.ScanWindow)
	putU16LE(b[14:16], c.ConnIntervalMin)
	putU16LE(b[16:18], c.ConnIntervalMax)
	putU16LE(b[18:20], c.ConnLatency)
	putU16LE(b[20:22], c.SupervisionTimeout)
	putU16LE(b[22:24], c.MinCELength)
	putU16LE(b[24:26], c.MaxCELength)
	return b
}
func (LEExtendedCreateConnection) ReturnFields() []FieldSpec { return nil }

type WriteLEHostSupport struct {
	LESupportedHost    uint8
	SimultaneousLEHost uint8 // reserved, always 0 on modern controllers
}

func (c WriteLEHostSupport) Opcode() OpCode          { return OpWriteLEHostSupport }
func (c WriteLEHostSupport) Marshal() []byte         { return []byte{c.LESupportedHost, c.SimultaneousLEHost} }
func (WriteLEHostSupport) ReturnFields() []FieldSpec { return statusOnlyReturn }

type LEClearResolvingList struct{}

func (LEClearResolvingList) Opcode() OpCode          { return OpLEClearResolvingList }
func (LEClearResolvingList) Marshal() []byte         { return nil }
func (LEClearResolvingList) ReturnFields() []FieldSpec { return statusOnlyReturn }

type LEAddDeviceToResolvingList struct {
	PeerIdentityAddrType uint8
	PeerIdentityAddr     [6]byte
	PeerIRK              [16]byte
	LocalIRK             [16]byte
}

func (c LEAddDeviceToResolvingList) Opcode() OpCode { return OpLEAddDeviceToResolvingList }
func (c LEAddDeviceToResolvingList) Marshal() []byte {
	b := make([]byte, 39)
	b[0] = c.PeerIdentityAddrType
	copy(b[1:7], c.PeerIdentityAddr[:])
	copy(b[7:23], c.PeerIRK[:])
	copy(b[23:39], c.LocalIRK[:])
	return b
}
func (LEAddDeviceToResolvingList) ReturnFields() []FieldSpec { return statusOnlyReturn }

type LESetAddressResolutionEnable struct{ Enable uint8 }

func (c LESetAddressResolutionEnable) Opcode() OpCode { return OpLESetAddressResolutionEnable }
func (c LESetAddressResolutionEnable) Marshal() []byte { return []byte{c.Enable} }
func (LESetAddressResolutionEnable) ReturnFields() []FieldSpec { return statusOnlyReturn }
