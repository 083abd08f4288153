package hci

// OGF values, grouping HCI commands the way the Core Spec does.
const (
	ogfLinkControl     = 0x01
	ogfLinkPolicy      = 0x02
	ogfHostControl     = 0x03
	ogfInfoParam       = 0x04
	ogfStatusParam     = 0x05
	ogfTesting         = 0x06
	ogfLEController    = 0x08
	ogfVendor          = 0x3F
)

// OpCode packs OGF (top 6 bits) and OCF (bottom 10 bits) the way the wire
// format does: opcode = (ogf << 10) | ocf.
type OpCode uint16

func newOpCode(ogf uint8, ocf uint16) OpCode {
	return OpCode(uint16(ogf)<<10 | (ocf & 0x03FF))
}

// OGF returns the 6-bit opcode group field.
func (op OpCode) OGF() uint8 { return uint8(uint16(op) >> 10) }

// OCF returns the 10-bit opcode command field.
func (op OpCode) OCF() uint16 { return uint16(op) & 0x03FF }

func (op OpCode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "Unknown"
}

const (
	OpReset                          = OpCode(ogfHostControl<<10 | 0x0003)
	OpSetEventMask                   = OpCode(ogfHostControl<<10 | 0x0001)
	OpReadLocalVersionInformation    = OpCode(ogfInfoParam<<10 | 0x0001)
	OpReadLocalSupportedCommands     = OpCode(ogfInfoParam<<10 | 0x0002)
	OpReadLocalSupportedFeatures     = OpCode(ogfInfoParam<<10 | 0x0003)
	OpReadBufferSize                 = OpCode(ogfInfoParam<<10 | 0x0005)
	OpReadBDADDR                     = OpCode(ogfInfoParam<<10 | 0x0009)
	OpCreateConnection               = OpCode(ogfLinkControl<<10 | 0x0005)
	OpDisconnect                     = OpCode(ogfLinkControl<<10 | 0x0006)
	OpLinkKeyRequestReply            = OpCode(ogfLinkControl<<10 | 0x000B)
	OpLinkKeyRequestNegativeReply    = OpCode(ogfLinkControl<<10 | 0x000C)
	OpWriteScanEnable                = OpCode(ogfHostControl<<10 | 0x001A)
	OpWriteLocalName                 = OpCode(ogfHostControl<<10 | 0x0013)
	OpWriteClassOfDevice             = OpCode(ogfHostControl<<10 | 0x0024)
	OpWriteSimplePairingMode         = OpCode(ogfHostControl<<10 | 0x0056)
	OpWriteSecureConnectionsHostSupp = OpCode(ogfHostControl<<10 | 0x007A)
	OpLESetEventMask                 = OpCode(ogfLEController<<10 | 0x0001)
	OpLEReadBufferSize               = OpCode(ogfLEController<<10 | 0x0002)
	OpLEReadLocalSupportedFeatures   = OpCode(ogfLEController<<10 | 0x0003)
	OpLESetRandomAddress             = OpCode(ogfLEController<<10 | 0x0005)
	OpLESetAdvertisingParameters     = OpCode(ogfLEController<<10 | 0x0006)
	OpLESetAdvertisingData           = OpCode(ogfLEController<<10 | 0x0008)
	OpLESetScanResponseData          = OpCode(ogfLEController<<10 | 0x0009)
	OpLESetAdvertiseEnable           = OpCode(ogfLEController<<10 | 0x000A)
	OpLESetScanParameters            = OpCode(ogfLEController<<10 | 0x000B)
	OpLESetScanEnable                = OpCode(ogfLEController<<10 | 0x000C)
	OpLECreateConnection             = OpCode(ogfLEController<<10 | 0x000D)
	OpLECreateConnectionCancel       = OpCode(ogfLEController<<10 | 0x000E)
	OpLEConnectionUpdate             = OpCode(ogfLEController<<10 | 0x0013)
	OpLEReadLocalResolvableAddress   = OpCode(ogfLEController<<10 | 0x002C)
	OpLELongTermKeyRequestReply      = OpCode(ogfLEController<<10 | 0x001A)
	OpLELongTermKeyRequestNegReply   = OpCode(ogfLEController<<10 | 0x001B)
	OpLEReadBufferSizeV2             = OpCode(ogfLEController<<10 | 0x0060)
	OpLESetExtendedAdvertisingData   = OpCode(ogfLEController<<10 | 0x0037)
	OpLEExtendedCreateConnection     = OpCode(ogfLEController<<10 | 0x0043)
	OpWriteLEHostSupport             = OpCode(ogfHostControl<<10 | 0x006D)
	OpLEAddDeviceToResolvingList     = OpCode(ogfLEController<<10 | 0x0027)
	OpLERemoveDeviceFromResolvingList = OpCode(ogfLEController<<10 | 0x0028)
	OpLEClearResolvingList           = OpCode(ogfLEController<<10 | 0x0029)
	OpLESetAddressResolutionEnable   = OpCode(ogfLEController<<10 | 0x002D)
)

var opcodeNames = map[OpCode]string{
	OpReset:                          "Reset",
	OpSetEventMask:                   "Set_Event_Mask",
	OpReadLocalVersionInformation:    "Read_Local_Version_Information",
	OpReadLocalSupportedCommands:     "Read_Local_Supported_Commands",
	OpReadLocalSupportedFeatures:     "Read_Local_Supported_Features",
	OpReadBufferSize:                 "Read_Buffer_Size",
	OpReadBDADDR:                     "Read_BD_ADDR",
	OpCreateConnection:               "Create_Connection",
	OpDisconnect:                     "Disconnect",
	OpLinkKeyRequestReply:            "Link_Key_Request_Reply",
	OpLinkKeyRequestNegativeReply:    "Link_Key_Request_Negative_Reply",
	OpWriteScanEnable:                "Write_Scan_Enable",
	OpWriteLocalName:                 "Write_Local_Name",
	OpWriteClassOfDevice:             "Write_Class_Of_Device",
	OpWriteSimplePairingMode:         "Write_Simple_Pairing_Mode",
	OpWriteSecureConnectionsHostSupp: "Write_Secure_Connections_Host_Support",
	OpLESetEventMask:                 "LE_Set_Event_Mask",
	OpLEReadBufferSize:               "LE_Read_Buffer_Size",
	OpLEReadLocalSupportedFeatures:   "LE_Read_Local_Supported_Features",
	OpLESetRandomAddress:             "LE_Set_Random_Address",
	OpLESetAdvertisingParameters:     "LE_Set_Advertising_Parameters",
	OpLESetAdvertisingData:           "LE_Set_Advertising_Data",
	OpLESetScanResponseData:          "LE_Set_Scan_Response_Data",
	OpLESetAdvertiseEnable:           "LE_Set_Advertise_Enable",
	OpLESetScanParameters:            "LE_Set_Scan_Parameters",
	OpLESetScanEnable:                "LE_Set_Scan_Enable",
	OpLECreateConnection:             "LE_Create_Connection",
	OpLECreateConnectionCancel:       "LE_Create_Connection_Cancel",
	OpLEConnectionUpdate:             "LE_Connection_Update",
	OpLEReadLocalResolvableAddress:   "LE_Read_Local_Resolvable_Address",
	OpLELongTermKeyRequestReply:      "LE_Long_Term_Key_Request_Reply",
	OpLELongTermKeyRequestNegReply:   "LE_Long_Term_Key_Request_Negative_Reply",
	OpLEReadBufferSizeV2:             "LE_Read_Buffer_Size_V2",
	OpLESetExtendedAdvertisingData:   "LE_Set_Extended_Advertising_Data",
	OpLEExtendedCreateConnection:     "LE_Extended_Create_Connection",
	OpWriteLEHostSupport:             "Write_LE_Host_Support",
	OpLEAddDeviceToResolvingList:     "LE_Add_Device_To_Resolving_List",
	OpLERemoveDeviceFromResolvingList: "LE_Remove_Device_From_Resolving_List",
	OpLEClearResolvingList:           "LE_Clear_Resolving_List",
	OpLESetAddressResolutionEnable:   "LE_Set_Address_Resolution_Enable",
}

// EventCode identifies an HCI event (or, for LEMeta, carries the outer
// wrapper code; the true LE subevent is returned by EventPacket.Subevent).
type EventCode uint8

const (
	EventInquiryComplete           EventCode = 0x01
	EventConnectionComplete        EventCode = 0x03
	EventConnectionRequest         EventCode = 0x04
	EventDisconnectionComplete     EventCode = 0x05
	EventEncryptionChange          EventCode = 0x08
	EventCommandComplete           EventCode = 0x0E
	EventCommandStatus             EventCode = 0x0F
	EventNumberOfCompletedPackets  EventCode = 0x13
	EventPINCodeRequest            EventCode = 0x16
	EventLinkKeyRequest            EventCode = 0x17
	EventLinkKeyNotification       EventCode = 0x18
	EventEncryptionKeyRefreshCompl EventCode = 0x30
	EventIOCapabilityRequest       EventCode = 0x31
	EventLEMeta                    EventCode = 0x3E
)

// LE meta subevent codes (carried as the first byte of an LEMeta event's
// parameters).
type LESubeventCode uint8

const (
	LESubeventConnectionComplete         LESubeventCode = 0x01
	LESubeventAdvertisingReport          LESubeventCode = 0x02
	LESubeventConnectionUpdateComplete   LESubeventCode = 0x03
	LESubeventLongTermKeyRequest         LESubeventCode = 0x05
	LESubeventEnhancedConnectionComplete LESubeventCode = 0x0A
	LESubeventDataLengthChange           LESubeventCode = 0x07
	LESubeventPHYUpdateComplete          LESubeventCode = 0x0C
)

var eventNames = map[EventCode]string{
	EventInquiryComplete:           "Inquiry_Complete",
	EventConnectionComplete:        "Connection_Complete",
	EventConnectionRequest:         "Connection_Request",
	EventDisconnectionComplete:     "Disconnection_Complete",
	EventEncryptionChange:          "Encryption_Change",
	EventCommandComplete:           "Command_Complete",
	EventCommandStatus:             "Command_Status",
	EventNumberOfCompletedPackets:  "Number_Of_Completed_Packets",
	EventPINCodeRequest:            "PIN_Code_Request",
	EventLinkKeyRequest:            "Link_Key_Request",
	EventLinkKeyNotification:       "Link_Key_Notification",
	EventEncryptionKeyRefreshCompl: "Encryption_Key_Refresh_Complete",
	EventIOCapabilityRequest:       "IO_Capability_Request",
	EventLEMeta:                    "LE_Meta_Event",
}

func (c EventCode) String() string {
	if name, ok := eventNames[c]; ok {
		return name
	}
	return "Unknown"
}
