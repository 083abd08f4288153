package l2cap

import "encoding/binary"

// Signaling command codes (§4.3, Core Spec vol 3 part A §4).
type SignalCode uint8

const (
	SigCommandReject                 SignalCode = 0x01
	SigConnectionRequest              SignalCode = 0x02
	SigConnectionResponse             SignalCode = 0x03
	SigConfigureRequest               SignalCode = 0x04
	SigConfigureResponse              SignalCode = 0x05
	SigDisconnectionRequest           SignalCode = 0x06
	SigDisconnectionResponse          SignalCode = 0x07
	SigEchoRequest                    SignalCode = 0x08
	SigEchoResponse                   SignalCode = 0x09
	SigInformationRequest             SignalCode = 0x0A
	SigInformationResponse            SignalCode = 0x0B
	SigConnParamUpdateRequest         SignalCode = 0x12
	SigConnParamUpdateResponse        SignalCode = 0x13
	SigLECreditBasedConnRequest       SignalCode = 0x14
	SigLECreditBasedConnResponse      SignalCode = 0x15
	SigLEFlowControlCredit            SignalCode = 0x16
)

// SignalFrame is one TLV within a Signaling-channel PDU:
// `[code:1][id:1][len:2 LE][data:len]`. A single Basic-mode PDU on the
// signaling CID may carry several of these back to back.
type SignalFrame struct {
	Code SignalCode
	ID   uint8
	Data []byte
}

// ParseSignalFrames splits a signaling PDU payload into its constituent
// frames.
func ParseSignalFrames(b []byte) ([]SignalFrame, error) {
	var out []SignalFrame
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, &InvalidPDUError{Msg: "signaling frame truncated"}
		}
		n := int(binary.LittleEndian.Uint16(b[2:4]))
		if len(b) < 4+n {
			return nil, &InvalidPDUError{Msg: "signaling frame length mismatch"}
		}
		out = append(out, SignalFrame{
			Code: SignalCode(b[0]),
			ID:   b[1],
			Data: append([]byte(nil), b[4:4+n]...),
		})
		b = b[4+n:]
	}
	return out, nil
}

func (f SignalFrame) Marshal() []byte {
	out := make([]byte, 4+len(f.Data))
	out[0] = byte(f.Code)
	out[1] = f.ID
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(f.Data)))
	copy(out[4:], f.Data)
	return out
}

// Command Reject reason codes.
const (
	RejectCommandNotUnderstood uint16 = 0x0000
	RejectSignalingMTUExceeded uint16 = 0x0001
	RejectInvalidCID           uint16 = 0x0002
)

type CommandReject struct {
	Reason uint16
	Data   []byte // reason-specific, e.g. [actual_mtu] or [local_cid, remote_cid]
}

func (r CommandReject) Marshal() []byte {
	out := make([]byte, 2+len(r.Data))
	binary.LittleEndian.PutUint16(out[0:2], r.Reason)
	copy(out[2:], r.Data)
	return out
}

func DecodeCommandReject(b []byte) (CommandReject, error) {
	if len(b) < 2 {
		return CommandReject{}, &InvalidPDUError{Msg: "Command_Reject truncated"}
	}
	return CommandReject{Reason: binary.LittleEndian.Uint16(b[0:2]), Data: append([]byte(nil), b[2:]...)}, nil
}

// ConnectionRequest is the classic dynamic-channel open.
type ConnectionRequest struct {
	PSM  uint16
	SCID uint16
}

func (r ConnectionRequest) Marshal() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:2], r.PSM)
	binary.LittleEndian.PutUint16(b[2:4], r.SCID)
	return b
}

func DecodeConnectionRequest(b []byte) (ConnectionRequest, error) {
	if len(b) != 4 {
		return ConnectionRequest{}, &InvalidPDUError{Msg: "Connection_Request malformed"}
	}
	return ConnectionRequest{
		PSM:  binary.LittleEndian.Uint16(b[0:2]),
		SCID: binary.LittleEndian.Uint16(b[2:4]),
	}, nil
}

// Connection result codes.
const (
	ConnResultSuccess              uint16 = 0x0000
	ConnResultPending              uint16 = 0x0001
	ConnResultRefusedPSM           uint16 = 0x0002
	ConnResultRefusedSecurity      uint16 = 0x0003
	ConnResultRefusedResources     uint16 = 0x0004
)

type ConnectionResponse struct {
	DCID   uint16
	SCID   uint16
	Result uint16
	Status uint16
}

func (r ConnectionResponse) Marshal() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint16(b[0:2], r.DCID)
	binary.LittleEndian.PutUint16(b[2:4], r.SCID)
	binary.LittleEndian.PutUint16(b[4:6], r.Result)
	binary.LittleEndian.PutUint16(b[6:8], r.Status)
	return b
}

func DecodeConnectionResponse(b []byte) (ConnectionResponse, error) {
	if len(b) != 8 {
		return ConnectionResponse{}, &InvalidPDUError{Msg: "Connection_Response malformed"}
	}
	return ConnectionResponse{
		DCID:   binary.LittleEndian.Uint16(b[0:2]),
		SCID:   binary.LittleEndian.Uint16(b[2:4]),
		Result: binary.LittleEndian.Uint16(b[4:6]),
		Status: binary.LittleEndian.Uint16(b[6:8]),
	}, nil
}

// ConfigureRequest/Response carry a destination/source CID plus a run of
// configuration option TLVs, encoded/decoded via config.go.
type ConfigureRequest struct {
	DCID    uint16
	Flags   uint16
	Options []ConfigOption
}

func (r ConfigureRequest) Marshal() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:2], r.DCID)
	binary.LittleEndian.PutUint16(b[2:4], r.Flags)
	for _, o := range r.Options {
		b = append(b, o.Marshal()...)
	}
	return b
}

func DecodeConfigureRequest(b []byte) (ConfigureRequest, error) {
	if len(b) < 4 {
		return ConfigureRequest{}, &InvalidPDUError{Msg: "Configure_Request truncated"}
	}
	opts, err := ParseConfigOptions(b[4:])
	if err != nil {
		return ConfigureRequest{}, err
	}
	return ConfigureRequest{
		DCID:    binary.LittleEndian.Uint16(b[0:2]),
		Flags:   binary.LittleEndian.Uint16(b[2:4]),
		Options: opts,
	}, nil
}

const (
	ConfigResultSuccess              uint16 = 0x0000
	ConfigResultUnacceptableParams   uint16 = 0x0001
	ConfigResultRejected             uint16 = 0x0002
	ConfigResultUnknownOptions       uint16 = 0x0003
)

type ConfigureResponse struct {
	SCID    uint16
	Flags   uint16
	Result  uint16
	Options []ConfigOption
}

func (r ConfigureResponse) Marshal() []byte {
	b := make([]byte, 6)
	binary.LittleEndian.PutUint16(b[0:2], r.SCID)
	binary.LittleEndian.PutUint16(b[2:4], r.Flags)
	binary.LittleEndian.PutUint16(b[4:6], r.Result)
	for _, o := range r.Options {
		b = append(b, o.Marshal()...)
	}
	return b
}

func DecodeConfigureResponse(b []byte) (ConfigureResponse, error) {
	if len(b) < 6 {
		return ConfigureResponse{}, &InvalidPDUError{Msg: "Configure_Response truncated"}
	}
	opts, err := ParseConfigOptions(b[6:])
	if err != nil {
		return ConfigureResponse{}, err
	}
	return ConfigureResponse{
		SCID:    binary.LittleEndian.Uint16(b[0:2]),
		Flags:   binary.LittleEndian.Uint16(b[2:4]),
		Result:  binary.LittleEndian.Uint16(b[4:6]),
		Options: opts,
	}, nil
}

type DisconnectionRequest struct{ DCID, SCID uint16 }

func (r DisconnectionRequest) Marshal() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:2], r.DCID)
	binary.LittleEndian.PutUint16(b[2:4], r.SCID)
	return b
}

func DecodeDisconnectionRequest(b []byte) (DisconnectionRequest, error) {
	if len(b) != 4 {
		return DisconnectionRequest{}, &InvalidPDUError{Msg: "Disconnection_Request malformed"}
	}
	return DisconnectionRequest{DCID: binary.LittleEndian.Uint16(b[0:2]), SCID: binary.LittleEndian.Uint16(b[2:4])}, nil
}

type DisconnectionResponse struct{ DCID, SCID uint16 }

func (r DisconnectionResponse) Marshal() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:2], r.DCID)
	binary.LittleEndian.PutUint16(b[2:4], r.SCID)
	return b
}

func DecodeDisconnectionResponse(b []byte) (DisconnectionResponse, error) {
	if len(b) != 4 {
		return DisconnectionResponse{}, &InvalidPDUError{Msg: "Disconnection_Response malformed"}
	}
	return DisconnectionResponse{DCID: binary.LittleEndian.Uint16(b[0:2]), SCID: binary.LittleEndian.Uint16(b[2:4])}, nil
}

// Information Request/Response (§4.3.4).
const (
	InfoTypeConnectionlessMTU       uint16 = 0x0001
	InfoTypeExtendedFeatures        uint16 = 0x0002
	InfoTypeFixedChannelsSupported  uint16 = 0x0003
)

const (
	InfoResultSuccess      uint16 = 0x0000
	InfoResultNotSupported uint16 = 0x0001
)

type InformationRequest struct{ InfoType uint16 }

func (r InformationRequest) Marshal() []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, r.InfoType)
	return b
}

func DecodeInformationRequest(b []byte) (InformationRequest, error) {
	if len(b) != 2 {
		return InformationRequest{}, &InvalidPDUError{Msg: "Information_Request malformed"}
	}
	return InformationRequest{InfoType: binary.LittleEndian.Uint16(b)}, nil
}

type InformationResponse struct {
	InfoType uint16
	Result   uint16
	Data     []byte
}

func (r InformationResponse) Marshal() []byte {
	b := make([]byte, 4+len(r.Data))
	binary.LittleEndian.PutUint16(b[0:2], r.InfoType)
	binary.LittleEndian.PutUint16(b[2:4], r.Result)
	copy(b[4:], r.Data)
	return b
}

func DecodeInformationResponse(b []byte) (InformationResponse, error) {
	if len(b) < 4 {
		return InformationResponse{}, &InvalidPDUError{Msg: "Information_Response truncated"}
	}
	return InformationResponse{
		InfoType: binary.LittleEndian.Uint16(b[0:2]),
		Result:   binary.LittleEndian.Uint16(b[2:4]),
		Data:     append([]byte(nil), b[4:]...),
	}, nil
}

// ConnParamUpdateRequest/Response (§4.3.3, LE signaling channel only).
type ConnParamUpdateRequest struct {
	IntervalMin, IntervalMax, SlaveLatency, TimeoutMultiplier uint16
}

func (r ConnParamUpdateRequest) Marshal() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint16(b[0:2], r.IntervalMin)
	binary.LittleEndian.PutUint16(b[2:4], r.IntervalMax)
	binary.LittleEndian.PutUint16(b[4:6], r.SlaveLatency)
	binary.LittleEndian.PutUint16(b[6:8], r.TimeoutMultiplier)
	return b
}

func DecodeConnParamUpdateRequest(b []byte) (ConnParamUpdateRequest, error) {
	if len(b) != 8 {
		return ConnParamUpdateRequest{}, &InvalidPDUError{Msg: "Connection_Parameter_Update_Request malformed"}
	}
	return ConnParamUpdateRequest{
		IntervalMin:       binary.LittleEndian.Uint16(b[0:2]),
		IntervalMax:       binary.LittleEndian.Uint16(b[2:4]),
		SlaveLatency:      binary.LittleEndian.Uint16(b[4:6]),
		TimeoutMultiplier: binary.LittleEndian.Uint16(b[6:8]),
	}, nil
}

const (
	ConnParamResultAccepted uint16 = 0x0000
	ConnParamResultRejected uint16 = 0x0001
)

type ConnParamUpdateResponse struct{ Result uint16 }

func (r ConnParamUpdateResponse) Marshal() []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, r.Result)
	return b
}

func DecodeConnParamUpdateResponse(b []byte) (ConnParamUpdateResponse, error) {
	if len(b) != 2 {
		return ConnParamUpdateResponse{}, &InvalidPDUError{Msg: "Connection_Parameter_Update_Response malformed"}
	}
	return ConnParamUpdateResponse{Result: binary.LittleEndian.Uint16(b)}, nil
}

// LE Credit-Based Connection Request/Response (§4.3.2).
type LECreditConnRequest struct {
	LEPSM          uint16
	SCID           uint16
	MTU            uint16
	MPS            uint16
	InitialCredits uint16
}

func (r LECreditConnRequest) Marshal() []byte {
	b := make([]byte, 10)
	binary.LittleEndian.PutUint16(b[0:2], r.LEPSM)
	binary.LittleEndian.PutUint16(b[2:4], r.SCID)
	binary.LittleEndian.PutUint16(b[4:6], r.MTU)
	binary.LittleEndian.PutUint16(b[6:8], r.MPS)
	binary.LittleEndian.PutUint16(b[8:10], r.InitialCredits)
	return b
}

func DecodeLECreditConnRequest(b []byte) (LECreditConnRequest, error) {
	if len(b) != 10 {
		return LECreditConnRequest{}, &InvalidPDUError{Msg: "LE_Credit_Based_Connection_Request malformed"}
	}
	return LECreditConnRequest{
		LEPSM:          binary.LittleEndian.Uint16(b[0:2]),
		SCID:           binary.LittleEndian.Uint16(b[2:4]),
		MTU:            binary.LittleEndian.Uint16(b[4:6]),
		MPS:            binary.LittleEndian.Uint16(b[6:8]),
		InitialCredits: binary.LittleEndian.Uint16(b[8:10]),
	}, nil
}

const (
	LECreditResultSuccess          uint16 = 0x0000
	LECreditResultRefusedPSM       uint16 = 0x0002
	LECreditResultRefusedResources uint16 = 0x0004
	LECreditResultRefusedAuth      uint16 = 0x0005
)

type LECreditConnResponse struct {
	DCID           uint16
	MTU            uint16
	MPS            uint16
	InitialCredits uint16
	Result         uint16
}

func (r LECreditConnResponse) Marshal() []byte {
	b := make([]byte, 10)
	binary.LittleEndian.PutUint16(b[0:2], r.DCID)
	binary.LittleEndian.PutUint16(b[2:4], r.MTU)
	binary.LittleEndian.PutUint16(b[4:6], r.MPS)
	binary.LittleEndian.PutUint16(b[6:8], r.InitialCredits)
	binary.LittleEndian.PutUint16(b[8:10], r.Result)
	return b
}

func DecodeLECreditConnResponse(b []byte) (LECreditConnResponse, error) {
	if len(b) != 10 {
		return LECreditConnResponse{}, &InvalidPDUError{Msg: "LE_Credit_Based_Connection_Response malformed"}
	}
	return LECreditConnResponse{
		DCID:           binary.LittleEndian.Uint16(b[0:2]),
		MTU:            binary.LittleEndian.Uint16(b[2:4]),
		MPS:            binary.LittleEndian.Uint16(b[4:6]),
		InitialCredits: binary.LittleEndian.Uint16(b[6:8]),
		Result:         binary.LittleEndian.Uint16(b[8:10]),
	}, nil
}

type LEFlowControlCredit struct {
	CID     uint16
	Credits uint16
}

func (r LEFlowControlCredit) Marshal() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:2], r.CID)
	binary.LittleEndian.PutUint16(b[2:4], r.Credits)
	return b
}

func DecodeLEFlowControlCredit(b []byte) (LEFlowControlCredit, error) {
	if len(b) != 4 {
		return LEFlowControlCredit{}, &InvalidPDUError{Msg: "LE_Flow_Control_Credit malformed"}
	}
	return LEFlowControlCredit{CID: binary.LittleEndian.Uint16(b[0:2]), Credits: binary.LittleEndian.Uint16(b[2:4])}, nil
}

type EchoRequest struct{ Data []byte }

func (r EchoRequest) Marshal() []byte { return r.Data }

type EchoResponse struct{ Data []byte }

func (r EchoResponse) Marshal() []byte { return r.Data }
