package l2cap

import "encoding/binary"

// Configuration option type codes (§4.3.1). The top bit of the type byte
// marks a "hint" option: unknown hints are ignored, unknown non-hints
// fail configuration with ConfigResultUnknownOptions.
type ConfigOptionType uint8

const (
	ConfigOptMTU                    ConfigOptionType = 0x01
	ConfigOptFlushTimeout            ConfigOptionType = 0x02
	ConfigOptQoS                     ConfigOptionType = 0x03
	ConfigOptRetransmissionFlowCtrl  ConfigOptionType = 0x04
	ConfigOptFCS                     ConfigOptionType = 0x05
	ConfigOptExtendedFlowSpec        ConfigOptionType = 0x06
	ConfigOptExtendedWindowSize      ConfigOptionType = 0x07

	configOptHintBit ConfigOptionType = 0x80
)

// IsHint reports whether the top bit marking an optional/hint option is
// set.
func (t ConfigOptionType) IsHint() bool { return t&configOptHintBit != 0 }

// Base returns the type with the hint bit cleared.
func (t ConfigOptionType) Base() ConfigOptionType { return t &^ configOptHintBit }

// ConfigOption is one `[type:1][length:1][value:length]` TLV inside a
// Configure Request/Response.
type ConfigOption struct {
	Type  ConfigOptionType
	Value []byte
}

func (o ConfigOption) Marshal() []byte {
	out := make([]byte, 2+len(o.Value))
	out[0] = byte(o.Type)
	out[1] = byte(len(o.Value))
	copy(out[2:], o.Value)
	return out
}

// ParseConfigOptions splits a run of configuration TLVs.
func ParseConfigOptions(b []byte) ([]ConfigOption, error) {
	var out []ConfigOption
	for len(b) > 0 {
		if len(b) < 2 {
			return nil, &InvalidPDUError{Msg: "config option truncated"}
		}
		n := int(b[1])
		if len(b) < 2+n {
			return nil, &InvalidPDUError{Msg: "config option length mismatch"}
		}
		out = append(out, ConfigOption{Type: ConfigOptionType(b[0]), Value: append([]byte(nil), b[2:2+n]...)})
		b = b[2+n:]
	}
	return out, nil
}

// MTUOption builds an MTU configuration option.
func MTUOption(mtu uint16) ConfigOption {
	v := make([]byte, 2)
	binary.LittleEndian.PutUint16(v, mtu)
	return ConfigOption{Type: ConfigOptMTU, Value: v}
}

// MTU decodes an MTU option's value.
func (o ConfigOption) MTU() uint16 { return binary.LittleEndian.Uint16(o.Value) }

// FlushTimeoutOption builds a FlushTimeout configuration option.
func FlushTimeoutOption(ms uint16) ConfigOption {
	v := make([]byte, 2)
	binary.LittleEndian.PutUint16(v, ms)
	return ConfigOption{Type: ConfigOptFlushTimeout, Value: v}
}

// ERM modes carried in a Retransmission-and-Flow-Control option's first
// byte.
const (
	ERMModeBasic                uint8 = 0x00
	ERMModeRetransmission       uint8 = 0x01
	ERMModeFlowControl          uint8 = 0x02
	ERMModeEnhancedRetrans      uint8 = 0x03
	ERMModeStreaming            uint8 = 0x04
)

// RetransmissionFlowControlParams is the decoded value of a
// Retransmission-and-Flow-Control option: `[mode:1][txWindow:1]
// [maxTransmit:1][retransTimeout:2 LE][monitorTimeout:2 LE][peerMPS:2 LE]`.
type RetransmissionFlowControlParams struct {
	Mode             uint8
	TxWindowSize     uint8
	MaxTransmit      uint8
	RetransTimeoutMS uint16
	MonitorTimeoutMS uint16
	PeerMPS          uint16
}

func RetransmissionFlowControlOption(p RetransmissionFlowControlParams) ConfigOption {
	v := make([]byte, 9)
	v[0] = p.Mode
	v[1] = p.TxWindowSize
	v[2] = p.MaxTransmit
	binary.LittleEndian.PutUint16(v[3:5], p.RetransTimeoutMS)
	binary.LittleEndian.PutUint16(v[5:7], p.MonitorTimeoutMS)
	binary.LittleEndian.PutUint16(v[7:9], p.PeerMPS)
	return ConfigOption{Type: ConfigOptRetransmissionFlowCtrl, Value: v}
}

func (o ConfigOption) RetransmissionFlowControl() (RetransmissionFlowControlParams, bool) {
	if len(o.Value) != 9 {
		return RetransmissionFlowControlParams{}, false
	}
	v := o.Value
	return RetransmissionFlowControlParams{
		Mode:             v[0],
		TxWindowSize:     v[1],
		MaxTransmit:      v[2],
		RetransTimeoutMS: binary.LittleEndian.Uint16(v[3:5]),
		MonitorTimeoutMS: binary.LittleEndian.Uint16(v[5:7]),
		PeerMPS:          binary.LittleEndian.Uint16(v[7:9]),
	}, true
}

// FCSOption's value: 0 = No FCS, 1 = 16-bit FCS.
func FCSOption(enabled bool) ConfigOption {
	v := uint8(0)
	if enabled {
		v = 1
	}
	return ConfigOption{Type: ConfigOptFCS, Value: []byte{v}}
}

func (o ConfigOption) FCSEnabled() bool { return len(o.Value) == 1 && o.Value[0] == 1 }

// QoSParams is the decoded value of a QoS option.
type QoSParams struct {
	Flags             uint8
	ServiceType       uint8
	TokenRate         uint32
	TokenBucketSize   uint32
	PeakBandwidth     uint32
	Latency           uint32
	DelayVariation    uint32
}

func QoSOption(p QoSParams) ConfigOption {
	v := make([]byte, 22)
	v[0] = p.Flags
	v[1] = p.ServiceType
	binary.LittleEndian.PutUint32(v[2:6], p.TokenRate)
	binary.LittleEndian.PutUint32(v[6:10], p.TokenBucketSize)
	binary.LittleEndian.PutUint32(v[10:14], p.PeakBandwidth)
	binary.LittleEndian.PutUint32(v[14:18], p.Latency)
	binary.LittleEndian.PutUint32(v[18:22], p.DelayVariation)
	return ConfigOption{Type: ConfigOptQoS, Value: v}
}

// ExtendedWindowSizeOption carries the enhanced-retransmission window size
// when it exceeds the 6-bit field's range.
func ExtendedWindowSizeOption(size uint16) ConfigOption {
	v := make([]byte, 2)
	binary.LittleEndian.PutUint16(v, size)
	return ConfigOption{Type: ConfigOptExtendedWindowSize, Value: v}
}
