package hci

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSerializeCommandRoundTrip(t *testing.T) {
	pkt := EncodeCommand(Reset{})
	raw := pkt.Serialize()

	got, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, PacketTypeCommand, got.Type)
	require.Equal(t, OpReset, got.Command.Opcode)
	require.Empty(t, got.Command.Parameters)
}

func TestParseSerializeCommandWithParameters(t *testing.T) {
	cmd := WriteLocalName{Name: "greywire"}
	pkt := EncodeCommand(cmd)
	raw := pkt.Serialize()

	got, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, OpWriteLocalName, got.Command.Opcode)
	require.Equal(t, cmd.Marshal(), got.Command.Parameters)
}

func TestParseCommandLengthMismatch(t *testing.T) {
	raw := []byte{byte(PacketTypeCommand), 0x03, 0x0C, 0x05, 0x00, 0x00}
	_, err := Parse(raw)
	require.Error(t, err)
}

func TestParseSerializeEventRoundTrip(t *testing.T) {
	ep := &EventPacket{Code: EventDisconnectionComplete, Parameters: []byte{0x00, 0x01, 0x00, 0x13}}
	pkt := Packet{Type: PacketTypeEvent, Event: ep}
	raw := pkt.Serialize()

	got, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, ep.Code, got.Event.Code)
	require.Equal(t, ep.Parameters, got.Event.Parameters)
}

func TestParseSerializeACLRoundTrip(t *testing.T) {
	pkt := NewACLDataPacket(0x0042, PBFirstFlushable, 0, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	raw := pkt.Serialize()

	got, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0042), got.ACL.ConnectionHandle)
	require.Equal(t, PBFirstFlushable, got.ACL.PBFlag)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, got.ACL.Data)
}

func TestParseACLLengthMismatch(t *testing.T) {
	raw := []byte{byte(PacketTypeACLData), 0x01, 0x00, 0x04, 0x00, 0x01, 0x02}
	_, err := Parse(raw)
	require.Error(t, err)
}

func TestParseEmptyPacket(t *testing.T) {
	_, err := Parse(nil)
	require.Error(t, err)
}

func TestParseUnknownPacketTypePassesThrough(t *testing.T) {
	raw := []byte{0x7F, 0x01, 0x02, 0x03}
	got, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, PacketType(0x7F), got.Type)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, got.Custom)
}

func TestOpCodeOGFOCF(t *testing.T) {
	require.Equal(t, uint8(ogfHostControl), OpReset.OGF())
	require.Equal(t, uint16(0x0003), OpReset.OCF())
	require.Equal(t, "Reset", OpReset.String())
	require.Equal(t, "Unknown", OpCode(0xFFFF).String())
}
