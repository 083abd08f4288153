package l2cap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC16CheckValue(t *testing.T) {
	// "123456789" is the standard CRC-16/ARC check string; this
	// implementation's table (poly 0xA001, init 0, no xorout) matches
	// that variant exactly.
	require.Equal(t, uint16(0xBB3D), CRC16([]byte("123456789")))
}

func TestCRC16AppendedResidueIsZero(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	crc := CRC16(data)
	withCRC := append(append([]byte(nil), data...), byte(crc), byte(crc>>8))
	require.Equal(t, uint16(0), CRC16(withCRC))
}

func TestParsePDURoundTripNoFCS(t *testing.T) {
	p := PDU{CID: CIDATT, Payload: []byte{0x02, 0x23, 0x00}}
	raw := p.Marshal()

	got, err := ParsePDU(raw, false)
	require.NoError(t, err)
	require.Equal(t, p.CID, got.CID)
	require.Equal(t, p.Payload, got.Payload)
	require.False(t, got.HasFCS)
}

func TestParsePDURoundTripWithFCS(t *testing.T) {
	p := PDU{CID: CIDDynamicStart, Payload: []byte{0xAA, 0xBB, 0xCC}, HasFCS: true}
	raw := p.Marshal()

	got, err := ParsePDU(raw, true)
	require.NoError(t, err)
	require.Equal(t, p.CID, got.CID)
	require.Equal(t, p.Payload, got.Payload)
	require.True(t, got.HasFCS)
}

func TestParsePDUFCSMismatch(t *testing.T) {
	p := PDU{CID: CIDDynamicStart, Payload: []byte{0xAA, 0xBB, 0xCC}, HasFCS: true}
	raw := p.Marshal()
	raw[len(raw)-1] ^= 0xFF // corrupt the trailing FCS byte

	_, err := ParsePDU(raw, true)
	require.Error(t, err)
}

func TestParsePDULengthMismatch(t *testing.T) {
	raw := []byte{0x05, 0x00, 0x04, 0x00, 0x01, 0x02}
	_, err := ParsePDU(raw, false)
	require.Error(t, err)
}

func TestParsePDUHeaderTruncated(t *testing.T) {
	_, err := ParsePDU([]byte{0x01, 0x02}, false)
	require.Error(t, err)
}
