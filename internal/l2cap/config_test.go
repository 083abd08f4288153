package l2cap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConfigOptionsRoundTrip(t *testing.T) {
	opts := []ConfigOption{
		MTUOption(672),
		FCSOption(true),
		RetransmissionFlowControlOption(RetransmissionFlowControlParams{
			Mode:             ERMModeEnhancedRetrans,
			TxWindowSize:     10,
			MaxTransmit:      20,
			RetransTimeoutMS: 2000,
			MonitorTimeoutMS: 12000,
			PeerMPS:          100,
		}),
	}
	var raw []byte
	for _, o := range opts {
		raw = append(raw, o.Marshal()...)
	}

	got, err := ParseConfigOptions(raw)
	require.NoError(t, err)
	require.Len(t, got, 3)

	require.Equal(t, ConfigOptMTU, got[0].Type)
	require.Equal(t, uint16(672), got[0].MTU())

	require.Equal(t, ConfigOptFCS, got[1].Type)
	require.True(t, got[1].FCSEnabled())

	require.Equal(t, ConfigOptRetransmissionFlowCtrl, got[2].Type)
	erm, ok := got[2].RetransmissionFlowControl()
	require.True(t, ok)
	require.Equal(t, uint8(10), erm.TxWindowSize)
	require.Equal(t, uint16(100), erm.PeerMPS)
}

func TestParseConfigOptionsTruncated(t *testing.T) {
	_, err := ParseConfigOptions([]byte{0x01})
	require.Error(t, err)
}

func TestConfigOptionTypeHintBit(t *testing.T) {
	hinted := ConfigOptionType(0x80 | byte(ConfigOptMTU))
	require.True(t, hinted.IsHint())
	require.Equal(t, ConfigOptMTU, hinted.Base())
	require.False(t, ConfigOptMTU.IsHint())
}
