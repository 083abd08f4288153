package bthost

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddressReversesIntoLittleEndianStorage(t *testing.T) {
	a, err := ParseAddress("C1:A2:B3:D4:E5:F6", AddressTypePublic)
	require.NoError(t, err)
	require.Equal(t, [6]byte{0xF6, 0xE5, 0xD4, 0xB3, 0xA2, 0xC1}, a.Bytes())
	require.Equal(t, "C1:A2:B3:D4:E5:F6", a.String())
}

func TestParseAddressRejectsWrongPartCount(t *testing.T) {
	_, err := ParseAddress("C1:A2:B3:D4:E5", AddressTypePublic)
	require.Error(t, err)
}

func TestNewAddressPanicsOnWrongLength(t *testing.T) {
	require.Panics(t, func() { NewAddress([]byte{1, 2, 3}, AddressTypePublic) })
}

func TestAddressIsPublicClassifiesPublicAndPublicIdentity(t *testing.T) {
	require.True(t, NewAddress([]byte{1, 2, 3, 4, 5, 6}, AddressTypePublic).IsPublic())
	require.True(t, NewAddress([]byte{1, 2, 3, 4, 5, 6}, AddressTypePublicIdentity).IsPublic())
	require.False(t, NewAddress([]byte{1, 2, 3, 4, 5, 6}, AddressTypeRandom).IsPublic())
}

func TestAddressIsResolvableChecksTopTwoBits(t *testing.T) {
	resolvable := NewAddress([]byte{0, 0, 0, 0, 0, 0x40}, AddressTypeRandom)
	require.True(t, resolvable.IsResolvable())
	require.False(t, resolvable.IsStatic())

	static := NewAddress([]byte{0, 0, 0, 0, 0, 0xC0}, AddressTypeRandom)
	require.True(t, static.IsStatic())
	require.False(t, static.IsResolvable())

	// Wrong address type: the same bit pattern does not count as
	// resolvable/static unless the address is actually Random.
	public := NewAddress([]byte{0, 0, 0, 0, 0, 0x40}, AddressTypePublic)
	require.False(t, public.IsResolvable())
}

func TestAddressIsResolvedChecksIdentityTypes(t *testing.T) {
	require.True(t, NewAddress([]byte{1, 2, 3, 4, 5, 6}, AddressTypePublicIdentity).IsResolved())
	require.True(t, NewAddress([]byte{1, 2, 3, 4, 5, 6}, AddressTypeRandomIdentity).IsResolved())
	require.False(t, NewAddress([]byte{1, 2, 3, 4, 5, 6}, AddressTypePublic).IsResolved())
}

func TestAddressEqualRequiresSamePublicness(t *testing.T) {
	a := NewAddress([]byte{1, 2, 3, 4, 5, 6}, AddressTypePublic)
	b := NewAddress([]byte{1, 2, 3, 4, 5, 6}, AddressTypePublicIdentity)
	c := NewAddress([]byte{1, 2, 3, 4, 5, 6}, AddressTypeRandom)

	require.True(t, a.Equal(b)) // both public-classified, same bytes
	require.False(t, a.Equal(c))
}
