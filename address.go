package bthost

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressType classifies a Bluetooth device address. The numeric values
// follow the HCI "own/peer address type" convention used throughout the
// Core Spec (0 = public, 1 = random); the identity/anonymous variants are
// host-side classifications layered on top once an address has been
// resolved or is known not to resolve.
type AddressType uint8

const (
	AddressTypePublic AddressType = iota
	AddressTypeRandom
	AddressTypePublicIdentity
	AddressTypeRandomIdentity
	AddressTypeAnonymous
	AddressTypeUnresolved
)

func (t AddressType) String() string {
	switch t {
	case AddressTypePublic:
		return "Public"
	case AddressTypeRandom:
		return "Random"
	case AddressTypePublicIdentity:
		return "PublicIdentity"
	case AddressTypeRandomIdentity:
		return "RandomIdentity"
	case AddressTypeAnonymous:
		return "Anonymous"
	case AddressTypeUnresolved:
		return "Unresolved"
	default:
		return fmt.Sprintf("AddressType(%d)", uint8(t))
	}
}

// Address is a 6-byte little-endian Bluetooth device address plus its type.
// The byte order matches the wire order used by HCI commands and events
// (least significant octet first).
type Address struct {
	bytes [6]byte
	typ   AddressType
}

// NewAddress builds an Address from 6 little-endian bytes. It panics if b
// is not exactly 6 bytes long, since every call site constructs this from a
// fixed-width wire field.
func NewAddress(b []byte, typ AddressType) Address {
	if len(b) != 6 {
		panic(fmt.Sprintf("bthost: address must be 6 bytes, got %d", len(b)))
	}
	var a Address
	copy(a.bytes[:], b)
	a.typ = typ
	return a
}

// ParseAddress parses a colon-separated BD_ADDR string such as
// "C1:A2:B3:D4:E5:F6" in display order (most significant octet first) and
// reverses it into the internal little-endian representation.
func ParseAddress(s string, typ AddressType) (Address, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return Address{}, fmt.Errorf("bthost: invalid address %q", s)
	}
	var a Address
	for i := 0; i < 6; i++ {
		b, err := hex.DecodeString(parts[i])
		if err != nil || len(b) != 1 {
			return Address{}, fmt.Errorf("bthost: invalid address %q", s)
		}
		// parts are MSB-first on the wire of a string; reverse into LE storage.
		a.bytes[5-i] = b[0]
	}
	a.typ = typ
	return a, nil
}

// Bytes returns the 6 little-endian address bytes.
func (a Address) Bytes() [6]byte { return a.bytes }

// Type reports the address's classification.
func (a Address) Type() AddressType { return a.typ }

// String renders the address in conventional MSB-first colon-separated form.
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		a.bytes[5], a.bytes[4], a.bytes[3], a.bytes[2], a.bytes[1], a.bytes[0])
}

// IsPublic reports whether the address is a public (or resolved public
// identity) address.
func (a Address) IsPublic() bool {
	return a.typ == AddressTypePublic || a.typ == AddressTypePublicIdentity
}

// IsResolvable reports whether the address is a Resolvable Private
// Address: a random address whose top two bits of the most significant
// octet are 01.
func (a Address) IsResolvable() bool {
	if a.typ != AddressTypeRandom && a.typ != AddressTypeRandomIdentity {
		return false
	}
	return a.bytes[5]&0xC0 == 0x40
}

// IsStatic reports whether the address is a static random address: a
// random address whose top two bits of the most significant octet are 11.
func (a Address) IsStatic() bool {
	if a.typ != AddressTypeRandom && a.typ != AddressTypeRandomIdentity {
		return false
	}
	return a.bytes[5]&0xC0 == 0xC0
}

// IsResolved reports whether this address represents an identity address
// resolved from an RPA.
func (a Address) IsResolved() bool {
	return a.typ == AddressTypePublicIdentity || a.typ == AddressTypeRandomIdentity
}

// Equal compares both the address bytes and public-ness, as required by
// the data model: two addresses with identical bytes but different
// public/random classification are not equal.
func (a Address) Equal(o Address) bool {
	return a.bytes == o.bytes && a.IsPublic() == o.IsPublic()
}
