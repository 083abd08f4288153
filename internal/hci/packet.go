// Package hci implements the binary codec and host-side dispatch for the
// Host-Controller Interface: commands, events, ACL, SCO and ISO packets,
// and the request/response correlation, event listener registry, ACL
// reassembly and flow control built on top of them.
package hci

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// PacketType is the one-octet framing tag that precedes every HCI packet
// on the wire.
type PacketType uint8

const (
	PacketTypeCommand PacketType = 0x01
	PacketTypeACLData  PacketType = 0x02
	PacketTypeSCOData  PacketType = 0x03
	PacketTypeEvent    PacketType = 0x04
	PacketTypeISOData  PacketType = 0x05
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeCommand:
		return "Command"
	case PacketTypeACLData:
		return "ACLData"
	case PacketTypeSCOData:
		return "SCOData"
	case PacketTypeEvent:
		return "Event"
	case PacketTypeISOData:
		return "ISOData"
	default:
		return fmt.Sprintf("PacketType(0x%02X)", uint8(t))
	}
}

// Packet is the tagged union of every HCI packet kind the codec produces.
// Exactly one of the typed fields is non-nil/non-zero, selected by Type.
type Packet struct {
	Type PacketType

	Command *CommandPacket
	Event   *EventPacket
	ACL     *ACLDataPacket
	SCO     *SyncDataPacket
	ISO     *IsoDataPacket

	// Custom carries the raw payload (sans the leading type octet) of a
	// packet whose type octet the codec does not recognize. Unknown event
	// codes and opcodes do not land here: they still parse into Event or
	// Command, so decoding never fails solely because the upper layer
	// doesn't recognize them.
	Custom []byte
}

// log is the package-wide logger; components attach it with a "component"
// field the way the rest of this stack does.
var log = logrus.WithField("component", "hci")

// Parse decodes one complete, already-framed HCI packet (starting with its
// type octet) into a Packet. Unknown opcodes/event codes still decode to a
// best-effort Packet carrying the raw bytes, per spec: logging and
// forwarding must remain possible even for packets the codec doesn't fully
// understand.
func Parse(b []byte) (Packet, error) {
	if len(b) == 0 {
		return Packet{}, &InvalidPacketError{Msg: "empty packet"}
	}
	typ := PacketType(b[0])
	body := b[1:]
	switch typ {
	case PacketTypeCommand:
		cp, err := parseCommand(body)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Type: typ, Command: cp}, nil
	case PacketTypeEvent:
		ep, err := parseEvent(body)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Type: typ, Event: ep}, nil
	case PacketTypeACLData:
		ap, err := parseACL(body)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Type: typ, ACL: ap}, nil
	case PacketTypeSCOData:
		sp, err := parseSCO(body)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Type: typ, SCO: sp}, nil
	case PacketTypeISOData:
		ip, err := parseISO(body)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Type: typ, ISO: ip}, nil
	default:
		log.WithField("type", typ).Warnf("unknown HCI packet type: % x", b)
		return Packet{Type: typ, Custom: body}, nil
	}
}

// Serialize frames a Packet back into wire bytes, leading with its type
// octet.
func (p Packet) Serialize() []byte {
	switch p.Type {
	case PacketTypeCommand:
		return append([]byte{byte(PacketTypeCommand)}, p.Command.marshal()...)
	case PacketTypeEvent:
		return append([]byte{byte(PacketTypeEvent)}, p.Event.marshal()...)
	case PacketTypeACLData:
		return append([]byte{byte(PacketTypeACLData)}, p.ACL.marshal()...)
	case PacketTypeSCOData:
		return append([]byte{byte(PacketTypeSCOData)}, p.SCO.marshal()...)
	case PacketTypeISOData:
		return append([]byte{byte(PacketTypeISOData)}, p.ISO.marshal()...)
	default:
		return append([]byte{byte(p.Type)}, p.Custom...)
	}
}

// InvalidPacketError is returned for a length mismatch between a packet's
// declared size and its actual byte count.
type InvalidPacketError struct{ Msg string }

func (e *InvalidPacketError) Error() string { return "hci: invalid packet: " + e.Msg }
