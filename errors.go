package bthost

import "fmt"

// ControllerError wraps an HCI status code (0x01-0x45) returned by the
// controller in response to a command or surfaced via an event.
type ControllerError struct {
	Code uint8
	Name string
}

func (e *ControllerError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("controller error 0x%02X (%s)", e.Code, e.Name)
	}
	return fmt.Sprintf("controller error 0x%02X", e.Code)
}

// ProtocolError is a peer-side protocol violation: an L2CAP Command
// Reject, an SDP error PDU, or an ATT error response.
type ProtocolError struct {
	Layer string // "l2cap", "sdp", "att"
	Code  uint16
	Msg   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s protocol error 0x%04X: %s", e.Layer, e.Code, e.Msg)
}

// InvalidArgument is a caller-side contract violation: bad PSM, MTU out of
// range, unknown PHY, and similar.
type InvalidArgument struct{ Msg string }

func (e *InvalidArgument) Error() string { return "invalid argument: " + e.Msg }

// InvalidState is an operation issued in the wrong lifecycle state:
// connect-while-connecting, an auth operation with no Authenticator
// configured, and similar.
type InvalidState struct{ Msg string }

func (e *InvalidState) Error() string { return "invalid state: " + e.Msg }

// InvalidPacket is a failed decode of an incoming packet.
type InvalidPacket struct{ Msg string }

func (e *InvalidPacket) Error() string { return "invalid packet: " + e.Msg }

// OutOfResources reports exhaustion of a bounded resource: no free CID, no
// free connection handle, a saturated command pipeline.
type OutOfResources struct{ Msg string }

func (e *OutOfResources) Error() string { return "out of resources: " + e.Msg }

// Timeout reports a command or operation that did not complete in time.
type Timeout struct{ Msg string }

func (e *Timeout) Error() string { return "timeout: " + e.Msg }

// Disconnected reports that the connection underlying a pending operation
// was lost before the operation completed.
type Disconnected struct{ Handle uint16 }

func (e *Disconnected) Error() string {
	return fmt.Sprintf("disconnected: connection 0x%04X", e.Handle)
}
