package bthost

// GATTClient is the external per-connection collaborator that receives
// ATT PDUs sent server→client (§4.5's "odd op codes"). The core never
// interprets ATT payloads beyond this dispatch; the GATT database and
// profile layer are explicit non-goals (§1).
type GATTClient interface {
	HandleATT(connHandle uint16, opcode uint8, payload []byte)
}

// GATTServer is the external shared collaborator that receives ATT PDUs
// client→server (§4.5's "even op codes"), given the originating
// connection as context.
type GATTServer interface {
	HandleATT(connHandle uint16, opcode uint8, payload []byte)
}

// DispatchATT routes one ATT PDU (CID 0x0004) to client or server by the
// parity of its leading opcode byte, per §4.5: "odd op codes are
// server→client and go to the per-connection GATT client; even op codes
// are client→server and go to the Device's shared GATT server."
func DispatchATT(client GATTClient, server GATTServer, connHandle uint16, payload []byte) {
	if len(payload) == 0 {
		return
	}
	opcode := payload[0]
	if opcode%2 == 1 {
		if client != nil {
			client.HandleATT(connHandle, opcode, payload)
		}
		return
	}
	if server != nil {
		server.HandleATT(connHandle, opcode, payload)
	}
}
