// Package link implements an in-process controller fabric connecting two
// or more host stacks without real radios, for deterministic testing
// (§4.6).
package link

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "link")

// AddressKey identifies a virtual controller: a 6-byte address plus
// whether it is public (classic/identity) or random (LE).
type AddressKey struct {
	Bytes  [6]byte
	Public bool
}

// Controller is a virtual radio registered with a Simulator. Callers
// implement these to receive simulated inbound traffic; the simulator
// itself only routes.
type Controller interface {
	Address() AddressKey
	ReceiveAdvertising(from AddressKey, data []byte)
	ReceiveACL(from AddressKey, transport string, data []byte)
	ReceiveConnectionComplete(peer AddressKey, accepted bool)
	ReceiveLLControlPDU(from AddressKey, data []byte)
	ReceiveLMPPacket(from AddressKey, data []byte)
}

// ConnectionAcceptTimeoutError is returned by Connect when no peripheral
// with the target address is registered (§4.6).
type ConnectionAcceptTimeoutError struct{ Target AddressKey }

func (e *ConnectionAcceptTimeoutError) Error() string {
	return "link: connection accept timeout: no peripheral at that address"
}

// Simulator is the in-memory fabric: a registry of virtual controllers
// keyed by address, delivering every send asynchronously so senders never
// observe same-call-stack re-entrancy (§4.6).
type Simulator struct {
	mu          sync.RWMutex
	controllers map[AddressKey]Controller

	// ConnectionLatency is the scheduling delay applied to simulated
	// connection completions; zero uses a minimal async hop.
	ConnectionLatency time.Duration
}

// NewSimulator constructs an empty fabric.
func NewSimulator() *Simulator {
	return &Simulator{controllers: make(map[AddressKey]Controller)}
}

// Register adds a virtual controller to the fabric.
func (s *Simulator) Register(c Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controllers[c.Address()] = c
}

// Unregister removes a virtual controller.
func (s *Simulator) Unregister(addr AddressKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.controllers, addr)
}

func (s *Simulator) snapshot() []Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Controller, 0, len(s.controllers))
	for _, c := range s.controllers {
		out = append(out, c)
	}
	return out
}

func (s *Simulator) lookup(addr AddressKey) (Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.controllers[addr]
	return c, ok
}

// SendAdvertisingData delivers an advertising PDU to every other
// registered controller's receive path, asynchronously.
func (s *Simulator) SendAdvertisingData(sender AddressKey, data []byte) {
	id := uuid.New()
	for _, c := range s.snapshot() {
		if c.Address() == sender {
			continue
		}
		c := c
		go func() {
			log.WithField("delivery", id).Trace("delivering simulated advertising PDU")
			c.ReceiveAdvertising(sender, data)
		}()
	}
}

// SendACLData looks up the destination by address and enqueues delivery
// asynchronously; a destination that isn't registered silently drops the
// data, mirroring a real link that simply never completed.
func (s *Simulator) SendACLData(sender, dest AddressKey, transport string, data []byte) {
	c, ok := s.lookup(dest)
	if !ok {
		log.WithField("dest", dest).Debug("simulated ACL send to unknown address, dropping")
		return
	}
	go c.ReceiveACL(sender, transport, data)
}

// Connect schedules a connection completion on both ends. If no
// peripheral at the target address is registered, it returns
// ConnectionAcceptTimeoutError at once and delivers the central's
// failed connection completion after the configured latency.
func (s *Simulator) Connect(central AddressKey, peripheral AddressKey) error {
	c, centralOK := s.lookup(central)
	p, peripheralOK := s.lookup(peripheral)
	if !peripheralOK {
		go func() {
			time.Sleep(s.ConnectionLatency)
			if centralOK {
				c.ReceiveConnectionComplete(peripheral, false)
			}
		}()
		return &ConnectionAcceptTimeoutError{Target: peripheral}
	}
	go func() {
		time.Sleep(s.ConnectionLatency)
		if centralOK {
			c.ReceiveConnectionComplete(peripheral, true)
		}
		p.ReceiveConnectionComplete(central, true)
	}()
	return nil
}

// SendLLControlPDU is the link-layer control pass-through used by LE
// connection parameter updates, PHY updates, etc.
func (s *Simulator) SendLLControlPDU(sender, dest AddressKey, data []byte) {
	c, ok := s.lookup(dest)
	if !ok {
		return
	}
	go c.ReceiveLLControlPDU(sender, data)
}

// SendLMPPacket is the classic link-manager-protocol pass-through.
func (s *Simulator) SendLMPPacket(sender, dest AddressKey, data []byte) {
	c, ok := s.lookup(dest)
	if !ok {
		return
	}
	go c.ReceiveLMPPacket(sender, data)
}
