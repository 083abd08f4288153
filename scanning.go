package bthost

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/greywire/bthost/internal/hci"
)

// ScanType distinguishes passive observation from active scanning, which
// additionally solicits a scan response via a Scan Request (§4.5).
type ScanType uint8

const (
	ScanPassive ScanType = iota
	ScanActive
)

// ScanParameters configures legacy scanning on the 1M PHY. Extended/Coded
// PHY scanning is not wired to a controller command by this codec (no
// example in the corpus exercises LE Set Extended Scan Parameters); legacy
// scanning covers every seed scenario in §8.
type ScanParameters struct {
	Type             ScanType
	IntervalMS       uint16
	WindowMS         uint16
	OwnAddressType   AddressType
	FilterDuplicates bool

	// AccumulatorWindow bounds how long a buffered scannable advertisement
	// waits for its scan response before being emitted alone.
	AccumulatorWindow time.Duration
}

// Advertisement is one fully-assembled report delivered to OnAdvertisement:
// either a non-scannable advertisement emitted immediately, a passive
// scannable report emitted immediately, or an active scannable
// advertisement combined with its scan response.
type Advertisement struct {
	Address      Address
	Connectable  bool
	Scannable    bool
	Data         []byte
	ScanResponse []byte
	RSSI         int8
}

type pendingAdvertisement struct {
	adv   Advertisement
	timer *time.Timer
}

// scanningState implements the AdvertisementAccumulator (§4.5): a
// scannable legacy advertisement is buffered per peer address until its
// scan response arrives, then the two are merged into one Advertisement
// event, mirroring the teacher corpus's per-peer report coalescing.
type scanningState struct {
	d *Device

	mu      sync.Mutex
	params  ScanParameters
	active  bool
	pending map[[6]byte]*pendingAdvertisement

	OnAdvertisement func(Advertisement)
}

func newScanningState(d *Device) *scanningState {
	return &scanningState{d: d, pending: make(map[[6]byte]*pendingAdvertisement)}
}

// StartScanning enables legacy scanning with the given parameters (§4.5).
func (d *Device) StartScanning(ctx context.Context, params ScanParameters) error {
	if params.AccumulatorWindow == 0 {
		params.AccumulatorWindow = 2 * time.Second
	}
	scanType := uint8(0)
	if params.Type == ScanActive {
		scanType = 1
	}
	intervalUnits := msToScanUnits(params.IntervalMS, 0x0010)
	windowUnits := msToScanUnits(params.WindowMS, 0x0010)

	paramsCmd := hci.LESetScanParameters{
		ScanType:     scanType,
		ScanInterval: intervalUnits,
		ScanWindow:   windowUnits,
		OwnAddrType:  uint8(params.OwnAddressType),
	}
	if _, err := d.Host.SendCommand(ctx, paramsCmd); err != nil {
		return fmt.Errorf("bthost: LE Set Scan Parameters: %w", err)
	}

	filterDup := uint8(0)
	if params.FilterDuplicates {
		filterDup = 1
	}
	if _, err := d.Host.SendCommand(ctx, hci.LESetScanEnable{Enable: 1, FilterDuplicates: filterDup}); err != nil {
		return fmt.Errorf("bthost: LE Set Scan Enable: %w", err)
	}

	d.scanning.mu.Lock()
	d.scanning.params = params
	d.scanning.active = true
	d.scanning.mu.Unlock()
	return nil
}

// StopScanning disables scanning and flushes any advertisements still
// waiting on a scan response.
func (d *Device) StopScanning(ctx context.Context) error {
	d.scanning.mu.Lock()
	d.scanning.active = false
	for addr, p := range d.scanning.pending {
		p.timer.Stop()
		delete(d.scanning.pending, addr)
	}
	d.scanning.mu.Unlock()
	_, err := d.Host.SendCommand(ctx, hci.LESetScanEnable{Enable: 0})
	if err != nil {
		return fmt.Errorf("bthost: LE Set Scan Enable: %w", err)
	}
	return nil
}

func msToScanUnits(ms uint16, def uint16) uint16 {
	if ms == 0 {
		return def
	}
	return uint16(float64(ms) / 0.625)
}

// legacy advertising PDU event types, per the Advertising Report subevent.
const (
	advEventTypeADVInd        = 0x00
	advEventTypeADVDirectInd  = 0x01
	advEventTypeADVScanInd    = 0x02
	advEventTypeADVNonconnInd = 0x03
	advEventTypeScanRsp       = 0x04
)

func (d *Device) handleAdvertisingReport(e hci.LEAdvertisingReportEvent) {
	for _, r := range e.Reports {
		d.scanning.ingest(r)
	}
}

// ingest feeds one report through the accumulator: a bare scan response
// completes any pending scannable advertisement from the same address; a
// scannable advertisement under active scanning is buffered to await its
// response (or the accumulator window, whichever comes first); everything
// else is emitted immediately (§4.5).
func (s *scanningState) ingest(r hci.LEAdvertisingReportEntry) {
	addr := r.Addr
	adv := Advertisement{
		Address:     NewAddress(r.Addr[:], AddressType(r.AddrType)),
		Connectable: r.EventType == advEventTypeADVInd || r.EventType == advEventTypeADVDirectInd,
		Scannable:   r.EventType == advEventTypeADVInd || r.EventType == advEventTypeADVScanInd,
		Data:        append([]byte(nil), r.Data...),
		RSSI:        r.RSSI,
	}

	s.mu.Lock()
	active := s.active
	scanType := s.params.Type
	window := s.params.AccumulatorWindow
	callback := s.OnAdvertisement

	if r.EventType == advEventTypeScanRsp {
		pending, ok := s.pending[addr]
		if !ok {
			s.mu.Unlock()
			return
		}
		pending.timer.Stop()
		delete(s.pending, addr)
		pending.adv.ScanResponse = append([]byte(nil), r.Data...)
		s.mu.Unlock()
		if callback != nil {
			callback(pending.adv)
		}
		return
	}

	if !active {
		s.mu.Unlock()
		return
	}

	if adv.Scannable && scanType == ScanActive {
		p := &pendingAdvertisement{adv: adv}
		p.timer = time.AfterFunc(window, func() { s.flush(addr) })
		s.pending[addr] = p
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	if callback != nil {
		callback(adv)
	}
}

func (s *scanningState) flush(addr [6]byte) {
	s.mu.Lock()
	p, ok := s.pending[addr]
	if ok {
		delete(s.pending, addr)
	}
	callback := s.OnAdvertisement
	s.mu.Unlock()
	if ok && callback != nil {
		callback(p.adv)
	}
}
