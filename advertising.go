package bthost

import (
	"context"
	"fmt"
	"sync"

	"github.com/greywire/bthost/internal/hci"
)

// AdvertisingType selects the legacy PDU kind an advertising set uses
// (§4.5). Data and scan-response constraints below mirror which of these
// carry a payload.
type AdvertisingType uint8

const (
	UndirectedConnectableScannable AdvertisingType = iota
	DirectedConnectableHighDuty
	UndirectedScannable
	Undirected
	DirectedConnectableLowDuty
)

func (t AdvertisingType) hciAdvType() uint8 {
	switch t {
	case DirectedConnectableHighDuty:
		return 0x01
	case UndirectedScannable:
		return 0x02
	case Undirected:
		return 0x03
	case DirectedConnectableLowDuty:
		return 0x04
	default:
		return 0x00
	}
}

func (t AdvertisingType) carriesData() bool {
	return t == UndirectedConnectableScannable || t == UndirectedScannable || t == Undirected
}

func (t AdvertisingType) scannable() bool {
	return t == UndirectedConnectableScannable || t == UndirectedScannable
}

// AdvertisingParameters configures one advertising set (§4.5).
type AdvertisingParameters struct {
	Type             AdvertisingType
	IntervalMS       uint16
	OwnAddressType   AddressType
	DirectAddress    Address
	ChannelMap       uint8
	Data             []byte
	ScanResponseData []byte
	// AutoRestart re-enables advertising with the same parameters after a
	// peripheral-role disconnection (§4.5).
	AutoRestart bool
}

type advertisingState struct {
	d  *Device
	mu sync.Mutex

	active bool
	params AdvertisingParameters
}

func newAdvertisingState(d *Device) *advertisingState {
	return &advertisingState{d: d}
}

// StartAdvertising applies advertising parameters and data, then enables
// advertising. Setting advertising data is rejected for types that carry
// none, and scan-response data for non-scannable types (§4.5).
func (d *Device) StartAdvertising(ctx context.Context, params AdvertisingParameters) error {
	if len(params.Data) > 0 && !params.Type.carriesData() {
		return &InvalidArgument{Msg: "advertising data is not valid for this advertising type"}
	}
	if len(params.ScanResponseData) > 0 && !params.Type.scannable() {
		return &InvalidArgument{Msg: "scan-response data is not valid for a non-scannable advertising type"}
	}

	intervalUnits := uint16(float64(params.IntervalMS) / 0.625)
	if intervalUnits == 0 {
		intervalUnits = 0x0800 // 1.28s, the controller's conventional default
	}

	advCmd := hci.LESetAdvertisingParameters{
		IntervalMin:    intervalUnits,
		IntervalMax:    intervalUnits,
		AdvType:        params.Type.hciAdvType(),
		OwnAddrType:    uint8(params.OwnAddressType),
		DirectAddrType: uint8(params.DirectAddress.Type()),
		DirectAddr:     params.DirectAddress.Bytes(),
		ChannelMap:     orDefault8(params.ChannelMap, 0x07),
	}
	if _, err := d.Host.SendCommand(ctx, advCmd); err != nil {
		return fmt.Errorf("bthost: LE Set Advertising Parameters: %w", err)
	}

	if params.Type.carriesData() {
		if err := d.setAdvertisingData(ctx, params.Data); err != nil {
			return err
		}
	}
	if params.Type.scannable() {
		if err := d.setScanResponseData(ctx, params.ScanResponseData); err != nil {
			return err
		}
	}

	if _, err := d.Host.SendCommand(ctx, hci.LESetAdvertiseEnable{Enable: 1}); err != nil {
		return fmt.Errorf("bthost: LE Set Advertise Enable: %w", err)
	}

	d.advertising.mu.Lock()
	d.advertising.active = true
	d.advertising.params = params
	d.advertising.mu.Unlock()
	return nil
}

func (d *Device) setAdvertisingData(ctx context.Context, data []byte) error {
	if len(data) > 31 {
		return &InvalidArgument{Msg: "advertising data exceeds 31 bytes"}
	}
	var buf [31]byte
	copy(buf[:], data)
	_, err := d.Host.SendCommand(ctx, hci.LESetAdvertisingData{Data: buf, Length: uint8(len(data))})
	if err != nil {
		return fmt.Errorf("bthost: LE Set Advertising Data: %w", err)
	}
	return nil
}

func (d *Device) setScanResponseData(ctx context.Context, data []byte) error {
	if len(data) > 31 {
		return &InvalidArgument{Msg: "scan-response data exceeds 31 bytes"}
	}
	var buf [31]byte
	copy(buf[:], data)
	_, err := d.Host.SendCommand(ctx, hci.LESetScanResponseData{Data: buf, Length: uint8(len(data))})
	if err != nil {
		return fmt.Errorf("bthost: LE Set Scan Response Data: %w", err)
	}
	return nil
}

// StopAdvertising disables advertising without clearing the stored
// parameters, so a subsequent auto_restart still has something to reuse.
func (d *Device) StopAdvertising(ctx context.Context) error {
	d.advertising.mu.Lock()
	d.advertising.active = false
	d.advertising.mu.Unlock()
	_, err := d.Host.SendCommand(ctx, hci.LESetAdvertiseEnable{Enable: 0})
	if err != nil {
		return fmt.Errorf("bthost: LE Set Advertise Enable: %w", err)
	}
	return nil
}

// onPeripheralDisconnect re-enables advertising with the previously
// applied parameters when auto_restart is set (§4.5). It runs on the
// Host's event-dispatch goroutine, so the actual restart is issued in the
// background to avoid blocking disconnection-event delivery.
func (a *advertisingState) onPeripheralDisconnect() {
	a.mu.Lock()
	params := a.params
	a.mu.Unlock()
	if !params.AutoRestart {
		return
	}
	go func() {
		if err := a.d.StartAdvertising(context.Background(), params); err != nil {
			log.WithError(err).Warn("auto-restart advertising failed")
		}
	}()
}

func orDefault8(v, def uint8) uint8 {
	if v == 0 {
		return def
	}
	return v
}
