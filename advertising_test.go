package bthost

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartAdvertisingRejectsDataForNonDataCarryingType(t *testing.T) {
	d, _ := newTestDevice(t)
	err := d.StartAdvertising(context.Background(), AdvertisingParameters{
		Type: DirectedConnectableHighDuty,
		Data: []byte{0x02, 0x01, 0x06},
	})
	var invalid *InvalidArgument
	require.ErrorAs(t, err, &invalid)
}

func TestStartAdvertisingRejectsScanResponseForNonScannableType(t *testing.T) {
	d, _ := newTestDevice(t)
	err := d.StartAdvertising(context.Background(), AdvertisingParameters{
		Type:             Undirected,
		ScanResponseData: []byte{0x05, 0x09, 'h', 'e', 'l', 'l'},
	})
	var invalid *InvalidArgument
	require.ErrorAs(t, err, &invalid)
}

func TestStartAdvertisingAppliesParamsAndEnablesAdvertising(t *testing.T) {
	d, tr := newTestDevice(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.PowerOn(ctx))

	require.NoError(t, d.StartAdvertising(ctx, AdvertisingParameters{
		Type:             UndirectedConnectableScannable,
		Data:             []byte{0x02, 0x01, 0x06},
		ScanResponseData: []byte{0x03, 0x09, 'h', 'i'},
	}))

	tr.mu.Lock()
	n := len(tr.outbox)
	tr.mu.Unlock()
	require.Greater(t, n, 0)

	d.advertising.mu.Lock()
	defer d.advertising.mu.Unlock()
	require.True(t, d.advertising.active)
}

func TestSetAdvertisingDataRejectsOversizedPayload(t *testing.T) {
	d, _ := newTestDevice(t)
	err := d.setAdvertisingData(context.Background(), make([]byte, 32))
	var invalid *InvalidArgument
	require.ErrorAs(t, err, &invalid)
}

func TestStopAdvertisingClearsActiveButKeepsParamsForAutoRestart(t *testing.T) {
	d, _ := newTestDevice(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.PowerOn(ctx))
	require.NoError(t, d.StartAdvertising(ctx, AdvertisingParameters{Type: Undirected, AutoRestart: true}))

	require.NoError(t, d.StopAdvertising(ctx))

	d.advertising.mu.Lock()
	defer d.advertising.mu.Unlock()
	require.False(t, d.advertising.active)
	require.True(t, d.advertising.params.AutoRestart)
}
