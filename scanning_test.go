package bthost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/greywire/bthost/internal/hci"
)

func newTestScanningState() *scanningState {
	return newScanningState(nil)
}

func TestScanningIngestDropsReportsWhileInactive(t *testing.T) {
	s := newTestScanningState()
	var got []Advertisement
	s.OnAdvertisement = func(a Advertisement) { got = append(got, a) }

	s.ingest(hci.LEAdvertisingReportEntry{EventType: advEventTypeADVNonconnInd, Addr: [6]byte{1}, Data: []byte("x")})
	require.Empty(t, got)
}

func TestScanningIngestEmitsNonScannableImmediately(t *testing.T) {
	s := newTestScanningState()
	s.active = true
	s.params = ScanParameters{Type: ScanPassive}
	var got []Advertisement
	s.OnAdvertisement = func(a Advertisement) { got = append(got, a) }

	s.ingest(hci.LEAdvertisingReportEntry{EventType: advEventTypeADVNonconnInd, Addr: [6]byte{1}, Data: []byte("hi"), RSSI: -40})
	require.Len(t, got, 1)
	require.False(t, got[0].Connectable)
	require.False(t, got[0].Scannable)
	require.Equal(t, []byte("hi"), got[0].Data)
	require.Equal(t, int8(-40), got[0].RSSI)
}

func TestScanningIngestEmitsScannableImmediatelyUnderPassiveScan(t *testing.T) {
	s := newTestScanningState()
	s.active = true
	s.params = ScanParameters{Type: ScanPassive}
	var got []Advertisement
	s.OnAdvertisement = func(a Advertisement) { got = append(got, a) }

	s.ingest(hci.LEAdvertisingReportEntry{EventType: advEventTypeADVInd, Addr: [6]byte{2}, Data: []byte("ad")})
	require.Len(t, got, 1)
	require.True(t, got[0].Scannable)
	require.Empty(t, got[0].ScanResponse)
}

func TestScanningIngestBuffersScannableUnderActiveScanUntilResponse(t *testing.T) {
	s := newTestScanningState()
	s.active = true
	s.params = ScanParameters{Type: ScanActive, AccumulatorWindow: time.Second}
	var got []Advertisement
	s.OnAdvertisement = func(a Advertisement) { got = append(got, a) }

	addr := [6]byte{3}
	s.ingest(hci.LEAdvertisingReportEntry{EventType: advEventTypeADVInd, Addr: addr, Data: []byte("adv")})
	require.Empty(t, got, "scannable advertisement must wait for its scan response")

	s.ingest(hci.LEAdvertisingReportEntry{EventType: advEventTypeScanRsp, Addr: addr, Data: []byte("rsp")})
	require.Len(t, got, 1)
	require.Equal(t, []byte("adv"), got[0].Data)
	require.Equal(t, []byte("rsp"), got[0].ScanResponse)
}

func TestScanningIngestFlushesOnAccumulatorWindowExpiry(t *testing.T) {
	s := newTestScanningState()
	s.active = true
	s.params = ScanParameters{Type: ScanActive, AccumulatorWindow: 10 * time.Millisecond}
	done := make(chan Advertisement, 1)
	s.OnAdvertisement = func(a Advertisement) { done <- a }

	addr := [6]byte{4}
	s.ingest(hci.LEAdvertisingReportEntry{EventType: advEventTypeADVInd, Addr: addr, Data: []byte("adv")})

	select {
	case a := <-done:
		require.Equal(t, []byte("adv"), a.Data)
		require.Empty(t, a.ScanResponse)
	case <-time.After(time.Second):
		t.Fatal("accumulator window did not flush the pending advertisement")
	}
}

func TestScanningIngestScanResponseWithNoPendingEntryIsDropped(t *testing.T) {
	s := newTestScanningState()
	s.active = true
	called := false
	s.OnAdvertisement = func(Advertisement) { called = true }

	s.ingest(hci.LEAdvertisingReportEntry{EventType: advEventTypeScanRsp, Addr: [6]byte{5}, Data: []byte("rsp")})
	require.False(t, called)
}

func TestMsToScanUnitsConvertsOrDefaults(t *testing.T) {
	require.Equal(t, uint16(0x0010), msToScanUnits(0, 0x0010))
	require.Equal(t, uint16(16), msToScanUnits(10, 0x0010))
}
