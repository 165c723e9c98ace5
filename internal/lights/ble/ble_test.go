package ble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scheerer/bt-screen-colors/internal/lights"
)

func TestColorPacket(t *testing.T) {
	tests := []struct {
		color lights.Color
		want  []byte
	}{
		{lights.Color{Red: 255}, []byte{0x56, 0xff, 0x00, 0x00, 0x00, 0xf0, 0xaa}},
		{lights.Color{Green: 255}, []byte{0x56, 0x00, 0xff, 0x00, 0x00, 0xf0, 0xaa}},
		{lights.Color{Blue: 255}, []byte{0x56, 0x00, 0x00, 0xff, 0x00, 0xf0, 0xaa}},
		{lights.Color{Red: 0x12, Green: 0x34, Blue: 0x56}, []byte{0x56, 0x12, 0x34, 0x56, 0x00, 0xf0, 0xaa}},
	}
	for _, tt := range tests {
		t.Run(tt.color.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ColorPacket(tt.color))
		})
	}
}

func TestColorPacketFreshSlice(t *testing.T) {
	p := ColorPacket(lights.Color{Red: 1, Green: 2, Blue: 3})
	p[0] = 0
	assert.Equal(t, byte(0x56), ColorPacket(lights.Color{})[0])
}

func TestPowerPacket(t *testing.T) {
	assert.Equal(t, []byte{0xcc, 0x23, 0x33}, PowerPacket(true))
	assert.Equal(t, []byte{0xcc, 0x24, 0x33}, PowerPacket(false))
}

func TestControlCharacteristicUUID(t *testing.T) {
	assert.Equal(t, ControlCharacteristicUUID, controlCharacteristic.String())
}

type fakeChar struct {
	writes [][]byte
	err    error
	short  bool
}

func (f *fakeChar) WriteWithoutResponse(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	if f.short {
		return len(p) - 1, nil
	}
	return len(p), nil
}

func TestStripWrites(t *testing.T) {
	char := &fakeChar{}
	disconnects := 0
	strip := newStrip("AA:BB:CC:DD:EE:FF", char, func() error {
		disconnects++
		return nil
	})

	ctx := context.Background()
	require.NoError(t, strip.SetPower(ctx, true))
	require.NoError(t, strip.SetColor(ctx, lights.Color{Red: 255}))

	assert.Equal(t, [][]byte{
		{0xcc, 0x23, 0x33},
		{0x56, 0xff, 0x00, 0x00, 0x00, 0xf0, 0xaa},
	}, char.writes)

	require.NoError(t, strip.Close())
	require.NoError(t, strip.Close())
	assert.Equal(t, 1, disconnects)
}

func TestStripWriteErrors(t *testing.T) {
	boom := errors.New("boom")
	strip := newStrip("AA:BB:CC:DD:EE:FF", &fakeChar{err: boom}, nil)
	err := strip.SetColor(context.Background(), lights.Color{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "AA:BB:CC:DD:EE:FF")

	strip = newStrip("AA:BB:CC:DD:EE:FF", &fakeChar{short: true}, nil)
	assert.ErrorContains(t, strip.SetColor(context.Background(), lights.Color{}), "short write")

	char := &fakeChar{}
	strip = newStrip("AA:BB:CC:DD:EE:FF", char, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, strip.SetColor(ctx, lights.Color{}), context.Canceled)
	assert.Empty(t, char.writes)
	assert.NoError(t, strip.Close())
}

// fakeScanner reports its advertisements, then blocks in scan until
// stopScan is called, like the real adapters.
type fakeScanner struct {
	mu       sync.Mutex
	scanning bool
	stop     chan struct{}
	stops    int
	scanErr  error
	reports  []advertisement
}

func newFakeScanner(reports ...advertisement) *fakeScanner {
	return &fakeScanner{stop: make(chan struct{}), reports: reports}
}

func (f *fakeScanner) scan(report func(advertisement)) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	f.mu.Lock()
	f.scanning = true
	f.mu.Unlock()
	for _, a := range f.reports {
		report(a)
	}
	<-f.stop
	return nil
}

func (f *fakeScanner) stopScan() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.scanning {
		return errors.New("not scanning")
	}
	f.scanning = false
	f.stops++
	close(f.stop)
	return nil
}

func adv(address, name string, rssi int16) advertisement {
	return advertisement{Device: Device{Address: address, Name: name, RSSI: rssi}}
}

func TestScanStopsAfterTimeout(t *testing.T) {
	s := newFakeScanner()
	start := time.Now()
	devices, err := scanDevices(context.Background(), s, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, devices)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 1, s.stops)
}

func TestScanCollectsDevices(t *testing.T) {
	s := newFakeScanner(
		adv("BE:28:F1:00:00:02", "ELK-BLEDOM", -60),
		adv("be:28:f1:00:00:01", "", -75),
		adv("BE:28:F1:00:00:02", "", -58),
		adv("BE:28:F1:00:00:01", "QHM-T095", -70),
	)
	devices, err := scanDevices(context.Background(), s, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []Device{
		{Address: "BE:28:F1:00:00:01", Name: "QHM-T095", RSSI: -70},
		{Address: "BE:28:F1:00:00:02", Name: "ELK-BLEDOM", RSSI: -58},
	}, devices)
	assert.Equal(t, 1, s.stops)
}

func TestScanZeroTimeout(t *testing.T) {
	// the stop request arrives before the scan has started and must be retried
	s := newFakeScanner()
	_, err := scanDevices(context.Background(), s, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, s.stops)
}

func TestScanCanceled(t *testing.T) {
	s := newFakeScanner()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := scanDevices(ctx, s, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanError(t *testing.T) {
	boom := errors.New("adapter off")
	s := newFakeScanner()
	s.scanErr = boom
	_, err := scanDevices(context.Background(), s, time.Second)
	assert.ErrorIs(t, err, boom)
}

func TestFindAdvertisementStopsOnMatch(t *testing.T) {
	s := newFakeScanner(
		adv("AA:00:00:00:00:01", "other", -80),
		adv("be:28:f1:00:11:22", "ELK-BLEDOM", -55),
		adv("be:28:f1:00:11:22", "ELK-BLEDOM", -50),
	)
	start := time.Now()
	found, err := findAdvertisement(context.Background(), s, "BE:28:F1:00:11:22", time.Minute)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "a match must end the scan before the timeout")
	assert.Equal(t, 1, s.stops)

	// later reports of the same device do not replace the first match
	assert.Equal(t, Device{Address: "be:28:f1:00:11:22", Name: "ELK-BLEDOM", RSSI: -55}, found.Device)
}

func TestFindAdvertisementNotFound(t *testing.T) {
	s := newFakeScanner(adv("AA:00:00:00:00:01", "other", -80))
	_, err := findAdvertisement(context.Background(), s, "BE:28:F1:00:11:22", 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.ErrorContains(t, err, "BE:28:F1:00:11:22")
	assert.Equal(t, 1, s.stops)
}

func TestFindAdvertisementCanceled(t *testing.T) {
	s := newFakeScanner()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := findAdvertisement(ctx, s, "BE:28:F1:00:11:22", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrDeviceNotFound)
}

func TestCollector(t *testing.T) {
	c := newCollector()
	c.add(Device{Address: "BB:00:00:00:00:02", Name: "ELK-BLEDOM", RSSI: -60})
	c.add(Device{Address: "aa:00:00:00:00:01", Name: "", RSSI: -70})
	c.add(Device{Address: "AA:00:00:00:00:01", Name: "QHM-T095", RSSI: -65})
	c.add(Device{Address: "BB:00:00:00:00:02", Name: "", RSSI: -55})

	assert.Equal(t, []Device{
		{Address: "AA:00:00:00:00:01", Name: "QHM-T095", RSSI: -65},
		{Address: "BB:00:00:00:00:02", Name: "ELK-BLEDOM", RSSI: -55},
	}, c.devices())
}

func TestSameAddress(t *testing.T) {
	assert.True(t, sameAddress("aa:bb:cc:dd:ee:ff", "AA:BB:CC:DD:EE:FF"))
	assert.True(t, sameAddress(" AA:BB:CC:DD:EE:FF", "AA:BB:CC:DD:EE:FF "))
	assert.False(t, sameAddress("AA:BB:CC:DD:EE:FF", "AA:BB:CC:DD:EE:FE"))
}
