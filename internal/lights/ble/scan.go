package ble

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/scheerer/bt-screen-colors/internal/logging"
)

var logger = logging.New("ble")

// how often a pending stop is retried while the adapter has not started scanning yet
const stopRetryInterval = 50 * time.Millisecond

type Device struct {
	Address string
	Name    string
	RSSI    int16
}

// advertisement is one scan report, keeping the platform address needed to connect.
type advertisement struct {
	Device
	address bluetooth.Address
}

// scanner reports advertisements until stopScan is called.
type scanner interface {
	scan(report func(advertisement)) error
	stopScan() error
}

type adapterScanner struct {
	adapter *bluetooth.Adapter
}

func (s adapterScanner) scan(report func(advertisement)) error {
	return s.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		report(advertisement{
			Device: Device{
				Address: result.Address.String(),
				Name:    result.LocalName(),
				RSSI:    result.RSSI,
			},
			address: result.Address,
		})
	})
}

func (s adapterScanner) stopScan() error {
	return s.adapter.StopScan()
}

// EnableDefault enables and returns the platform's default BLE adapter.
func EnableDefault() (*bluetooth.Adapter, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, err
	}
	return adapter, nil
}

// Scan listens for advertisements for the given duration and returns every
// device seen, sorted by address.
func Scan(ctx context.Context, adapter *bluetooth.Adapter, timeout time.Duration) ([]Device, error) {
	return scanDevices(ctx, adapterScanner{adapter: adapter}, timeout)
}

func scanDevices(ctx context.Context, s scanner, timeout time.Duration) ([]Device, error) {
	found := newCollector()
	logger.With(zap.Stringer("timeout", timeout)).Info("BLE scan starting...")

	err := scanUntil(ctx, s, timeout, func(adv advertisement) bool {
		found.add(adv.Device)
		return false
	})
	if err != nil {
		return nil, err
	}

	devices := found.devices()
	logger.With(zap.Int("devices", len(devices))).Info("BLE scan complete")
	return devices, nil
}

// scanUntil runs an adapter scan until match reports true, the timeout
// elapses or ctx is done. Only cancellation of ctx itself is an error.
func scanUntil(ctx context.Context, s scanner, timeout time.Duration, match func(advertisement) bool) error {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	matched := make(chan struct{})
	var matchOnce sync.Once
	scanDone := make(chan struct{})

	go func() {
		select {
		case <-scanCtx.Done():
		case <-matched:
		}
		for {
			// StopScan fails until the adapter is actually scanning
			if err := s.stopScan(); err == nil {
				return
			}
			select {
			case <-scanDone:
				return
			case <-time.After(stopRetryInterval):
			}
		}
	}()

	err := s.scan(func(adv advertisement) {
		select {
		case <-matched:
			return
		default:
		}
		if match(adv) {
			matchOnce.Do(func() { close(matched) })
		}
	})
	close(scanDone)
	if err != nil {
		return err
	}
	return ctx.Err()
}

// findAdvertisement scans until a device advertising address shows up.
func findAdvertisement(ctx context.Context, s scanner, address string, timeout time.Duration) (advertisement, error) {
	var (
		mu     sync.Mutex
		target *advertisement
	)
	err := scanUntil(ctx, s, timeout, func(adv advertisement) bool {
		if !sameAddress(adv.Address, address) {
			return false
		}
		mu.Lock()
		target = &adv
		mu.Unlock()
		return true
	})
	if err != nil {
		return advertisement{}, fmt.Errorf("scan for %s: %w", address, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if target == nil {
		return advertisement{}, fmt.Errorf("%w: %s not seen within %s", ErrDeviceNotFound, address, timeout)
	}
	return *target, nil
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

type collector struct {
	mu    sync.Mutex
	seen  map[string]Device
	order []string
}

func newCollector() *collector {
	return &collector{seen: make(map[string]Device)}
}

func (c *collector) add(d Device) {
	key := strings.ToUpper(d.Address)

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.seen[key]
	if !ok {
		c.order = append(c.order, key)
		logger.With(zap.String("address", d.Address), zap.String("name", d.Name), zap.Int16("rssi", d.RSSI)).
			Debug("Found BLE device")
	} else if d.Name == "" {
		// not every advertisement carries the local name
		d.Name = prev.Name
	}
	c.seen[key] = d
}

func (c *collector) devices() []Device {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Device, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.seen[key])
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToUpper(out[i].Address) < strings.ToUpper(out[j].Address)
	})
	return out
}
