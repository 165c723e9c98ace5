package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/scheerer/bt-screen-colors/internal/lights"
)

var (
	ErrDeviceNotFound         = errors.New("ble: device not found")
	ErrCharacteristicNotFound = errors.New("ble: control characteristic not found")
)

// characteristic is satisfied by bluetooth.DeviceCharacteristic.
type characteristic interface {
	WriteWithoutResponse(p []byte) (n int, err error)
}

// Strip is a connected light strip. Every command is a single write to the
// control characteristic; nothing is retried.
type Strip struct {
	address    string
	char       characteristic
	disconnect func() error
	closeOnce  sync.Once
	closeErr   error
}

var _ lights.LightService = (*Strip)(nil)

func newStrip(address string, char characteristic, disconnect func() error) *Strip {
	return &Strip{
		address:    address,
		char:       char,
		disconnect: disconnect,
	}
}

// Connect scans for the strip advertising address, connects to it and
// locates its control characteristic.
func Connect(ctx context.Context, adapter *bluetooth.Adapter, address string, timeout time.Duration) (*Strip, error) {
	logger.With(zap.String("address", address), zap.Stringer("timeout", timeout)).Info("Looking for light strip...")

	found, err := findAdvertisement(ctx, adapterScanner{adapter: adapter}, address, timeout)
	if err != nil {
		return nil, err
	}

	logger.With(zap.String("address", address), zap.String("name", found.Name), zap.Int16("rssi", found.RSSI)).
		Info("Connecting to light strip")
	device, err := adapter.Connect(found.address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", address, err)
	}

	char, err := findControlCharacteristic(device)
	if err != nil {
		_ = device.Disconnect()
		return nil, fmt.Errorf("%s: %w", address, err)
	}

	logger.With(zap.String("address", address)).Info("Connected")
	return newStrip(address, char, device.Disconnect), nil
}

func findControlCharacteristic(device bluetooth.Device) (bluetooth.DeviceCharacteristic, error) {
	services, err := device.DiscoverServices(nil)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("discover services: %w", err)
	}

	for _, service := range services {
		chars, err := service.DiscoverCharacteristics([]bluetooth.UUID{controlCharacteristic})
		if err != nil || len(chars) == 0 {
			// the filter is an error on services that lack the characteristic
			continue
		}
		logger.With(zap.String("service", service.UUID().String()), zap.String("characteristic", chars[0].UUID().String())).
			Debug("Found control characteristic")
		return chars[0], nil
	}
	return bluetooth.DeviceCharacteristic{}, ErrCharacteristicNotFound
}

func (s *Strip) SetPower(ctx context.Context, on bool) error {
	state := "off"
	if on {
		state = "on"
	}
	logger.With(zap.String("address", s.address)).Infof("Turning light strip %s", state)
	return s.write(ctx, PowerPacket(on))
}

func (s *Strip) SetColor(ctx context.Context, color lights.Color) error {
	logger.With(zap.String("address", s.address), zap.Stringer("color", color)).Debug("Changing light strip color")
	return s.write(ctx, ColorPacket(color))
}

func (s *Strip) write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := s.char.WriteWithoutResponse(p)
	if err != nil {
		return fmt.Errorf("write to %s: %w", s.address, err)
	}
	if n != len(p) {
		return fmt.Errorf("write to %s: short write (%d of %d bytes)", s.address, n, len(p))
	}
	return nil
}

// Close disconnects from the strip. Safe to call more than once.
func (s *Strip) Close() error {
	s.closeOnce.Do(func() {
		logger.With(zap.String("address", s.address)).Info("Disconnecting from light strip")
		if s.disconnect != nil {
			s.closeErr = s.disconnect()
		}
	})
	return s.closeErr
}
