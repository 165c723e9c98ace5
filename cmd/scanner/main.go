package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/scheerer/bt-screen-colors/internal/config"
	"github.com/scheerer/bt-screen-colors/internal/lights/ble"
	"github.com/scheerer/bt-screen-colors/internal/logging"
)

var logger = logging.New("scanner")

func main() {
	// stdout carries only the device list
	logging.UseStderr()
	defer logger.Sync()

	cfg, err := config.Parse()
	if err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to parse environment variables")
	}

	logger.With(zap.Stringer("SCAN_TIMEOUT", cfg.ScanTimeout)).Info("Scanning for BLE devices")
	logger.Info("Adjust SCAN_TIMEOUT to listen for advertisements longer.")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter, err := ble.EnableDefault()
	if err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to enable BLE adapter")
	}

	scan := func(ctx context.Context) ([]ble.Device, error) {
		return ble.Scan(ctx, adapter, cfg.ScanTimeout)
	}
	if err := run(ctx, scan, os.Stdout); err != nil {
		logger.With(zap.Error(err)).Fatal("BLE scan failed")
	}
}

// run prints the scan results to w. An interrupted scan prints nothing
// and is not an error.
func run(ctx context.Context, scan func(context.Context) ([]ble.Device, error), w io.Writer) error {
	devices, err := scan(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("Scan interrupted")
		return nil
	}
	if err != nil {
		return err
	}
	printDevices(w, devices)
	return nil
}

func printDevices(w io.Writer, devices []ble.Device) {
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unknown)"
		}
		fmt.Fprintf(w, "%s %s\n", d.Address, name)
	}
}
