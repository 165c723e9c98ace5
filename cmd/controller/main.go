package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/scheerer/bt-screen-colors/internal/config"
	"github.com/scheerer/bt-screen-colors/internal/controller"
	"github.com/scheerer/bt-screen-colors/internal/lights/ble"
	"github.com/scheerer/bt-screen-colors/internal/logging"
	"github.com/scheerer/bt-screen-colors/internal/screen"
	"github.com/scheerer/bt-screen-colors/internal/source"
)

var logger = logging.New("main")

const defaultInterval = 0.1

type options struct {
	Address  string
	Demo     bool
	Interval time.Duration
	Verbose  bool
	Log      bool
}

func main() {
	os.Exit(finish(newApp(run).Run(os.Args)))
}

// finish logs the outcome of run and only then closes the log file, so
// the terminating error lands in LOG_FILE too. It returns the exit code.
func finish(err error) int {
	code := 0
	if err != nil {
		logger.With(zap.Error(err)).Error("Light strip controller stopped")
		code = 1
	}
	_ = logger.Sync()
	if cerr := logging.CloseOutputs(); cerr != nil {
		fmt.Fprintf(os.Stderr, "close log file: %v\n", cerr)
	}
	return code
}

func newApp(action func(ctx context.Context, opts options) error) *cli.App {
	return &cli.App{
		Name:  "controller",
		Usage: "Bluetooth LE light strip color changer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Aliases:  []string{"a"},
				Usage:    "Bluetooth MAC address of the light strip",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    "demo",
				Aliases: []string{"d"},
				Usage:   "cycle through the rainbow instead of following the screen",
			},
			&cli.Float64Flag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "color update interval in seconds",
				Value:   defaultInterval,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log at debug level",
			},
			&cli.BoolFlag{
				Name:    "log",
				Aliases: []string{"l"},
				Usage:   "also write logs to LOG_FILE",
			},
		},
		Action: func(c *cli.Context) error {
			opts, err := parseOptions(c)
			if err != nil {
				return err
			}
			return action(c.Context, opts)
		},
	}
}

func parseOptions(c *cli.Context) (options, error) {
	interval, err := secondsToDuration(c.Float64("interval"))
	if err != nil {
		return options{}, err
	}
	return options{
		Address:  c.String("address"),
		Demo:     c.Bool("demo"),
		Interval: interval,
		Verbose:  c.Bool("verbose"),
		Log:      c.Bool("log"),
	}, nil
}

// longest interval a time.Duration can hold, in seconds
var maxIntervalSeconds = float64(math.MaxInt64) / float64(time.Second)

func secondsToDuration(seconds float64) (time.Duration, error) {
	// the negated form also rejects NaN
	if !(seconds > 0) {
		return 0, fmt.Errorf("--interval must be positive, got %v", seconds)
	}
	if seconds > maxIntervalSeconds {
		return 0, fmt.Errorf("--interval must be at most %.0f seconds, got %v", maxIntervalSeconds, seconds)
	}
	d := time.Duration(seconds * float64(time.Second))
	if d <= 0 {
		return 0, fmt.Errorf("--interval must be at least 1ns, got %v", seconds)
	}
	return d, nil
}

func run(ctx context.Context, opts options) error {
	if opts.Verbose {
		logging.GetLeveler().SetAll(zapcore.DebugLevel)
	}

	cfg, err := config.Parse()
	if err != nil {
		return fmt.Errorf("parse environment variables: %w", err)
	}

	if opts.Log {
		if err := logging.AddOutput(cfg.LogFile); err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
	}

	logger.With(zap.Any("options", opts), zap.Any("config", cfg)).Info("Starting light strip controller")
	if !opts.Demo {
		logger.Info("Adjust COLOR_ALGO to change color algorithm. Valid values are: [DOMINANT, AVERAGE, SQUARED_AVERAGE, MEDIAN, MODE]")
		logger.Info("Adjust PIXEL_GRID_SIZE to increase performance or accuracy. Lower values are slower but more accurate. 1 being the most accurate.")
		logger.Info("Adjust SCREEN_NUMBER to target a different screen. 0 is the primary screen.")
	} else {
		logger.Info("Adjust DEMO_PERIOD to change how long one rainbow cycle takes.")
	}
	logger.Info("Press Ctrl+C to stop")

	src, skipUnchanged, err := newSource(cfg, opts.Demo, time.Now())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter, err := ble.EnableDefault()
	if err != nil {
		return fmt.Errorf("enable BLE adapter: %w", err)
	}

	strip, err := ble.Connect(ctx, adapter, opts.Address, cfg.ConnectTimeout)
	if errors.Is(err, context.Canceled) {
		logger.Info("Interrupted before the light strip was found")
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := strip.Close(); err != nil {
			logger.With(zap.Error(err)).Warn("Failed to disconnect from light strip")
		}
	}()

	ctrl, err := controller.New(controller.Config{
		Interval:       opts.Interval,
		SkipUnchanged:  skipUnchanged,
		PowerOn:        true,
		PowerOffOnExit: cfg.PowerOffOnExit,
	}, src, strip)
	if err != nil {
		return err
	}

	if err := ctrl.Run(ctx); err != nil {
		return err
	}
	logger.Info("Shutting down")
	return nil
}

// newSource picks the color source for the mode. Screen colors skip
// repeated writes, the rainbow writes every tick.
func newSource(cfg config.Config, demo bool, start time.Time) (source.Source, bool, error) {
	if demo {
		logger.Info("Entering DEMO mode...")
		return source.NewRainbow(start, cfg.DemoPeriod), false, nil
	}

	algo, err := screen.ParseAlgorithm(cfg.ColorAlgo, screen.DominantOptions{
		ReduceRatio: cfg.ScreenReduceRatio,
		NumColors:   cfg.ScreenNumColors,
	})
	if err != nil {
		return nil, false, err
	}
	logger.Info("Entering screen color mode...")
	return source.NewScreen(source.ScreenConfig{
		ScreenNumber:       cfg.ScreenNumber,
		PixelGridSize:      cfg.PixelGridSize,
		Algorithm:          algo,
		NormalizeLightness: cfg.NormalizeLightness,
	}, screen.CaptureDisplay), true, nil
}
