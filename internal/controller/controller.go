package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scheerer/bt-screen-colors/internal/lights"
	"github.com/scheerer/bt-screen-colors/internal/logging"
	"github.com/scheerer/bt-screen-colors/internal/source"
)

var logger = logging.New("controller")

// how often the "cannot keep up" warning may repeat
const overrunWarningInterval = 10 * time.Second

// time allowed for the power off write once the run context is done
const powerOffTimeout = 2 * time.Second

type Config struct {
	Interval time.Duration
	// SkipUnchanged suppresses writes of a color equal to the last one sent.
	SkipUnchanged bool
	// PowerOn sends a power on command before the first color.
	PowerOn bool
	// PowerOffOnExit sends a power off command when Run is canceled.
	PowerOffOnExit bool
}

type Controller struct {
	config Config
	source source.Source
	light  lights.LightService
}

func New(config Config, src source.Source, light lights.LightService) (*Controller, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", config.Interval)
	}
	return &Controller{
		config: config,
		source: src,
		light:  light,
	}, nil
}

// Run updates the light once per interval until ctx is done or a color
// cannot be computed or written. Cancellation is not an error.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.run(ctx); err != nil {
		return err
	}
	if !c.config.PowerOffOnExit {
		return nil
	}
	offCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), powerOffTimeout)
	defer cancel()
	logger.Info("Turning light off")
	if err := c.light.SetPower(offCtx, false); err != nil {
		return fmt.Errorf("power off: %w", err)
	}
	return nil
}

func (c *Controller) run(ctx context.Context) error {
	logger.With(zap.Stringer("interval", c.config.Interval), zap.Bool("skipUnchanged", c.config.SkipUnchanged)).
		Info("Starting color updates")

	if c.config.PowerOn {
		if err := c.light.SetPower(ctx, true); err != nil {
			return ignoreCanceled(ctx, fmt.Errorf("power on: %w", err))
		}
	}

	var (
		last        lights.Color
		written     bool
		lastWarning time.Time
	)
	next := time.Now().Add(c.config.Interval)
	for {
		if err := sleepUntil(ctx, next); err != nil {
			return nil
		}

		startTime := time.Now()
		color, err := c.source.Color(startTime)
		computeDuration := time.Since(startTime)
		if err != nil {
			return ignoreCanceled(ctx, fmt.Errorf("compute color: %w", err))
		}

		var writeDuration time.Duration
		if !c.config.SkipUnchanged || !written || color != last {
			writeStart := time.Now()
			if err := c.light.SetColor(ctx, color); err != nil {
				return ignoreCanceled(ctx, fmt.Errorf("set color %s: %w", color, err))
			}
			writeDuration = time.Since(writeStart)
			last, written = color, true
		}

		totalDuration := time.Since(startTime)
		next = startTime.Add(c.config.Interval)
		if totalDuration > c.config.Interval {
			next = time.Now()
			if time.Since(lastWarning) > overrunWarningInterval {
				logger.With(
					zap.Stringer("computeDuration", computeDuration),
					zap.Stringer("writeDuration", writeDuration),
					zap.Stringer("totalDuration", totalDuration),
					zap.Stringer("interval", c.config.Interval)).
					Warn("Cannot keep up with the update interval. Consider increasing --interval or PIXEL_GRID_SIZE.")
				lastWarning = time.Now()
			}
		}
	}
}

func sleepUntil(ctx context.Context, deadline time.Time) error {
	wait := time.Until(deadline)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func ignoreCanceled(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}
