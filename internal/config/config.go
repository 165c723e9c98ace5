package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env"
)

// Config holds the tunables read from the environment. The command line
// flags of each binary are parsed separately.
type Config struct {
	ScanTimeout        time.Duration `env:"SCAN_TIMEOUT" envDefault:"5s"`
	ConnectTimeout     time.Duration `env:"CONNECT_TIMEOUT" envDefault:"20s"`
	ColorAlgo          string        `env:"COLOR_ALGO" envDefault:"DOMINANT"`
	PixelGridSize      int           `env:"PIXEL_GRID_SIZE" envDefault:"5"`
	ScreenNumber       int           `env:"SCREEN_NUMBER" envDefault:"0"`
	ScreenReduceRatio  float64       `env:"SCREEN_REDUCE_RATIO" envDefault:"0.1"`
	ScreenNumColors    int           `env:"SCREEN_NUM_COLORS" envDefault:"16"`
	NormalizeLightness bool          `env:"NORMALIZE_LIGHTNESS" envDefault:"true"`
	DemoPeriod         time.Duration `env:"DEMO_PERIOD" envDefault:"70s"`
	LogFile            string        `env:"LOG_FILE" envDefault:"bt_lights.log"`
	PowerOffOnExit     bool          `env:"POWER_OFF_ON_EXIT" envDefault:"false"`
}

func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.ScanTimeout <= 0:
		return fmt.Errorf("SCAN_TIMEOUT must be positive, got %s", c.ScanTimeout)
	case c.ConnectTimeout <= 0:
		return fmt.Errorf("CONNECT_TIMEOUT must be positive, got %s", c.ConnectTimeout)
	case c.PixelGridSize < 1:
		return fmt.Errorf("PIXEL_GRID_SIZE must be at least 1, got %d", c.PixelGridSize)
	case c.ScreenNumber < 0:
		return fmt.Errorf("SCREEN_NUMBER must not be negative, got %d", c.ScreenNumber)
	case c.ScreenReduceRatio <= 0 || c.ScreenReduceRatio > 1:
		return fmt.Errorf("SCREEN_REDUCE_RATIO must be in (0, 1], got %v", c.ScreenReduceRatio)
	case c.ScreenNumColors < 1:
		return fmt.Errorf("SCREEN_NUM_COLORS must be at least 1, got %d", c.ScreenNumColors)
	case c.DemoPeriod <= 0:
		return fmt.Errorf("DEMO_PERIOD must be positive, got %s", c.DemoPeriod)
	}
	return nil
}
