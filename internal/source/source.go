package source

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"

	"github.com/scheerer/bt-screen-colors/internal/lights"
	"github.com/scheerer/bt-screen-colors/internal/logging"
	"github.com/scheerer/bt-screen-colors/internal/screen"
)

var logger = logging.New("source")

// DefaultRainbowPeriod is one full hue cycle in demo mode.
const DefaultRainbowPeriod = 70 * time.Second

// Source produces the color to show at a point in time.
type Source interface {
	Color(now time.Time) (lights.Color, error)
}

// Rainbow cycles the hue through the full circle once per period.
type Rainbow struct {
	start  time.Time
	period time.Duration
}

var _ Source = (*Rainbow)(nil)

func NewRainbow(start time.Time, period time.Duration) *Rainbow {
	if period <= 0 {
		period = DefaultRainbowPeriod
	}
	return &Rainbow{start: start, period: period}
}

func (r *Rainbow) Color(now time.Time) (lights.Color, error) {
	return RainbowAt(now.Sub(r.start), r.period), nil
}

// RainbowHue is the hue in degrees [0, 360) after elapsed time.
func RainbowHue(elapsed, period time.Duration) float64 {
	if period <= 0 {
		period = DefaultRainbowPeriod
	}
	frac := math.Mod(float64(elapsed)/float64(period), 1)
	if frac < 0 {
		frac++
	}
	return frac * 360
}

// RainbowAt is the fully saturated color at the rainbow hue for elapsed.
func RainbowAt(elapsed, period time.Duration) lights.Color {
	r, g, b := colorful.Hsv(RainbowHue(elapsed, period), 1, 1).Clamped().RGB255()
	return lights.Color{Red: r, Green: g, Blue: b}
}

// CaptureFunc grabs one screen.
type CaptureFunc func(displayIndex int) (*image.RGBA, error)

type ScreenConfig struct {
	ScreenNumber  int
	PixelGridSize int
	Algorithm     screen.Algorithm
	// NormalizeLightness sets HSL lightness to 0.5 so the strip shows the hue at full brightness.
	NormalizeLightness bool
}

// Screen computes the color of the captured screen.
type Screen struct {
	config  ScreenConfig
	capture CaptureFunc
}

var _ Source = (*Screen)(nil)

func NewScreen(config ScreenConfig, capture CaptureFunc) *Screen {
	if capture == nil {
		capture = screen.CaptureDisplay
	}
	return &Screen{config: config, capture: capture}
}

func (s *Screen) Color(time.Time) (lights.Color, error) {
	img, err := s.capture(s.config.ScreenNumber)
	if err != nil {
		return lights.Color{}, err
	}

	c, err := s.config.Algorithm(img, s.config.PixelGridSize)
	if err != nil {
		return lights.Color{}, fmt.Errorf("compute screen color: %w", err)
	}
	color := lights.Color{Red: c.R, Green: c.G, Blue: c.B}

	if s.config.NormalizeLightness {
		normalized := NormalizeLightness(color)
		logger.With(zap.Stringer("screen", color), zap.Stringer("normalized", normalized)).Debug("Computed screen color")
		return normalized, nil
	}
	logger.With(zap.Stringer("screen", color)).Debug("Computed screen color")
	return color, nil
}

// NormalizeLightness keeps hue and saturation and sets HSL lightness to 0.5.
func NormalizeLightness(c lights.Color) lights.Color {
	h, s, _ := colorful.Color{
		R: float64(c.Red) / 255,
		G: float64(c.Green) / 255,
		B: float64(c.Blue) / 255,
	}.Hsl()
	r, g, b := colorful.Hsl(h, s, 0.5).Clamped().RGB255()
	return lights.Color{Red: r, Green: g, Blue: b}
}
