package lights

import (
	"context"
	"fmt"
)

type Color struct {
	Red   uint8
	Green uint8
	Blue  uint8
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.Red, c.Green, c.Blue)
}

// LightService is a connected light that accepts color and power commands.
type LightService interface {
	SetPower(ctx context.Context, on bool) error
	SetColor(ctx context.Context, color Color) error
	Close() error
}
