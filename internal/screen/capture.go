package screen

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// CaptureDisplay takes a screenshot of the display with the given index. 0 is the primary screen.
func CaptureDisplay(displayIndex int) (*image.RGBA, error) {
	n := screenshot.NumActiveDisplays()
	if displayIndex < 0 || displayIndex >= n {
		return nil, fmt.Errorf("display %d out of range (%d active)", displayIndex, n)
	}
	img, err := screenshot.CaptureDisplay(displayIndex)
	if err != nil {
		return nil, fmt.Errorf("capture display %d: %w", displayIndex, err)
	}
	return img, nil
}
