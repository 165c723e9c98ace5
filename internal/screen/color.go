package screen

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/EdlinOrg/prominentcolor"
)

const defaultNumColors = 16

// Algorithm reduces a screenshot to one color, sampling every pixelGridSize pixels.
type Algorithm func(img *image.RGBA, pixelGridSize int) (color.RGBA, error)

// DominantOptions controls the DOMINANT algorithm.
type DominantOptions struct {
	// ReduceRatio is the fraction of the screen width kept before clustering.
	ReduceRatio float64
	// NumColors is the number of clusters the image is quantized into.
	NumColors int
}

// ParseAlgorithm returns the algorithm registered under name.
// Valid values are AVERAGE, SQUARED_AVERAGE, MEDIAN, MODE and DOMINANT.
func ParseAlgorithm(name string, opts DominantOptions) (Algorithm, error) {
	switch name {
	case "AVERAGE":
		return infallible(AverageColor), nil
	case "SQUARED_AVERAGE":
		return infallible(SquaredAverageColor), nil
	case "MEDIAN":
		return infallible(MedianColor), nil
	case "MODE":
		return infallible(ModeColor), nil
	case "DOMINANT":
		return Dominant(opts), nil
	default:
		return nil, fmt.Errorf("unknown color algorithm: %v", name)
	}
}

func infallible(f func(*image.RGBA, int) color.RGBA) Algorithm {
	return func(img *image.RGBA, pixelGridSize int) (color.RGBA, error) {
		return f(img, pixelGridSize), nil
	}
}

// samplePoints calls fn for every pixelGridSize-th pixel in both directions.
func samplePoints(img *image.RGBA, pixelGridSize int, fn func(c color.RGBA)) {
	if pixelGridSize < 1 {
		pixelGridSize = 1
	}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y += pixelGridSize {
		for x := bounds.Min.X; x < bounds.Max.X; x += pixelGridSize {
			fn(img.RGBAAt(x, y))
		}
	}
}

func AverageColor(img *image.RGBA, pixelGridSize int) color.RGBA {
	var sumR, sumG, sumB, sumA, totalPixels uint64
	samplePoints(img, pixelGridSize, func(c color.RGBA) {
		totalPixels++
		sumR += uint64(c.R)
		sumG += uint64(c.G)
		sumB += uint64(c.B)
		sumA += uint64(c.A)
	})
	if totalPixels == 0 {
		return color.RGBA{}
	}

	return color.RGBA{
		R: uint8(sumR / totalPixels),
		G: uint8(sumG / totalPixels),
		B: uint8(sumB / totalPixels),
		A: uint8(sumA / totalPixels),
	}
}

// SquaredAverageColor calculates the squared average color of the image
func SquaredAverageColor(img *image.RGBA, pixelGridSize int) color.RGBA {
	var sumR, sumG, sumB, sumA, totalPixels uint64
	samplePoints(img, pixelGridSize, func(c color.RGBA) {
		totalPixels++
		sumR += uint64(c.R) * uint64(c.R)
		sumG += uint64(c.G) * uint64(c.G)
		sumB += uint64(c.B) * uint64(c.B)
		sumA += uint64(c.A) * uint64(c.A)
	})
	if totalPixels == 0 {
		return color.RGBA{}
	}

	root := func(sum uint64) uint8 {
		return uint8(math.Round(math.Sqrt(float64(sum) / float64(totalPixels))))
	}
	return color.RGBA{
		R: root(sumR),
		G: root(sumG),
		B: root(sumB),
		A: root(sumA),
	}
}

// MedianColor calculates the median color of the image
func MedianColor(img *image.RGBA, pixelGridSize int) color.RGBA {
	var reds, greens, blues, alphas []uint8
	samplePoints(img, pixelGridSize, func(c color.RGBA) {
		reds = append(reds, c.R)
		greens = append(greens, c.G)
		blues = append(blues, c.B)
		alphas = append(alphas, c.A)
	})
	if len(reds) == 0 {
		return color.RGBA{}
	}

	median := func(values []uint8) uint8 {
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
		n := len(values)
		if n%2 == 0 {
			return uint8((int(values[n/2-1]) + int(values[n/2])) / 2)
		}
		return values[n/2]
	}

	return color.RGBA{
		R: median(reds),
		G: median(greens),
		B: median(blues),
		A: median(alphas),
	}
}

// ModeColor calculates the mode color of the image. Ties go to the color seen first.
func ModeColor(img *image.RGBA, pixelGridSize int) color.RGBA {
	colorCount := make(map[color.RGBA]int)
	var modeColor color.RGBA
	maxCount := 0
	samplePoints(img, pixelGridSize, func(c color.RGBA) {
		colorCount[c]++
		if colorCount[c] > maxCount {
			maxCount = colorCount[c]
			modeColor = c
		}
	})

	return modeColor
}

// Dominant downsamples the screen and clusters it into opts.NumColors colors,
// returning the center of the most populous cluster. pixelGridSize is unused.
func Dominant(opts DominantOptions) Algorithm {
	k := opts.NumColors
	if k < 1 {
		k = defaultNumColors
	}
	ratio := opts.ReduceRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	return func(img *image.RGBA, _ int) (color.RGBA, error) {
		width := img.Bounds().Dx()
		if width == 0 || img.Bounds().Dy() == 0 {
			return color.RGBA{}, fmt.Errorf("empty image")
		}
		resize := uint(math.Max(1, math.Round(float64(width)*ratio)))

		items, err := prominentcolor.KmeansWithAll(k, img, prominentcolor.ArgumentNoCropping, resize, nil)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("dominant color: %w", err)
		}
		if len(items) == 0 {
			return color.RGBA{}, fmt.Errorf("dominant color: no clusters")
		}

		best := items[0]
		for _, item := range items[1:] {
			if item.Cnt > best.Cnt {
				best = item
			}
		}
		return color.RGBA{
			R: uint8(best.Color.R),
			G: uint8(best.Color.G),
			B: uint8(best.Color.B),
			A: 0xff,
		}, nil
	}
}
