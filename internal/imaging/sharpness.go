package imaging

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// DefaultMaxDimension bounds the longer side of the bitmap scored for sharpness.
const DefaultMaxDimension = 512

// toGray converts img to grayscale, downscaling so neither side exceeds maxDim.
func toGray(img image.Image, maxDim int) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim > 0 && (w > maxDim || h > maxDim) {
		if w >= h {
			h = int(math.Max(1, math.Round(float64(h)*float64(maxDim)/float64(w))))
			w = maxDim
		} else {
			w = int(math.Max(1, math.Round(float64(w)*float64(maxDim)/float64(h))))
			h = maxDim
		}
		dst := image.NewGray(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		return dst
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Sharpness returns the variance of the 4-neighbour Laplacian of gray.
// Flat or defocused images score near zero; crisp edges score in the
// hundreds or more.
func Sharpness(gray *image.Gray) float64 {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	at := func(x, y int) float64 {
		return float64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
	}

	var sum, sumSq float64
	n := float64((w - 2) * (h - 2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := 4*at(x, y) - at(x-1, y) - at(x+1, y) - at(x, y-1) - at(x, y+1)
			sum += lap
			sumSq += lap * lap
		}
	}

	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Round(variance*100) / 100
}
