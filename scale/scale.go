// Package scale resizes captured frames to the recording resolution.
package scale

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// MaxDimension bounds computed output sizes against pathological window
// geometry reported by a capture backend.
const MaxDimension = 16384

var ErrInvalidDimensions = errors.New("invalid scale dimensions")

// TargetWidth derives the aspect-preserving output width for a source of
// w x h scaled to targetHeight.
func TargetWidth(w, h, targetHeight int) int {
	if h <= 0 {
		return 0
	}
	return int(math.Round(float64(w) * float64(targetHeight) / float64(h)))
}

// ToHeight resamples src to targetHeight, preserving the source aspect
// ratio. One direct Catmull-Rom pass; no intermediate encode or copy.
func ToHeight(src *image.RGBA, targetHeight int) (*image.RGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrInvalidDimensions)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	tw := TargetWidth(w, h, targetHeight)
	if targetHeight <= 0 || targetHeight > MaxDimension || tw <= 0 || tw > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d -> %dx%d", ErrInvalidDimensions, w, h, tw, targetHeight)
	}

	if tw == w && targetHeight == h {
		return src, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, targetHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return dst, nil
}
