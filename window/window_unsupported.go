//go:build !linux && !darwin && !windows

package window

import (
	"fmt"
	"image"
)

func list() ([]Window, error) {
	return nil, fmt.Errorf("%w: no backend for this operating system", ErrNotImplemented)
}

func capture(id uint64) (*image.RGBA, error) {
	_ = id
	return nil, fmt.Errorf("%w: no backend for this operating system", ErrNotImplemented)
}
