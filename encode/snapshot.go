package encode

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/google/renameio/v2"
)

// WriteSnapshot encodes a single frame as PNG at its native size and
// writes it atomically, so a failed write never leaves a truncated file at
// the destination.
func WriteSnapshot(frame *image.RGBA, path string) error {
	if frame == nil {
		return fmt.Errorf("nil snapshot frame")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
