// Package outpath resolves and validates the destination file for a
// capture request.
package outpath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Mode selects what a capture invocation produces. The two modes carry
// different containers and different default directories; everything else
// about path handling is shared.
type Mode int

const (
	ModeRecording Mode = iota
	ModeScreenshot
)

var ErrBadExtension = errors.New("output path extension does not match capture mode")

func (m Mode) Extension() string {
	if m == ModeScreenshot {
		return ".png"
	}
	return ".mp4"
}

func (m Mode) String() string {
	if m == ModeScreenshot {
		return "screenshot"
	}
	return "recording"
}

// Resolve returns the absolute output path for a capture of appName. An
// explicit path is validated against the mode's extension and returned
// as-is; otherwise a timestamped name is placed in the user's Videos or
// Pictures directory, falling back to the home directory.
func Resolve(explicit string, mode Mode, appName string, now time.Time) (string, error) {
	if explicit != "" {
		if !strings.EqualFold(filepath.Ext(explicit), mode.Extension()) {
			return "", fmt.Errorf("%w: %s output requires %q, got %q",
				ErrBadExtension, mode, mode.Extension(), filepath.Ext(explicit))
		}
		return filepath.Abs(explicit)
	}

	name := now.Format("2006-01-02-15:04:05") + "-" + sanitizeAppName(appName) + mode.Extension()
	return filepath.Join(defaultDir(mode), name), nil
}

func defaultDir(mode Mode) string {
	dir := xdg.UserDirs.Videos
	if mode == ModeScreenshot {
		dir = xdg.UserDirs.Pictures
	}
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

// sanitizeAppName keeps the owning application's name usable as a filename
// component.
func sanitizeAppName(appName string) string {
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return "window"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '-'
		default:
			return r
		}
	}, appName)
}
