// Package window enumerates on-screen windows and captures their contents
// as raw frames.
package window

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
)

var (
	ErrNotImplemented = errors.New("window capture backend is not implemented on this platform")
	ErrWindowGone     = errors.New("target window no longer exists")
	ErrNotFound       = errors.New("no window matches the selector")
)

// Window describes one capturable window. ID is the platform window
// identifier; App is the owning application's name, cached at enumeration
// time because it also names default output files.
type Window struct {
	ID     uint64
	App    string
	Title  string
	Width  int
	Height int
	Hidden bool
}

// List returns the windows currently known to the windowing system.
// Hidden (unmapped / minimized) windows are included only when asked for.
func List(includeHidden bool) ([]Window, error) {
	windows, err := list()
	if err != nil {
		return nil, err
	}
	if includeHidden {
		return windows, nil
	}

	visible := windows[:0]
	for _, w := range windows {
		if !w.Hidden {
			visible = append(visible, w)
		}
	}
	return visible, nil
}

// Capture grabs the window's current contents at its native size. The
// capture covers the window's bounds even when other windows overlap it,
// matching the underlying OS capture semantics. Returns ErrWindowGone if
// the window has been closed.
func Capture(id uint64) (*image.RGBA, error) {
	return capture(id)
}

// Resolve picks the window addressed by selector: a numeric window ID
// from List, or a case-insensitive substring of the application name or
// title.
func Resolve(selector string, includeHidden bool) (Window, error) {
	windows, err := List(includeHidden)
	if err != nil {
		return Window{}, err
	}
	return match(windows, selector)
}

func match(windows []Window, selector string) (Window, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return Window{}, fmt.Errorf("%w: empty selector", ErrNotFound)
	}

	if id, err := strconv.ParseUint(selector, 10, 64); err == nil {
		for _, w := range windows {
			if w.ID == id {
				return w, nil
			}
		}
		return Window{}, fmt.Errorf("%w: window id %d", ErrNotFound, id)
	}

	needle := strings.ToLower(selector)
	for _, w := range windows {
		if strings.Contains(strings.ToLower(w.App), needle) ||
			strings.Contains(strings.ToLower(w.Title), needle) {
			return w, nil
		}
	}
	return Window{}, fmt.Errorf("%w: %q", ErrNotFound, selector)
}
