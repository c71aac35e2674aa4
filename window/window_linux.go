//go:build linux

package window

import (
	"bytes"
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// One X connection is shared by enumeration and the per-tick captures.
var (
	x11Mu    sync.Mutex
	x11Conn  *xgb.Conn
	x11Atoms = map[string]xproto.Atom{}
)

func x11(fn func(c *xgb.Conn) error) error {
	x11Mu.Lock()
	defer x11Mu.Unlock()

	if x11Conn == nil {
		c, err := xgb.NewConn()
		if err != nil {
			return fmt.Errorf("connect to X server: %w", err)
		}
		x11Conn = c
	}
	return fn(x11Conn)
}

func atom(c *xgb.Conn, name string) (xproto.Atom, error) {
	if a, ok := x11Atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(c, true, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	x11Atoms[name] = reply.Atom
	return reply.Atom, nil
}

func windowProperty(c *xgb.Conn, win xproto.Window, name string) ([]byte, error) {
	a, err := atom(c, name)
	if err != nil || a == xproto.AtomNone {
		return nil, err
	}
	reply, err := xproto.GetProperty(c, false, win, a, xproto.GetPropertyTypeAny, 0, 1<<20).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func list() ([]Window, error) {
	var windows []Window
	err := x11(func(c *xgb.Conn) error {
		root := xproto.Setup(c).DefaultScreen(c).Root
		clients, err := windowProperty(c, root, "_NET_CLIENT_LIST")
		if err != nil {
			return fmt.Errorf("read _NET_CLIENT_LIST: %w", err)
		}

		for i := 0; i+4 <= len(clients); i += 4 {
			win := xproto.Window(xgb.Get32(clients[i:]))

			geom, err := xproto.GetGeometry(c, xproto.Drawable(win)).Reply()
			if err != nil {
				continue
			}

			windows = append(windows, Window{
				ID:     uint64(win),
				App:    windowClass(c, win),
				Title:  windowTitle(c, win),
				Width:  int(geom.Width),
				Height: int(geom.Height),
				Hidden: windowHidden(c, win),
			})
		}
		return nil
	})
	return windows, err
}

func windowTitle(c *xgb.Conn, win xproto.Window) string {
	if v, err := windowProperty(c, win, "_NET_WM_NAME"); err == nil && len(v) > 0 {
		return string(v)
	}
	if v, err := windowProperty(c, win, "WM_NAME"); err == nil {
		return string(v)
	}
	return ""
}

// windowClass reads WM_CLASS ("instance\0class\0") and prefers the class
// part, which is the closest X11 has to an owning application name.
func windowClass(c *xgb.Conn, win xproto.Window) string {
	v, err := windowProperty(c, win, "WM_CLASS")
	if err != nil || len(v) == 0 {
		return ""
	}
	parts := bytes.Split(bytes.TrimRight(v, "\x00"), []byte{0})
	if len(parts) >= 2 && len(parts[1]) > 0 {
		return string(parts[1])
	}
	return string(parts[0])
}

func windowHidden(c *xgb.Conn, win xproto.Window) bool {
	attrs, err := xproto.GetWindowAttributes(c, win).Reply()
	if err == nil && attrs.MapState != xproto.MapStateViewable {
		return true
	}

	hiddenAtom, err := atom(c, "_NET_WM_STATE_HIDDEN")
	if err != nil || hiddenAtom == xproto.AtomNone {
		return false
	}
	states, err := windowProperty(c, win, "_NET_WM_STATE")
	if err != nil {
		return false
	}
	for i := 0; i+4 <= len(states); i += 4 {
		if xproto.Atom(xgb.Get32(states[i:])) == hiddenAtom {
			return true
		}
	}
	return false
}

func capture(id uint64) (*image.RGBA, error) {
	var img *image.RGBA
	err := x11(func(c *xgb.Conn) error {
		win := xproto.Window(id)
		geom, err := xproto.GetGeometry(c, xproto.Drawable(win)).Reply()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWindowGone, err)
		}

		w, h := int(geom.Width), int(geom.Height)
		reply, err := xproto.GetImage(c, xproto.ImageFormatZPixmap, xproto.Drawable(win),
			0, 0, geom.Width, geom.Height, 0xffffffff).Reply()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWindowGone, err)
		}
		if len(reply.Data) < w*h*4 {
			return fmt.Errorf("short GetImage reply: got %d bytes for %dx%d", len(reply.Data), w, h)
		}

		img = bgraToRGBA(reply.Data, w, h, w*4)
		return nil
	})
	return img, err
}
