//go:build linux

package idleinhibit

import (
	"go2tv.app/winrec/internal/dbusutil"
)

const (
	screenSaverName   = "org.freedesktop.ScreenSaver"
	screenSaverPath   = "/org/freedesktop/ScreenSaver"
	inhibitCallName   = screenSaverName + ".Inhibit"
	unInhibitCallName = screenSaverName + ".UnInhibit"
)

type linuxHold struct {
	cookie uint32
}

// acquire asks the desktop's screensaver service to suspend idle/blanking.
// Failure is non-fatal: headless or minimal environments have no such
// service and recording works fine without the hold.
func acquire(reason string) (Hold, error) {
	var cookie uint32
	err := dbusutil.Call(screenSaverName, screenSaverPath, inhibitCallName, &cookie, "winrec", reason)
	if err != nil {
		return nil, err
	}
	return &linuxHold{cookie: cookie}, nil
}

func (h *linuxHold) Release() {
	_ = dbusutil.Call(screenSaverName, screenSaverPath, unInhibitCallName, nil, h.cookie)
}
