//go:build windows

package processutil

import (
	"os/exec"
	"syscall"
)

// HideConsoleWindow keeps spawned helper processes, in practice the
// ffmpeg child and its probes, from opening their own console window on
// Windows. A flashing console would also land in the recording when the
// captured window is behind it.
func HideConsoleWindow(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
}
