//go:build linux || darwin

package procfind

import (
	"os"
	"syscall"
)

func signalPid(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}
