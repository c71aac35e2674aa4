//go:build darwin

package procfind

import (
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
)

func find(name string) (int, error) {
	out, err := exec.Command("ps", "-axo", "pid=,stat=,comm=").Output()
	if err != nil {
		return 0, err
	}

	self := os.Getpid()
	var matches []int
	for _, line := range strings.Split(string(out), "\n") {
		pid, state, comm, ok := parsePSLine(line)
		if !ok || pid == self {
			continue
		}
		// Z marks defunct processes that can no longer receive signals.
		if strings.ContainsRune(state, 'Z') || comm != name {
			continue
		}
		matches = append(matches, pid)
	}

	if len(matches) == 0 {
		return 0, ErrNotRunning
	}
	sort.Ints(matches)
	return matches[0], nil
}

// SignalStop asks the recorder at pid to finish and save its output.
func SignalStop(pid int) error {
	return signalPid(pid, syscall.SIGINT)
}

// SignalAbort asks the recorder at pid to discard its output and exit.
func SignalAbort(pid int) error {
	return signalPid(pid, syscall.SIGTERM)
}
