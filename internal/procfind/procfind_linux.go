//go:build linux

package procfind

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"
)

func find(name string) (int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, err
	}

	self := os.Getpid()
	var matches []int
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid == self {
			continue
		}

		data, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "stat"))
		if err != nil {
			continue
		}

		statPid, comm, state, ok := parseStatLine(string(data))
		if !ok || statPid != pid {
			continue
		}
		if state == 'Z' || comm != name {
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
