// Package procfind locates a running recorder process so a second CLI
// invocation can signal it to stop or abort.
package procfind

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrNotRunning   = errors.New("no running recorder process found")
	ErrNotSupported = errors.New("signaling a recorder is not supported on this platform")
)

// Find returns the pid of a live process whose executable name matches
// name, excluding the calling process and defunct (zombie) entries. When
// several match, the lowest pid wins.
func Find(name string) (int, error) {
	return find(name)
}

// parseStatLine extracts pid, command name and state from a Linux
// /proc/<pid>/stat line. The comm field is parenthesised and may itself
// contain spaces or parentheses, so the state is read after the last ')'.
func parseStatLine(line string) (pid int, comm string, state byte, ok bool) {
	start := strings.IndexByte(line, '(')
	end := strings.LastIndexByte(line, ')')
	if start < 0 || end < start {
		return 0, "", 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(line[:start]))
	if err != nil || pid <= 0 {
		return 0, "", 0, false
	}

	rest := strings.Fields(line[end+1:])
	if len(rest) == 0 || len(rest[0]) != 1 {
		return 0, "", 0, false
	}

	return pid, line[start+1 : end], rest[0][0], true
}

// parsePSLine extracts pid, state and command base name from one line of
// `ps -axo pid=,stat=,comm=` output.
func parsePSLine(line string) (pid int, state string, comm string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return 0, "", "", false
	}

	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return 0, "", "", false
	}

	return pid, fields[1], filepath.Base(fields[2]), true
}
