//go:build !linux && !darwin

package procfind

func find(name string) (int, error) {
	_ = name
	return 0, ErrNotSupported
}

func SignalStop(pid int) error {
	_ = pid
	return ErrNotSupported
}

func SignalAbort(pid int) error {
	_ = pid
	return ErrNotSupported
}
