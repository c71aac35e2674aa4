//go:build !linux

package idleinhibit

// The macOS and Windows recorders run in the foreground of an interactive
// session; display sleep is governed by the session itself and no
// inhibition call is made.
func acquire(reason string) (Hold, error) {
	_ = reason
	return noopHold{}, nil
}
