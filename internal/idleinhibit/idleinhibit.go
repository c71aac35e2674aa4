// Package idleinhibit keeps the desktop from blanking or sleeping while a
// recording is in progress.
package idleinhibit

// Hold represents an active inhibition. Release drops it; Release is safe
// to call once per Hold from any goroutine.
type Hold interface {
	Release()
}

// Acquire requests an idle/screensaver inhibition for the given reason.
// On platforms or desktops without an inhibition service it returns a
// no-op Hold and no error; recording never depends on this succeeding.
func Acquire(reason string) Hold {
	h, err := acquire(reason)
	if err != nil || h == nil {
		return noopHold{}
	}
	return h
}

type noopHold struct{}

func (noopHold) Release() {}
