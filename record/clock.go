package record

import "time"

// MediaTimescale is the fixed subdivision of a second used for
// presentation timestamps. 600 divides evenly by all common frame rates,
// so long recordings accumulate no rounding drift.
const MediaTimescale = 600

// MediaTime is a rational time offset of Value/Scale seconds relative to
// the start of a recording.
type MediaTime struct {
	Value int64
	Scale int32
}

func (t MediaTime) Duration() time.Duration {
	return time.Duration(t.Value) * time.Second / time.Duration(t.Scale)
}

// Present converts the wall-clock instant a frame was captured into its
// presentation timestamp. The offset is the true elapsed time since
// session start; deriving it from frame index and nominal interval would
// drift whenever the timer jitters or processing lags.
func Present(captureInstant, sessionStart time.Time) MediaTime {
	elapsed := captureInstant.Sub(sessionStart)
	if elapsed < 0 {
		elapsed = 0
	}

	value := (elapsed*MediaTimescale + time.Second/2) / time.Second
	return MediaTime{Value: int64(value), Scale: MediaTimescale}
}
