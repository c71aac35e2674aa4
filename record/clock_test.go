package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPresentUsesElapsedWallClock(t *testing.T) {
	start := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    int64
	}{
		{"zero", 0, 0},
		{"one second", time.Second, 600},
		{"half second", 500 * time.Millisecond, 300},
		{"one frame at 60fps", 16_666_667 * time.Nanosecond, 10},
		{"rounds nearest", 12500 * time.Microsecond, 8}, // 7.5 ticks
		{"one hour", time.Hour, 600 * 3600},
		{"clock skew before start", -time.Second, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Present(start.Add(tt.elapsed), start)
			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, int32(MediaTimescale), got.Scale)
		})
	}
}

func TestPresentMonotonicUnderJitter(t *testing.T) {
	start := time.Now()

	// Irregular tick spacing, as a loaded scheduler would produce.
	offsets := []time.Duration{
		0, 16 * time.Millisecond, 35 * time.Millisecond, 48 * time.Millisecond,
		90 * time.Millisecond, 91 * time.Millisecond, 200 * time.Millisecond,
	}

	var prev int64 = -1
	for _, off := range offsets {
		pt := Present(start.Add(off), start)
		assert.GreaterOrEqual(t, pt.Value, prev)
		prev = pt.Value
	}
}

func TestMediaTimeDuration(t *testing.T) {
	assert.Equal(t, time.Second, MediaTime{Value: 600, Scale: 600}.Duration())
	assert.Equal(t, 500*time.Millisecond, MediaTime{Value: 300, Scale: 600}.Duration())
}
