package record

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWidth  = 64
	testHeight = 32
)

// testFrame returns a frame already at the target height so the scaler's
// identity path preserves the sequence tag in the first pixel.
func testFrame(seq int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, testWidth, testHeight))
	img.Pix[0] = byte(seq)
	return img
}

type fakeSource struct {
	mu      sync.Mutex
	seq     int
	failAt  int // fail on this sequence number; 0 disables
	failErr error
	resizeAt map[int]int // seq -> alternate width, height stays testHeight
}

func (s *fakeSource) Capture() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seq
	s.seq++

	if s.failAt > 0 && seq >= s.failAt {
		return nil, s.failErr
	}
	if w, ok := s.resizeAt[seq]; ok {
		img := image.NewRGBA(image.Rect(0, 0, w, testHeight))
		img.Pix[0] = byte(seq)
		return img, nil
	}
	return testFrame(seq), nil
}

type appendRecord struct {
	tag byte
	pts MediaTime
}

type fakeEncoder struct {
	mu         sync.Mutex
	readyFn    func(call int) bool
	readyCalls int
	appends    []appendRecord

	appendGate chan struct{} // non-nil: Append blocks until closed

	finished    bool
	finalized   bool
	cancelled   bool
	finalizedAt time.Time
	finalizeErr error
}

func (e *fakeEncoder) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	call := e.readyCalls
	e.readyCalls++
	if e.readyFn == nil {
		return true
	}
	return e.readyFn(call)
}

func (e *fakeEncoder) Append(frame *image.RGBA, pts MediaTime) error {
	if e.appendGate != nil {
		<-e.appendGate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished || e.cancelled {
		return errors.New("append after finish")
	}
	e.appends = append(e.appends, appendRecord{tag: frame.Pix[0], pts: pts})
	return nil
}

func (e *fakeEncoder) Finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = true
}

func (e *fakeEncoder) Finalize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finalized = true
	e.finalizedAt = time.Now()
	return e.finalizeErr
}

func (e *fakeEncoder) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = true
}

func (e *fakeEncoder) snapshot() ([]appendRecord, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]appendRecord(nil), e.appends...), e.readyCalls
}

func (e *fakeEncoder) flags() (finished, finalized, cancelled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finished, e.finalized, e.cancelled
}

// scriptedClock returns start + n*step for the n-th call.
func scriptedClock(start time.Time, step time.Duration) func() time.Time {
	var calls atomic.Int64
	return func() time.Time {
		n := calls.Add(1) - 1
		return start.Add(time.Duration(n) * step)
	}
}

func newTestRecorder(t *testing.T, src FrameSource, enc *fakeEncoder, mut func(*Config)) *Recorder {
	t.Helper()
	cfg := Config{
		Source: src,
		OpenEncoder: func(w, h int) (Encoder, error) {
			require.Equal(t, testWidth, w)
			require.Equal(t, testHeight, h)
			return enc, nil
		},
		FrameRate:    120,
		TargetHeight: testHeight,
		DrainTimeout: 200 * time.Millisecond,
	}
	if mut != nil {
		mut(&cfg)
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

func TestTimestampsReflectCaptureInstants(t *testing.T) {
	base := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{}
	enc := &fakeEncoder{}
	// Clock call n returns base+n*10ms, and source sequence s is captured
	// right before clock call s, so every appended frame must carry
	// pts = tag * 10ms = tag * 6 ticks regardless of which frames dropped.
	r := newTestRecorder(t, src, enc, func(cfg *Config) {
		cfg.Clock = scriptedClock(base, 10*time.Millisecond)
	})

	require.NoError(t, r.Start())
	time.Sleep(300 * time.Millisecond)
	r.Stop()
	require.NoError(t, r.Wait())

	appends, _ := enc.snapshot()
	require.NotEmpty(t, appends)

	var prev int64 = -1
	for _, a := range appends {
		assert.Equal(t, int64(a.tag)*6, a.pts.Value, "tag %d", a.tag)
		assert.Greater(t, a.pts.Value, prev, "timestamps must be strictly increasing")
		prev = a.pts.Value
	}
	assert.Equal(t, StateFinalized, r.State())
}

func TestBackpressureDropsExactlyNotReadyFrames(t *testing.T) {
	src := &fakeSource{}
	enc := &fakeEncoder{
		readyFn: func(call int) bool { return call < 5 || call > 8 },
	}
	r := newTestRecorder(t, src, enc, nil)

	require.NoError(t, r.Start())
	time.Sleep(300 * time.Millisecond)
	r.Stop()
	require.NoError(t, r.Wait())

	appends, readyCalls := enc.snapshot()
	require.Greater(t, readyCalls, 9, "need enough processed frames to cover the not-ready window")

	// Exactly the four frames probed during the not-ready window are
	// missing; everything else is present in capture order.
	assert.Len(t, appends, readyCalls-4)
	var prevTag int = -1
	for _, a := range appends {
		assert.Greater(t, int(a.tag), prevTag, "append order must follow capture order")
		prevTag = int(a.tag)
	}
}

func TestGeometryMismatchDropsFrameKeepsSession(t *testing.T) {
	// The resized frames change aspect ratio, so even after scaling to the
	// target height their width differs from the locked width.
	src := &fakeSource{resizeAt: map[int]int{3: testWidth * 4, 4: testWidth * 4}}
	enc := &fakeEncoder{}
	r := newTestRecorder(t, src, enc, nil)

	require.NoError(t, r.Start())
	time.Sleep(200 * time.Millisecond)
	r.Stop()
	require.NoError(t, r.Wait())

	appends, _ := enc.snapshot()
	require.NotEmpty(t, appends)
	for _, a := range appends {
		assert.NotEqual(t, byte(3), a.tag)
		assert.NotEqual(t, byte(4), a.tag)
	}
	assert.GreaterOrEqual(t, r.dropGeometry.Load(), uint64(1))
	assert.Equal(t, StateFinalized, r.State())
}

func TestStopLatencyBoundedWithStuckEncoder(t *testing.T) {
	src := &fakeSource{}
	gate := make(chan struct{})
	enc := &fakeEncoder{appendGate: gate}
	defer close(gate)

	r := newTestRecorder(t, src, enc, func(cfg *Config) {
		cfg.DrainTimeout = 150 * time.Millisecond
	})

	require.NoError(t, r.Start())
	time.Sleep(100 * time.Millisecond) // let the queue fill behind the stuck Append

	stopAt := time.Now()
	r.Stop()
	err := r.Wait()
	require.NoError(t, err)

	enc.mu.Lock()
	finalizedAt := enc.finalizedAt
	enc.mu.Unlock()
	require.False(t, finalizedAt.IsZero())
	assert.Less(t, finalizedAt.Sub(stopAt), 150*time.Millisecond+300*time.Millisecond,
		"stop-to-finalize latency must be bounded by the drain timeout plus a small constant")
}

func TestStopWithIdleWorkerIsFast(t *testing.T) {
	src := &fakeSource{}
	enc := &fakeEncoder{}
	r := newTestRecorder(t, src, enc, nil)

	require.NoError(t, r.Start())
	time.Sleep(50 * time.Millisecond)

	stopAt := time.Now()
	r.Stop()
	require.NoError(t, r.Wait())
	assert.Less(t, time.Since(stopAt), 150*time.Millisecond)
	finished, finalized, _ := enc.flags()
	assert.True(t, finalized)
	assert.True(t, finished)
}

func TestAbortCancelsWithoutFinalize(t *testing.T) {
	src := &fakeSource{}
	enc := &fakeEncoder{}
	r := newTestRecorder(t, src, enc, nil)

	require.NoError(t, r.Start())
	time.Sleep(50 * time.Millisecond)
	r.Abort()
	err := r.Wait()
	require.ErrorIs(t, err, ErrAborted)

	_, finalized, cancelled := enc.flags()
	assert.True(t, cancelled)
	assert.False(t, finalized)
	assert.Equal(t, StateAborted, r.State())
}

func TestCaptureFailureAbandonsSession(t *testing.T) {
	src := &fakeSource{failAt: 5, failErr: errors.New("window gone")}
	enc := &fakeEncoder{}
	r := newTestRecorder(t, src, enc, nil)

	require.NoError(t, r.Start())
	err := r.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window gone")

	_, finalized, cancelled := enc.flags()
	assert.True(t, cancelled)
	assert.False(t, finalized, "a failed capture must not finalize a misleading file")
}

func TestStartFailsWhenEncoderOpenFails(t *testing.T) {
	src := &fakeSource{}
	openErr := errors.New("no disk")
	r, err := New(Config{
		Source:       src,
		OpenEncoder:  func(int, int) (Encoder, error) { return nil, openErr },
		TargetHeight: testHeight,
	})
	require.NoError(t, err)

	err = r.Start()
	require.ErrorIs(t, err, openErr)
	assert.Equal(t, StateAborted, r.State())
}

func TestStartTwiceRejected(t *testing.T) {
	src := &fakeSource{}
	enc := &fakeEncoder{}
	r := newTestRecorder(t, src, enc, nil)

	require.NoError(t, r.Start())
	require.ErrorIs(t, r.Start(), ErrAlreadyActive)

	r.Stop()
	require.NoError(t, r.Wait())
}

func TestFinalizeFailureSurfaces(t *testing.T) {
	src := &fakeSource{}
	enc := &fakeEncoder{finalizeErr: errors.New("moov write failed")}
	r := newTestRecorder(t, src, enc, nil)

	require.NoError(t, r.Start())
	time.Sleep(50 * time.Millisecond)
	r.Stop()
	err := r.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "moov write failed")
}
