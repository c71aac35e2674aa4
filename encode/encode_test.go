package encode

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go2tv.app/winrec/record"
)

type blockingWriter struct {
	mu      sync.Mutex
	writes  [][]byte
	gate    chan struct{}
	started chan struct{}
	failErr error
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	if w.started != nil {
		select {
		case w.started <- struct{}{}:
		default:
		}
	}
	if w.gate != nil {
		<-w.gate
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failErr != nil {
		return 0, w.failErr
	}
	b := make([]byte, len(p))
	copy(b, p)
	w.writes = append(w.writes, b)
	return len(p), nil
}

func (w *blockingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

func TestFrameQueueWritesInOrder(t *testing.T) {
	dst := &blockingWriter{}
	q := newFrameQueue(dst, 4, zerolog.Nop())

	require.True(t, q.Enqueue([]byte{1}, 1))
	require.True(t, q.Enqueue([]byte{2}, 1))
	require.True(t, q.Enqueue([]byte{3}, 2))
	q.Close()
	require.True(t, q.Drain(time.Second))

	dst.mu.Lock()
	defer dst.mu.Unlock()
	require.Len(t, dst.writes, 4)
	assert.Equal(t, []byte{1}, dst.writes[0])
	assert.Equal(t, []byte{2}, dst.writes[1])
	assert.Equal(t, []byte{3}, dst.writes[2])
	assert.Equal(t, []byte{3}, dst.writes[3], "repeat writes the same frame again")
}

func TestFrameQueueNotReadyWhenFull(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	dst := &blockingWriter{gate: gate, started: started}
	q := newFrameQueue(dst, 2, zerolog.Nop())
	defer close(gate)

	// First submission is picked up by the writer (then blocks); two more
	// fill the buffer.
	require.True(t, q.Enqueue([]byte{1}, 1))
	<-started
	require.True(t, q.Enqueue([]byte{2}, 1))
	require.True(t, q.Enqueue([]byte{3}, 1))

	assert.False(t, q.Ready())
	assert.False(t, q.Enqueue([]byte{4}, 1), "a full queue must reject, not block")
	q.Close()
}

func TestFrameQueueRejectsAfterWriteFailure(t *testing.T) {
	dst := &blockingWriter{failErr: errors.New("broken pipe")}
	q := newFrameQueue(dst, 4, zerolog.Nop())

	require.True(t, q.Enqueue([]byte{1}, 1))
	require.Eventually(t, func() bool { return !q.Ready() }, time.Second, 10*time.Millisecond)
	assert.False(t, q.Enqueue([]byte{2}, 1))
	q.Close()
	require.True(t, q.Drain(time.Second))
}

func TestFrameQueueRejectsAfterClose(t *testing.T) {
	dst := &blockingWriter{}
	q := newFrameQueue(dst, 4, zerolog.Nop())
	q.Close()

	assert.False(t, q.Ready())
	assert.False(t, q.Enqueue([]byte{1}, 1))
	assert.NotPanics(t, q.Close)
}

// slotRepeat mirrors the timeline math in Append: given consecutive
// timestamp slots, how many constant-rate frames are written.
func TestTimelineSlotMath(t *testing.T) {
	const fps = 60

	slotOf := func(pts record.MediaTime) int64 {
		return pts.Value * fps / int64(pts.Scale)
	}

	// 10 ticks of the 600 timescale is exactly one 60fps slot.
	assert.Equal(t, int64(0), slotOf(record.MediaTime{Value: 4, Scale: 600}))
	assert.Equal(t, int64(1), slotOf(record.MediaTime{Value: 10, Scale: 600}))
	assert.Equal(t, int64(60), slotOf(record.MediaTime{Value: 600, Scale: 600}))
	// A 500ms stall maps to 30 slots.
	assert.Equal(t, int64(30), slotOf(record.MediaTime{Value: 300, Scale: 600}))
}

func TestTailString(t *testing.T) {
	assert.Equal(t, "no ffmpeg stderr output", tailString("", 10))
	assert.Equal(t, "short", tailString("short", 10))
	assert.Equal(t, "cdefg", tailString("abcdefg", 5))
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{}
	assert.Equal(t, "no ffmpeg stderr output", b.Tail(100))

	_, err := b.Write([]byte("  error line one\n"))
	require.NoError(t, err)
	assert.Equal(t, "error line one", b.Tail(100))
	assert.Equal(t, "one", b.Tail(3))
}

func TestGopArg(t *testing.T) {
	assert.Equal(t, "120", gopArg(60))
	assert.Equal(t, "60", gopArg(30))
}

func TestWriteSnapshotKeepsNativeSize(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 123, 77))
	path := filepath.Join(t.TempDir(), "shot.png")

	require.NoError(t, WriteSnapshot(frame, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 123, decoded.Bounds().Dx())
	assert.Equal(t, 77, decoded.Bounds().Dy())
}

func TestWriteSnapshotNilFrame(t *testing.T) {
	require.Error(t, WriteSnapshot(nil, filepath.Join(t.TempDir(), "shot.png")))
}
