package encode

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// frameQueue decouples frame submission from pipe writes into the encoder
// process. Enqueue never blocks; Ready reports whether a slot is free, so
// the caller can drop instead of queueing behind a slow encoder.
type frameQueue struct {
	dst    io.Writer
	logger zerolog.Logger

	jobs chan frameSubmission
	done chan struct{}

	mu     sync.Mutex
	closed bool

	writeFailed atomic.Bool
	lastSlowLog atomic.Int64
}

type frameSubmission struct {
	pix []byte
	// repeat writes the same frame into consecutive constant-rate slots to
	// cover wall-clock gaps after a stall.
	repeat int
}

func newFrameQueue(dst io.Writer, depth int, logger zerolog.Logger) *frameQueue {
	q := &frameQueue{
		dst:    dst,
		logger: logger,
		jobs:   make(chan frameSubmission, depth),
		done:   make(chan struct{}),
	}
	go q.loop()
	return q
}

// Ready reports whether the queue can accept another frame right now.
func (q *frameQueue) Ready() bool {
	if q.writeFailed.Load() {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed && len(q.jobs) < cap(q.jobs)
}

// Enqueue submits one frame without blocking. It reports false when the
// queue is full, closed, or the writer has failed.
func (q *frameQueue) Enqueue(pix []byte, repeat int) bool {
	if len(pix) == 0 || repeat <= 0 || q.writeFailed.Load() {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- frameSubmission{pix: pix, repeat: repeat}:
		return true
	default:
		return false
	}
}

// Close stops accepting frames. Queued frames are still written.
func (q *frameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
}

// Drain waits until all queued frames are written or the timeout expires.
func (q *frameQueue) Drain(timeout time.Duration) bool {
	select {
	case <-q.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (q *frameQueue) loop() {
	defer close(q.done)

	for job := range q.jobs {
		for i := 0; i < job.repeat; i++ {
			start := time.Now()
			if _, err := q.dst.Write(job.pix); err != nil {
				q.writeFailed.Store(true)
				q.logger.Debug().Err(err).Msg("frame write failed")
				// Keep consuming so Close never strands queued senders.
				continue
			}
			if d := time.Since(start); d > 50*time.Millisecond && q.shouldLogSlow() {
				q.logger.Debug().
					Dur("duration", d).
					Int("bytes", len(job.pix)).
					Int("queued", len(q.jobs)).
					Msg("slow frame write")
			}
		}
	}
}

func (q *frameQueue) shouldLogSlow() bool {
	now := time.Now().UnixNano()
	for {
		prev := q.lastSlowLog.Load()
		if prev != 0 && time.Duration(now-prev) < time.Second {
			return false
		}
		if q.lastSlowLog.CompareAndSwap(prev, now) {
			return true
		}
	}
}
