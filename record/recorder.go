// Package record drives the capture-to-encode pipeline for one recording
// session.
package record

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"go2tv.app/winrec/internal/log"
	"go2tv.app/winrec/scale"
)

const (
	DefaultFrameRate    = 60
	DefaultTargetHeight = 720

	// DefaultDrainTimeout bounds how long a stop waits for in-flight frame
	// work before abandoning it. Shutdown latency stays roughly constant no
	// matter how long or large the recording is.
	DefaultDrainTimeout = time.Second

	// jobQueueDepth matches the capture callback queue depth: deep enough
	// to ride out a slow scale pass, shallow enough that memory stays flat
	// when the encoder lags.
	jobQueueDepth = 4
)

var (
	ErrAborted       = errors.New("recording aborted")
	ErrAlreadyActive = errors.New("recorder already started")
)

// FrameSource produces one raw frame of the target window per call.
type FrameSource interface {
	Capture() (*image.RGBA, error)
}

// Encoder is the streaming container writer. It is only ever called from
// the recorder's single worker goroutine, except Cancel/Finalize during
// shutdown, which the recorder serialises itself.
type Encoder interface {
	// Ready reports whether the encoder can accept another frame right now.
	Ready() bool
	// Append hands over one scaled frame at its presentation timestamp.
	Append(frame *image.RGBA, pts MediaTime) error
	// Finish marks the input as complete; no appends may follow.
	Finish()
	// Finalize writes trailing container structures and closes the file.
	Finalize() error
	// Cancel discards the in-progress output entirely.
	Cancel()
}

// OpenEncoder opens the output container at the session's locked
// resolution. Called once, after the first frame fixes the dimensions.
type OpenEncoder func(width, height int) (Encoder, error)

// State of the session lifecycle.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateRecording
	StateStopping
	StateFinalized
	StateAborting
	StateAborted
)

type Config struct {
	Source       FrameSource
	OpenEncoder  OpenEncoder
	FrameRate    int           // ticks per second; default 60
	TargetHeight int           // scaled output height; default 720
	DrainTimeout time.Duration // bounded stop wait; default 1s
	Clock        func() time.Time
}

type commandKind int

const (
	cmdStop commandKind = iota
	cmdAbort
	cmdFatal
)

type command struct {
	kind commandKind
	err  error
}

type frameJob struct {
	frame *image.RGBA
	when  time.Time
}

// Recorder owns one recording session: a periodic capture timer feeding a
// single serialized worker that scales, timestamps and appends frames.
type Recorder struct {
	cfg      Config
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	enc           Encoder
	width, height int // locked from the first scaled frame
	start         time.Time

	jobs       chan frameJob
	cmds       chan command
	tickStop   chan struct{}
	tickDone   chan struct{}
	workerDone chan struct{}
	done       chan struct{}

	state atomic.Int32

	stopTickerOnce sync.Once
	closeJobsOnce  sync.Once
	finishOnce     sync.Once
	result         error

	frames           atomic.Uint64
	dropGeometry     atomic.Uint64
	dropBackpressure atomic.Uint64
	dropQueueFull    atomic.Uint64
	lastDropLog      atomic.Int64
}

func New(cfg Config) (*Recorder, error) {
	if cfg.Source == nil {
		return nil, errors.New("record: nil frame source")
	}
	if cfg.OpenEncoder == nil {
		return nil, errors.New("record: nil encoder opener")
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultFrameRate
	}
	if cfg.TargetHeight <= 0 {
		cfg.TargetHeight = DefaultTargetHeight
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Recorder{
		cfg:      cfg,
		interval: time.Second / time.Duration(cfg.FrameRate),
		now:      now,
		logger:   log.WithComponent("record"),

		jobs:       make(chan frameJob, jobQueueDepth),
		cmds:       make(chan command, 4),
		tickStop:   make(chan struct{}),
		tickDone:   make(chan struct{}),
		workerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start captures the first frame, locks the session resolution from it,
// opens the encoder and arms the periodic capture timer. Any failure is
// fatal and leaves no session behind.
func (r *Recorder) Start() error {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateInitializing)) {
		return ErrAlreadyActive
	}

	first, err := r.cfg.Source.Capture()
	if err != nil {
		r.state.Store(int32(StateAborted))
		return fmt.Errorf("initial capture: %w", err)
	}

	scaled, err := scale.ToHeight(first, r.cfg.TargetHeight)
	if err != nil {
		r.state.Store(int32(StateAborted))
		return fmt.Errorf("initial scale: %w", err)
	}
	r.width = scaled.Bounds().Dx()
	r.height = scaled.Bounds().Dy()

	enc, err := r.cfg.OpenEncoder(r.width, r.height)
	if err != nil {
		r.state.Store(int32(StateAborted))
		return fmt.Errorf("open encoder: %w", err)
	}
	r.enc = enc
	r.start = r.now()
	r.state.Store(int32(StateRecording))

	r.logger.Info().
		Str("resolution", fmt.Sprintf("%dx%d", r.width, r.height)).
		Int("fps", r.cfg.FrameRate).
		Msg("recording started")

	go r.tickLoop()
	go r.workLoop()
	go r.controlLoop()
	return nil
}

// Stop requests a graceful stop. Safe from any goroutine; the actual
// shutdown runs on the control goroutine. Wait reports the outcome.
func (r *Recorder) Stop() {
	r.send(command{kind: cmdStop})
}

// Abort requests that the session be discarded immediately.
func (r *Recorder) Abort() {
	r.send(command{kind: cmdAbort})
}

// Wait blocks until the session reaches Finalized or Aborted and returns
// the session result. A nil result means a valid container was written.
func (r *Recorder) Wait() error {
	<-r.done
	return r.result
}

func (r *Recorder) State() State {
	return State(r.state.Load())
}

// Frames returns the number of frames appended so far.
func (r *Recorder) Frames() uint64 {
	return r.frames.Load()
}

func (r *Recorder) send(cmd command) {
	select {
	case r.cmds <- cmd:
	default:
	}
}

// tickLoop fires at the capture interval. The capture itself happens here,
// synchronously, so the recorded instant is the true capture time; only
// the scale/append work is deferred to the worker.
func (r *Recorder) tickLoop() {
	defer close(r.tickDone)

	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-r.tickStop:
			return
		case <-t.C:
			frame, err := r.cfg.Source.Capture()
			when := r.now()
			if err != nil {
				r.send(command{kind: cmdFatal, err: err})
				return
			}

			select {
			case r.jobs <- frameJob{frame: frame, when: when}:
			default:
				// Worker is behind; dropping keeps the timer honest and
				// memory bounded.
				r.noteDrop(&r.dropQueueFull, "job_queue_full")
			}
		}
	}
}

// workLoop is the single serialized context that touches the encoder
// during steady state. Jobs arrive in capture order, so appends stay in
// presentation-timestamp order.
func (r *Recorder) workLoop() {
	defer close(r.workerDone)

	for job := range r.jobs {
		r.process(job)
	}
}

func (r *Recorder) process(job frameJob) {
	scaled, err := scale.ToHeight(job.frame, r.cfg.TargetHeight)
	if err != nil {
		r.noteDrop(&r.dropGeometry, "scale_rejected")
		return
	}
	if scaled.Bounds().Dx() != r.width || scaled.Bounds().Dy() != r.height {
		// Window was resized mid-recording. The session keeps its locked
		// resolution; the odd-sized frame is dropped.
		r.noteDrop(&r.dropGeometry, "geometry_mismatch")
		return
	}

	if !r.enc.Ready() {
		r.noteDrop(&r.dropBackpressure, "encoder_backpressure")
		return
	}

	if err := r.enc.Append(scaled, Present(job.when, r.start)); err != nil {
		r.noteDrop(&r.dropBackpressure, "append_rejected")
		return
	}
	r.frames.Add(1)
}

func (r *Recorder) controlLoop() {
	cmd := <-r.cmds
	switch cmd.kind {
	case cmdStop:
		r.doStop()
	case cmdAbort:
		r.doAbort(ErrAborted)
	case cmdFatal:
		r.logger.Error().Err(cmd.err).Msg("capture failed, abandoning session")
		r.doAbort(fmt.Errorf("capture failed: %w", cmd.err))
	}
}

func (r *Recorder) doStop() {
	r.state.Store(int32(StateStopping))
	r.disarmTimer()
	r.closeJobs()

	// Bounded drain: give in-flight frame work a fixed grace period, then
	// abandon it. An abort arriving during the drain still wins.
	drain := time.NewTimer(r.cfg.DrainTimeout)
	defer drain.Stop()
	drained := false
	for !drained {
		select {
		case <-r.workerDone:
			drained = true
		case <-drain.C:
			r.logger.Warn().
				Dur("timeout", r.cfg.DrainTimeout).
				Msg("drain timed out, abandoning pending frames")
			drained = true
		case cmd := <-r.cmds:
			if cmd.kind == cmdAbort {
				r.doAbort(ErrAborted)
				return
			}
		}
	}

	r.enc.Finish()
	err := r.enc.Finalize()
	if err != nil {
		err = fmt.Errorf("finalize recording: %w", err)
	}

	r.state.Store(int32(StateFinalized))
	r.logger.Info().
		Uint64("frames", r.frames.Load()).
		Uint64("dropped_geometry", r.dropGeometry.Load()).
		Uint64("dropped_backpressure", r.dropBackpressure.Load()).
		Uint64("dropped_queue_full", r.dropQueueFull.Load()).
		Msg("recording stopped")
	r.finish(err)
}

func (r *Recorder) doAbort(result error) {
	r.state.Store(int32(StateAborting))
	r.disarmTimer()
	r.closeJobs()
	r.enc.Cancel()
	r.state.Store(int32(StateAborted))
	r.finish(result)
}

// disarmTimer stops the tick loop and waits for it to exit, so no capture
// can race the shutdown that follows.
func (r *Recorder) disarmTimer() {
	r.stopTickerOnce.Do(func() {
		close(r.tickStop)
	})
	<-r.tickDone
}

func (r *Recorder) closeJobs() {
	r.closeJobsOnce.Do(func() {
		close(r.jobs)
	})
}

func (r *Recorder) finish(err error) {
	r.finishOnce.Do(func() {
		r.result = err
		close(r.done)
	})
}

// noteDrop counts a dropped frame and logs it at debug level, rate-limited
// to once per second so a stuck encoder cannot flood the log.
func (r *Recorder) noteDrop(counter *atomic.Uint64, cause string) {
	total := counter.Add(1)
	now := time.Now().UnixNano()
	prev := r.lastDropLog.Load()
	if prev != 0 && time.Duration(now-prev) < time.Second {
		return
	}
	if r.lastDropLog.CompareAndSwap(prev, now) {
		r.logger.Debug().Str("cause", cause).Uint64("total", total).Msg("dropped frame")
	}
}
