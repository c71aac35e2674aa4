// Package encode writes captured frames into a finished MP4 container by
// streaming raw RGBA video into an ffmpeg subprocess.
package encode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"go2tv.app/winrec/internal/envcfg"
	"go2tv.app/winrec/internal/log"
	"go2tv.app/winrec/internal/processutil"
	"go2tv.app/winrec/record"
)

const (
	defaultStartupTimeout = 10 * time.Second
	finalizeDrainTimeout  = 10 * time.Second
	finalizeExitTimeout   = 30 * time.Second

	// frameQueueDepth bounds frames buffered ahead of the encoder pipe.
	// When it is full the encoder reports not-ready and frames are dropped
	// upstream instead of queueing.
	frameQueueDepth = 4
)

var (
	ErrEncoderFinished = errors.New("encoder input already finished")
	ErrEncoderBusy     = errors.New("encoder cannot accept a frame right now")
)

type Options struct {
	FFmpegPath     string
	FrameRate      int
	StartupTimeout time.Duration
}

// FFmpeg is a streaming MP4 encoder session. The output file exists on
// disk from the moment Open returns; Finalize completes the container,
// Cancel discards it.
//
// Wall-clock presentation timestamps are rendered onto a constant-rate
// timeline: each append lands in the slot its timestamp maps to, and gaps
// after a stall are covered by repeating the frame, so playback duration
// tracks recorded wall-clock time.
type FFmpeg struct {
	path          string
	width, height int
	frameRate     int
	frameSize     int
	maxRepeat     int

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stderr   *tailBuffer
	queue    *frameQueue
	procDone chan error
	exited   atomic.Bool
	logger   zerolog.Logger

	mu            sync.Mutex
	finished      bool
	cancelled     bool
	lastSlot      int64
	haveFirst     bool
	sameSlotDrops uint64
}

// Open starts an encoding session writing to path at the given locked
// resolution. It fails without leaving a partial file behind.
func Open(path string, width, height int, options *Options) (*FFmpeg, error) {
	opts := Options{}
	if options != nil {
		opts = *options
	}
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = envcfg.FFmpegPath()
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = envcfg.FrameRate()
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = defaultStartupTimeout
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid encoder resolution %dx%d", width, height)
	}

	logger := log.WithComponent("encode")
	plan := selectEncoderPlan(opts.FFmpegPath, opts.FrameRate, logger)
	fpsArg := strconv.Itoa(opts.FrameRate)

	args := []string{
		"-hide_banner",
		"-y",
	}
	args = append(args, plan.globalArgs...)
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", fpsArg,
		"-i", "pipe:0",
		"-an",
	)
	if strings.TrimSpace(plan.videoFilter) != "" {
		args = append(args, "-vf", plan.videoFilter)
	}
	args = append(args, plan.codecArgs...)
	args = append(args,
		"-r", fpsArg,
		"-video_track_timescale", strconv.Itoa(record.MediaTimescale),
		"-movflags", "+faststart",
		"-f", "mp4",
		path,
	)

	stderr := &tailBuffer{}
	cmd := exec.Command(opts.FFmpegPath, args...)
	cmd.Stderr = stderr
	processutil.HideConsoleWindow(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder stdin pipe: %w", err)
	}

	logger.Debug().Str("cmd", opts.FFmpegPath+" "+strings.Join(args, " ")).Msg("starting encoder")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	e := &FFmpeg{
		path:      path,
		width:     width,
		height:    height,
		frameRate: opts.FrameRate,
		frameSize: width * height * 4,
		maxRepeat: opts.FrameRate * 2,
		cmd:       cmd,
		stdin:     stdin,
		stderr:    stderr,
		procDone:  make(chan error, 1),
		logger:    logger,
	}

	go func() {
		e.procDone <- cmd.Wait()
		e.exited.Store(true)
	}()

	if err := e.waitForOutputFile(opts.StartupTimeout); err != nil {
		e.kill()
		_ = os.Remove(path)
		return nil, err
	}

	e.queue = newFrameQueue(stdin, frameQueueDepth, logger)
	return e, nil
}

// Path returns the output file location.
func (e *FFmpeg) Path() string {
	return e.path
}

// Ready reports whether the session can accept another frame without
// queueing beyond its bounded buffer.
func (e *FFmpeg) Ready() bool {
	if e.exited.Load() {
		return false
	}

	e.mu.Lock()
	finished := e.finished || e.cancelled
	e.mu.Unlock()
	return !finished && e.queue.Ready()
}

// Append submits one frame at its presentation timestamp.
func (e *FFmpeg) Append(frame *image.RGBA, pts record.MediaTime) error {
	if frame == nil || len(frame.Pix) < e.frameSize || frame.Stride != e.width*4 {
		return fmt.Errorf("frame does not match encoder resolution %dx%d", e.width, e.height)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished || e.cancelled {
		return ErrEncoderFinished
	}

	slot := pts.Value * int64(e.frameRate) / int64(pts.Scale)
	repeat := 1
	if e.haveFirst {
		gap := slot - e.lastSlot
		if gap <= 0 {
			// Two captures rounded into the same slot; keeping the first
			// preserves monotonic ordering.
			e.sameSlotDrops++
			return nil
		}
		if gap > int64(e.maxRepeat) {
			gap = int64(e.maxRepeat)
		}
		repeat = int(gap)
	}

	if !e.queue.Enqueue(frame.Pix[:e.frameSize], repeat) {
		return ErrEncoderBusy
	}
	e.haveFirst = true
	e.lastSlot = slot
	return nil
}

// Finish marks the video input as complete. No appends may follow.
func (e *FFmpeg) Finish() {
	e.mu.Lock()
	e.finished = true
	e.mu.Unlock()
	e.queue.Close()
}

// Finalize flushes buffered frames, closes the encoder input and waits for
// the container's trailing structures to be written.
func (e *FFmpeg) Finalize() error {
	e.Finish()

	if !e.queue.Drain(finalizeDrainTimeout) {
		e.logger.Warn().Msg("frame queue drain timed out before finalize")
	}
	if err := e.stdin.Close(); err != nil && !e.exited.Load() {
		e.logger.Debug().Err(err).Msg("closing encoder stdin")
	}

	select {
	case err := <-e.procDone:
		if err != nil {
			return fmt.Errorf("ffmpeg exited: %w: %s", err, e.stderr.Tail(300))
		}
		return nil
	case <-time.After(finalizeExitTimeout):
		e.kill()
		return fmt.Errorf("ffmpeg did not finalize within %s: %s", finalizeExitTimeout, e.stderr.Tail(300))
	}
}

// Cancel discards the in-progress output: the encoder process is killed
// and the file removed. The designated path does not refer to a playable
// container afterwards.
func (e *FFmpeg) Cancel() {
	e.mu.Lock()
	e.cancelled = true
	e.mu.Unlock()

	e.queue.Close()
	e.kill()
	_ = e.stdin.Close()

	select {
	case <-e.procDone:
	case <-time.After(2 * time.Second):
	}
	_ = os.Remove(e.path)
}

func (e *FFmpeg) kill() {
	if e.cmd != nil && e.cmd.Process != nil {
		err := e.cmd.Process.Kill()
		if err != nil && !errors.Is(err, os.ErrProcessDone) {
			e.logger.Debug().Err(err).Msg("killing encoder process")
		}
	}
}

// waitForOutputFile blocks until ffmpeg has created the container file, so
// a successful open guarantees the file exists before any frame is
// appended.
func (e *FFmpeg) waitForOutputFile(timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()

	for {
		select {
		case err := <-e.procDone:
			return fmt.Errorf("ffmpeg exited during startup: %v: %s", err, e.stderr.Tail(300))
		case <-deadline.C:
			return fmt.Errorf("encoder did not create %s within %s: %s", e.path, timeout, e.stderr.Tail(300))
		case <-t.C:
			if info, err := os.Stat(e.path); err == nil && !info.IsDir() {
				return nil
			}
		}
	}
}

// tailBuffer collects ffmpeg stderr and serves its tail for error
// reporting.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *tailBuffer) Tail(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := strings.TrimSpace(b.buf.String())
	if s == "" {
		return "no ffmpeg stderr output"
	}
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
