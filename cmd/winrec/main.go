// Command winrec records a single on-screen window to an MP4 file, or
// captures a still PNG of it.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go2tv.app/winrec/encode"
	"go2tv.app/winrec/internal/envcfg"
	"go2tv.app/winrec/internal/idleinhibit"
	"go2tv.app/winrec/internal/log"
	"go2tv.app/winrec/internal/outpath"
	"go2tv.app/winrec/internal/procfind"
	"go2tv.app/winrec/record"
	"go2tv.app/winrec/window"
)

var version = "dev"

// processName is what a second invocation looks for when delivering
// stop/abort signals and when rejecting a concurrent recording.
const processName = "winrec"

const usageText = `usage: winrec <command> [options]

commands:
  list [-all]                 list capturable windows (-all includes hidden ones)
  shot <window> [-o path]     save a PNG screenshot of a window at native size
  record <window> [-o path]   record a window to MP4 until stopped
  stop                        ask the running recorder to finish and save
  abort                       ask the running recorder to discard its output
  version                     print version

<window> is a numeric id from 'list' or a substring of the application
name or window title.`

func main() {
	log.Configure(log.Config{})
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usageText)
		return 1
	}

	switch args[0] {
	case "list":
		return runList(args[1:])
	case "shot":
		return runShot(args[1:])
	case "record":
		return runRecord(args[1:])
	case "stop":
		return runSignal("stop", procfind.SignalStop)
	case "abort":
		return runSignal("abort", procfind.SignalAbort)
	case "version":
		fmt.Println(version)
		return 0
	case "help", "-h", "--help":
		fmt.Println(usageText)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "winrec: unknown command %q\n\n%s\n", args[0], usageText)
		return 1
	}
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, "winrec:", err)
	return 1
}

func runList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	all := fs.Bool("all", false, "include hidden windows")
	_ = fs.Parse(args)

	windows, err := window.List(*all)
	if err != nil {
		return fail(err)
	}

	for _, w := range windows {
		marker := " "
		if w.Hidden {
			marker = "*"
		}
		fmt.Printf("%10d %s %-24s %5dx%-5d %s\n", w.ID, marker, w.App, w.Width, w.Height, w.Title)
	}
	return 0
}

func runShot(args []string) int {
	fs := flag.NewFlagSet("shot", flag.ExitOnError)
	out := fs.String("o", "", "output path (.png)")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: winrec shot <window> [-o path]")
		return 1
	}

	win, err := window.Resolve(fs.Arg(0), false)
	if err != nil {
		return fail(err)
	}

	path, err := outpath.Resolve(*out, outpath.ModeScreenshot, win.App, time.Now())
	if err != nil {
		return fail(err)
	}

	// Screenshot mode bypasses the recording pipeline entirely: one
	// capture at native size, no scaling, no session.
	frame, err := window.Capture(win.ID)
	if err != nil {
		return fail(err)
	}
	if err := encode.WriteSnapshot(frame, path); err != nil {
		return fail(err)
	}

	fmt.Println(path)
	return 0
}

// windowSource adapts the window package to the recorder's frame source.
type windowSource struct {
	id uint64
}

func (s windowSource) Capture() (*image.RGBA, error) {
	return window.Capture(s.id)
}

func runRecord(args []string) int {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	out := fs.String("o", "", "output path (.mp4)")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: winrec record <window> [-o path]")
		return 1
	}

	// Only one recorder may run per machine; reject before touching the
	// capture target or the output path.
	if pid, err := procfind.Find(processName); err == nil {
		return fail(fmt.Errorf("another recording is already running (pid %d)", pid))
	}

	win, err := window.Resolve(fs.Arg(0), false)
	if err != nil {
		return fail(err)
	}

	path, err := outpath.Resolve(*out, outpath.ModeRecording, win.App, time.Now())
	if err != nil {
		return fail(err)
	}

	frameRate := envcfg.FrameRate()
	rec, err := record.New(record.Config{
		Source: windowSource{id: win.ID},
		OpenEncoder: func(width, height int) (record.Encoder, error) {
			return encode.Open(path, width, height, &encode.Options{FrameRate: frameRate})
		},
		FrameRate:    frameRate,
		TargetHeight: envcfg.TargetHeight(),
	})
	if err != nil {
		return fail(err)
	}

	hold := idleinhibit.Acquire("recording " + win.App)
	defer hold.Release()

	if err := rec.Start(); err != nil {
		return fail(err)
	}
	fmt.Println(path)

	// Minimal signal shim: it only forwards control commands; all session
	// state stays inside the recorder.
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		for s := range sigs {
			if s == syscall.SIGTERM {
				rec.Abort()
			} else {
				rec.Stop()
			}
		}
	}()

	if err := rec.Wait(); err != nil {
		return fail(err)
	}
	fmt.Println(path)
	return 0
}

func runSignal(verb string, deliver func(pid int) error) int {
	pid, err := procfind.Find(processName)
	if err != nil {
		return fail(fmt.Errorf("%s: %w", verb, err))
	}
	if err := deliver(pid); err != nil {
		return fail(fmt.Errorf("%s pid %d: %w", verb, pid, err))
	}
	return 0
}
