package encode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"go2tv.app/winrec/internal/envcfg"
	"go2tv.app/winrec/internal/processutil"
)

const encoderProbeTimeout = 5 * time.Second

// encoderPlan is one concrete H.264 encoding configuration: a codec, its
// arguments, and the pixel-format filter it needs.
type encoderPlan struct {
	label       string
	codec       string
	hardware    bool
	globalArgs  []string
	videoFilter string
	codecArgs   []string
}

// selectEncoderPlan probes platform hardware H.264 encoders and falls back
// to libx264. A probe encodes a few synthetic frames; failures mean the
// driver stack is absent or broken, not that recording is impossible.
func selectEncoderPlan(ffmpegPath string, fps int, logger zerolog.Logger) encoderPlan {
	software := softwareEncoderPlan(fps)

	if !envcfg.Bool("WINREC_HWACCEL", true) {
		return software
	}

	candidates := hardwareEncoderCandidates(fps)
	if len(candidates) == 0 {
		return software
	}

	if _, err := exec.LookPath(ffmpegPath); err != nil {
		logger.Debug().Str("path", ffmpegPath).Err(err).Msg("ffmpeg lookup failed")
		return software
	}

	available, err := ffmpegEncoderSet(ffmpegPath)
	if err != nil {
		logger.Debug().Err(err).Msg("listing ffmpeg encoders failed")
	}

	for _, candidate := range candidates {
		if len(available) > 0 {
			if _, ok := available[candidate.codec]; !ok {
				logger.Debug().Str("encoder", candidate.label).Msg("not in ffmpeg encoder list")
				continue
			}
		}
		if err := probeEncoderPlan(ffmpegPath, candidate); err == nil {
			logger.Info().Str("encoder", candidate.label).Msg("using hardware encoder")
			return candidate
		} else {
			logger.Debug().Str("encoder", candidate.label).Err(err).Msg("encoder probe failed")
		}
	}

	logger.Info().Str("encoder", software.label).Msg("using software encoder")
	return software
}

func ffmpegEncoderSet(ffmpegPath string) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), encoderProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders")
	processutil.HideConsoleWindow(cmd)
	out, err := cmd.Output()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("ffmpeg -encoders timeout after %s", encoderProbeTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -encoders failed: %w", err)
	}

	encoders := make(map[string]struct{})
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 {
			continue
		}
		// format is usually: " V..... h264_nvenc ...", where fields[0] is flags and fields[1] is encoder name.
		if strings.Contains(fields[0], "V") {
			encoders[fields[1]] = struct{}{}
		}
	}
	return encoders, nil
}

func probeEncoderPlan(ffmpegPath string, plan encoderPlan) error {
	ctx, cancel := context.WithTimeout(context.Background(), encoderProbeTimeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-nostdin",
	}
	args = append(args, plan.globalArgs...)
	args = append(args,
		"-f", "lavfi",
		"-i", "color=c=black:s=1280x720:r=30:d=0.5",
		"-an",
		"-frames:v", "8",
		"-r", "30",
	)
	if strings.TrimSpace(plan.videoFilter) != "" {
		args = append(args, "-vf", plan.videoFilter)
	}
	args = append(args, plan.codecArgs...)
	args = append(args, "-f", "null", "-")

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	processutil.HideConsoleWindow(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return fmt.Errorf("probe timeout after %s", encoderProbeTimeout)
	}
	if err != nil {
		return fmt.Errorf("probe failed: %w: %s", err, tailString(strings.TrimSpace(stderr.String()), 240))
	}
	return nil
}

// baseFilter clamps both dimensions to even values, which yuv420p encoders
// require and which an aspect-preserving width computation can violate.
const baseFilter = "scale=trunc(iw/2)*2:trunc(ih/2)*2"

func hardwareEncoderCandidates(fps int) []encoderPlan {
	switch runtime.GOOS {
	case "darwin":
		return []encoderPlan{
			hardwareEncoderPlan("h264_videotoolbox", "h264_videotoolbox", nil, baseFilter+",format=yuv420p", fps),
		}
	case "windows":
		return []encoderPlan{
			hardwareEncoderPlan("h264_nvenc", "h264_nvenc", nil, baseFilter+",format=yuv420p", fps),
			hardwareEncoderPlan("h264_amf", "h264_amf", nil, baseFilter+",format=yuv420p", fps),
			hardwareEncoderPlan("h264_qsv", "h264_qsv", nil, baseFilter+",format=nv12", fps),
		}
	default:
		candidates := []encoderPlan{
			hardwareEncoderPlan("h264_nvenc", "h264_nvenc", nil, baseFilter+",format=yuv420p", fps),
		}

		devices, err := filepath.Glob("/dev/dri/renderD*")
		if err == nil {
			for _, dev := range devices {
				label := fmt.Sprintf("h264_vaapi (%s)", dev)
				candidates = append(candidates, hardwareEncoderPlan("h264_vaapi", label, []string{"-vaapi_device", dev}, baseFilter+",format=nv12,hwupload", fps))
			}
		}

		candidates = append(candidates, hardwareEncoderPlan("h264_qsv", "h264_qsv", nil, baseFilter+",format=nv12", fps))
		return candidates
	}
}

func hardwareEncoderPlan(codec, label string, globalArgs []string, filter string, fps int) encoderPlan {
	return encoderPlan{
		label:       label,
		codec:       codec,
		hardware:    true,
		globalArgs:  append([]string(nil), globalArgs...),
		videoFilter: filter,
		codecArgs: []string{
			"-c:v", codec,
			"-b:v", "4000k",
			"-maxrate", "5000k",
			"-bufsize", "10000k",
			"-g", gopArg(fps),
		},
	}
}

func softwareEncoderPlan(fps int) encoderPlan {
	return encoderPlan{
		label:       "libx264",
		codec:       "libx264",
		hardware:    false,
		videoFilter: baseFilter,
		codecArgs: []string{
			"-c:v", "libx264",
			"-preset", "ultrafast",
			"-tune", "zerolatency",
			"-b:v", "4000k",
			"-maxrate", "5000k",
			"-bufsize", "10000k",
			"-pix_fmt", "yuv420p",
			"-g", gopArg(fps),
			"-keyint_min", gopArg(fps),
			"-sc_threshold", "0",
		},
	}
}

// gopArg spaces keyframes two seconds apart.
func gopArg(fps int) string {
	return strconv.Itoa(fps * 2)
}

func tailString(input string, max int) string {
	if input == "" {
		return "no ffmpeg stderr output"
	}
	if max <= 0 || len(input) <= max {
		return input
	}
	return input[len(input)-max:]
}
