// Package envcfg reads optional WINREC_* environment overrides.
package envcfg

import (
	"os"
	"strconv"
	"strings"
)

func Bool(name string, defaultValue bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if v == "" {
		return defaultValue
	}

	switch v {
	case "1", "true", "on", "yes":
		return true
	case "0", "false", "off", "no":
		return false
	default:
		return defaultValue
	}
}

func IntClamped(name string, defaultValue, minValue, maxValue int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}

	if minValue <= maxValue {
		if n < minValue {
			n = minValue
		}
		if n > maxValue {
			n = maxValue
		}
	}

	return n
}

func String(name, defaultValue string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return defaultValue
	}
	return v
}

// Capture and encoding knobs. Defaults match the recorder's reference
// behavior; clamps protect ffmpeg from nonsensical values.
func FrameRate() int {
	return IntClamped("WINREC_FPS", 60, 1, 120)
}

func TargetHeight() int {
	return IntClamped("WINREC_HEIGHT", 720, 120, 4320)
}

func FFmpegPath() string {
	return String("WINREC_FFMPEG", "ffmpeg")
}
