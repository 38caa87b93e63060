package deps

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// FFmpegPathEnv overrides the ffmpeg binary location.
const FFmpegPathEnv = "PENDANT_FFMPEG_PATH"

// ResolveFFmpegPath returns the ffmpeg binary the converter should execute.
// The environment override wins, then the configured value.
func ResolveFFmpegPath(configured string) string {
	if value, ok := os.LookupEnv(FFmpegPathEnv); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return "ffmpeg"
	}
	return configured
}

// ResolveFFprobePath prefers an ffprobe installed next to the resolved ffmpeg,
// so static ffmpeg bundles use a matching ffprobe. Otherwise the configured
// value is returned.
func ResolveFFprobePath(ffmpegBinary, configured string) string {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		configured = "ffprobe"
	}
	if strings.ContainsRune(configured, filepath.Separator) {
		return configured
	}
	resolved, err := exec.LookPath(strings.TrimSpace(ffmpegBinary))
	if err != nil {
		return configured
	}
	name := "ffprobe"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	candidate := filepath.Join(filepath.Dir(resolved), name)
	if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
		return candidate
	}
	return configured
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
