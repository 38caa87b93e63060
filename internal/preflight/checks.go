package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"pendant/internal/config"
	"pendant/internal/deps"
)

// CheckTranscriptionService verifies that the whisper-asr webservice answers.
// Any HTTP response counts as reachable unless it rejects the API key.
func CheckTranscriptionService(ctx context.Context, baseURL, apiKey string) Result {
	const name = "Transcription service"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing api_url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/docs", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeRequestError(err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	case resp.StatusCode >= http.StatusInternalServerError:
		return Result{Name: name, Detail: fmt.Sprintf("service error (%d)", resp.StatusCode)}
	default:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", base)}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external binaries the configured pipeline runs.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	ffmpeg := deps.ResolveFFmpegPath(cfg.Conversion.FFmpegBinary)
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpeg,
			Description: "Required for WAV to MP3 conversion",
		},
		{
			Name:        "FFprobe",
			Command:     deps.ResolveFFprobePath(ffmpeg, cfg.Conversion.FFprobeBinary),
			Description: "Adds the recording duration to notes",
			Optional:    true,
		},
		{
			Name:        "lsblk",
			Command:     "lsblk",
			Description: "Lists removable volumes; /proc/self/mountinfo is used without it",
			Optional:    true,
		},
	}
	if cfg.Transcription.Provider == config.ProviderWhisperX {
		requirements = append(requirements, deps.Requirement{
			Name:        "uvx",
			Command:     "uvx",
			Description: "Required for WhisperX-driven transcription",
		})
	}
	return deps.CheckBinaries(requirements)
}

func summarizeRequestError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (service unreachable)"
	}
	return fmt.Sprintf("unreachable (%v)", err)
}
