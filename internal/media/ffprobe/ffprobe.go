package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Runner executes ffprobe and returns its combined output.
type Runner func(ctx context.Context, binary string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, binary, args...).CombinedOutput() //nolint:gosec
}

// Prober inspects audio files with a fixed ffprobe binary.
type Prober struct {
	binary string
	run    Runner
}

// NewProber returns a Prober. A nil runner executes the real binary.
func NewProber(binary string, run Runner) *Prober {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if run == nil {
		run = execRunner
	}
	return &Prober{binary: binary, run: run}
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func (p *Prober) Inspect(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	output, err := p.run(ctx, p.binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// Duration returns the playback length of path.
func (p *Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	result, err := p.Inspect(ctx, path)
	if err != nil {
		return 0, err
	}
	return result.Duration(), nil
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// Duration returns the container duration, falling back to the first audio
// stream, or 0 when neither is reported.
func (r Result) Duration() time.Duration {
	seconds := r.DurationSeconds()
	if math.IsNaN(seconds) || seconds <= 0 {
		seconds = 0
		for _, stream := range r.Streams {
			if strings.EqualFold(stream.CodecType, "audio") {
				if v := parseFloat(stream.Duration); !math.IsNaN(v) && v > 0 {
					seconds = v
					break
				}
			}
		}
	}
	return time.Duration(seconds * float64(time.Second))
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// BitRate returns the container bitrate in bits per second, or 0 when unavailable.
func (r Result) BitRate() int64 {
	rate := parseFloat(r.Format.BitRate)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return int64(rate)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
