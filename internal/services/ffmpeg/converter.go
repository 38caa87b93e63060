package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"pendant/internal/services"
)

// Runner executes ffmpeg and returns its combined output.
type Runner func(ctx context.Context, binary string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, binary, args...).CombinedOutput() //nolint:gosec
}

// FreeSpaceFunc reports available bytes on the filesystem holding dir.
type FreeSpaceFunc func(dir string) (uint64, error)

func statfsFree(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// Options configures a Converter.
type Options struct {
	Binary  string
	Bitrate string
	WorkDir string
	Runner  Runner
	Free    FreeSpaceFunc
}

// Converter turns a WAV recording into an MP3 inside WorkDir.
type Converter struct {
	binary  string
	bitrate string
	workDir string
	run     Runner
	free    FreeSpaceFunc
}

// New builds a Converter; zero-valued options fall back to the real ffmpeg and statfs.
func New(opts Options) *Converter {
	c := &Converter{
		binary:  strings.TrimSpace(opts.Binary),
		bitrate: strings.TrimSpace(opts.Bitrate),
		workDir: opts.WorkDir,
		run:     opts.Runner,
		free:    opts.Free,
	}
	if c.binary == "" {
		c.binary = "ffmpeg"
	}
	if c.bitrate == "" {
		c.bitrate = "128k"
	}
	if c.workDir == "" {
		c.workDir = os.TempDir()
	}
	if c.run == nil {
		c.run = execRunner
	}
	if c.free == nil {
		c.free = statfsFree
	}
	return c
}

// minimum headroom kept free on the work filesystem beyond the estimate.
const headroomBytes = 16 << 20

// Convert encodes src to MP3 and returns the output path. The caller owns the
// returned file.
func (c *Converter) Convert(ctx context.Context, src string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, "conversion", "stat", "source vanished", err)
		}
		return "", services.Wrap(services.ErrTransient, "conversion", "stat", "source unreadable", err)
	}
	if info.Size() == 0 {
		return "", services.Wrap(services.ErrCorruptInput, "conversion", "inspect", "source is empty", nil)
	}
	if strings.EqualFold(filepath.Ext(src), ".wav") {
		if err := checkWAVHeader(src); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(c.workDir, 0o755); err != nil {
		return "", classifyWriteError("prepare work dir", err)
	}
	if avail, err := c.free(c.workDir); err == nil {
		// 128 kbit/s MP3 from 16-bit PCM is well under a quarter of the input.
		need := uint64(info.Size()/4) + headroomBytes
		if avail < need {
			return "", services.Wrap(services.ErrStorageExhausted, "conversion", "preflight",
				fmt.Sprintf("need %d bytes in %s, %d available", need, c.workDir, avail), nil)
		}
	}

	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	dest := filepath.Join(c.workDir, fmt.Sprintf("%s.%s.mp3", stem, uuid.NewString()[:8]))
	partial := dest + ".part"

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
		"-vn",
		"-codec:a", "libmp3lame",
		"-b:a", c.bitrate,
		"-f", "mp3",
		partial,
	}
	output, runErr := c.run(ctx, c.binary, args...)
	if runErr != nil {
		_ = os.Remove(partial)
		return "", classifyRunError(runErr, output)
	}

	if err := verifyMP3(partial); err != nil {
		_ = os.Remove(partial)
		return "", err
	}
	if err := os.Rename(partial, dest); err != nil {
		_ = os.Remove(partial)
		return "", classifyWriteError("finalize output", err)
	}
	return dest, nil
}

func checkWAVHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return services.Wrap(services.ErrTransient, "conversion", "open", "source unreadable", err)
	}
	defer f.Close()
	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return services.Wrap(services.ErrCorruptInput, "conversion", "inspect", "truncated WAV header", nil)
		}
		return services.Wrap(services.ErrTransient, "conversion", "read", "source unreadable", err)
	}
	if !bytes.Equal(header[0:4], []byte("RIFF")) && !bytes.Equal(header[0:4], []byte("RF64")) {
		return services.Wrap(services.ErrCorruptInput, "conversion", "inspect", "missing RIFF header", nil)
	}
	if !bytes.Equal(header[8:12], []byte("WAVE")) {
		return services.Wrap(services.ErrCorruptInput, "conversion", "inspect", "RIFF container is not WAVE", nil)
	}
	return nil
}

// verifyMP3 confirms ffmpeg produced a non-empty file the tag reader recognises as MP3.
func verifyMP3(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "conversion", "verify", "output missing", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, "conversion", "verify", "output is empty", err)
	}
	_, fileType, err := tag.Identify(f)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "conversion", "verify", "identify output", err)
	}
	if fileType != tag.MP3 {
		return services.Wrap(services.ErrExternalTool, "conversion", "verify",
			fmt.Sprintf("output identified as %q, not MP3", fileType), nil)
	}
	return nil
}

var (
	corruptMarkers = []string{
		"invalid data found when processing input",
		"could not find codec parameters",
		"invalid riff header",
		"invalid wav header",
		"error while decoding",
		"header missing",
		"end of file",
	}
	codecMarkers = []string{
		"unknown codec",
		"decoder not found",
		"unsupported codec",
		"codec not currently supported",
		"not supported by this decoder",
	}
)

func classifyRunError(err error, output []byte) error {
	text := strings.ToLower(string(output))
	detail := strings.TrimSpace(string(output))
	if len(detail) > 400 {
		detail = detail[len(detail)-400:]
	}
	wrapped := fmt.Errorf("%w: %s", err, detail)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "conversion", "ffmpeg", "run exceeded deadline", wrapped)
	case errors.Is(err, unix.ENOSPC), strings.Contains(text, "no space left on device"):
		return services.Wrap(services.ErrStorageExhausted, "conversion", "ffmpeg", "disk full", wrapped)
	case errors.Is(err, exec.ErrNotFound):
		return services.Wrap(services.ErrExternalTool, "conversion", "ffmpeg", "binary not found", err)
	}
	for _, marker := range codecMarkers {
		if strings.Contains(text, marker) {
			return services.Wrap(services.ErrCodecUnsupported, "conversion", "ffmpeg", "decode", wrapped)
		}
	}
	for _, marker := range corruptMarkers {
		if strings.Contains(text, marker) {
			return services.Wrap(services.ErrCorruptInput, "conversion", "ffmpeg", "decode", wrapped)
		}
	}
	return services.Wrap(services.ErrExternalTool, "conversion", "ffmpeg", "run failed", wrapped)
}

func classifyWriteError(operation string, err error) error {
	if errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EDQUOT) {
		return services.Wrap(services.ErrStorageExhausted, "conversion", operation, "disk full", err)
	}
	return services.Wrap(services.ErrWriteFailed, "conversion", operation, "", err)
}
