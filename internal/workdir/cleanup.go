// Package workdir sweeps the scratch directory that holds in-progress MP3
// conversions and WhisperX output.
package workdir

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"pendant/internal/logging"
)

// CleanResult lists what a sweep removed and what it could not.
type CleanResult struct {
	Removed []string
	Freed   int64
	Errors  []CleanupError
}

// CleanupError pairs a path with its removal error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes entries of dir last modified more than maxAge ago. It
// must only run while no pipeline job is using dir.
func CleanStale(ctx context.Context, dir string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	result := CleanResult{}

	dir = strings.TrimSpace(dir)
	if dir == "" {
		return result
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		size := entrySize(path, info)
		if err := os.RemoveAll(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			if logger != nil {
				logging.WarnWithContext(logger, "failed to remove stale work file", "workdir_cleanup_failed",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check paths.work_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, path)
		result.Freed += size
	}

	if logger != nil && len(result.Removed) > 0 {
		logger.Info("removed leftovers from interrupted conversions",
			logging.String(logging.FieldEventType, "workdir_cleanup"),
			logging.Int("removed", len(result.Removed)),
			logging.String("freed", humanize.Bytes(uint64(result.Freed))),
		)
	}
	return result
}

func entrySize(path string, info os.FileInfo) int64 {
	if !info.IsDir() {
		return info.Size()
	}
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += fi.Size()
		}
		return nil
	})
	return total
}
