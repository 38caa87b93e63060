package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// RetentionTarget names a directory and the file pattern pruned inside it.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs deletes files matching targets whose modification time is
// more than retentionDays in the past, and returns how many it removed.
// retentionDays <= 0 disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	var (
		removed int
		freed   int64
	)
	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		excluded := absSet(target.Exclude)
		matches, err := filepath.Glob(filepath.Join(dir, patternOrAll(target.Pattern)))
		if err != nil {
			continue
		}
		for _, path := range matches {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			if _, skip := excluded[path]; skip {
				continue
			}
			info, err := os.Lstat(path)
			if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check file permissions and log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			freed += info.Size()
		}
	}

	if removed > 0 {
		logger.Info("old logs pruned",
			String(FieldEventType, "log_pruned"),
			Int("files", removed),
			String("freed", humanize.Bytes(uint64(freed))),
			Int("retention_days", retentionDays),
		)
	}
	return removed
}

func patternOrAll(pattern string) string {
	if p := strings.TrimSpace(pattern); p != "" {
		return p
	}
	return "*"
}

func absSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if abs, err := filepath.Abs(trimmed); err == nil {
			set[abs] = struct{}{}
		}
	}
	return set
}
