package scanner

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pendant/internal/config"
	"pendant/internal/logging"
	"pendant/internal/watcher"
)

// Options configures a Scanner.
type Options struct {
	TargetFolder string
	Extensions   []string
	Settle       time.Duration
	Logger       *slog.Logger
}

// Result summarizes one scan of a volume.
type Result struct {
	Folder     string
	Candidates []Candidate
	Unstable   []string
	Skipped    []string
}

// Scanner lists stable recordings below a volume's target folder.
type Scanner struct {
	target     string
	extensions map[string]struct{}
	settle     time.Duration
	logger     *slog.Logger
}

// New constructs a Scanner.
func New(opts Options) *Scanner {
	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	if len(exts) == 0 {
		exts[".wav"] = struct{}{}
	}
	target := strings.TrimSpace(opts.TargetFolder)
	if target == "" {
		target = "RECORD"
	}
	return &Scanner{
		target:     target,
		extensions: exts,
		settle:     opts.Settle,
		logger:     logging.NewComponentLogger(opts.Logger, "scanner"),
	}
}

// NewFromConfig constructs a Scanner from the [scanner] section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Scanner {
	return New(Options{
		TargetFolder: cfg.Scanner.TargetFolder,
		Extensions:   cfg.Scanner.Extensions,
		Settle:       cfg.SettleInterval(),
		Logger:       logger,
	})
}

// SettleInterval returns the gap between the two observations of a scan.
func (s *Scanner) SettleInterval() time.Duration {
	return s.settle
}

// Folder resolves the target folder below mountPoint, matching its name
// case-insensitively. ok is false when no such directory exists.
func (s *Scanner) Folder(mountPoint string) (string, bool, error) {
	exact := filepath.Join(mountPoint, s.target)
	if info, err := os.Stat(exact); err == nil && info.IsDir() {
		return exact, true, nil
	}
	entries, err := os.ReadDir(mountPoint)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.EqualFold(entry.Name(), s.target) {
			return filepath.Join(mountPoint, entry.Name()), true, nil
		}
	}
	return "", false, nil
}

// Scan observes every recording in the volume's target folder twice and
// returns the ones that did not change. Cancelling ctx during the settle wait
// returns an empty result and the context error.
func (s *Scanner) Scan(ctx context.Context, volume watcher.Volume) (Result, error) {
	logger := s.logger.With(
		logging.String(logging.FieldDevice, volume.DeviceID),
		logging.String("mount_point", volume.MountPoint),
	)

	folder, ok, err := s.Folder(volume.MountPoint)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		logger.Debug("target folder not present", logging.String("target_folder", s.target))
		return Result{}, nil
	}
	result := Result{Folder: folder}

	first, skipped := s.observeFolder(logger, folder)
	result.Skipped = append(result.Skipped, skipped...)
	if len(first) == 0 {
		return result, nil
	}

	if err := sleepContext(ctx, s.settle); err != nil {
		return Result{Folder: folder}, err
	}

	for _, before := range first {
		after, err := Observe(before.Path)
		if err != nil {
			logger.Warn("recording could not be re-read; skipping",
				logging.String("file", before.Name),
				logging.Error(err),
				logging.String(logging.FieldEventType, "scan_file_skipped"),
			)
			result.Skipped = append(result.Skipped, before.Name)
			continue
		}
		if !Stable(before, after) {
			logger.Debug("recording still changing",
				logging.String("file", before.Name),
				logging.Int64("size_bytes", after.Size),
			)
			result.Unstable = append(result.Unstable, before.Name)
			continue
		}
		result.Candidates = append(result.Candidates, Candidate{
			Path:     after.Path,
			Name:     after.Name,
			Size:     after.Size,
			ModTime:  after.ModTime,
			Identity: after.Identity(),
		})
	}

	logger.Debug("scan complete",
		logging.String(logging.FieldEventType, "scan_complete"),
		logging.Int("candidates", len(result.Candidates)),
		logging.Int("unstable", len(result.Unstable)),
		logging.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

func (s *Scanner) observeFolder(logger *slog.Logger, folder string) ([]Observation, []string) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		logger.Warn("target folder unreadable",
			logging.String("folder", folder),
			logging.Error(err),
			logging.String(logging.FieldEventType, "scan_folder_unreadable"),
		)
		return nil, nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var (
		observed []Observation
		skipped  []string
	)
	for _, entry := range entries {
		if entry.IsDir() || !s.Accepts(entry.Name()) {
			continue
		}
		obs, err := Observe(filepath.Join(folder, entry.Name()))
		if err != nil {
			logger.Warn("recording unreadable; skipping",
				logging.String("file", entry.Name()),
				logging.Error(err),
				logging.String(logging.FieldEventType, "scan_file_skipped"),
			)
			skipped = append(skipped, entry.Name())
			continue
		}
		observed = append(observed, obs)
	}
	return observed, skipped
}

// Accepts reports whether name has one of the configured extensions.
func (s *Scanner) Accepts(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	_, ok := s.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
