package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pendant/internal/config"
	"pendant/internal/daemon"
	"pendant/internal/deps"
	"pendant/internal/ledger"
	"pendant/internal/logging"
	"pendant/internal/notifications"
	"pendant/internal/preflight"
	"pendant/internal/scanner"
	"pendant/internal/watcher"
	"pendant/internal/workdir"
	"pendant/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the pendant daemon and blocks until SIGINT, SIGTERM, or a fatal
// orchestrator error.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("pendant-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lock, err := daemon.AcquireLock(cfg.LockPath())
	if err != nil {
		logging.ErrorWithContext(logger, "daemon lock unavailable", "daemon_lock_failed",
			logging.Error(err),
			logging.String("lock", cfg.LockPath()),
			logging.String(logging.FieldErrorHint, "stop the running pendantd before starting another"),
		)
		return err
	}
	defer lock.Release()

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update pendant.log link: %v\n", err)
	}
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := ledger.Open(cfg)
	if err != nil {
		logger.Error("open ledger", logging.Error(err))
		return err
	}
	if rec := store.Recovered(); rec.Released > 0 || rec.Failed > 0 {
		logging.WarnWithContext(logger, "recovered recordings interrupted by a previous shutdown", "ledger_recovered",
			logging.Int("released", rec.Released),
			logging.Int("failed", rec.Failed),
			logging.String(logging.FieldImpact, "released recordings are retried on the next scan"),
		)
	}
	// Nothing is in flight yet, so every work file belongs to an earlier run.
	workdir.CleanStale(signalCtx, cfg.Paths.WorkDir, 0, logger)

	pipe, err := NewPipeline(cfg, logger)
	if err != nil {
		_ = store.Close()
		return err
	}
	notifier := notifications.NewService(cfg)
	scan := scanner.NewFromConfig(cfg, logger)
	orchestrator := workflow.New(workflow.Deps{
		Volumes:  watcher.NewFromConfig(cfg, logger),
		Scanner:  scan,
		Folders:  scan,
		Pipeline: pipe,
		Ledger:   store,
		Notifier: notifier,
		Logger:   logger,
	}, workflow.OptionsFromConfig(cfg))

	d, err := daemon.New(cfg, lock, store, logger, orchestrator, notifier)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
			logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "pendant-*.log", Exclude: []string{logPath}},
		)
		return nil
	})
	g.Go(func() error {
		if err := d.Start(gctx); err != nil {
			return err
		}
		select {
		case <-gctx.Done():
		case <-d.Done():
		}
		logger.Info("pendant daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
		d.Stop()
		return d.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "pendant.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	statuses := preflight.CheckSystemDeps(cfg)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("transcription_provider", cfg.Transcription.Provider),
		logging.Bool("transcription_key_present", strings.TrimSpace(cfg.Transcription.APIKey) != ""),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("vault_dir", cfg.Paths.VaultDir),
	}
	for _, status := range statuses {
		key := strings.ToLower(status.Name)
		attrs = append(attrs, logging.Bool(key+"_available", status.Available))
		if status.Path != "" {
			attrs = append(attrs, logging.String(key+"_binary", status.Path))
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	for _, missing := range deps.MissingRequired(statuses) {
		logging.WarnWithContext(logger, "required dependency missing", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldErrorHint, missing.Description),
			logging.String(logging.FieldImpact, "the stage that runs it fails until it is installed"),
		)
	}
}
