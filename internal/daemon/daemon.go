package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"pendant/internal/config"
	"pendant/internal/ledger"
	"pendant/internal/logging"
	"pendant/internal/notifications"
	"pendant/internal/workflow"
)

// Runner is the orchestrator surface the daemon drives.
type Runner interface {
	Run(ctx context.Context) error
	Status() workflow.Status
}

// LedgerStore is the ledger surface the daemon reports on and closes.
type LedgerStore interface {
	Stats(ctx context.Context) (map[ledger.Status]int, error)
	Close() error
}

// Daemon coordinates the orchestrator for the holder of the instance lock.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	lock     *InstanceLock
	ledger   LedgerStore
	runner   Runner
	notifier notifications.Service

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.Status
	Ledger       map[ledger.Status]int
	LedgerPath   string
	LockFilePath string
}

// New constructs a daemon. The caller must already hold lock.
func New(cfg *config.Config, lock *InstanceLock, store LedgerStore, logger *slog.Logger, runner Runner, notifier notifications.Service) (*Daemon, error) {
	if cfg == nil || lock == nil || store == nil || runner == nil {
		return nil, errors.New("daemon requires config, instance lock, ledger, and orchestrator")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lock:     lock,
		ledger:   store,
		runner:   runner,
		notifier: notifier,
	}, nil
}

// Start runs the orchestrator in the background.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.runErr = nil
	d.running.Store(true)

	done := d.done
	go func() {
		defer close(done)
		err := d.runner.Run(runCtx)
		d.mu.Lock()
		d.runErr = err
		d.mu.Unlock()
		if err != nil {
			logging.ErrorWithContext(d.logger, "orchestrator exited with error", "orchestrator_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the watcher and ledger configuration"),
				logging.String(logging.FieldImpact, "recordings are not processed until the daemon restarts"),
			)
		}
	}()

	d.logger.Info("pendant daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lock.Path()),
	)
	return nil
}

// Done is closed when the orchestrator returns. It is nil before Start.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Err returns the orchestrator's exit error once Done is closed.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// Stop cancels the orchestrator and waits for in-flight jobs to reach an
// outcome.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	d.running.Store(false)
	d.logger.Info("pendant daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon, closes the ledger, and releases the instance lock.
func (d *Daemon) Close() error {
	d.Stop()
	err := d.ledger.Close()
	if unlockErr := d.lock.Release(); unlockErr != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(unlockErr),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	return err
}

// Status returns the current daemon status. Ledger counts are omitted when
// the ledger cannot be read.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Workflow:     d.runner.Status(),
		LedgerPath:   d.cfg.LedgerPath(),
		LockFilePath: d.lock.Path(),
	}
	if stats, err := d.ledger.Stats(ctx); err == nil {
		status.Ledger = stats
	} else {
		d.logger.Debug("ledger stats unavailable", logging.Error(err))
	}
	return status
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
