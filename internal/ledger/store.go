package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"pendant/internal/config"
)

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db       *sql.DB
	path     string
	now      func() time.Time
	recovery Recovery
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 8
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 250 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// immediate runs fn inside a BEGIN IMMEDIATE transaction on a dedicated
// connection, so the write lock is taken before anything is read.
func (s *Store) immediate(ctx context.Context, fn func(conn *sql.Conn) error) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
			return err
		}
		if err := fn(conn); err != nil {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
			return err
		}
		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
			return err
		}
		return nil
	})
}

// Open opens the ledger at the configured state path.
func Open(cfg *config.Config) (*Store, error) {
	if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure state directory: %w", err)
	}
	return OpenPath(cfg.LedgerPath())
}

// OpenPath opens or creates the ledger database at path and releases entries
// left held by a previous process. Only the process that owns the daemon lock
// may call it while a daemon could be running.
func OpenPath(path string) (*Store, error) {
	return openPath(path, true)
}

// OpenShared opens the ledger without touching held entries, for tools that
// run next to a live daemon.
func OpenShared(cfg *config.Config) (*Store, error) {
	return openPath(cfg.LedgerPath(), false)
}

func openPath(path string, recoverHeld bool) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure ledger directory: %w", err)
		}
	}
	query := url.Values{}
	query.Add("_pragma", "busy_timeout(5000)")
	query.Add("_pragma", "journal_mode(WAL)")
	query.Add("_pragma", "synchronous(NORMAL)")
	dsn := "file:" + path + "?" + query.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes in-process writers; other processes
	// rely on busy_timeout.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, path: path, now: time.Now}
	ctx := context.Background()
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if !recoverHeld {
		return store, nil
	}
	recovery, err := store.recoverInterrupted(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.recovery = recovery
	return store, nil
}

// Recovered reports what Open did with entries held at the last shutdown.
func (s *Store) Recovered() Recovery {
	return s.recovery
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}
