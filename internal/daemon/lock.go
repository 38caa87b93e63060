package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another daemon instance holds the lock.
var ErrLocked = errors.New("another pendant daemon instance is already running")

// InstanceLock is the single-instance lock held for the daemon's lifetime.
// It must be acquired before the ledger is opened, since opening the ledger
// releases entries held by a previous process.
type InstanceLock struct {
	path string
	f    *flock.Flock
}

// AcquireLock takes the lock at path without blocking.
func AcquireLock(path string) (*InstanceLock, error) {
	f := flock.New(path)
	ok, err := f.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &InstanceLock{path: path, f: f}, nil
}

// Path returns the lock file location.
func (l *InstanceLock) Path() string {
	return l.path
}

// Release unlocks. It is safe to call more than once.
func (l *InstanceLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Unlock()
}

// LockHeld reports whether a daemon currently holds the lock at path. It
// probes with a non-blocking lock and releases it immediately.
func LockHeld(path string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	probe := flock.New(path)
	ok, err := probe.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock: %w", err)
	}
	if ok {
		_ = probe.Unlock()
		return false, nil
	}
	return true, nil
}

// ReadPID returns the pid recorded in a daemon pid file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", path, err)
	}
	return pid, nil
}
