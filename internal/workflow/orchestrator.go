package workflow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"pendant/internal/config"
	"pendant/internal/logging"
	"pendant/internal/notifications"
	"pendant/internal/watcher"
)

// Deps are the collaborators an Orchestrator coordinates.
type Deps struct {
	Volumes  VolumeSource
	Scanner  VolumeScanner
	Folders  FolderWatcher
	Pipeline Processor
	Ledger   Ledger
	Notifier notifications.Service
	Logger   *slog.Logger
}

// Options sizes and paces the Orchestrator.
type Options struct {
	Workers        int
	RescanInterval time.Duration
	WatchFolders   bool
}

// OptionsFromConfig reads the [workflow] and [scanner] sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Workers:        cfg.Workflow.Workers,
		RescanInterval: cfg.RescanInterval(),
		WatchFolders:   cfg.Scanner.WatchFolder,
	}
}

// Orchestrator turns volume events into scans and scans into pipeline jobs.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger

	scanDone chan *volumeState
	rescan   chan string

	mu       sync.RWMutex
	running  bool
	volumes  map[string]*volumeState
	lastErr  error
	started  time.Time
	inFlight atomic.Int64
	counters counters
}

type volumeState struct {
	volume   watcher.Volume
	ctx      context.Context
	cancel   context.CancelFunc
	scanning bool
	pending  bool
	scans    int
}

type counters struct {
	claimed   atomic.Int64
	done      atomic.Int64
	failed    atomic.Int64
	transient atomic.Int64
	abandoned atomic.Int64
}

// New constructs an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 2
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(nil)
	}
	return &Orchestrator{
		deps:     deps,
		opts:     opts,
		logger:   logging.NewComponentLogger(deps.Logger, "workflow"),
		scanDone: make(chan *volumeState),
		rescan:   make(chan string, 8),
		volumes:  make(map[string]*volumeState),
	}
}

func (o *Orchestrator) setLastError(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
}
