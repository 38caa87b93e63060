package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"pendant/internal/config"
	"pendant/internal/logging"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultDebounce     = 500 * time.Millisecond
	listTimeout         = 10 * time.Second
)

// ErrStopped is returned when Start is called on a stopped Watcher.
var ErrStopped = errors.New("watcher stopped")

// Options configures a Watcher.
type Options struct {
	Lister       VolumeLister
	PollInterval time.Duration
	UseNetlink   bool
	// Debounce delays the reconcile that follows a uevent; mounting happens
	// asynchronously after the kernel announces the partition.
	Debounce     time.Duration
	RescanDelays []time.Duration
	Logger       *slog.Logger
}

// Watcher emits Attached and Detached events for removable volumes.
type Watcher struct {
	lister       VolumeLister
	logger       *slog.Logger
	pollInterval time.Duration
	debounce     time.Duration
	rescanDelays []time.Duration
	uevents      *ueventMonitor

	events  chan Event
	trigger chan struct{}
	uevent  chan struct{}

	mu      sync.Mutex
	known   map[string]Volume
	manual  map[string]Volume
	forced  map[string]bool
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Watcher. Start must be called before events flow.
func New(opts Options) *Watcher {
	logger := logging.NewComponentLogger(opts.Logger, "watcher")
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	delays := opts.RescanDelays
	if delays == nil {
		delays = []time.Duration{2 * time.Second, 5 * time.Second}
	}
	w := &Watcher{
		lister:       opts.Lister,
		logger:       logger,
		pollInterval: poll,
		debounce:     debounce,
		rescanDelays: delays,
		events:       make(chan Event, 16),
		trigger:      make(chan struct{}, 1),
		uevent:       make(chan struct{}, 1),
		known:        make(map[string]Volume),
		manual:       make(map[string]Volume),
		forced:       make(map[string]bool),
	}
	if opts.UseNetlink {
		w.uevents = newUeventMonitor(logger, func(string, string) { kick(w.uevent) })
	}
	return w
}

// ListerFromConfig lists removable volumes with lsblk and falls back to
// mountinfo under the configured mount roots.
func ListerFromConfig(cfg *config.Config, logger *slog.Logger) VolumeLister {
	return FallbackLister{
		Primary:   LsblkLister{Runner: ExecRunner{}, Timeout: listTimeout},
		Secondary: MountInfoLister{Roots: cfg.Watcher.MountRoots},
		Logger:    logger,
	}
}

// NewFromConfig builds a Watcher over ListerFromConfig.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Watcher {
	return New(Options{
		Lister:       ListerFromConfig(cfg, logger),
		PollInterval: cfg.PollInterval(),
		UseNetlink:   cfg.Watcher.UseNetlink,
		Logger:       logger,
	})
}

// Events returns the event channel. It is closed by Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start runs an initial reconcile and begins watching. Calling Start twice is
// a no-op; a stopped Watcher cannot be restarted.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrStopped
	}
	if w.started {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.started = true

	if w.uevents != nil {
		w.uevents.Start(runCtx)
	}

	w.wg.Add(1)
	go w.loop(runCtx)

	w.logger.Info("volume watcher started",
		logging.String(logging.FieldEventType, "watcher_started"),
		logging.Duration("poll_interval", w.pollInterval),
		logging.Bool("netlink", w.uevents.Running()),
	)
	return nil
}

// Stop halts detection and closes the events channel. It is idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	cancel := w.cancel
	started := w.started
	w.mu.Unlock()

	w.uevents.Stop()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	close(w.events)
	if started {
		w.logger.Info("volume watcher stopped",
			logging.String(logging.FieldEventType, "watcher_stopped"),
		)
	}
}

// ScanNow registers dir as a manually attached volume and requests a
// reconcile. An Attached event is emitted even when the directory is already
// known, so callers can force a rescan.
func (w *Watcher) ScanNow(mountPoint string) (Volume, error) {
	volume, err := ManualVolume(mountPoint)
	if err != nil {
		return Volume{}, err
	}
	w.mu.Lock()
	w.manual[volume.MountPoint] = volume
	w.forced[volume.key()] = true
	w.mu.Unlock()
	kick(w.trigger)
	return volume, nil
}

// Known returns the attached volumes in mount point order.
func (w *Watcher) Known() []Volume {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Volume, 0, len(w.known))
	for _, v := range w.known {
		out = append(out, v)
	}
	sortVolumes(out)
	return out
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	w.reconcile(ctx)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	debounce := time.NewTimer(w.debounce)
	debounce.Stop()
	defer debounce.Stop()

	var delayed []*time.Timer
	defer func() {
		for _, t := range delayed {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reconcile(ctx)
		case <-w.trigger:
			w.reconcile(ctx)
		case <-w.uevent:
			debounce.Reset(w.debounce)
			for _, t := range delayed {
				t.Stop()
			}
			delayed = delayed[:0]
			for _, d := range w.rescanDelays {
				delayed = append(delayed, time.AfterFunc(d, func() { kick(w.trigger) }))
			}
		case <-debounce.C:
			w.reconcile(ctx)
		}
	}
}

// reconcile diffs the current volume set against the known set and emits the
// differences. Listing failures keep the known set unchanged.
func (w *Watcher) reconcile(ctx context.Context) {
	var current []Volume
	if w.lister != nil {
		listed, err := w.lister.List(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("volume listing failed; keeping previous volume set",
				logging.Error(err),
				logging.String(logging.FieldEventType, "volume_list_failed"),
				logging.String(logging.FieldErrorHint, "check that lsblk is installed or mount roots are readable"),
			)
			current = w.knownListed()
		} else {
			current = listed
		}
	}

	w.mu.Lock()
	for mount, volume := range w.manual {
		if info, err := os.Stat(mount); err != nil || !info.IsDir() {
			delete(w.manual, mount)
			continue
		}
		current = append(current, volume)
	}

	next := make(map[string]Volume, len(current))
	for _, v := range current {
		v.State = StateAttached
		next[v.key()] = v
	}

	var detached, attached []Volume
	for key, old := range w.known {
		if _, ok := next[key]; !ok {
			old.State = StateDetached
			detached = append(detached, old)
		}
	}
	for key, v := range next {
		if _, ok := w.known[key]; !ok || w.forced[key] {
			attached = append(attached, v)
		}
	}
	sortVolumes(detached)
	sortVolumes(attached)
	events := make([]Event, 0, len(detached)+len(attached))
	for _, v := range detached {
		events = append(events, Event{Type: EventDetached, Volume: v})
	}
	for _, v := range attached {
		events = append(events, Event{Type: EventAttached, Volume: v})
	}
	w.known = next
	w.forced = make(map[string]bool)
	w.mu.Unlock()

	for _, evt := range events {
		w.logger.Info("volume "+string(evt.Type),
			logging.String(logging.FieldEventType, "volume_"+string(evt.Type)),
			logging.String(logging.FieldDevice, evt.Volume.DeviceID),
			logging.String("mount_point", evt.Volume.MountPoint),
			logging.String("label", evt.Volume.Label),
		)
		select {
		case w.events <- evt:
		case <-ctx.Done():
			return
		}
	}
}

// knownListed returns the known volumes that did not come from ScanNow.
func (w *Watcher) knownListed() []Volume {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Volume, 0, len(w.known))
	for _, v := range w.known {
		if _, manual := w.manual[v.MountPoint]; manual {
			continue
		}
		out = append(out, v)
	}
	return out
}

func kick(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
