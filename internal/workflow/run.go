package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"pendant/internal/logging"
	"pendant/internal/watcher"
)

// ErrAlreadyRunning is returned when Run is called concurrently.
var ErrAlreadyRunning = errors.New("orchestrator already running")

// Run processes volume events until ctx ends. On return the volume source is
// stopped, every scan has finished, and every claimed job has reached an
// outcome.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.running = true
	o.started = time.Now()
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	if o.deps.Volumes == nil || o.deps.Scanner == nil || o.deps.Pipeline == nil || o.deps.Ledger == nil {
		return errors.New("orchestrator dependencies incomplete")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := o.deps.Volumes.Start(runCtx); err != nil {
		return err
	}

	jobs := pool.New().WithMaxGoroutines(o.opts.Workers)
	var scans, watches sync.WaitGroup

	o.logger.Info("orchestrator started",
		logging.String(logging.FieldEventType, "orchestrator_started"),
		logging.Int("workers", o.opts.Workers),
		logging.Duration("rescan_interval", o.opts.RescanInterval),
	)

	var rescanC <-chan time.Time
	if o.opts.RescanInterval > 0 {
		ticker := time.NewTicker(o.opts.RescanInterval)
		defer ticker.Stop()
		rescanC = ticker.C
	}

	events := o.deps.Volumes.Events()
	for {
		select {
		case <-runCtx.Done():
			events = nil
		case evt, ok := <-events:
			if !ok {
				events = nil
				cancel()
				continue
			}
			o.handleEvent(runCtx, evt, jobs, &scans, &watches)
		case st := <-o.scanDone:
			o.finishScan(runCtx, st, jobs, &scans)
		case id := <-o.rescan:
			o.mu.Lock()
			st := o.volumes[id]
			o.mu.Unlock()
			if st != nil {
				o.startScan(runCtx, st, jobs, &scans, true)
			}
		case <-rescanC:
			for _, st := range o.attachedStates() {
				o.startScan(runCtx, st, jobs, &scans, false)
			}
		}
		if runCtx.Err() != nil {
			break
		}
	}

	o.shutdown(jobs, &scans, &watches)
	return nil
}

func (o *Orchestrator) shutdown(jobs *pool.Pool, scans, watches *sync.WaitGroup) {
	o.logger.Debug("orchestrator stopping")
	o.deps.Volumes.Stop()

	o.mu.Lock()
	for id, st := range o.volumes {
		st.cancel()
		delete(o.volumes, id)
	}
	o.mu.Unlock()

	scans.Wait()
	watches.Wait()
	jobs.Wait()

	o.logger.Info("orchestrator stopped",
		logging.String(logging.FieldEventType, "orchestrator_stopped"),
		logging.Int64("done", o.counters.done.Load()),
		logging.Int64("failed", o.counters.failed.Load()),
	)
}

func (o *Orchestrator) handleEvent(ctx context.Context, evt watcher.Event, jobs *pool.Pool, scans, watches *sync.WaitGroup) {
	volume := evt.Volume
	id := volume.DeviceID
	switch evt.Type {
	case watcher.EventAttached:
		o.mu.Lock()
		st, ok := o.volumes[id]
		if !ok {
			vctx, vcancel := context.WithCancel(ctx)
			st = &volumeState{volume: volume, ctx: vctx, cancel: vcancel}
			o.volumes[id] = st
		}
		o.mu.Unlock()
		if !ok {
			o.logger.Info("recorder attached",
				logging.String(logging.FieldEventType, "recorder_attached"),
				logging.String(logging.FieldDevice, id),
				logging.String("mount_point", volume.MountPoint),
				logging.String("label", volume.DisplayName()),
			)
			o.startFolderWatch(st, watches)
		}
		o.startScan(ctx, st, jobs, scans, false)
	case watcher.EventDetached:
		o.mu.Lock()
		st, ok := o.volumes[id]
		if ok {
			delete(o.volumes, id)
		}
		o.mu.Unlock()
		if !ok {
			return
		}
		st.cancel()
		o.logger.Info("recorder detached",
			logging.String(logging.FieldEventType, "recorder_detached"),
			logging.String(logging.FieldDevice, id),
			logging.String("mount_point", volume.MountPoint),
		)
	}
}

func (o *Orchestrator) startFolderWatch(st *volumeState, watches *sync.WaitGroup) {
	if !o.opts.WatchFolders || o.deps.Folders == nil {
		return
	}
	id := st.volume.DeviceID
	watches.Add(1)
	go func() {
		defer watches.Done()
		err := o.deps.Folders.Watch(st.ctx, st.volume, func() {
			select {
			case o.rescan <- id:
			case <-st.ctx.Done():
			}
		})
		if err != nil && st.ctx.Err() == nil {
			o.logger.Debug("target folder watch unavailable",
				logging.String(logging.FieldDevice, id),
				logging.Error(err),
			)
		}
	}()
}

func (o *Orchestrator) attachedStates() []*volumeState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*volumeState, 0, len(o.volumes))
	for _, st := range o.volumes {
		out = append(out, st)
	}
	return out
}
