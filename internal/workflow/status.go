package workflow

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pendant/internal/watcher"
)

// Counters tallies job outcomes since the orchestrator was created.
type Counters struct {
	Claimed   int64
	Done      int64
	Failed    int64
	Transient int64
	Abandoned int64
}

// VolumeStatus describes one attached volume.
type VolumeStatus struct {
	Volume   watcher.Volume
	Scanning bool
	Scans    int
}

// Status is a point-in-time snapshot of the orchestrator.
type Status struct {
	Running   bool
	StartedAt time.Time
	Volumes   []VolumeStatus
	InFlight  int64
	Counters  Counters
	LastError string
}

// ActiveScans counts volumes with a scan in progress.
func (s Status) ActiveScans() int {
	n := 0
	for _, v := range s.Volumes {
		if v.Scanning {
			n++
		}
	}
	return n
}

// Status returns a snapshot of attached volumes, scans, jobs, and outcomes.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	status := Status{
		Running:   o.running,
		StartedAt: o.started,
		Volumes:   make([]VolumeStatus, 0, len(o.volumes)),
	}
	for _, st := range o.volumes {
		status.Volumes = append(status.Volumes, VolumeStatus{
			Volume:   st.volume,
			Scanning: st.scanning,
			Scans:    st.scans,
		})
	}
	if o.lastErr != nil {
		status.LastError = o.lastErr.Error()
	}
	o.mu.RUnlock()

	sort.Slice(status.Volumes, func(i, j int) bool {
		return status.Volumes[i].Volume.MountPoint < status.Volumes[j].Volume.MountPoint
	})
	status.InFlight = o.inFlight.Load()
	status.Counters = Counters{
		Claimed:   o.counters.claimed.Load(),
		Done:      o.counters.done.Load(),
		Failed:    o.counters.failed.Load(),
		Transient: o.counters.transient.Load(),
		Abandoned: o.counters.abandoned.Load(),
	}
	return status
}

func notePathTitle(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
