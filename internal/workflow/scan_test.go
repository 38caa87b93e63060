package workflow

import (
	"context"
	"sync"
	"testing"

	"pendant/internal/logging"
	"pendant/internal/watcher"
)

func TestStartScanWhileScanning(t *testing.T) {
	o := &Orchestrator{logger: logging.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := &volumeState{
		volume:   watcher.Volume{DeviceID: "DEV123"},
		ctx:      ctx,
		cancel:   cancel,
		scanning: true,
		scans:    1,
	}
	var scans sync.WaitGroup

	o.startScan(ctx, st, nil, &scans, false)
	if st.pending || st.scans != 1 {
		t.Fatalf("repeated attach must be ignored, got pending=%v scans=%d", st.pending, st.scans)
	}

	o.startScan(ctx, st, nil, &scans, true)
	if !st.pending || st.scans != 1 {
		t.Fatalf("folder change must queue one follow-up, got pending=%v scans=%d", st.pending, st.scans)
	}
}
