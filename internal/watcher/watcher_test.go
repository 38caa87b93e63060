package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeLister struct {
	mu      sync.Mutex
	volumes []Volume
	err     error
}

func (f *fakeLister) set(volumes ...Volume) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append([]Volume(nil), volumes...)
}

func (f *fakeLister) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeLister) List(context.Context) ([]Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]Volume(nil), f.volumes...), nil
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if !ok {
			t.Fatal("events channel closed")
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watcher event")
	}
	return Event{}
}

func expectQuiet(t *testing.T, ch <-chan Event, wait time.Duration) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(wait):
	}
}

func newTestWatcher(lister VolumeLister) *Watcher {
	return New(Options{Lister: lister, PollInterval: 10 * time.Millisecond})
}

func TestWatcherAttachDetachReplug(t *testing.T) {
	lister := &fakeLister{}
	w := newTestWatcher(lister)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	pendant := Volume{MountPoint: "/media/user/PENDANT", DeviceID: "DEV123", Label: "PENDANT", Device: "/dev/sdb1"}
	lister.set(pendant)

	evt := nextEvent(t, w.Events())
	if evt.Type != EventAttached || evt.Volume.DeviceID != "DEV123" || evt.Volume.State != StateAttached {
		t.Fatalf("expected attach, got %+v", evt)
	}
	expectQuiet(t, w.Events(), 50*time.Millisecond)

	lister.set()
	evt = nextEvent(t, w.Events())
	if evt.Type != EventDetached || evt.Volume.DeviceID != "DEV123" || evt.Volume.State != StateDetached {
		t.Fatalf("expected detach, got %+v", evt)
	}

	lister.set(pendant)
	evt = nextEvent(t, w.Events())
	if evt.Type != EventAttached || evt.Volume.DeviceID != "DEV123" {
		t.Fatalf("expected re-attach with same device id, got %+v", evt)
	}
}

func TestWatcherKeepsVolumesWhenListingFails(t *testing.T) {
	lister := &fakeLister{}
	lister.set(Volume{MountPoint: "/media/a", DeviceID: "A"})
	w := newTestWatcher(lister)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if evt := nextEvent(t, w.Events()); evt.Type != EventAttached {
		t.Fatalf("expected attach, got %+v", evt)
	}
	lister.fail(errors.New("lsblk: signal: killed"))
	expectQuiet(t, w.Events(), 60*time.Millisecond)
	if known := w.Known(); len(known) != 1 || known[0].DeviceID != "A" {
		t.Fatalf("expected known volume to survive listing failure, got %+v", known)
	}
}

func TestWatcherScanNowForcesAttach(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(&fakeLister{})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	volume, err := w.ScanNow(dir)
	if err != nil {
		t.Fatalf("ScanNow: %v", err)
	}
	evt := nextEvent(t, w.Events())
	if evt.Type != EventAttached || evt.Volume.MountPoint != volume.MountPoint || evt.Volume.DeviceID != "manual:"+volume.MountPoint {
		t.Fatalf("unexpected event: %+v", evt)
	}

	if _, err := w.ScanNow(dir); err != nil {
		t.Fatal(err)
	}
	if evt := nextEvent(t, w.Events()); evt.Type != EventAttached {
		t.Fatalf("expected forced attach, got %+v", evt)
	}

	if _, err := w.ScanNow(dir + "/missing"); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestWatcherStopClosesEventsAndIsFinal(t *testing.T) {
	w := newTestWatcher(&fakeLister{})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()

	select {
	case _, ok := <-w.Events():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("events channel not closed")
	}
	if err := w.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestWatcherStopWithoutStart(t *testing.T) {
	w := newTestWatcher(nil)
	w.Stop()
	if _, ok := <-w.Events(); ok {
		t.Fatal("expected closed channel")
	}
}
