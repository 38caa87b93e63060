package scanner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pendant/internal/scanner"
	"pendant/internal/testsupport"
	"pendant/internal/watcher"
)

func newScanner(settle time.Duration) *scanner.Scanner {
	return scanner.New(scanner.Options{
		TargetFolder: "RECORD",
		Extensions:   []string{".wav"},
		Settle:       settle,
	})
}

func volumeAt(dir string) watcher.Volume {
	return watcher.Volume{MountPoint: dir, DeviceID: "DEV123", State: watcher.StateAttached}
}

func TestScanFindsStableRecordings(t *testing.T) {
	mount := t.TempDir()
	testsupport.WriteWAV(t, filepath.Join(mount, "record", "REC20240101120000.WAV"), 2048)
	testsupport.WriteWAV(t, filepath.Join(mount, "record", "rec2.wav"), 1024)
	testsupport.WriteFile(t, filepath.Join(mount, "record", "notes.txt"), 10)
	testsupport.WriteFile(t, filepath.Join(mount, "record", "._REC3.WAV"), 10)
	testsupport.WriteWAV(t, filepath.Join(mount, "OTHER", "REC4.WAV"), 1024)

	result, err := newScanner(10*time.Millisecond).Scan(context.Background(), volumeAt(mount))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", result.Candidates)
	}
	first := result.Candidates[0]
	if first.Name != "REC20240101120000.WAV" || first.Size != 2048 {
		t.Fatalf("unexpected candidate: %+v", first)
	}
	if first.Identity != scanner.Identity(first.Name, first.Size, first.ModTime) {
		t.Fatalf("identity mismatch: %s", first.Identity)
	}
	if len(first.Identity) != 64 {
		t.Fatalf("expected sha256 hex identity, got %q", first.Identity)
	}
	if filepath.Base(result.Folder) != "record" {
		t.Fatalf("expected case-insensitive folder match, got %q", result.Folder)
	}
}

func TestScanMissingFolderIsEmpty(t *testing.T) {
	result, err := newScanner(time.Millisecond).Scan(context.Background(), volumeAt(t.TempDir()))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Candidates) != 0 || result.Folder != "" {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestScanExcludesGrowingFile(t *testing.T) {
	mount := t.TempDir()
	path := filepath.Join(mount, "RECORD", "REC1.WAV")
	testsupport.WriteWAV(t, path, 1024)

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(20 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
		if err != nil {
			return
		}
		_, _ = f.Write(make([]byte, 4096))
		_ = f.Close()
	}()

	result, err := newScanner(150*time.Millisecond).Scan(context.Background(), volumeAt(mount))
	<-done
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Candidates) != 0 {
		t.Fatalf("growing file must not be a candidate: %+v", result.Candidates)
	}
	if len(result.Unstable) != 1 || result.Unstable[0] != "REC1.WAV" {
		t.Fatalf("expected REC1.WAV reported unstable, got %v", result.Unstable)
	}
}

func TestScanSkipsVanishedFile(t *testing.T) {
	mount := t.TempDir()
	keep := filepath.Join(mount, "RECORD", "KEEP.WAV")
	gone := filepath.Join(mount, "RECORD", "GONE.WAV")
	testsupport.WriteWAV(t, keep, 512)
	testsupport.WriteWAV(t, gone, 512)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = os.Remove(gone)
	}()

	result, err := newScanner(150*time.Millisecond).Scan(context.Background(), volumeAt(mount))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].Name != "KEEP.WAV" {
		t.Fatalf("expected only KEEP.WAV, got %+v", result.Candidates)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "GONE.WAV" {
		t.Fatalf("expected GONE.WAV skipped, got %v", result.Skipped)
	}
}

func TestScanCancelledDuringSettle(t *testing.T) {
	mount := t.TempDir()
	testsupport.WriteWAV(t, filepath.Join(mount, "RECORD", "REC1.WAV"), 512)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	result, err := newScanner(5*time.Second).Scan(ctx, volumeAt(mount))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(result.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %+v", result.Candidates)
	}
}

func TestObserveAndStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "REC1.WAV")
	testsupport.WriteWAV(t, path, 100)

	a, err := scanner.Observe(path)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	b, _ := scanner.Observe(path)
	if !scanner.Stable(a, b) {
		t.Fatal("expected identical observations to be stable")
	}
	later := a.ModTime.Add(time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	c, _ := scanner.Observe(path)
	if scanner.Stable(a, c) {
		t.Fatal("mtime change must break stability")
	}
	if a.Identity() == c.Identity() {
		t.Fatal("identity must change with mtime")
	}
	if _, err := scanner.Observe(filepath.Dir(path)); err == nil {
		t.Fatal("expected error observing a directory")
	}
}

func TestIdentityIsMountIndependent(t *testing.T) {
	mod := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := scanner.Identity("REC1.WAV", 1000, mod)
	b := scanner.Identity("REC1.WAV", 1000, mod.In(time.FixedZone("X", 3600)))
	if a != b {
		t.Fatal("identity must not depend on time zone")
	}
	if a == scanner.Identity("REC2.WAV", 1000, mod) {
		t.Fatal("identity must depend on name")
	}
}

func TestWatchNotifiesOnNewRecording(t *testing.T) {
	mount := t.TempDir()
	folder := filepath.Join(mount, "RECORD")
	if err := os.MkdirAll(folder, 0o755); err != nil {
		t.Fatal(err)
	}
	s := newScanner(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notified := make(chan struct{}, 4)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Watch(ctx, volumeAt(mount), func() {
			notified <- struct{}{}
		})
	}()

	time.Sleep(50 * time.Millisecond)
	testsupport.WriteWAV(t, filepath.Join(folder, "REC9.WAV"), 256)

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("expected notification after new recording")
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Watch returned %v", err)
	}
}

func TestWatchMissingFolder(t *testing.T) {
	if err := newScanner(time.Millisecond).Watch(context.Background(), volumeAt(t.TempDir()), nil); err == nil {
		t.Fatal("expected error for missing folder")
	}
}
