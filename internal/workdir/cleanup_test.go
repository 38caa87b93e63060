package workdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pendant/internal/logging"
)

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldFilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)

	oldMP3 := filepath.Join(dir, "20240105_0930.1a2b3c4d.mp3")
	if err := os.WriteFile(oldMP3, make([]byte, 300), 0o644); err != nil {
		t.Fatal(err)
	}
	oldOutput := filepath.Join(dir, "whisperx-run")
	if err := os.MkdirAll(oldOutput, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(oldOutput, "a.json"), make([]byte, 200), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{oldMP3, oldOutput} {
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatal(err)
		}
	}
	recent := filepath.Join(dir, "current.mp3")
	if err := os.WriteFile(recent, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
	if len(result.Removed) != 2 {
		t.Fatalf("expected 2 removed, got %v", result.Removed)
	}
	if result.Freed != 500 {
		t.Fatalf("expected 500 bytes freed, got %d", result.Freed)
	}
	if _, err := os.Stat(oldMP3); !os.IsNotExist(err) {
		t.Fatal("old mp3 should have been removed")
	}
	if _, err := os.Stat(recent); err != nil {
		t.Fatalf("recent file should remain: %v", err)
	}
}

func TestCleanStaleStopsOnCancelledContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp3")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := CleanStale(ctx, dir, time.Minute, logging.NewNop())
	if len(result.Removed) != 0 {
		t.Fatalf("expected nothing removed after cancel, got %v", result.Removed)
	}
}
