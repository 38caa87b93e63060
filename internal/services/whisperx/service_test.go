package whisperx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"pendant/internal/services"
)

func TestTranscribeLoadsSegments(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "REC20241025043932.mp3")
	svc := NewService(Config{Model: "small", Language: "english", WorkDir: filepath.Join(dir, "out")})

	var gotName string
	var gotArgs []string
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		body := `{"language":"en","segments":[{"start":0.2,"end":2,"text":" Hello there. "},{"start":65.5,"end":70,"text":"Second thought."}]}`
		return os.WriteFile(filepath.Join(dir, "out", "REC20241025043932.json"), []byte(body), 0o644)
	})

	tr, err := svc.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if gotName != UVXCommand {
		t.Fatalf("expected uvx, got %q", gotName)
	}
	for _, want := range []string{"whisperx", audio, "small", "--language", "en", "--device", "cpu"} {
		if !slices.Contains(gotArgs, want) {
			t.Fatalf("expected %q in args %v", want, gotArgs)
		}
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(tr.Segments))
	}
	if tr.Segments[1].Start != 65500*time.Millisecond {
		t.Fatalf("unexpected segment start %s", tr.Segments[1].Start)
	}
	if tr.Text != "Hello there. Second thought." {
		t.Fatalf("unexpected text %q", tr.Text)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "REC20241025043932.json")); !os.IsNotExist(err) {
		t.Fatalf("expected json output removed, stat err=%v", err)
	}
}

func TestTranscribeRunFailureIsUnavailable(t *testing.T) {
	svc := NewService(Config{})
	svc.WithCommandRunner(func(context.Context, string, ...string) error {
		return errors.New("exit status 1")
	})
	_, err := svc.Transcribe(context.Background(), filepath.Join(t.TempDir(), "a.mp3"))
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !services.IsTransient(err) {
		t.Fatal("expected transient classification")
	}
}

func TestTranscribeMissingOutput(t *testing.T) {
	svc := NewService(Config{})
	svc.WithCommandRunner(func(context.Context, string, ...string) error { return nil })
	_, err := svc.Transcribe(context.Background(), filepath.Join(t.TempDir(), "a.mp3"))
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for missing json, got %v", err)
	}
}

func TestBuildArgsCUDAAndPyannote(t *testing.T) {
	svc := NewService(Config{CUDAEnabled: true, VADMethod: VADMethodPyannote, HFToken: "hf", Language: "auto"})
	args := svc.buildArgs("/tmp/a.mp3", "/tmp")
	if !slices.Contains(args, CUDAIndexURL) || !slices.Contains(args, CUDADevice) {
		t.Fatalf("expected CUDA args, got %v", args)
	}
	if !slices.Contains(args, "hf") {
		t.Fatalf("expected hf token, got %v", args)
	}
	if slices.Contains(args, "--language") {
		t.Fatalf("auto language must not pass --language: %v", args)
	}
}
