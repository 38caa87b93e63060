package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pendant/internal/services"
)

func writeWAV(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 64)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func mp3Runner(t *testing.T, calls *[]string) Runner {
	return func(_ context.Context, binary string, args ...string) ([]byte, error) {
		*calls = append(*calls, binary+" "+strings.Join(args, " "))
		out := args[len(args)-1]
		body := append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"), make([]byte, 256)...)
		if err := os.WriteFile(out, body, 0o644); err != nil {
			t.Fatalf("fake ffmpeg write: %v", err)
		}
		return nil, nil
	}
}

func plentyFree(string) (uint64, error) { return 1 << 40, nil }

func TestConvertProducesMP3InWorkDir(t *testing.T) {
	srcDir, workDir := t.TempDir(), t.TempDir()
	src := writeWAV(t, srcDir, "REC20241025043932.WAV")
	var calls []string

	conv := New(Options{Bitrate: "96k", WorkDir: workDir, Runner: mp3Runner(t, &calls), Free: plentyFree})
	out, err := conv.Convert(context.Background(), src)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if filepath.Dir(out) != workDir {
		t.Fatalf("expected output in work dir, got %s", out)
	}
	if !strings.HasPrefix(filepath.Base(out), "REC20241025043932.") || filepath.Ext(out) != ".mp3" {
		t.Fatalf("unexpected output name %s", out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if _, err := os.Stat(out + ".part"); !os.IsNotExist(err) {
		t.Fatalf("expected partial file renamed away")
	}
	if len(calls) != 1 || !strings.Contains(calls[0], "-b:a 96k") || !strings.HasPrefix(calls[0], "ffmpeg ") {
		t.Fatalf("unexpected ffmpeg invocation: %v", calls)
	}
}

func TestConvertRejectsBadInputPermanently(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.wav")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	garbage := filepath.Join(dir, "garbage.wav")
	if err := os.WriteFile(garbage, []byte("this is not a riff container at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	short := filepath.Join(dir, "short.wav")
	if err := os.WriteFile(short, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	var calls []string
	conv := New(Options{WorkDir: t.TempDir(), Runner: mp3Runner(t, &calls), Free: plentyFree})
	for _, path := range []string{empty, garbage, short} {
		_, err := conv.Convert(context.Background(), path)
		if !errors.Is(err, services.ErrCorruptInput) {
			t.Fatalf("%s: expected corrupt input, got %v", filepath.Base(path), err)
		}
		if !services.IsPermanent(err) {
			t.Fatalf("%s: expected permanent classification", filepath.Base(path))
		}
	}
	if len(calls) != 0 {
		t.Fatalf("ffmpeg should not run for rejected input, got %v", calls)
	}
}

func TestConvertClassifiesFFmpegOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		err    error
		want   error
	}{
		{"invalid data", "REC1.WAV: Invalid data found when processing input", errors.New("exit status 1"), services.ErrCorruptInput},
		{"unknown codec", "Unknown codec 0x0055", errors.New("exit status 1"), services.ErrCodecUnsupported},
		{"disk full", "av_interleaved_write_frame(): No space left on device", errors.New("exit status 1"), services.ErrStorageExhausted},
		{"deadline", "", context.DeadlineExceeded, services.ErrTimeout},
		{"other", "something odd", errors.New("exit status 1"), services.ErrExternalTool},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := writeWAV(t, t.TempDir(), "REC1.WAV")
			workDir := t.TempDir()
			conv := New(Options{WorkDir: workDir, Free: plentyFree, Runner: func(context.Context, string, ...string) ([]byte, error) {
				return []byte(tc.output), tc.err
			}})
			_, err := conv.Convert(context.Background(), src)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			entries, _ := os.ReadDir(workDir)
			if len(entries) != 0 {
				t.Fatalf("expected work dir cleaned, found %d entries", len(entries))
			}
		})
	}
}

func TestConvertStorageExhaustedIsTransient(t *testing.T) {
	src := writeWAV(t, t.TempDir(), "REC1.WAV")
	var calls []string
	conv := New(Options{
		WorkDir: t.TempDir(),
		Runner:  mp3Runner(t, &calls),
		Free:    func(string) (uint64, error) { return 1024, nil },
	})
	_, err := conv.Convert(context.Background(), src)
	if !errors.Is(err, services.ErrStorageExhausted) {
		t.Fatalf("expected storage exhausted, got %v", err)
	}
	if !services.IsTransient(err) {
		t.Fatal("storage exhaustion must stay retryable")
	}
	if len(calls) != 0 {
		t.Fatal("ffmpeg should not run without free space")
	}
}

func TestConvertRejectsNonMP3Output(t *testing.T) {
	src := writeWAV(t, t.TempDir(), "REC1.WAV")
	conv := New(Options{WorkDir: t.TempDir(), Free: plentyFree, Runner: func(_ context.Context, _ string, args ...string) ([]byte, error) {
		return nil, os.WriteFile(args[len(args)-1], []byte("not an mp3 payload at all, just text"), 0o644)
	}})
	_, err := conv.Convert(context.Background(), src)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestConvertMissingSource(t *testing.T) {
	conv := New(Options{WorkDir: t.TempDir(), Free: plentyFree})
	_, err := conv.Convert(context.Background(), filepath.Join(t.TempDir(), "gone.wav"))
	if !errors.Is(err, services.ErrNotFound) || services.IsPermanent(err) {
		t.Fatalf("expected transient not-found, got %v", err)
	}
}
