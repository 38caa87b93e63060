package daemonrun

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"pendant/internal/config"
	"pendant/internal/logging"
	"pendant/internal/services/asr"
	"pendant/internal/services/whisperx"
	"pendant/internal/testsupport"
)

func TestNewTranscriberSelectsProvider(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	cfg.Transcription.Provider = config.ProviderWhisperX
	tr, err := NewTranscriber(cfg)
	if err != nil {
		t.Fatalf("whisperx: %v", err)
	}
	if _, ok := tr.(*whisperx.Service); !ok {
		t.Fatalf("expected whisperx service, got %T", tr)
	}

	cfg.Transcription.Provider = config.ProviderRemote
	cfg.Transcription.APIURL = "http://asr.local:9000"
	tr, err = NewTranscriber(cfg)
	if err != nil {
		t.Fatalf("remote: %v", err)
	}
	if _, ok := tr.(*asr.Client); !ok {
		t.Fatalf("expected asr client, got %T", tr)
	}

	cfg.Transcription.Provider = config.ProviderNone
	tr, err = NewTranscriber(cfg)
	if err != nil {
		t.Fatalf("none: %v", err)
	}
	if tr != nil {
		t.Fatalf("expected nil transcriber, got %T", tr)
	}

	cfg.Transcription.Provider = "cloud"
	if _, err := NewTranscriber(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewPipelineBuildsWithoutTranscriber(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	pipe, err := NewPipeline(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if pipe == nil {
		t.Fatal("expected pipeline")
	}
}

func TestEnsureCurrentLogPointerReplacesLink(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "pendant-1.log")
	second := filepath.Join(dir, "pendant-2.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "pendant.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "pendant-2.log" {
		t.Fatalf("expected pointer to newest log, got %q", data)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pendantd.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid contents %q", data)
	}
}
