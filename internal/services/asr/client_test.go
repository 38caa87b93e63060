package asr

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pendant/internal/services"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.mp3")
	if err := os.WriteFile(path, []byte("ID3fake"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestTranscribeSendsMultipartAndParsesSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/asr" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("output"); got != "json" {
			t.Errorf("expected output=json, got %q", got)
		}
		if got := r.URL.Query().Get("language"); got != "de" {
			t.Errorf("expected language=de, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		file, header, err := r.FormFile("audio_file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "ID3fake" || header.Filename != "rec.mp3" {
				t.Errorf("unexpected upload %q %q", header.Filename, data)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"","language":"de","segments":[{"start":1.0,"text":" Guten Tag "},{"start":3.5,"text":"Welt"}]}`)
	}))
	defer srv.Close()

	client := New(srv.URL, WithAPIKey("secret"), WithLanguage("german"))
	tr, err := client.Transcribe(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "Guten Tag Welt" {
		t.Fatalf("unexpected text %q", tr.Text)
	}
	if len(tr.Segments) != 2 || tr.Segments[1].Start != 3500*time.Millisecond {
		t.Fatalf("unexpected segments %#v", tr.Segments)
	}
}

func TestTranscribeServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Transcribe(context.Background(), writeAudio(t))
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected APIError 503, got %v", err)
	}
}

func TestTranscribeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).Transcribe(context.Background(), writeAudio(t))
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestTranscribeUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Transcribe(context.Background(), writeAudio(t))
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestBuildURLRejectsRelative(t *testing.T) {
	if _, err := New("asr.local").buildURL(); err == nil {
		t.Fatal("expected error for URL without scheme")
	}
}
