package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"pendant/internal/config"
	"pendant/internal/notifications"
)

type captured struct {
	title, body, tags, priority string
}

func newServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		msgs []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		msgs = append(msgs, captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), msgs...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, messages := newServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.NoteCreated = true
	cfg.Notifications.Failures = true
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	events := []struct {
		event   notifications.Event
		payload notifications.Payload
	}{
		{notifications.EventVolumeAttached, notifications.Payload{"label": "PENDANT", "count": 2}},
		{notifications.EventNoteCreated, notifications.Payload{"title": "Recording_20240315_093000", "placeholder": true}},
		{notifications.EventRecordingFailed, notifications.Payload{"file": "REC1.WAV", "reason": "corrupt input"}},
	}
	for _, e := range events {
		if err := svc.Publish(ctx, e.event, e.payload); err != nil {
			t.Fatalf("publish %s: %v", e.event, err)
		}
	}

	got := messages()
	want := []captured{
		{title: "Pendant - Recorder Attached", body: "PENDANT: 2 new recordings", tags: "pendant,recorder"},
		{title: "Pendant - Note Created", body: "Note created: Recording_20240315_093000 (no transcription)", tags: "pendant,note"},
		{title: "Pendant - Recording Failed", body: "REC1.WAV: corrupt input", tags: "pendant,error", priority: "high"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestNtfyServiceHonorsEventSwitches(t *testing.T) {
	srv, messages := newServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.NoteCreated = false
	cfg.Notifications.Failures = false
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	_ = svc.Publish(ctx, notifications.EventNoteCreated, notifications.Payload{"title": "x"})
	_ = svc.Publish(ctx, notifications.EventRecordingFailed, notifications.Payload{"file": "x"})
	_ = svc.Publish(ctx, notifications.EventVolumeAttached, notifications.Payload{"label": "PENDANT", "count": 0})
	if got := messages(); len(got) != 0 {
		t.Fatalf("expected suppressed notifications, got %+v", got)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer srv.Close()
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	if err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
