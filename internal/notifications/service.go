package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pendant/internal/config"
)

const userAgent = "pendant/0.1"

// Event names a notification kind.
type Event string

const (
	EventVolumeAttached  Event = "volume_attached"
	EventNoteCreated     Event = "note_created"
	EventRecordingFailed Event = "recording_failed"
	EventTest            Event = "test"
)

// Payload carries event fields. Known keys: label, count, title, note,
// placeholder, file, reason.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		noteCreated: cfg.Notifications.NoteCreated,
		failures:    cfg.Notifications.Failures,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	noteCreated bool
	failures    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventVolumeAttached:
		label := stringValue(payload, "label")
		count := intValue(payload, "count")
		if count <= 0 {
			return message{}, false
		}
		return message{
			title: "Pendant - Recorder Attached",
			body:  fmt.Sprintf("%s: %d new recording%s", label, count, plural(count)),
			tags:  []string{"pendant", "recorder"},
		}, true
	case EventNoteCreated:
		if !n.noteCreated {
			return message{}, false
		}
		title := stringValue(payload, "title")
		body := "Note created: " + title
		if placeholder, _ := payload["placeholder"].(bool); placeholder {
			body += " (no transcription)"
		}
		return message{
			title: "Pendant - Note Created",
			body:  body,
			tags:  []string{"pendant", "note"},
		}, true
	case EventRecordingFailed:
		if !n.failures {
			return message{}, false
		}
		return message{
			title:    "Pendant - Recording Failed",
			body:     fmt.Sprintf("%s: %s", stringValue(payload, "file"), stringValue(payload, "reason")),
			tags:     []string{"pendant", "error"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Pendant - Test",
			body:     "Notification system test",
			tags:     []string{"pendant", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func stringValue(payload Payload, key string) string {
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func intValue(payload Payload, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
