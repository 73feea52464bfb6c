package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nfewatch/internal/config"
)

const userAgent = "nfewatch/0.1"

// Event identifies a notification type.
type Event string

const (
	// EventRecordCompleted fires when an authorized artifact completes a record.
	EventRecordCompleted Event = "record_completed"
	// EventRetriesExhausted fires when the executor gives up on a record.
	EventRetriesExhausted Event = "retries_exhausted"
	// EventMalformedKey fires when a record's external key is unusable.
	EventMalformedKey Event = "malformed_key"
	// EventWatchTimeout fires when a processed artifact never appears.
	EventWatchTimeout Event = "watch_timeout"
	// EventTest is the operator-triggered test message.
	EventTest Event = "test"
)

// Payload carries event fields. Well-known keys: recordID, externalKey,
// attempts, error, path, waited.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventRecordCompleted:  cfg.Notifications.Completions,
			EventRetriesExhausted: cfg.Notifications.RetriesExhausted,
			EventMalformedKey:     cfg.Notifications.RetriesExhausted,
			EventWatchTimeout:     cfg.Notifications.Timeouts,
			EventTest:             true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	key := payload.text("externalKey")
	switch event {
	case EventRecordCompleted:
		return message{
			title: "nfewatch - Authorized",
			body:  fmt.Sprintf("Record %s authorized: %s", payload.text("recordID"), key),
			tags:  []string{"nfewatch", "record", "completed"},
		}, true
	case EventRetriesExhausted:
		return message{
			title:    "nfewatch - Record Failed",
			body:     fmt.Sprintf("Record %s failed after %s attempts: %s\n%s", payload.text("recordID"), payload.text("attempts"), key, payload.text("error")),
			tags:     []string{"nfewatch", "error", "alert"},
			priority: "high",
		}, true
	case EventMalformedKey:
		return message{
			title:    "nfewatch - Invalid Key",
			body:     fmt.Sprintf("Record %s has an unusable access key %q: %s", payload.text("recordID"), key, payload.text("error")),
			tags:     []string{"nfewatch", "error", "key"},
			priority: "high",
		}, true
	case EventWatchTimeout:
		return message{
			title: "nfewatch - Processing Timeout",
			body:  fmt.Sprintf("No processed artifact for record %s after %s\nExpected: %s", payload.text("recordID"), payload.text("waited"), payload.text("path")),
			tags:  []string{"nfewatch", "timeout", "review"},
		}, true
	case EventTest:
		return message{
			title:    "nfewatch - Test",
			body:     "Notification system test",
			tags:     []string{"nfewatch", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return "?"
	}
	return strings.TrimSpace(fmt.Sprint(value))
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
