package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"nfewatch/internal/config"
	"nfewatch/internal/notifications"
)

type capture struct {
	mu       sync.Mutex
	title    string
	body     string
	tags     string
	priority string
	calls    int
}

func newCaptureServer(t *testing.T) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.title = r.Header.Get("Title")
		c.tags = r.Header.Get("Tags")
		c.priority = r.Header.Get("Priority")
		c.body = string(body)
		c.calls++
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventRetriesExhausted, notifications.Payload{"recordID": 1}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:           "retries exhausted",
			event:          notifications.EventRetriesExhausted,
			payload:        notifications.Payload{"recordID": int64(7), "externalKey": "KEY", "attempts": 3, "error": "artifact missing"},
			expectTitle:    "nfewatch - Record Failed",
			expectMessage:  "Record 7 failed after 3 attempts: KEY\nartifact missing",
			expectTags:     "nfewatch,error,alert",
			expectPriority: "high",
		},
		{
			name:          "watch timeout",
			event:         notifications.EventWatchTimeout,
			payload:       notifications.Payload{"recordID": int64(9), "waited": "10m0s", "path": "/base/123/processed/KEY.xml"},
			expectTitle:   "nfewatch - Processing Timeout",
			expectMessage: "No processed artifact for record 9 after 10m0s\nExpected: /base/123/processed/KEY.xml",
			expectTags:    "nfewatch,timeout,review",
		},
		{
			name:           "malformed key",
			event:          notifications.EventMalformedKey,
			payload:        notifications.Payload{"recordID": int64(2), "externalKey": "SHORT", "error": "length 5"},
			expectTitle:    "nfewatch - Invalid Key",
			expectMessage:  `Record 2 has an unusable access key "SHORT": length 5`,
			expectTags:     "nfewatch,error,key",
			expectPriority: "high",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			payload:        nil,
			expectTitle:    "nfewatch - Test",
			expectMessage:  "Notification system test",
			expectTags:     "nfewatch,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, got := newCaptureServer(t)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = srv.URL

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			got.mu.Lock()
			defer got.mu.Unlock()
			if got.title != tc.expectTitle {
				t.Errorf("title = %q, want %q", got.title, tc.expectTitle)
			}
			if got.body != tc.expectMessage {
				t.Errorf("body = %q, want %q", got.body, tc.expectMessage)
			}
			if got.tags != tc.expectTags {
				t.Errorf("tags = %q, want %q", got.tags, tc.expectTags)
			}
			if got.priority != tc.expectPriority {
				t.Errorf("priority = %q, want %q", got.priority, tc.expectPriority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Completions = false
	cfg.Notifications.Timeouts = false

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{notifications.EventRecordCompleted, notifications.EventWatchTimeout, "unknown"} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"value": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}
