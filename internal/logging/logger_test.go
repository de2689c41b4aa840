package logging

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
	}{
		{
			name:        "create logger with service name",
			serviceName: "nebula-users",
		},
		{
			name:        "create logger with empty service name",
			serviceName: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.serviceName)

			if logger == nil {
				t.Fatal("New() returned nil logger")
			}
			if logger.service != tt.serviceName {
				t.Errorf("New() service = %q, want %q", logger.service, tt.serviceName)
			}
		})
	}
}

func TestWithContextEntry(t *testing.T) {
	logger := New("test-service")

	before := time.Now().UTC()
	entry := logger.WithContext(context.Background())
	after := time.Now().UTC()

	if entry == nil {
		t.Fatal("WithContext() returned nil entry")
	}
	if entry.Service != "test-service" {
		t.Errorf("WithContext() Service = %q, want %q", entry.Service, "test-service")
	}
	if entry.Time.Before(before) || entry.Time.After(after) {
		t.Errorf("WithContext() Time %v not between %v and %v", entry.Time, before, after)
	}
	if entry.TraceID != "" {
		t.Errorf("WithContext() TraceID = %q, want empty without trace context", entry.TraceID)
	}
}

func TestFluentMethods(t *testing.T) {
	entry := New("test").Plain().
		WithUser("42").
		WithMessageID("user.created-42").
		WithRelay("outbox").
		WithQueue("user-events").
		WithField("attempt", 3).
		WithFields(map[string]any{"batch": 500}).
		WithError(errors.New("boom"))

	if entry.UserID != "42" {
		t.Errorf("WithUser() UserID = %q, want %q", entry.UserID, "42")
	}
	if entry.MessageID != "user.created-42" {
		t.Errorf("WithMessageID() MessageID = %q, want %q", entry.MessageID, "user.created-42")
	}
	if entry.Relay != "outbox" {
		t.Errorf("WithRelay() Relay = %q, want %q", entry.Relay, "outbox")
	}
	if entry.Queue != "user-events" {
		t.Errorf("WithQueue() Queue = %q, want %q", entry.Queue, "user-events")
	}
	if entry.Fields["attempt"] != 3 {
		t.Errorf("WithField() attempt = %v, want 3", entry.Fields["attempt"])
	}
	if entry.Fields["batch"] != 500 {
		t.Errorf("WithFields() batch = %v, want 500", entry.Fields["batch"])
	}
	if entry.Fields["error"] != "boom" {
		t.Errorf("WithError() error = %v, want %q", entry.Fields["error"], "boom")
	}
}

func TestWithErrorNil(t *testing.T) {
	entry := New("test").Plain().WithError(nil)
	if _, ok := entry.Fields["error"]; ok {
		t.Error("WithError(nil) must not add an error field")
	}
}

func TestWithFieldOnNilMap(t *testing.T) {
	entry := &LogEntry{}
	entry = entry.WithField("k", "v")
	if entry.Fields["k"] != "v" {
		t.Errorf("WithField() on nil map = %v, want %q", entry.Fields["k"], "v")
	}
}
