package push

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nebulateam/nebula/internal/broker"
)

type fakeClaimer struct {
	claimed  bool
	claimErr error
	released []string
	claims   []string
}

func (c *fakeClaimer) Claim(_ context.Context, key string) (bool, error) {
	c.claims = append(c.claims, key)
	return c.claimed, c.claimErr
}

func (c *fakeClaimer) Release(_ context.Context, key string) error {
	c.released = append(c.released, key)
	return nil
}

func TestHandleSuccessKeepsClaim(t *testing.T) {
	var gotKey, gotContentType string
	var gotBody []byte
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	claims := &fakeClaimer{claimed: true}
	s := &Sender{Claims: claims, SinkURL: sink.URL}

	payload := []byte(`{"user_id":42,"template":"welcome"}`)
	if err := s.Handle(context.Background(), payload, "notification.push:user.created-42"); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if gotKey != "notification.push:user.created-42" {
		t.Errorf("Idempotency-Key = %q, want %q", gotKey, "notification.push:user.created-42")
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if string(gotBody) != string(payload) {
		t.Errorf("sink body = %s, want %s", gotBody, payload)
	}
	if len(claims.released) != 0 {
		t.Errorf("claim released on success; it must expire with the TTL instead")
	}
}

func TestHandleSinkFailureReleasesClaim(t *testing.T) {
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "temporary failure", http.StatusInternalServerError)
	}))
	defer sink.Close()

	claims := &fakeClaimer{claimed: true}
	s := &Sender{Claims: claims, SinkURL: sink.URL}

	err := s.Handle(context.Background(), []byte(`{}`), "msg-1")
	if err == nil {
		t.Fatal("Handle() expected error on sink 500, got nil")
	}
	if got := broker.Classify(err); got != broker.OutcomeRequeue {
		t.Errorf("Classify(Handle()) = %q, want %q", got, broker.OutcomeRequeue)
	}
	if len(claims.released) != 1 || claims.released[0] != "msg-1" {
		t.Errorf("released claims = %v, want [msg-1]", claims.released)
	}
}

func TestHandleAlreadyClaimed(t *testing.T) {
	sinkCalls := 0
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sinkCalls++
	}))
	defer sink.Close()

	claims := &fakeClaimer{claimed: false}
	s := &Sender{Claims: claims, SinkURL: sink.URL}

	err := s.Handle(context.Background(), []byte(`{}`), "msg-1")
	if !errors.Is(err, broker.ErrDuplicate) {
		t.Fatalf("Handle() error = %v, want ErrDuplicate", err)
	}
	if got := broker.Classify(err); got != broker.OutcomeDuplicate {
		t.Errorf("Classify(Handle()) = %q, want %q", got, broker.OutcomeDuplicate)
	}
	if sinkCalls != 0 {
		t.Errorf("sink called %d times for a duplicate, want 0", sinkCalls)
	}
	if len(claims.released) != 0 {
		t.Errorf("duplicate released the original claim")
	}
}

func TestHandleClaimErrorRequeues(t *testing.T) {
	claims := &fakeClaimer{claimErr: errors.New("redis unavailable")}
	s := &Sender{Claims: claims, SinkURL: "http://sink.invalid/push"}

	err := s.Handle(context.Background(), []byte(`{}`), "msg-1")
	if err == nil {
		t.Fatal("Handle() expected error when claim store is down, got nil")
	}
	if got := broker.Classify(err); got != broker.OutcomeRequeue {
		t.Errorf("Classify(Handle()) = %q, want %q", got, broker.OutcomeRequeue)
	}
}

func TestHandleUnreachableSinkReleasesClaim(t *testing.T) {
	claims := &fakeClaimer{claimed: true}
	s := &Sender{Claims: claims, SinkURL: "http://127.0.0.1:1/push"}

	err := s.Handle(context.Background(), []byte(`{}`), "msg-1")
	if err == nil {
		t.Fatal("Handle() expected error on unreachable sink, got nil")
	}
	if len(claims.released) != 1 {
		t.Errorf("released claims = %v, want exactly one", claims.released)
	}
}
