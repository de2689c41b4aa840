// Package push delivers notifications to the opaque downstream sink, at most
// once per message id within the claim TTL.
package push

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/nebulateam/nebula/internal/broker"
	"github.com/nebulateam/nebula/internal/logging"
	"github.com/nebulateam/nebula/internal/metrics"
)

type Sender struct {
	Claims  Claimer
	SinkURL string
	Client  *http.Client
	Logger  *logging.Logger
}

// Handle claims the message id, performs the single outbound call, and
// releases the claim if the call fails so a legitimate retry is not blocked
// by a claim taken before the side effect happened.
func (s *Sender) Handle(ctx context.Context, payload []byte, messageID string) error {
	log := s.Logger
	if log == nil {
		log = logging.New("push")
	}

	claimed, err := s.Claims.Claim(ctx, messageID)
	if err != nil {
		return fmt.Errorf("claim %q: %w", messageID, err)
	}
	if !claimed {
		metrics.RecordPushDelivery("duplicate")
		return fmt.Errorf("%w: push %q already claimed", broker.ErrDuplicate, messageID)
	}

	if err := s.deliver(ctx, payload, messageID); err != nil {
		if relErr := s.Claims.Release(ctx, messageID); relErr != nil {
			// The claim now blocks retries until the TTL expires.
			log.WithContext(ctx).WithMessageID(messageID).WithError(relErr).
				Error("failed to release claim after push failure")
		}
		metrics.RecordPushDelivery("failed")
		return err
	}

	// Success: the claim stays until natural TTL expiry, which is what
	// suppresses bona fide redeliveries.
	metrics.RecordPushDelivery("sent")
	log.WithContext(ctx).WithMessageID(messageID).Info("push sent")
	return nil
}

func (s *Sender) deliver(ctx context.Context, payload []byte, messageID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.SinkURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// The sink gets the same id as an idempotency token for its own dedup.
	req.Header.Set("Idempotency-Key", messageID)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("push %q: %w", messageID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push %q: sink returned %d: %s", messageID, resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
