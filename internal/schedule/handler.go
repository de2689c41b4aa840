// Package schedule turns at-least-once user.created deliveries into exactly
// one scheduled notification per message id, using the storage-enforced
// unique idempotency key as the dedup gate.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nebulateam/nebula/internal/broker"
	"github.com/nebulateam/nebula/internal/logging"
	"github.com/nebulateam/nebula/internal/scheduled"
)

// Scheduler is the store subset the handler needs.
type Scheduler interface {
	Insert(ctx context.Context, n scheduled.Notification) (bool, error)
}

type Handler struct {
	Store  Scheduler
	Delay  time.Duration // how far out the push is scheduled
	Type   string        // routing key of the scheduled notification
	Logger *logging.Logger
}

type userCreatedPayload struct {
	UserID int64 `json:"user_id"`
}

type pushPayload struct {
	UserID   int64             `json:"user_id"`
	Template string            `json:"template"`
	Meta     map[string]string `json:"meta"`
}

// Handle schedules a welcome push for the new user, keyed by the inbound
// message id. Redeliveries resolve to an acknowledged no-op; any other
// storage failure is transient and triggers redelivery.
func (h *Handler) Handle(ctx context.Context, payload []byte, messageID string) error {
	log := h.Logger
	if log == nil {
		log = logging.New("schedule")
	}

	var evt userCreatedPayload
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("%w: decode user.created: %v", broker.ErrMalformed, err)
	}
	if evt.UserID == 0 {
		return fmt.Errorf("%w: user_id is required in user.created", broker.ErrMalformed)
	}

	delay := h.Delay
	if delay <= 0 {
		delay = 10 * time.Minute
	}
	notifType := h.Type
	if notifType == "" {
		notifType = "notification.push"
	}

	body, err := json.Marshal(pushPayload{
		UserID:   evt.UserID,
		Template: "welcome",
		Meta:     map[string]string{"source": "user.created"},
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	created, err := h.Store.Insert(ctx, scheduled.Notification{
		DeliverAt:      time.Now().UTC().Add(delay),
		Type:           notifType,
		UserID:         evt.UserID,
		IdempotencyKey: messageID,
		Payload:        body,
	})
	if err != nil {
		// The store resolves conflicts to (false, nil), but a racing insert
		// can still surface the raw constraint error; both mean duplicate.
		if scheduled.IsUniqueViolation(err) {
			return fmt.Errorf("%w: idempotency key %q already scheduled", broker.ErrDuplicate, messageID)
		}
		return fmt.Errorf("insert scheduled notification: %w", err)
	}

	if created {
		log.WithContext(ctx).WithMessageID(messageID).WithFields(map[string]any{
			"user_id":    evt.UserID,
			"deliver_in": delay.String(),
		}).Info("notification scheduled")
	} else {
		log.WithContext(ctx).WithMessageID(messageID).Debug("duplicate message ignored")
	}
	return nil
}
