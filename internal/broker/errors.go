package broker

import "errors"

var (
	// ErrDuplicate marks a delivery whose side effect already happened.
	// The message is acknowledged as a successful no-op and never retried.
	ErrDuplicate = errors.New("duplicate message")

	// ErrMalformed marks a delivery that can never be processed (missing or
	// structurally invalid fields). The message is rejected without requeue.
	ErrMalformed = errors.New("malformed message")
)

// Outcome is the ack decision derived from a handler result.
type Outcome string

const (
	OutcomeAck       Outcome = "acked"
	OutcomeDuplicate Outcome = "duplicate" // acked, side effect skipped
	OutcomeRequeue   Outcome = "requeued"  // transient failure, redelivered
	OutcomeDrop      Outcome = "dropped"   // poison, rejected without requeue
)

// Classify maps a handler error to the ack decision. Transient failures are
// requeued for redelivery; duplicates and poison messages must not loop.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeAck
	case errors.Is(err, ErrDuplicate):
		return OutcomeDuplicate
	case errors.Is(err, ErrMalformed):
		return OutcomeDrop
	default:
		return OutcomeRequeue
	}
}
