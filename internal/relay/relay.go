// Package relay implements the durable relay cycle: lease a bounded batch of
// pending rows under row-level locks, publish each one to the broker, and
// delete only the rows whose publish was confirmed. Concurrent relay
// instances subdivide the backlog because leased rows are skipped, not
// waited on.
package relay

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nebulateam/nebula/internal/logging"
	"github.com/nebulateam/nebula/internal/metrics"
	"github.com/nebulateam/nebula/internal/tracing"
)

// Row is one pending dispatch. Payload is opaque at this layer and forwarded
// verbatim; only the ingest handler that consumes it decodes it.
type Row struct {
	ID          int64
	DispatchKey string
	Payload     []byte
	MessageID   string
	CreatedAt   time.Time
}

// Batch is a leased set of rows inside an open storage transaction. The row
// locks are held until Complete or Abort ends the transaction.
type Batch interface {
	Rows() []Row
	// Complete deletes exactly the given ids and commits, releasing locks on
	// deleted and retained rows alike. A nil id set commits a no-op.
	Complete(ctx context.Context, publishedIDs []int64) error
	// Abort rolls the transaction back; every leased row stays selectable.
	Abort(ctx context.Context) error
}

// Source leases eligible rows. Implementations must select rows with
// eligible_at <= now() in eligibility order, locking them while skipping rows
// already locked by a concurrent cycle.
type Source interface {
	Lease(ctx context.Context, limit int) (Batch, error)
}

// Publisher publishes one message and returns only after the broker confirmed
// receipt, or with an error.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte, messageID string, headers map[string]string) error
}

type Relay struct {
	Name           string
	Source         Source
	Publisher      Publisher
	BatchSize      int
	Interval       time.Duration
	PublishTimeout time.Duration
	StaleAfter     time.Duration
	Logger         *logging.Logger
}

// RunOnce executes a single dispatch cycle. Per-row publish failures are
// swallowed here: the row is retained and competes for selection again next
// cycle. Storage errors roll the whole cycle back and are returned.
func (r *Relay) RunOnce(ctx context.Context) error {
	log := r.Logger
	if log == nil {
		log = logging.New("relay")
	}
	limit := r.BatchSize
	if limit <= 0 {
		limit = 500
	}

	ctx, span := tracing.StartSpan(ctx, "relay.cycle",
		attribute.String("relay", r.Name),
		attribute.Int("batch_size", limit),
	)
	defer span.End()

	batch, err := r.Source.Lease(ctx, limit)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		metrics.RecordRelayCycleError(r.Name)
		log.WithContext(ctx).WithRelay(r.Name).WithError(err).Error("relay lease failed")
		return err
	}

	rows := batch.Rows()
	if len(rows) == 0 {
		// Nothing eligible; commit the empty transaction and end the cycle.
		if err := batch.Complete(ctx, nil); err != nil {
			metrics.RecordRelayCycleError(r.Name)
			return err
		}
		return nil
	}
	span.SetAttributes(attribute.Int("leased", len(rows)))

	headers := tracing.PropagateTraceToAMQP(ctx)
	now := time.Now().UTC()

	published := make([]int64, 0, len(rows))
	for _, row := range rows {
		if ctx.Err() != nil {
			// Shutdown mid-batch: roll back so every row, published or not,
			// is redelivered by whichever instance runs next. Duplicates are
			// absorbed downstream.
			_ = batch.Abort(context.WithoutCancel(ctx))
			return ctx.Err()
		}
		if r.StaleAfter > 0 && !row.CreatedAt.IsZero() && now.Sub(row.CreatedAt) > r.StaleAfter {
			metrics.RecordRelayStaleRow(r.Name)
			log.WithContext(ctx).WithRelay(r.Name).WithMessageID(row.MessageID).WithFields(map[string]any{
				"row_id": row.ID,
				"age":    now.Sub(row.CreatedAt).String(),
			}).Warn("relay row older than stale threshold, still retrying")
		}

		pctx := ctx
		if r.PublishTimeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, r.PublishTimeout)
			err = r.Publisher.Publish(pctx, row.DispatchKey, row.Payload, row.MessageID, headers)
			cancel()
		} else {
			err = r.Publisher.Publish(pctx, row.DispatchKey, row.Payload, row.MessageID, headers)
		}
		if err != nil {
			// Not deleted; the row is retried on the next cycle.
			metrics.RecordRelayPublishFailure(r.Name)
			log.WithContext(ctx).WithRelay(r.Name).WithMessageID(row.MessageID).WithError(err).WithField("row_id", row.ID).
				Warn("relay publish failed, row retained for retry")
			continue
		}
		published = append(published, row.ID)
	}

	if err := batch.Complete(ctx, published); err != nil {
		tracing.SetSpanError(ctx, err)
		metrics.RecordRelayCycleError(r.Name)
		log.WithContext(ctx).WithRelay(r.Name).WithError(err).Error("relay batch completion failed, cycle rolled back")
		return err
	}

	metrics.RecordRelayPublished(r.Name, len(published))
	span.SetAttributes(attribute.Int("published", len(published)))
	log.WithContext(ctx).WithRelay(r.Name).WithFields(map[string]any{
		"leased":    len(rows),
		"published": len(published),
		"retained":  len(rows) - len(published),
	}).Info("relay cycle completed")
	return nil
}

// Run drives RunOnce on a fixed interval until ctx is cancelled. Cycle errors
// are logged and the loop keeps going; the next tick retries.
func (r *Relay) Run(ctx context.Context) {
	log := r.Logger
	if log == nil {
		log = logging.New("relay")
	}
	interval := r.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Plain().WithRelay(r.Name).WithField("interval", interval.String()).Info("relay started")
	for {
		select {
		case <-ctx.Done():
			log.Plain().WithRelay(r.Name).Info("relay stopped")
			return
		case <-ticker.C:
			_ = r.RunOnce(ctx)
		}
	}
}
