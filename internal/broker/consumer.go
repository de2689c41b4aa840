package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nebulateam/nebula/internal/logging"
	"github.com/nebulateam/nebula/internal/metrics"
	"github.com/nebulateam/nebula/internal/tracing"
)

// HandlerFunc processes one delivery. messageID is guaranteed non-empty; the
// returned error is classified into an ack decision (see Classify).
type HandlerFunc func(ctx context.Context, payload []byte, messageID string) error

type ConsumerConfig struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
	Prefetch   int
}

// Consumer binds a durable queue to the topic exchange and feeds deliveries
// to a handler under manual ack. Prefetch bounds how many handlers can be in
// flight per connection.
type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	cfg    ConsumerConfig
	logger *logging.Logger
	done   chan struct{}
}

func NewConsumer(cfg ConsumerConfig, logger *logging.Logger) (*Consumer, error) {
	if logger == nil {
		logger = logging.New("broker")
	}
	logger.Plain().WithField("url", MaskAMQPURL(cfg.URL)).Info("connecting to broker")

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", cfg.Exchange, err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bind queue %q to %q:%q: %w", cfg.Queue, cfg.Exchange, cfg.RoutingKey, err)
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 50
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	logger.Plain().WithQueue(cfg.Queue).WithFields(map[string]any{
		"exchange":    cfg.Exchange,
		"routing_key": cfg.RoutingKey,
		"prefetch":    prefetch,
	}).Info("consumer bound")

	return &Consumer{
		conn:   conn,
		ch:     ch,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Start begins consuming and returns immediately; deliveries run on a
// background goroutine until the channel closes. Done() is closed when the
// delivery stream ends.
func (c *Consumer) Start(ctx context.Context, handler HandlerFunc) error {
	tag := c.cfg.Queue + "-" + uuid.NewString()
	deliveries, err := c.ch.Consume(c.cfg.Queue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %q: %w", c.cfg.Queue, err)
	}

	go func() {
		defer close(c.done)
		for d := range deliveries {
			c.handle(ctx, d, handler)
		}
		c.logger.Plain().WithQueue(c.cfg.Queue).Info("delivery stream closed")
	}()
	return nil
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, handler HandlerFunc) {
	// A message without an id can never satisfy idempotency downstream;
	// redelivering it cannot fix that.
	if d.MessageId == "" {
		c.logger.Plain().WithQueue(c.cfg.Queue).WithField("routing_key", d.RoutingKey).
			Error("delivery missing message id, rejecting without requeue")
		metrics.RecordConsumerMessage(c.cfg.Queue, string(OutcomeDrop))
		_ = d.Nack(false, false)
		return
	}

	ctx = tracing.ExtractTraceFromAMQP(ctx, headerMap(d.Headers))
	ctx, span := tracing.StartSpan(ctx, "consumer.handle",
		attribute.String("queue", c.cfg.Queue),
		attribute.String("routing_key", d.RoutingKey),
		attribute.String("message_id", d.MessageId),
	)
	defer span.End()

	err := handler(ctx, d.Body, d.MessageId)
	outcome := Classify(err)
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	metrics.RecordConsumerMessage(c.cfg.Queue, string(outcome))

	switch outcome {
	case OutcomeAck:
		_ = d.Ack(false)
	case OutcomeDuplicate:
		c.logger.WithContext(ctx).WithQueue(c.cfg.Queue).WithMessageID(d.MessageId).
			Debug("duplicate delivery acknowledged as no-op")
		_ = d.Ack(false)
	case OutcomeDrop:
		tracing.SetSpanError(ctx, err)
		c.logger.WithContext(ctx).WithQueue(c.cfg.Queue).WithMessageID(d.MessageId).WithError(err).
			Error("poison message rejected without requeue")
		_ = d.Nack(false, false)
	default:
		tracing.SetSpanError(ctx, err)
		c.logger.WithContext(ctx).WithQueue(c.cfg.Queue).WithMessageID(d.MessageId).WithError(err).
			Error("handler failed, message requeued")
		_ = d.Nack(false, true)
	}
}

// Healthy reports whether the broker connection is still open.
func (c *Consumer) Healthy(_ context.Context) error {
	if c.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

// Done is closed once the delivery stream has drained after Close.
func (c *Consumer) Done() <-chan struct{} { return c.done }

// Close shuts the channel then the connection. In-flight handlers finish;
// their ack/nack may no-op if the channel is already gone, which redelivers.
func (c *Consumer) Close() error {
	if err := c.ch.Close(); err != nil {
		c.logger.Plain().WithError(err).Warn("error closing consumer channel")
	}
	return c.conn.Close()
}

func headerMap(t amqp.Table) map[string]string {
	m := make(map[string]string, len(t))
	for k, v := range t {
		if s, ok := v.(string); ok {
			m[k] = s
		}
	}
	return m
}
