// Package broker owns the AMQP connection lifecycle on both sides of the
// pipeline: a confirm-mode publisher for the relays and a manual-ack consumer
// for the ingest handlers.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nebulateam/nebula/internal/logging"
)

// Publisher holds one connection and one confirm-mode channel. Publish
// returns only after the broker positively confirmed the message, so callers
// can treat a nil error as "durably accepted".
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *logging.Logger
}

// NewPublisher connects, puts the channel in confirm mode and declares the
// durable topic exchange. Declaration is idempotent across restarts and
// across the publisher/consumer pair.
func NewPublisher(amqpURL, exchange string, logger *logging.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logging.New("broker")
	}
	logger.Plain().WithField("url", MaskAMQPURL(amqpURL)).Info("connecting to broker")

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp confirm mode: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	p := &Publisher{conn: conn, ch: ch, exchange: exchange, logger: logger}
	p.watch()
	return p, nil
}

// watch surfaces connection/channel drops and unroutable returns to the
// operator. In-flight publishes fail through their confirmation wait.
func (p *Publisher) watch() {
	connClose := p.conn.NotifyClose(make(chan *amqp.Error, 1))
	chClose := p.ch.NotifyClose(make(chan *amqp.Error, 1))
	returns := p.ch.NotifyReturn(make(chan amqp.Return, 1))

	go func() {
		for {
			select {
			case err, ok := <-connClose:
				if !ok {
					return
				}
				if err != nil {
					p.logger.Plain().WithError(err).Error("broker connection closed")
				}
			case err, ok := <-chClose:
				if !ok {
					return
				}
				if err != nil {
					p.logger.Plain().WithError(err).Error("broker channel closed")
				}
			case ret, ok := <-returns:
				if !ok {
					return
				}
				p.logger.Plain().WithMessageID(ret.MessageId).WithField("routing_key", ret.RoutingKey).
					Warn("unroutable message returned")
			}
		}
	}()
}

// Publish sends one persistent message and blocks until the broker confirms
// it or ctx expires. A negative confirmation, a closed channel, or a
// saturated write buffer that never drains all surface as errors here; there
// is no path that reports success without a positive confirm.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload []byte, messageID string, headers map[string]string) error {
	tbl := amqp.Table{}
	for k, v := range headers {
		tbl[k] = v
	}

	conf, err := p.ch.PublishWithDeferredConfirmWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Headers:      tbl,
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %q: %w", routingKey, err)
	}

	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm wait %q: %w", routingKey, err)
	}
	if !acked {
		return fmt.Errorf("broker rejected message %q (routing key %q)", messageID, routingKey)
	}
	return nil
}

// Healthy reports whether the broker connection is still open.
func (p *Publisher) Healthy(_ context.Context) error {
	if p.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

// Close shuts the channel then the connection, letting in-flight
// confirmations resolve or fail fast.
func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.logger.Plain().WithError(err).Warn("error closing broker channel")
	}
	return p.conn.Close()
}

// MaskAMQPURL hides credentials in a broker URL for logging.
func MaskAMQPURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		if i := strings.Index(raw, "@"); i >= 0 && strings.Contains(raw, "//") {
			j := strings.Index(raw, "//")
			return raw[:j+2] + "***:***" + raw[i:]
		}
		return raw
	}
	u.User = url.UserPassword("***", "***")
	return u.String()
}
