// Package rabbitmq publishes fill and cancellation events for downstream
// booking and treasury consumers.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/metrics"
	"github.com/Checker-Finance/private-otc/pkg/eventbus"
	"github.com/Checker-Finance/private-otc/pkg/model"
)

const (
	// QueueRequestsFilled receives quote_request.filled envelopes.
	QueueRequestsFilled = "otc.quote_requests.filled"
	// QueueRequestsCancelled receives quote_request.cancelled envelopes.
	QueueRequestsCancelled = "otc.quote_requests.cancelled"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes events to RabbitMQ
type Publisher struct {
	conn    *amqp.Connection
	channel channel
	logger  *zap.Logger
}

// NewPublisher dials url, declares the queues and returns a publisher.
func NewPublisher(url string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p := newPublisher(ch, logger)
	p.conn = conn
	if err := p.declareQueues(); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func newPublisher(ch channel, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{channel: ch, logger: logger}
}

func (p *Publisher) declareQueues() error {
	for _, q := range []string{QueueRequestsFilled, QueueRequestsCancelled} {
		if _, err := p.channel.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q, err)
		}
	}
	return nil
}

// Attach subscribes the publisher to fill and cancel events on bus.
func (p *Publisher) Attach(bus *eventbus.EventBus) {
	eventbus.On(bus, func(e model.QuoteRequestFilled) {
		_ = p.publish(context.Background(), QueueRequestsFilled, e, 0)
	})
	eventbus.On(bus, func(e model.QuoteRequestCancelled) {
		_ = p.publish(context.Background(), QueueRequestsCancelled, e, 10)
	})
}

func (p *Publisher) publish(ctx context.Context, queue string, ev model.Event, priority uint8) error {
	env, err := model.NewEnvelope(ev.EventType(), ev, ev.OccurredAt())
	if err != nil {
		p.logger.Error("rabbitmq.marshal_failed", zap.String("event_type", ev.EventType()), zap.Error(err))
		metrics.IncEvent("rabbitmq", ev.EventType(), "marshal_failed")
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("rabbitmq.marshal_failed", zap.String("event_type", ev.EventType()), zap.Error(err))
		metrics.IncEvent("rabbitmq", ev.EventType(), "marshal_failed")
		return err
	}

	err = p.channel.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    env.ID.String(),
			Type:         env.EventType,
			Timestamp:    env.Timestamp,
			Priority:     priority,
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("rabbitmq.publish_failed",
			zap.String("queue", queue),
			zap.String("event_id", env.ID.String()),
			zap.Error(err))
		metrics.IncEvent("rabbitmq", ev.EventType(), "error")
		return err
	}
	p.logger.Info("rabbitmq.published", zap.String("queue", queue), zap.String("event_id", env.ID.String()))
	metrics.IncEvent("rabbitmq", ev.EventType(), "ok")
	return nil
}

// Close closes the publisher
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
