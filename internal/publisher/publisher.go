// Package publisher forwards negotiation lifecycle events to NATS JetStream.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/metrics"
	"github.com/Checker-Finance/private-otc/pkg/eventbus"
	"github.com/Checker-Finance/private-otc/pkg/model"
)

// jetStream is the part of nats.JetStreamContext the publisher uses.
type jetStream interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// Publisher wraps a NATS connection and publishes event envelopes on
// "<prefix>.<event_type>".
type Publisher struct {
	nc      *nats.Conn
	js      jetStream
	prefix  string
	service string
	logger  *zap.Logger
}

// New creates a Publisher on nc with JetStream enabled.
func New(nc *nats.Conn, prefix, service string, logger *zap.Logger) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	p := newPublisher(js, prefix, service, logger)
	p.nc = nc
	return p, nil
}

func newPublisher(js jetStream, prefix, service string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{js: js, prefix: prefix, service: service, logger: logger}
}

// Subject returns the subject an event type is published on.
func (p *Publisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// EnsureStream creates the stream capturing "<prefix>.>" if it does not exist.
func (p *Publisher) EnsureStream(name string) error {
	_, err := p.js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", name, err)
	}
	if _, err := p.js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{p.prefix + ".>"},
		Storage:  nats.FileStorage,
	}); err != nil {
		return fmt.Errorf("add stream %s: %w", name, err)
	}
	p.logger.Info("publisher.stream_created", zap.String("stream", name), zap.String("subjects", p.prefix+".>"))
	return nil
}

// PublishEnvelope serializes env and publishes it. The envelope id doubles as
// the JetStream de-duplication id.
func (p *Publisher) PublishEnvelope(ctx context.Context, env model.Envelope) error {
	subject := p.Subject(env.EventType)
	data, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("publisher.marshal_failed", zap.String("event_type", env.EventType), zap.Error(err))
		metrics.IncEvent("nats", env.EventType, "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			nats.MsgIdHdr:  []string{env.ID.String()},
			"event_type":   []string{env.EventType},
			"service":      []string{p.service},
			"content_type": []string{"application/json"},
		},
	}

	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		p.logger.Error("publisher.publish_failed",
			zap.String("subject", subject),
			zap.String("event_id", env.ID.String()),
			zap.Error(err))
		metrics.IncEvent("nats", env.EventType, "error")
		return err
	}

	p.logger.Debug("publisher.publish_success", zap.String("subject", subject), zap.String("event_id", env.ID.String()))
	metrics.IncEvent("nats", env.EventType, "ok")
	return nil
}

// PublishEvent wraps ev in an envelope and publishes it.
func (p *Publisher) PublishEvent(ctx context.Context, ev model.Event) error {
	env, err := model.NewEnvelope(ev.EventType(), ev, ev.OccurredAt())
	if err != nil {
		metrics.IncEvent("nats", ev.EventType(), "marshal_failed")
		return err
	}
	return p.PublishEnvelope(ctx, env)
}

// Attach forwards every lifecycle event on bus to NATS. Failures are logged.
func (p *Publisher) Attach(bus *eventbus.EventBus) {
	forward := func(ev model.Event) { _ = p.PublishEvent(context.Background(), ev) }
	eventbus.On(bus, func(e model.QuoteRequestCreated) { forward(e) })
	eventbus.On(bus, func(e model.QuoteRequestCancelled) { forward(e) })
	eventbus.On(bus, func(e model.QuoteSubmitted) { forward(e) })
	eventbus.On(bus, func(e model.QuoteRequestFilled) { forward(e) })
}

// HealthCheck reports whether the NATS connection is up.
func (p *Publisher) HealthCheck(context.Context) error {
	if p.nc == nil || !p.nc.IsConnected() {
		return errors.New("nats: not connected")
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
