package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/loomhq/loom/internal/observability"
)

// EnsureStream creates or updates the durable stream that carries domain
// events. Call it once at startup before publishers and consumers attach.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name string, subjects []string) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Retention: jetstream.LimitsPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", name, err)
	}
	return stream, nil
}

// Publisher writes event.v1 envelopes to the stream.
type Publisher struct {
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a publisher. metrics may be nil.
func NewPublisher(js jetstream.JetStream, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{js: js, logger: logger, metrics: metrics}
}

// Publish serializes the envelope and writes it under its subject.
func (p *Publisher) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if _, err := p.js.Publish(ctx, env.Subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", env.Subject, err)
	}
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(env.Subject).Inc()
	}
	p.logger.Debug("event published",
		"subject", env.Subject,
		"event_id", env.EventID,
		"conversation_id", env.ConversationID,
	)
	return nil
}
