package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/loomhq/loom/internal/observability"
)

// Handler processes one decoded envelope. A returned error leaves the
// message unacknowledged so the stream redelivers it.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

// SubscriberOptions configures the durable pull consumer.
type SubscriberOptions struct {
	Durable       string
	BatchSize     int
	FetchMaxWait  time.Duration
	AckWait       time.Duration
	MaxAckPending int
}

// Subscriber is the background worker pulling queued events from the
// durable stream. Delivery is at-least-once: messages are acknowledged
// only after the handler succeeds.
type Subscriber struct {
	consumer jetstream.Consumer
	handler  Handler
	opts     SubscriberOptions
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewSubscriber attaches a durable consumer to the stream and wires it to
// the handler.
func NewSubscriber(
	ctx context.Context,
	stream jetstream.Stream,
	handler Handler,
	opts SubscriberOptions,
	logger *slog.Logger,
	metrics *observability.Metrics,
) (*Subscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.FetchMaxWait <= 0 {
		opts.FetchMaxWait = 2 * time.Second
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       opts.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       opts.AckWait,
		MaxAckPending: opts.MaxAckPending,
	})
	if err != nil {
		return nil, err
	}
	return &Subscriber{
		consumer: consumer,
		handler:  handler,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Run pulls batches until the context is cancelled. Handler failures never
// crash the loop.
func (s *Subscriber) Run(ctx context.Context) {
	s.logger.Info("event subscriber started",
		"durable", s.opts.Durable,
		"batch", s.opts.BatchSize,
	)
	for {
		if ctx.Err() != nil {
			s.logger.Info("event subscriber stopped")
			return
		}

		batch, err := s.consumer.Fetch(s.opts.BatchSize, jetstream.FetchMaxWait(s.opts.FetchMaxWait))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			s.logger.Warn("event fetch failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for msg := range batch.Messages() {
			s.process(ctx, msg)
		}
		if err := batch.Error(); err != nil {
			s.logger.Warn("event batch ended with error", "error", err)
		}
	}
}

func (s *Subscriber) process(ctx context.Context, msg jetstream.Msg) {
	env, err := ParseEnvelope(msg.Data())
	if err != nil {
		// Malformed or wrong-schema messages can never succeed; ack so
		// they are not redelivered forever.
		s.logger.Warn("dropping malformed event", "subject", msg.Subject(), "error", err)
		s.count("dropped")
		if ackErr := msg.Ack(); ackErr != nil {
			s.logger.Warn("ack failed", "error", ackErr)
		}
		return
	}

	if err := s.handler.Handle(ctx, env); err != nil {
		// No ack: the stream redelivers the message later.
		s.logger.Error("event handling failed",
			"subject", env.Subject,
			"event_id", env.EventID,
			"error", err,
		)
		s.count("failed")
		return
	}

	s.count("handled")
	if err := msg.Ack(); err != nil {
		s.logger.Warn("ack failed", "subject", env.Subject, "error", err)
	}
}

func (s *Subscriber) count(status string) {
	if s.metrics != nil {
		s.metrics.EventsConsumed.WithLabelValues(status).Inc()
	}
}
