package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/logger"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/metrics"
)

const (
	defaultPublishAttempts = 3
	defaultPublishBackoff  = 100 * time.Millisecond
)

// Publisher hands invalidation events to the broker.
type Publisher interface {
	Publish(ctx context.Context, event InvalidationEvent) error
}

// PublisherOption customises a BrokerPublisher.
type PublisherOption func(*BrokerPublisher)

// WithPublishAttempts overrides the retry budget for transient broker failures.
func WithPublishAttempts(attempts int) PublisherOption {
	return func(p *BrokerPublisher) {
		if attempts > 0 {
			p.attempts = attempts
		}
	}
}

// WithPublishBackoff overrides the delay between publish attempts.
func WithPublishBackoff(backoff time.Duration) PublisherOption {
	return func(p *BrokerPublisher) {
		if backoff > 0 {
			p.backoff = backoff
		}
	}
}

// BrokerPublisher publishes events with a bounded retry on transient
// broker failures. Publish failures never roll back the persistence
// write that triggered them; invalidation is best-effort with the cache
// TTL as backstop.
type BrokerPublisher struct {
	broker   Broker
	attempts int
	backoff  time.Duration
	log      *zap.Logger
}

// NewBrokerPublisher wraps a broker as a Publisher.
func NewBrokerPublisher(broker Broker, opts ...PublisherOption) (*BrokerPublisher, error) {
	if broker == nil {
		return nil, errors.New("queue: broker is required")
	}

	publisher := &BrokerPublisher{
		broker:   broker,
		attempts: defaultPublishAttempts,
		backoff:  defaultPublishBackoff,
		log:      logger.WithModule("queue.publisher"),
	}
	for _, opt := range opts {
		opt(publisher)
	}
	return publisher, nil
}

// Publish encodes and enqueues the event, retrying transient failures
// with a linear backoff before surfacing the last error.
func (p *BrokerPublisher) Publish(ctx context.Context, event InvalidationEvent) error {
	payload, err := event.Encode()
	if err != nil {
		metrics.EventsPublished.WithLabelValues("dropped").Inc()
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if lastErr = p.broker.Enqueue(ctx, payload); lastErr == nil {
			metrics.EventsPublished.WithLabelValues("ok").Inc()
			return nil
		}

		p.log.Warn("publish attempt failed",
			zap.Int("attempt", attempt),
			zap.Uint("contact_id", event.ContactID),
			zap.String("operation", event.Operation),
			zap.Error(lastErr),
		)

		if attempt == p.attempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * p.backoff):
		case <-ctx.Done():
			metrics.EventsPublished.WithLabelValues("dropped").Inc()
			return ctx.Err()
		}
	}

	metrics.EventsPublished.WithLabelValues("dropped").Inc()
	return lastErr
}
