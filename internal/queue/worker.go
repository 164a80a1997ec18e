package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/cache"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/logger"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/metrics"
)

const (
	defaultReceiveBlock = 2 * time.Second
	defaultHandleWindow = 5 * time.Second
	defaultRetryPause   = time.Second
)

// Worker consumes invalidation events and drops the affected cache
// entries. It only ever deletes keys, so redelivered or out-of-order
// events are harmless: deleting an absent key is a no-op and a Deleted
// event can never be undone by a stale Updated one.
type Worker struct {
	broker Broker
	store  cache.Store
	log    *zap.Logger

	block  time.Duration
	window time.Duration
	pause  time.Duration

	stop chan struct{}
	done chan struct{}
}

// WorkerOption customises a Worker.
type WorkerOption func(*Worker)

// WithReceiveBlock sets how long a Receive call waits for a message.
func WithReceiveBlock(block time.Duration) WorkerOption {
	return func(w *Worker) {
		if block > 0 {
			w.block = block
		}
	}
}

// WithHandleWindow bounds the time spent applying one event.
func WithHandleWindow(window time.Duration) WorkerOption {
	return func(w *Worker) {
		if window > 0 {
			w.window = window
		}
	}
}

// WithRetryPause sets the delay before the loop retries after a receive
// error or a nacked delivery.
func WithRetryPause(pause time.Duration) WorkerOption {
	return func(w *Worker) {
		if pause > 0 {
			w.pause = pause
		}
	}
}

// NewWorker builds a Worker over the given broker and cache store.
func NewWorker(broker Broker, store cache.Store, opts ...WorkerOption) (*Worker, error) {
	if broker == nil {
		return nil, errors.New("queue: broker is required")
	}
	if store == nil {
		return nil, errors.New("queue: cache store is required")
	}

	worker := &Worker{
		broker: broker,
		store:  store,
		log:    logger.WithModule("queue.worker"),
		block:  defaultReceiveBlock,
		window: defaultHandleWindow,
		pause:  defaultRetryPause,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(worker)
	}
	return worker, nil
}

// Start requeues any stranded deliveries and launches the consume loop.
func (w *Worker) Start() {
	if rb, ok := w.broker.(*RedisBroker); ok {
		ctx, cancel := context.WithTimeout(context.Background(), w.window)
		moved, err := rb.Recover(ctx)
		cancel()
		if err != nil {
			w.log.Warn("processing-list recovery failed", zap.Error(err))
		} else if moved > 0 {
			w.log.Info("requeued stranded invalidation events", zap.Int("count", moved))
		}
	}

	go w.run()
}

// Stop signals the consume loop and waits for it to exit or for ctx to expire.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run() {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			return
		default:
		}

		delivery, err := w.broker.Receive(context.Background(), w.block)
		if err != nil {
			w.log.Warn("broker receive failed", zap.Error(err))
			w.rest()
			continue
		}
		if delivery == nil {
			continue
		}

		if !w.handle(delivery) {
			// The nacked delivery is immediately receivable again, so
			// pause before retrying instead of spinning on it.
			w.rest()
		}
	}
}

func (w *Worker) rest() {
	select {
	case <-time.After(w.pause):
	case <-w.stop:
	}
}

// ProcessOne leases and handles a single event. It reports whether a
// message was processed; (false, nil) means the queue was empty.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	delivery, err := w.broker.Receive(ctx, w.block)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}

	w.handle(delivery)
	return true, nil
}

// Drain synchronously processes events until the queue is empty.
// Intended for tests and graceful shutdown. A nacked delivery aborts the
// drain; looping on it would never terminate.
func (w *Worker) Drain(ctx context.Context) error {
	for {
		delivery, err := w.broker.Receive(ctx, time.Millisecond)
		if err != nil {
			return err
		}
		if delivery == nil {
			return nil
		}
		if !w.handle(delivery) {
			return errors.New("queue: invalidation left for redelivery")
		}
	}
}

// handle applies one delivery and reports whether it was settled (acked
// or discarded). A false return means the delivery was nacked for
// redelivery.
func (w *Worker) handle(delivery Delivery) bool {
	ctx, cancel := context.WithTimeout(context.Background(), w.window)
	defer cancel()

	event, err := DecodeInvalidationEvent(delivery.Payload())
	if err != nil {
		// Malformed payloads are acked away; redelivery cannot fix them.
		w.log.Error("discarding undecodable event", zap.Error(err))
		if ackErr := delivery.Ack(ctx); ackErr != nil {
			w.log.Warn("ack failed", zap.Error(ackErr))
		}
		return true
	}

	keys := []string{cache.ContactKey(event.ContactID), cache.ContactsKey}
	if err := w.store.Delete(ctx, keys...); err != nil {
		// Leave the delivery unacked so the broker redelivers it;
		// the entry must not stay stale past the TTL backstop.
		metrics.EventsProcessed.WithLabelValues("retried").Inc()
		w.log.Warn("cache invalidation failed, scheduling redelivery",
			zap.Uint("contact_id", event.ContactID),
			zap.String("operation", event.Operation),
			zap.Error(err),
		)
		if nackErr := delivery.Nack(ctx); nackErr != nil {
			w.log.Warn("nack failed", zap.Error(nackErr))
		}
		return false
	}

	if err := delivery.Ack(ctx); err != nil {
		w.log.Warn("ack failed", zap.Error(err))
	}

	metrics.EventsProcessed.WithLabelValues("ok").Inc()
	w.log.Debug("cache entries invalidated",
		zap.Uint("contact_id", event.ContactID),
		zap.String("operation", event.Operation),
	)
	return true
}
