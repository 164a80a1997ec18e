package queue

import (
	"context"
	"time"
)

// Delivery is a message leased from the broker. The consumer must Ack
// after the side effects succeed, or Nack to schedule redelivery.
type Delivery interface {
	Payload() []byte
	Ack(ctx context.Context) error
	Nack(ctx context.Context) error
}

// Broker is the minimal durable-queue contract the invalidation pipeline
// needs: append a payload, lease the oldest payload.
type Broker interface {
	// Enqueue appends a payload to the queue.
	Enqueue(ctx context.Context, payload []byte) error
	// Receive leases the next payload, blocking up to block when the
	// queue is empty. A nil Delivery with a nil error means the wait
	// timed out.
	Receive(ctx context.Context, block time.Duration) (Delivery, error)
}
