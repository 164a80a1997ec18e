package queue

import (
	"context"
	"errors"
	"time"
)

// MemoryBroker is an in-process Broker backed by a buffered channel. It
// serves single-node deployments where Redis is disabled, and tests.
// Delivery guarantees are those of the process: messages do not survive
// a restart.
type MemoryBroker struct {
	messages chan []byte
}

// NewMemoryBroker builds an in-process broker with the given capacity.
func NewMemoryBroker(capacity int) *MemoryBroker {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryBroker{messages: make(chan []byte, capacity)}
}

// Enqueue appends a payload, failing when the buffer is full rather than
// blocking the write path.
func (b *MemoryBroker) Enqueue(ctx context.Context, payload []byte) error {
	select {
	case b.messages <- payload:
		return nil
	default:
		return errors.New("queue: memory broker buffer full")
	}
}

// Receive waits up to block for the next payload.
func (b *MemoryBroker) Receive(ctx context.Context, block time.Duration) (Delivery, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	timer := time.NewTimer(block)
	defer timer.Stop()

	select {
	case payload := <-b.messages:
		return &memoryDelivery{broker: b, payload: payload}, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of buffered payloads.
func (b *MemoryBroker) Len() int {
	return len(b.messages)
}

type memoryDelivery struct {
	broker  *MemoryBroker
	payload []byte
}

func (d *memoryDelivery) Payload() []byte { return d.payload }

// Ack is a no-op: channel receive already removed the payload.
func (d *memoryDelivery) Ack(ctx context.Context) error { return nil }

// Nack re-enqueues the payload for another attempt.
func (d *memoryDelivery) Nack(ctx context.Context) error {
	return d.broker.Enqueue(ctx, d.payload)
}
