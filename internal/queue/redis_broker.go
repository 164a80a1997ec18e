package queue

import (
	"context"
	"errors"
	"time"

	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/cache"
)

const (
	defaultPendingKey    = "queue:invalidation"
	defaultProcessingKey = "queue:invalidation:processing"
)

// RedisBroker stores the invalidation queue in a Redis list using the
// reliable-queue pattern: Enqueue pushes onto a pending list, Receive
// atomically moves the oldest payload onto a processing list, and Ack
// removes it from there. Payloads left on the processing list (consumer
// crash, failed cache delete) are requeued by Recover.
type RedisBroker struct {
	client     *cache.RedisClient
	pending    string
	processing string
}

// NewRedisBroker wraps a Redis client as a Broker. The client must be
// dedicated to the broker: Receive blocks the connection.
func NewRedisBroker(client *cache.RedisClient) (*RedisBroker, error) {
	if client == nil {
		return nil, errors.New("queue: redis client is required")
	}
	return &RedisBroker{
		client:     client,
		pending:    defaultPendingKey,
		processing: defaultProcessingKey,
	}, nil
}

// Enqueue appends a payload to the pending list.
func (b *RedisBroker) Enqueue(ctx context.Context, payload []byte) error {
	return b.client.LPush(ctx, b.pending, payload)
}

// Receive leases the oldest pending payload by moving it onto the
// processing list.
func (b *RedisBroker) Receive(ctx context.Context, block time.Duration) (Delivery, error) {
	payload, err := b.client.BRPopLPush(ctx, b.pending, b.processing, block)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	return &redisDelivery{broker: b, payload: payload}, nil
}

// Recover moves every payload stranded on the processing list back onto
// the pending list. Called on worker startup so crashed-consumer messages
// are redelivered rather than lost.
func (b *RedisBroker) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		payload, err := b.client.RPopLPush(b.ctxOrBackground(ctx), b.processing, b.pending)
		if err != nil {
			return moved, err
		}
		if payload == nil {
			return moved, nil
		}
		moved++
	}
}

func (b *RedisBroker) ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

type redisDelivery struct {
	broker  *RedisBroker
	payload []byte
}

func (d *redisDelivery) Payload() []byte { return d.payload }

// Ack removes the payload from the processing list.
func (d *redisDelivery) Ack(ctx context.Context) error {
	return d.broker.client.LRem(ctx, d.broker.processing, d.payload)
}

// Nack returns the payload to the pending list for redelivery.
func (d *redisDelivery) Nack(ctx context.Context) error {
	if err := d.broker.client.LPush(ctx, d.broker.pending, d.payload); err != nil {
		return err
	}
	return d.broker.client.LRem(ctx, d.broker.processing, d.payload)
}
