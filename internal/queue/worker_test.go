package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/cache"
)

// fakeStore is an in-memory cache.Store with an injectable failure.
type fakeStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	failing bool
	deletes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string][]byte)}
}

func (s *fakeStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, false, cache.ErrUnavailable
	}
	value, found := s.entries[key]
	return value, found, nil
}

func (s *fakeStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return cache.ErrUnavailable
	}
	s.entries[key] = value
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.failing {
		return cache.ErrUnavailable
	}
	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

func (s *fakeStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("not implemented")
}

func (s *fakeStore) deleteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

func (s *fakeStore) setFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found := s.entries[key]
	return found
}

func publish(t *testing.T, broker Broker, event InvalidationEvent) {
	t.Helper()
	publisher, err := NewBrokerPublisher(broker)
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(context.Background(), event))
}

func TestWorkerInvalidatesContactAndListing(t *testing.T) {
	broker := NewMemoryBroker(16)
	store := newFakeStore()
	store.entries[cache.ContactKey(7)] = []byte("stale")
	store.entries[cache.ContactsKey] = []byte("stale-list")
	store.entries[cache.ContactKey(9)] = []byte("unrelated")

	worker, err := NewWorker(broker, store)
	require.NoError(t, err)

	publish(t, broker, NewInvalidationEvent(7, OpUpdated))
	require.NoError(t, worker.Drain(context.Background()))

	require.False(t, store.has(cache.ContactKey(7)))
	require.False(t, store.has(cache.ContactsKey))
	require.True(t, store.has(cache.ContactKey(9)))
}

func TestWorkerRedeliveryIsIdempotent(t *testing.T) {
	broker := NewMemoryBroker(16)
	store := newFakeStore()
	store.entries[cache.ContactKey(3)] = []byte("stale")

	worker, err := NewWorker(broker, store)
	require.NoError(t, err)

	// Simulated at-least-once redelivery: the same event twice.
	event := NewInvalidationEvent(3, OpDeleted)
	publish(t, broker, event)
	publish(t, broker, event)

	require.NoError(t, worker.Drain(context.Background()))
	require.False(t, store.has(cache.ContactKey(3)))
	require.Zero(t, broker.Len())
}

func TestWorkerNacksOnCacheFailure(t *testing.T) {
	broker := NewMemoryBroker(16)
	store := newFakeStore()
	store.entries[cache.ContactKey(5)] = []byte("stale")
	store.setFailing(true)

	worker, err := NewWorker(broker, store)
	require.NoError(t, err)

	publish(t, broker, NewInvalidationEvent(5, OpUpdated))

	processed, err := worker.ProcessOne(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	// Delivery was nacked back onto the queue, entry still present.
	require.Equal(t, 1, broker.Len())
	require.True(t, store.has(cache.ContactKey(5)))

	// Once the cache recovers the redelivered event is applied.
	store.setFailing(false)
	processed, err = worker.ProcessOne(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.False(t, store.has(cache.ContactKey(5)))
}

func TestWorkerPacesRetriesWhileCacheIsDown(t *testing.T) {
	broker := NewMemoryBroker(16)
	store := newFakeStore()
	store.entries[cache.ContactKey(4)] = []byte("stale")
	store.setFailing(true)

	worker, err := NewWorker(broker, store,
		WithReceiveBlock(5*time.Millisecond),
		WithRetryPause(50*time.Millisecond),
	)
	require.NoError(t, err)

	worker.Start()
	publish(t, broker, NewInvalidationEvent(4, OpUpdated))

	time.Sleep(120 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, worker.Stop(ctx))

	// Without the retry pause the nack/receive cycle would spin through
	// thousands of attempts in this window.
	require.GreaterOrEqual(t, store.deleteCalls(), 1)
	require.LessOrEqual(t, store.deleteCalls(), 5)
}

func TestWorkerDiscardsUndecodablePayload(t *testing.T) {
	broker := NewMemoryBroker(16)
	store := newFakeStore()

	worker, err := NewWorker(broker, store)
	require.NoError(t, err)

	require.NoError(t, broker.Enqueue(context.Background(), []byte("not-json")))
	require.NoError(t, worker.Drain(context.Background()))
	require.Zero(t, broker.Len())
}

func TestWorkerStartStop(t *testing.T) {
	broker := NewMemoryBroker(16)
	store := newFakeStore()
	store.entries[cache.ContactKey(1)] = []byte("stale")

	worker, err := NewWorker(broker, store, WithReceiveBlock(10*time.Millisecond))
	require.NoError(t, err)

	worker.Start()
	publish(t, broker, NewInvalidationEvent(1, OpUpdated))

	require.Eventually(t, func() bool {
		return !store.has(cache.ContactKey(1))
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, worker.Stop(ctx))
}
