package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/cache"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/models"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/queue"
)

// memoryStore is a map-backed cache.Store. Flipping failing simulates a
// cache outage.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	failing bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string][]byte)}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, false, cache.ErrUnavailable
	}
	value, ok := s.entries[key]
	return value, ok, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return cache.ErrUnavailable
	}
	s.entries[key] = value
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return cache.ErrUnavailable
	}
	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

func (s *memoryStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("not implemented")
}

func (s *memoryStore) setFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func (s *memoryStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

type contactFixture struct {
	service *ContactService
	store   *memoryStore
	broker  *queue.MemoryBroker
	worker  *queue.Worker
}

func newContactFixture(t *testing.T) *contactFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Contact{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := newMemoryStore()
	broker := queue.NewMemoryBroker(64)
	publisher, err := queue.NewBrokerPublisher(broker, queue.WithPublishBackoff(time.Millisecond))
	require.NoError(t, err)
	worker, err := queue.NewWorker(broker, store)
	require.NoError(t, err)

	service, err := NewContactService(NewContactRepository(db), store, publisher)
	require.NoError(t, err)

	return &contactFixture{service: service, store: store, broker: broker, worker: worker}
}

func (f *contactFixture) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, f.worker.Drain(context.Background()))
}

func TestContactServiceCreateThenGet(t *testing.T) {
	f := newContactFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, ContactInput{Name: "Ann", Email: "ann@example.com", Phone: "555-0100"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := f.service.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Ann", got.Name)

	// The read populated the cache.
	require.True(t, f.store.has(cache.ContactKey(created.ID)))
}

func TestContactServiceGetUnknownContact(t *testing.T) {
	f := newContactFixture(t)

	_, err := f.service.GetByID(context.Background(), 9999)
	require.Error(t, err)
}

func TestContactServiceValidatesInput(t *testing.T) {
	f := newContactFixture(t)

	_, err := f.service.Create(context.Background(), ContactInput{Email: "no-name@example.com"})
	require.Error(t, err)

	_, err = f.service.Create(context.Background(), ContactInput{Name: "No Email"})
	require.Error(t, err)
}

func TestContactServiceUpdateInvalidatesCache(t *testing.T) {
	f := newContactFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, ContactInput{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
	f.drain(t)

	// Warm the cache with the old value.
	_, err = f.service.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, f.store.has(cache.ContactKey(created.ID)))

	_, err = f.service.Update(ctx, created.ID, ContactInput{Name: "Annie", Email: "ann@example.com"})
	require.NoError(t, err)

	// Until the worker runs, the cached row may still say Ann. Once the
	// event is applied the next read must observe Annie.
	f.drain(t)
	require.False(t, f.store.has(cache.ContactKey(created.ID)))

	got, err := f.service.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Annie", got.Name)
}

func TestContactServiceDeleteInvalidatesCacheAndListing(t *testing.T) {
	f := newContactFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, ContactInput{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
	other, err := f.service.Create(ctx, ContactInput{Name: "Bob", Email: "bob@example.com"})
	require.NoError(t, err)
	f.drain(t)

	// Warm both cache entries.
	_, err = f.service.GetByID(ctx, created.ID)
	require.NoError(t, err)
	listing, err := f.service.List(ctx)
	require.NoError(t, err)
	require.Len(t, listing, 2)
	require.True(t, f.store.has(cache.ContactsKey))

	require.NoError(t, f.service.Delete(ctx, created.ID))
	f.drain(t)

	_, err = f.service.GetByID(ctx, created.ID)
	require.Error(t, err)

	listing, err = f.service.List(ctx)
	require.NoError(t, err)
	require.Len(t, listing, 1)
	require.Equal(t, other.ID, listing[0].ID)
}

func TestContactServiceUpdateUnknownContact(t *testing.T) {
	f := newContactFixture(t)

	_, err := f.service.Update(context.Background(), 9999, ContactInput{Name: "Nobody", Email: "no@example.com"})
	require.Error(t, err)
	require.Equal(t, 0, f.broker.Len(), "failed updates must not publish events")
}

func TestContactServiceSurvivesCacheOutage(t *testing.T) {
	f := newContactFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, ContactInput{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)

	f.store.setFailing(true)

	// Reads fall through to the database.
	got, err := f.service.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Ann", got.Name)

	listing, err := f.service.List(ctx)
	require.NoError(t, err)
	require.Len(t, listing, 1)

	// Writes still succeed.
	_, err = f.service.Update(ctx, created.ID, ContactInput{Name: "Annie", Email: "ann@example.com"})
	require.NoError(t, err)

	f.store.setFailing(false)
	f.drain(t)

	got, err = f.service.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Annie", got.Name)
}

func TestContactServicePublishFailureDoesNotFailWrite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Contact{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	// A full broker rejects every enqueue.
	broker := queue.NewMemoryBroker(1)
	require.NoError(t, broker.Enqueue(context.Background(), []byte("occupied")))
	publisher, err := queue.NewBrokerPublisher(broker, queue.WithPublishBackoff(time.Millisecond))
	require.NoError(t, err)

	service, err := NewContactService(NewContactRepository(db), newMemoryStore(), publisher)
	require.NoError(t, err)

	created, err := service.Create(context.Background(), ContactInput{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)

	got, err := service.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, "Ann", got.Name)
}

func TestContactServiceListCachesListing(t *testing.T) {
	f := newContactFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, ContactInput{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
	f.drain(t)

	first, err := f.service.List(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.True(t, f.store.has(cache.ContactsKey))

	second, err := f.service.List(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
