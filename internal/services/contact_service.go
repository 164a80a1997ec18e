package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/cache"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/models"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/queue"
	apperrors "github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/errors"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/logger"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/metrics"
)

const defaultContactCacheTTL = 10 * time.Minute

// ContactInput describes contact create/update payloads.
type ContactInput struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

// ContactOption customises a ContactService.
type ContactOption func(*ContactService)

// WithContactCacheTTL overrides the TTL applied to cached contacts.
func WithContactCacheTTL(ttl time.Duration) ContactOption {
	return func(s *ContactService) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// ContactService owns the contact read and write paths. Reads are
// cache-aside against the shared store; writes go straight to the
// repository and hand a single invalidation event to the publisher.
// The cache is an optimisation throughout: any cache failure degrades
// to repository reads and never surfaces to the caller.
type ContactService struct {
	repo      ContactRepository
	store     cache.Store
	publisher queue.Publisher
	cacheTTL  time.Duration
	log       *zap.Logger
}

// NewContactService constructs a ContactService. The store and publisher
// are optional; without them the service is a plain repository facade.
func NewContactService(repo ContactRepository, store cache.Store, publisher queue.Publisher, opts ...ContactOption) (*ContactService, error) {
	if repo == nil {
		return nil, errors.New("contact service: repository is required")
	}

	service := &ContactService{
		repo:      repo,
		store:     store,
		publisher: publisher,
		cacheTTL:  defaultContactCacheTTL,
		log:       logger.WithModule("services.contact"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// GetByID returns a single contact, served from cache when possible.
func (s *ContactService) GetByID(ctx context.Context, id uint) (*models.Contact, error) {
	ctx = ensureContext(ctx)

	key := cache.ContactKey(id)
	if payload, ok := s.cacheGet(ctx, key); ok {
		var contact models.Contact
		if err := json.Unmarshal(payload, &contact); err == nil {
			return &contact, nil
		}
		// A corrupt entry is treated as a miss; the fresh read below overwrites it.
		s.log.Warn("discarding undecodable cache entry", zap.String("key", key))
	}

	contact, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrContactNotFound) {
		return nil, apperrors.NewNotFound("Contact not found")
	}
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, key, contact)
	return contact, nil
}

// List returns every contact, served from the listing cache when possible.
func (s *ContactService) List(ctx context.Context) ([]models.Contact, error) {
	ctx = ensureContext(ctx)

	if payload, ok := s.cacheGet(ctx, cache.ContactsKey); ok {
		var contacts []models.Contact
		if err := json.Unmarshal(payload, &contacts); err == nil {
			return contacts, nil
		}
		s.log.Warn("discarding undecodable cache entry", zap.String("key", cache.ContactsKey))
	}

	contacts, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, cache.ContactsKey, contacts)
	return contacts, nil
}

// Create persists a new contact and publishes its invalidation event.
func (s *ContactService) Create(ctx context.Context, input ContactInput) (*models.Contact, error) {
	ctx = ensureContext(ctx)

	contact, err := contactFromInput(input)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, contact); err != nil {
		return nil, err
	}

	s.publishInvalidation(ctx, contact.ID, queue.OpCreated)
	return contact, nil
}

// Update overwrites an existing contact and publishes its invalidation event.
func (s *ContactService) Update(ctx context.Context, id uint, input ContactInput) (*models.Contact, error) {
	ctx = ensureContext(ctx)

	contact, err := contactFromInput(input)
	if err != nil {
		return nil, err
	}
	contact.ID = id

	err = s.repo.Update(ctx, contact)
	if errors.Is(err, ErrContactNotFound) {
		return nil, apperrors.NewNotFound("Contact not found")
	}
	if err != nil {
		return nil, err
	}

	s.publishInvalidation(ctx, id, queue.OpUpdated)

	// Reload so callers see database-populated timestamps.
	return s.repo.FindByID(ctx, id)
}

// Delete removes a contact and publishes its invalidation event.
func (s *ContactService) Delete(ctx context.Context, id uint) error {
	ctx = ensureContext(ctx)

	err := s.repo.Delete(ctx, id)
	if errors.Is(err, ErrContactNotFound) {
		return apperrors.NewNotFound("Contact not found")
	}
	if err != nil {
		return err
	}

	s.publishInvalidation(ctx, id, queue.OpDeleted)
	return nil
}

func (s *ContactService) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if s.store == nil {
		return nil, false
	}

	payload, found, err := s.store.Get(ctx, key)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		s.log.Warn("cache read failed, serving from database", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !found {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return payload, true
}

func (s *ContactService) cacheSet(ctx context.Context, key string, value any) {
	if s.store == nil {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		s.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.store.Set(ctx, key, payload, s.cacheTTL); err != nil {
		s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// publishInvalidation hands one event to the publisher. Failures are
// logged and absorbed: the row is already written and the cache TTL
// bounds how long a stale entry can survive a lost event.
func (s *ContactService) publishInvalidation(ctx context.Context, id uint, operation string) {
	if s.publisher == nil {
		return
	}

	event := queue.NewInvalidationEvent(id, operation)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Error("invalidation publish failed",
			zap.Uint("contact_id", id),
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
}

func contactFromInput(input ContactInput) (*models.Contact, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("contact name is required")
	}
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("contact email is required")
	}

	return &models.Contact{
		Name:    name,
		Email:   email,
		Phone:   strings.TrimSpace(input.Phone),
		Address: strings.TrimSpace(input.Address),
	}, nil
}
