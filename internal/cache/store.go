package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable marks connection-level cache failures. Callers treat the
// cache as an optimisation and bypass it when this error surfaces.
var ErrUnavailable = errors.New("cache: store unavailable")

// Store represents a shared cache interface used across the application.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// ContactKey returns the cache key holding a single contact.
func ContactKey(id uint) string {
	return fmt.Sprintf("contact:%d", id)
}

// ContactsKey is the cache key holding the full contact listing.
const ContactsKey = "contact:all"
