package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/models"
)

func openCacheTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CacheEntry{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	store := NewDatabaseStore(openCacheTestDB(t))
	ctx := context.Background()

	_, found, err := store.Get(ctx, ContactKey(7))
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Set(ctx, ContactKey(7), []byte(`{"id":7}`), time.Minute))

	value, found, err := store.Get(ctx, ContactKey(7))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte(`{"id":7}`), value)

	// Overwrite replaces the value wholesale.
	require.NoError(t, store.Set(ctx, ContactKey(7), []byte(`{"id":7,"name":"Ann"}`), time.Minute))
	value, _, err = store.Get(ctx, ContactKey(7))
	require.NoError(t, err)
	require.Equal(t, []byte(`{"id":7,"name":"Ann"}`), value)

	require.NoError(t, store.Delete(ctx, ContactKey(7), ContactsKey))
	_, found, err = store.Get(ctx, ContactKey(7))
	require.NoError(t, err)
	require.False(t, found)

	// Deleting an absent key is a no-op.
	require.NoError(t, store.Delete(ctx, ContactKey(7)))
}

func TestDatabaseStoreExpiry(t *testing.T) {
	store := NewDatabaseStore(openCacheTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "contact:expired", []byte("x"), -time.Second))

	_, found, err := store.Get(ctx, "contact:expired")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStoreIncrementWithTTL(t *testing.T) {
	store := NewDatabaseStore(openCacheTestDB(t))
	ctx := context.Background()

	count, _, err := store.IncrementWithTTL(ctx, "rate:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	count, ttl, err := store.IncrementWithTTL(ctx, "rate:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.Greater(t, ttl, time.Duration(0))
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	store := NewDatabaseStore(openCacheTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "contact:1", []byte("a"), time.Minute))
	require.NoError(t, store.Set(ctx, "contact:2", []byte("b"), -time.Minute))

	removed, err := store.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, found, err := store.Get(ctx, "contact:1")
	require.NoError(t, err)
	require.True(t, found)
}
