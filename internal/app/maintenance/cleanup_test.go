package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	iauth "github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/auth"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/cache"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/models"
)

func newCleanupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.PasswordResetToken{}, &models.CacheEntry{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

func TestCleanerRunOncePurgesExpiredRecords(t *testing.T) {
	db := newCleanupTestDB(t)
	ctx := context.Background()

	// The cache store stamps expiries with the wall clock, so the purge
	// cut-off must be anchored to it as well.
	issuedAt := time.Now()
	resets, err := iauth.NewResetTokenService(db, iauth.WithResetClock(func() time.Time { return issuedAt }))
	require.NoError(t, err)

	_, err = resets.Issue(ctx, "user-1")
	require.NoError(t, err)

	store := cache.NewDatabaseStore(db)
	require.NoError(t, store.Set(ctx, cache.ContactKey(1), []byte(`{"id":1}`), time.Minute))
	require.NoError(t, store.Set(ctx, cache.ContactKey(2), []byte(`{"id":2}`), 24*time.Hour))

	// Two hours later the reset token and the short-lived cache row are gone.
	later := issuedAt.Add(2 * time.Hour)
	cleaner := NewCleaner(resets, store, WithNow(func() time.Time { return later }))
	require.NoError(t, cleaner.RunOnce(ctx))

	var tokens int64
	require.NoError(t, db.Model(&models.PasswordResetToken{}).Count(&tokens).Error)
	require.Zero(t, tokens)

	var rows int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&rows).Error)
	require.EqualValues(t, 1, rows)
}

func TestCleanerStartAndStop(t *testing.T) {
	db := newCleanupTestDB(t)

	resets, err := iauth.NewResetTokenService(db)
	require.NoError(t, err)

	cleaner := NewCleaner(resets, cache.NewDatabaseStore(db), WithSchedule("@every 1h"))
	require.NoError(t, cleaner.Start())

	stopped := cleaner.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop in time")
	}
}

func TestCleanerWithoutDependenciesIsDisabled(t *testing.T) {
	cleaner := NewCleaner(nil, nil)
	require.NoError(t, cleaner.Start())
	require.NoError(t, cleaner.RunOnce(context.Background()))
}
