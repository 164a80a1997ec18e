package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/auth"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/cache"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/logger"
)

const defaultSchedule = "@hourly"

// Cleaner coordinates background maintenance: purging expired or consumed
// password reset tokens and sweeping expired rows out of the database
// cache table. Any nil dependency results in the corresponding job being
// skipped.
type Cleaner struct {
	resets    *iauth.ResetTokenService
	cacheRows *cache.DatabaseStore
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	schedule  string
	enabled   bool
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSchedule overrides the cron specification for both cleanup jobs.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(resets *iauth.ResetTokenService, cacheRows *cache.DatabaseStore, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		resets:    resets,
		cacheRows: cacheRows,
		now:       time.Now,
		schedule:  defaultSchedule,
		log:       logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.resets != nil || cleaner.cacheRows != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.resets != nil {
		if _, err := c.cron.AddFunc(c.schedule, func() {
			ctx := context.Background()
			if removed, err := c.resets.PurgeExpired(ctx, c.now()); err != nil {
				c.log.Warn("reset token cleanup failed", zap.Error(err))
			} else if removed > 0 {
				c.log.Info("purged reset tokens", zap.Int64("count", removed))
			}
		}); err != nil {
			return err
		}
	}

	if c.cacheRows != nil {
		if _, err := c.cron.AddFunc(c.schedule, func() {
			ctx := context.Background()
			if removed, err := c.cacheRows.PurgeExpired(ctx, c.now()); err != nil {
				c.log.Warn("cache row cleanup failed", zap.Error(err))
			} else if removed > 0 {
				c.log.Info("purged expired cache rows", zap.Int64("count", removed))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.resets != nil {
		if _, err := c.resets.PurgeExpired(ctx, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.cacheRows != nil {
		if _, err := c.cacheRows.PurgeExpired(ctx, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
