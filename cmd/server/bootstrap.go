package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/api"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/app"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/app/maintenance"
	iauth "github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/auth"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/cache"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/database"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/middleware"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/queue"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/services"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/logger"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/mail"
)

// runtimeStack bundles long-lived components used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Store   cache.Store
	Worker  *queue.Worker
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine

	redisClients []*cache.RedisClient
}

// bootstrapRuntime initialises the database, cache tier, invalidation
// queue, services, and the HTTP router.
//
// The RESP client multiplexes one connection behind a mutex, so the
// worker's blocking BRPOPLPUSH must not share a client with the cache
// store or the publisher: each gets its own connection.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	stack.Store = dbStore

	redisUp := false
	if cfg.Cache.Redis.Enabled {
		client, redisErr := cache.NewRedisClient(cfg.Cache.RedisClientConfig())
		if redisErr != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(redisErr))
		} else {
			stack.Store = client
			stack.redisClients = append(stack.redisClients, client)
			redisUp = true
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	var producerBroker, workerBroker queue.Broker
	if redisUp {
		producerClient, err := cache.NewRedisClient(cfg.Cache.RedisClientConfig())
		if err != nil {
			return nil, fmt.Errorf("connect queue producer: %w", err)
		}
		stack.redisClients = append(stack.redisClients, producerClient)

		workerClient, err := cache.NewRedisClient(cfg.Cache.RedisClientConfig())
		if err != nil {
			return nil, fmt.Errorf("connect queue consumer: %w", err)
		}
		stack.redisClients = append(stack.redisClients, workerClient)

		if producerBroker, err = queue.NewRedisBroker(producerClient); err != nil {
			return nil, fmt.Errorf("initialise producer broker: %w", err)
		}
		if workerBroker, err = queue.NewRedisBroker(workerClient); err != nil {
			return nil, fmt.Errorf("initialise consumer broker: %w", err)
		}
	} else {
		memory := queue.NewMemoryBroker(cfg.Queue.MemoryCapacity)
		producerBroker = memory
		workerBroker = memory
	}

	publisher, err := queue.NewBrokerPublisher(producerBroker,
		queue.WithPublishAttempts(cfg.Queue.PublishAttempts),
		queue.WithPublishBackoff(cfg.Queue.PublishBackoff),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise publisher: %w", err)
	}

	stack.Worker, err = queue.NewWorker(workerBroker, stack.Store,
		queue.WithReceiveBlock(cfg.Queue.ReceiveBlock),
		queue.WithHandleWindow(cfg.Queue.HandleWindow),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise invalidation worker: %w", err)
	}
	stack.Worker.Start()

	tokenSvc, err := iauth.NewTokenService(cfg.Auth.TokenServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	resetSvc, err := iauth.NewResetTokenService(stack.DB, cfg.Auth.ResetTokenOptions()...)
	if err != nil {
		return nil, fmt.Errorf("initialise reset token service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	userSvc, err := services.NewUserService(services.UserServiceConfig{
		DB:       stack.DB,
		Tokens:   tokenSvc,
		Resets:   resetSvc,
		Mailer:   mailer,
		ResetURL: cfg.Auth.Reset.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	contactSvc, err := services.NewContactService(
		services.NewContactRepository(stack.DB),
		stack.Store,
		publisher,
		services.WithContactCacheTTL(cfg.Cache.ContactTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise contact service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(resetSvc, dbStore,
			maintenance.WithSchedule(cfg.Maintenance.Schedule))
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	var rateStore middleware.RateStore
	if redisUp {
		rateStore = middleware.NewRedisRateStore(stack.Store)
	} else {
		rateStore = middleware.NewDatabaseRateStore(dbStore)
	}

	stack.Router, err = api.NewRouter(api.RouterConfig{
		Tokens:          tokenSvc,
		Contacts:        contactSvc,
		Users:           userSvc,
		RateStore:       rateStore,
		RateMaxRequests: cfg.Server.RateLimit.MaxRequests,
		RateWindow:      cfg.Server.RateLimit.Window,
		MetricsEnabled:  cfg.Monitoring.Prometheus.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Worker != nil {
		if err := s.Worker.Stop(ctx); err != nil {
			log.Warn("worker shutdown", zap.Error(err))
		}
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	for _, client := range s.redisClients {
		if err := client.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.StoreConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
