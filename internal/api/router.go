package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	iauth "github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/auth"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/handlers"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/middleware"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/services"
)

// RouterConfig collects the dependencies and tunables for NewRouter.
type RouterConfig struct {
	Tokens   *iauth.TokenService
	Contacts *services.ContactService
	Users    *services.UserService

	RateStore       middleware.RateStore
	RateMaxRequests int
	RateWindow      time.Duration

	MetricsEnabled bool
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token service must be provided")
	}
	if cfg.Contacts == nil {
		return nil, fmt.Errorf("contact service must be provided")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("user service must be provided")
	}

	rateMax := cfg.RateMaxRequests
	if rateMax <= 0 {
		rateMax = 100
	}
	rateWindow := cfg.RateWindow
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.RateLimit(cfg.RateStore, rateMax, rateWindow))

	// Health endpoint (public)
	r.GET("/health", handlers.Health())

	authHandler := handlers.NewAuthHandler(cfg.Users)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
	}

	// Protected routes
	requireAuth := middleware.Auth(cfg.Tokens)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)

	contactHandler := handlers.NewContactHandler(cfg.Contacts)
	contacts := api.Group("/contacts")
	{
		contacts.GET("", contactHandler.List)
		contacts.POST("", contactHandler.Create)
		contacts.GET("/:id", contactHandler.Get)
		contacts.PUT("/:id", contactHandler.Update)
		contacts.DELETE("/:id", contactHandler.Delete)
	}

	// Metrics endpoint
	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
