package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	iauth "github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/auth"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/cache"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/models"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/queue"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/services"
)

type routerFixture struct {
	router *gin.Engine
	worker *queue.Worker
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Contact{},
		&models.PasswordResetToken{},
		&models.CacheEntry{},
	))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := cache.NewDatabaseStore(db)
	broker := queue.NewMemoryBroker(64)
	publisher, err := queue.NewBrokerPublisher(broker, queue.WithPublishBackoff(time.Millisecond))
	require.NoError(t, err)
	worker, err := queue.NewWorker(broker, store)
	require.NoError(t, err)

	tokens, err := iauth.NewTokenService(iauth.TokenConfig{Secret: "router-test-secret", Issuer: "addressbook"})
	require.NoError(t, err)
	resets, err := iauth.NewResetTokenService(db)
	require.NoError(t, err)

	users, err := services.NewUserService(services.UserServiceConfig{
		DB:     db,
		Tokens: tokens,
		Resets: resets,
	})
	require.NoError(t, err)

	contacts, err := services.NewContactService(services.NewContactRepository(db), store, publisher)
	require.NoError(t, err)

	router, err := NewRouter(RouterConfig{
		Tokens:   tokens,
		Contacts: contacts,
		Users:    users,
	})
	require.NoError(t, err)

	return &routerFixture{router: router, worker: worker}
}

func (f *routerFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(data)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *routerFixture) registerAndLogin(t *testing.T) string {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "alice",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.Token)
	return body.Data.Token
}

func TestRouterHealthEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRouterContactsRequireAuth(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/api/contacts", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/contacts", "not-a-valid-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterContactLifecycle(t *testing.T) {
	f := newRouterFixture(t)
	token := f.registerAndLogin(t)

	// Create
	rec := f.do(t, http.MethodPost, "/api/contacts", token, gin.H{
		"name":  "Ann",
		"email": "ann@example.com",
		"phone": "555-0100",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.Data.ID)

	// Read back
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/contacts/%d", created.Data.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"name":"Ann"`)

	// Update, let the worker apply the invalidation, then observe the new value
	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/contacts/%d", created.Data.ID), token, gin.H{
		"name":  "Annie",
		"email": "ann@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, f.worker.Drain(context.Background()))

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/contacts/%d", created.Data.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"name":"Annie"`)

	// List
	rec = f.do(t, http.MethodGet, "/api/contacts", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"name":"Annie"`)

	// Delete
	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/contacts/%d", created.Data.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, f.worker.Drain(context.Background()))

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/contacts/%d", created.Data.ID), token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterContactValidation(t *testing.T) {
	f := newRouterFixture(t)
	token := f.registerAndLogin(t)

	rec := f.do(t, http.MethodPost, "/api/contacts", token, gin.H{
		"name":  "No Email",
		"email": "not-an-email",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/contacts/banana", token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterAuthMe(t *testing.T) {
	f := newRouterFixture(t)
	token := f.registerAndLogin(t)

	rec := f.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"username":"alice"`)
}

func TestRouterUnknownRoute(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/api/unknown", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
