package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mybudgetplus/mybudget/internal/auth"
	"github.com/mybudgetplus/mybudget/internal/common/config"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/events/bus"
	"github.com/mybudgetplus/mybudget/internal/settings/controller"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Server:   config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Database: config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(dir, "mybudget.db")},
		Auth:     config.AuthConfig{JWTSecret: "test-secret", Issuer: "mybudget", TokenDuration: 60},
		Logging:  config.LoggingConfig{Level: "info"},
		Uploads:  config.UploadsConfig{Dir: filepath.Join(dir, "uploads"), PublicPath: "/uploads", MaxBytes: 1 << 20},
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	log := logger.NewNop()

	repos, cleanups, err := provideRepositories(cfg, log)
	t.Cleanup(func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			_ = cleanups[i]()
		}
	})
	require.NoError(t, err)

	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(eventBus.Close)
	services := provideServices(cfg, log, repos, nil, eventBus)
	requireAuth := auth.RequireAuth(auth.NewTokens(cfg.Auth), services.User, log)
	settingsCtrl := controller.NewController(services.User, services.Preferences, controller.NewPictureStore(cfg.Uploads, log), log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	gateway, broadcaster, err := provideGateway(ctx, cfg, log, eventBus, settingsCtrl)
	require.NoError(t, err)
	t.Cleanup(broadcaster.Close)

	router := gin.New()
	router.Use(corsMiddleware(cfg.Server))
	router.Use(requestMiddleware(log)...)
	registerRoutes(routeParams{
		cfg:          cfg,
		router:       router,
		repos:        repos,
		services:     services,
		settingsCtrl: settingsCtrl,
		gateway:      gateway,
		requireAuth:  requireAuth,
		log:          log,
	})
	return router
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "mybudget", body["service"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/api/v1/user", "/api/v1/settings/preferences", "/api/v1/admin/stats", "/ws"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestCORS(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/settings/preferences", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/settings/preferences", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
