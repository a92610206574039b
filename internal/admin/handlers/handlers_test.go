package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mybudgetplus/mybudget/internal/admin/controller"
	"github.com/mybudgetplus/mybudget/internal/admin/dto"
	"github.com/mybudgetplus/mybudget/internal/auth"
	"github.com/mybudgetplus/mybudget/internal/common/config"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/db"
	"github.com/mybudgetplus/mybudget/internal/db/dialect"
	"github.com/mybudgetplus/mybudget/internal/events/bus"
	prefmodels "github.com/mybudgetplus/mybudget/internal/preferences/models"
	prefservice "github.com/mybudgetplus/mybudget/internal/preferences/service"
	prefstore "github.com/mybudgetplus/mybudget/internal/preferences/store"
	"github.com/mybudgetplus/mybudget/internal/user/models"
	userservice "github.com/mybudgetplus/mybudget/internal/user/service"
	userstore "github.com/mybudgetplus/mybudget/internal/user/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingDisconnector struct {
	mu    sync.Mutex
	users []string
}

func (r *recordingDisconnector) DisconnectUser(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

type adminAPI struct {
	router      *gin.Engine
	tokens      *auth.Tokens
	users       *userservice.Service
	prefs       *prefservice.Service
	disconnects *recordingDisconnector
	admin       *models.User
	member      *models.User
}

func newAdminAPI(t *testing.T) *adminAPI {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mybudget.db")
	writerConn, err := db.OpenSQLite(path)
	require.NoError(t, err)
	readerConn, err := db.OpenSQLiteReader(path)
	require.NoError(t, err)
	pool := db.NewPool(sqlx.NewDb(writerConn, dialect.SQLite3), sqlx.NewDb(readerConn, dialect.SQLite3))

	userRepo, userCleanup, err := userstore.Provide(pool.Writer(), pool.Reader())
	require.NoError(t, err)
	prefsRepo, prefsCleanup, err := prefstore.Provide(pool.Writer(), pool.Reader())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = prefsCleanup()
		_ = userCleanup()
		_ = pool.Close()
	})

	log := logger.NewNop()
	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(eventBus.Close)

	prefs := prefservice.NewService(prefsRepo, nil, eventBus, log, prefservice.Options{})
	users := userservice.NewService(userRepo, pool, prefs, eventBus, log)
	disconnects := &recordingDisconnector{}
	ctrl := controller.NewController(users, prefs, disconnects, log)

	tokens := auth.NewTokens(config.AuthConfig{JWTSecret: "test-secret", Issuer: "mybudget", TokenDuration: 3600})
	router := gin.New()
	RegisterRoutes(router, ctrl, auth.RequireAuth(tokens, users, log), log)

	ctx := context.Background()
	admin, err := users.CreateUser(ctx, userservice.CreateUserRequest{Name: "Root", Email: "root@example.com", Password: "admin-password", Role: models.RoleAdmin})
	require.NoError(t, err)
	member, err := users.CreateUser(ctx, userservice.CreateUserRequest{Name: "Bea", Email: "bea@example.com", Password: "member-password"})
	require.NoError(t, err)

	return &adminAPI{router: router, tokens: tokens, users: users, prefs: prefs, disconnects: disconnects, admin: admin, member: member}
}

func (a *adminAPI) do(t *testing.T, as *models.User, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	token, err := a.tokens.Sign(as.ID)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestAdminRoutes_RequireAdminRole(t *testing.T) {
	api := newAdminAPI(t)
	w := api.do(t, api.member, http.MethodGet, "/api/v1/admin/users", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListUsers(t *testing.T) {
	api := newAdminAPI(t)

	w := api.do(t, api.admin, http.MethodGet, "/api/v1/admin/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password")

	var resp dto.ListUsersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 50, resp.Limit)

	w = api.do(t, api.admin, http.MethodGet, "/api/v1/admin/users?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = dto.ListUsersResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Users, 1)
	assert.Equal(t, 2, resp.Total, "total counts every match, not the page")

	w = api.do(t, api.admin, http.MethodGet, "/api/v1/admin/users?search=bea", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = dto.ListUsersResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Users, 1)
	assert.Equal(t, api.member.ID, resp.Users[0].ID)
	assert.Equal(t, 1, resp.Total)

	w = api.do(t, api.admin, http.MethodGet, "/api/v1/admin/users?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetBlocked(t *testing.T) {
	api := newAdminAPI(t)
	path := "/api/v1/admin/users/" + api.member.ID + "/blocked"

	w := api.do(t, api.admin, http.MethodPatch, path, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "blocked is required")

	w = api.do(t, api.admin, http.MethodPatch, path, map[string]any{"blocked": true})
	require.Equal(t, http.StatusOK, w.Code)
	var got dto.AdminUserDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Blocked)
	assert.Equal(t, []string{api.member.ID}, api.disconnects.users)

	// The blocked member can no longer use the API at all.
	w = api.do(t, api.member, http.MethodGet, "/api/v1/admin/users", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, api.admin, http.MethodPatch, "/api/v1/admin/users/"+api.admin.ID+"/blocked", map[string]any{"blocked": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, api.admin, http.MethodPatch, "/api/v1/admin/users/missing/blocked", map[string]any{"blocked": false})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStats(t *testing.T) {
	api := newAdminAPI(t)
	ctx := context.Background()

	_, err := api.prefs.GetOrCreatePreferences(ctx, api.admin.ID)
	require.NoError(t, err)
	dark := prefmodels.ThemeDark
	_, _, err = api.prefs.ApplyPatches(ctx, api.member.ID, prefmodels.AppearancePatch{Theme: &dark})
	require.NoError(t, err)

	w := api.do(t, api.admin, http.MethodGet, "/api/v1/admin/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats dto.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 1, stats.Admins)
	assert.Equal(t, 0, stats.Blocked)
	assert.Equal(t, map[string]int{"light": 1, "dark": 1, "auto": 0}, stats.Themes)
}
