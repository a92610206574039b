package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mybudgetplus/mybudget/internal/auth"
	"github.com/mybudgetplus/mybudget/internal/common/config"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/db"
	"github.com/mybudgetplus/mybudget/internal/db/dialect"
	"github.com/mybudgetplus/mybudget/internal/events/bus"
	prefservice "github.com/mybudgetplus/mybudget/internal/preferences/service"
	prefstore "github.com/mybudgetplus/mybudget/internal/preferences/store"
	"github.com/mybudgetplus/mybudget/internal/settings/controller"
	"github.com/mybudgetplus/mybudget/internal/settings/dto"
	userservice "github.com/mybudgetplus/mybudget/internal/user/service"
	userstore "github.com/mybudgetplus/mybudget/internal/user/store"
	ws "github.com/mybudgetplus/mybudget/pkg/websocket"
)

const testPassword = "correct-horse"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router     *gin.Engine
	ctrl       *controller.Controller
	users      *userservice.Service
	tokens     *auth.Tokens
	uploadsDir string
	userID     string
	token      string
}

func newTestAPI(t *testing.T) *testAPI {
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

	log := logger.NewNop()
	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(func() {
		eventBus.Close()
		_ = prefsCleanup()
		_ = userCleanup()
		_ = pool.Close()
	})

	prefs := prefservice.NewService(prefsRepo, nil, eventBus, log, prefservice.Options{})
	users := userservice.NewService(userRepo, pool, prefs, eventBus, log)

	uploadsDir := t.TempDir()
	pictures := controller.NewPictureStore(config.UploadsConfig{
		Dir:        uploadsDir,
		PublicPath: "/uploads",
		MaxBytes:   1024,
	}, log)
	ctrl := controller.NewController(users, prefs, pictures, log)

	tokens := auth.NewTokens(config.AuthConfig{JWTSecret: "test-secret", Issuer: "mybudget", TokenDuration: 3600})
	router := gin.New()
	RegisterRoutes(router, ctrl, auth.RequireAuth(tokens, users, log), 1024, log)

	u, err := users.CreateUser(context.Background(), userservice.CreateUserRequest{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: testPassword,
	})
	require.NoError(t, err)
	token, err := tokens.Sign(u.ID)
	require.NoError(t, err)

	return &testAPI{
		router:     router,
		ctrl:       ctrl,
		users:      users,
		tokens:     tokens,
		uploadsDir: uploadsDir,
		userID:     u.ID,
		token:      token,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) upload(t *testing.T, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/settings/profile-picture", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.token)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRequiresAuthentication(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings/preferences", nil)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetUser_HidesPassword(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodGet, "/api/v1/user", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.NotContains(t, strings.ToLower(w.Body.String()), "password")
	user := decode[dto.UserDTO](t, w)
	assert.Equal(t, api.userID, user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
}

func TestGetPreferences_CreatesDefaults(t *testing.T) {
	api := newTestAPI(t)

	first := decode[dto.PreferencesDTO](t, api.do(t, http.MethodGet, "/api/v1/settings/preferences", nil))
	assert.Equal(t, api.userID, first.UserID)
	assert.EqualValues(t, "light", first.Appearance.Theme)
	assert.EqualValues(t, "fr", first.Appearance.Language)
	assert.EqualValues(t, "EUR", first.Appearance.Currency)
	assert.EqualValues(t, "weekly", first.Data.BackupFrequency)

	second := decode[dto.PreferencesDTO](t, api.do(t, http.MethodGet, "/api/v1/settings/preferences", nil))
	assert.Equal(t, first.ID, second.ID)
}

func TestUpdatePreferences(t *testing.T) {
	api := newTestAPI(t)

	t.Run("merges named fields and ignores unknown categories", func(t *testing.T) {
		w := api.do(t, http.MethodPatch, "/api/v1/settings/preferences", map[string]any{
			"appearance":    map[string]any{"theme": "dark"},
			"notifications": map[string]any{"push": true},
			"widgets":       map[string]any{"layout": "grid"},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		prefs := decode[dto.PreferencesDTO](t, w)
		assert.EqualValues(t, "dark", prefs.Appearance.Theme)
		assert.EqualValues(t, "fr", prefs.Appearance.Language)
		assert.True(t, prefs.Notifications.Push)
		assert.False(t, prefs.Notifications.Email)
		assert.NotContains(t, w.Body.String(), "widgets")
	})

	t.Run("PUT behaves like PATCH", func(t *testing.T) {
		w := api.do(t, http.MethodPut, "/api/v1/settings/preferences", map[string]any{
			"data": map[string]any{"autoBackup": true},
		})
		require.Equal(t, http.StatusOK, w.Code)
		prefs := decode[dto.PreferencesDTO](t, w)
		assert.True(t, prefs.Data.AutoBackup)
		assert.EqualValues(t, "dark", prefs.Appearance.Theme)
	})

	t.Run("invalid value is rejected", func(t *testing.T) {
		w := api.do(t, http.MethodPatch, "/api/v1/settings/preferences", map[string]any{
			"appearance": map[string]any{"theme": "purple"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("non-object body is rejected", func(t *testing.T) {
		w := api.do(t, http.MethodPatch, "/api/v1/settings/preferences", `["appearance"]`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestChangePassword(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/settings/change-password", dto.ChangePasswordRequest{
		CurrentPassword: "wrong-password",
		NewPassword:     "brand-new-secret",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "incorrect password")

	w = api.do(t, http.MethodPost, "/api/v1/settings/change-password", dto.ChangePasswordRequest{
		CurrentPassword: testPassword,
		NewPassword:     "brand-new-secret",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Password changed successfully", decode[dto.MessageResponse](t, w).Message)

	_, err := api.users.Authenticate(context.Background(), "ada@example.com", "brand-new-secret")
	assert.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPatch, "/api/v1/settings/profile", map[string]any{"name": "Ada Lovelace"})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[dto.ProfileResponse](t, w)
	assert.Equal(t, "Ada Lovelace", resp.User.Name)
	assert.Equal(t, "ada@example.com", resp.User.Email)

	w = api.do(t, http.MethodPatch, "/api/v1/settings/profile", map[string]any{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExport(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/v1/settings/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.NotContains(t, strings.ToLower(w.Body.String()), "passwordhash")

	export := decode[dto.Export](t, w)
	assert.Equal(t, dto.ExportVersion, export.Version)
	assert.Equal(t, api.userID, export.User.ID)
	assert.Equal(t, api.userID, export.Preferences.UserID)
	_, err := time.Parse(time.RFC3339, export.ExportDate)
	assert.NoError(t, err)
}

func TestUploadProfilePicture(t *testing.T) {
	api := newTestAPI(t)

	t.Run("stores a png", func(t *testing.T) {
		w := api.upload(t, "profilePicture", "avatar.txt", pngHeader)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decode[dto.ProfilePictureResponse](t, w)
		assert.True(t, strings.HasPrefix(resp.ProfilePicture, "/uploads/profiles/"), resp.ProfilePicture)
		assert.True(t, strings.HasSuffix(resp.ProfilePicture, ".png"), resp.ProfilePicture)
		assert.Equal(t, resp.ProfilePicture, resp.User.ProfilePicture)

		name := strings.TrimPrefix(resp.ProfilePicture, "/uploads/profiles/")
		assert.FileExists(t, filepath.Join(api.uploadsDir, "profiles", name))
	})

	t.Run("replacing removes the previous file", func(t *testing.T) {
		w := api.upload(t, "profilePicture", "again.png", pngHeader)
		require.Equal(t, http.StatusOK, w.Code)

		entries, err := os.ReadDir(filepath.Join(api.uploadsDir, "profiles"))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("rejects non-images", func(t *testing.T) {
		w := api.upload(t, "profilePicture", "avatar.png", []byte("just some text pretending"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects oversized files", func(t *testing.T) {
		big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 2048)...)
		w := api.upload(t, "profilePicture", "big.png", big)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		w := api.upload(t, "", "", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "no file provided")
	})
}

func TestDeleteAccount(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodGet, "/api/v1/settings/preferences", nil)

	w := api.do(t, http.MethodDelete, "/api/v1/settings/account", dto.DeleteAccountRequest{
		Password:     testPassword,
		Confirmation: "delete",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodDelete, "/api/v1/settings/account", dto.DeleteAccountRequest{
		Password:     "wrong-password",
		Confirmation: "DELETE",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "incorrect password")

	w = api.do(t, http.MethodDelete, "/api/v1/settings/account", dto.DeleteAccountRequest{
		Password:     testPassword,
		Confirmation: "DELETE",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Account deleted successfully", decode[dto.MessageResponse](t, w).Message)

	// The token still parses but its subject is gone.
	w = api.do(t, http.MethodGet, "/api/v1/user", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWSHandlers(t *testing.T) {
	api := newTestAPI(t)
	d := ws.NewDispatcher()
	RegisterWSHandlers(d, api.ctrl, logger.NewNop())
	ctx := ws.WithUserID(context.Background(), api.userID)

	t.Run("preferences.get", func(t *testing.T) {
		req, err := ws.NewRequest("1", ws.ActionPreferencesGet, nil)
		require.NoError(t, err)
		resp, err := d.Dispatch(ctx, req)
		require.NoError(t, err)
		require.Equal(t, ws.MessageTypeResponse, resp.Type)

		var prefs dto.PreferencesDTO
		require.NoError(t, resp.ParsePayload(&prefs))
		assert.EqualValues(t, "light", prefs.Appearance.Theme)
	})

	t.Run("preferences.update", func(t *testing.T) {
		req, err := ws.NewRequest("2", ws.ActionPreferencesUpdate, map[string]any{
			"appearance": map[string]any{"currency": "USD"},
		})
		require.NoError(t, err)
		resp, err := d.Dispatch(ctx, req)
		require.NoError(t, err)

		var prefs dto.PreferencesDTO
		require.NoError(t, resp.ParsePayload(&prefs))
		assert.EqualValues(t, "USD", prefs.Appearance.Currency)
	})

	t.Run("validation errors keep their code", func(t *testing.T) {
		req, err := ws.NewRequest("3", ws.ActionPreferencesUpdate, map[string]any{
			"data": map[string]any{"backupFrequency": "hourly"},
		})
		require.NoError(t, err)
		resp, err := d.Dispatch(ctx, req)
		require.NoError(t, err)

		payload, ok := resp.Error()
		require.True(t, ok)
		assert.Equal(t, ws.ErrorCodeValidation, payload.Code)
	})

	t.Run("user.get without identity", func(t *testing.T) {
		req, err := ws.NewRequest("4", ws.ActionUserGet, nil)
		require.NoError(t, err)
		resp, err := d.Dispatch(context.Background(), req)
		require.NoError(t, err)

		payload, ok := resp.Error()
		require.True(t, ok)
		assert.Equal(t, ws.ErrorCodeUnauthorized, payload.Code)
	})
}
