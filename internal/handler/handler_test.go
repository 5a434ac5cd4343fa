package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/minelux/internal/auth"
	"github.com/sakif/minelux/internal/handler"
	"github.com/sakif/minelux/internal/model"
	"github.com/sakif/minelux/internal/repository"
	"github.com/sakif/minelux/internal/repository/sqlite"
	"github.com/sakif/minelux/internal/service"
	"github.com/sakif/minelux/internal/store"
)

// flakyKV wraps the real local store and can be told to refuse writes, which
// with the remote disabled means nothing can be persisted.
type flakyKV struct {
	repository.KVStore
	failWrites bool
}

func (f *flakyKV) Set(ctx context.Context, key string, value any) bool {
	if f.failWrites {
		return false
	}
	return f.KVStore.Set(ctx, key, value)
}

type fixture struct {
	kv     *flakyKV
	tokens *auth.TokenService
	users  *service.UserService
	mods   *service.ModService

	auth   *handler.AuthHandler
	modsH  *handler.ModHandler
	usersH *handler.UserHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := sqlite.New(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	kv := &flakyKV{KVStore: db}
	usersDoc := store.NewDocument[model.Users](store.DocumentConfig{
		Name: "users", Path: "users.json", LocalKey: "minelux_users",
	}, nil, kv, nil, logger)
	modsDoc := store.NewDocument[[]model.Mod](store.DocumentConfig{
		Name: "mods", Path: "mods.json", LocalKey: "minelux_mods",
	}, nil, kv, nil, logger)

	users := service.NewUserService(usersDoc, nil, auth.NewPasswordServiceForTest(4),
		service.AdminAccount{Username: "Minelux", Password: "admin-pass"}, logger)
	users.Load(context.Background())
	mods := service.NewModService(modsDoc, logger)
	mods.LoadMods(context.Background())

	tokens, err := auth.NewTokenService("handler-test-secret")
	require.NoError(t, err)

	return &fixture{
		kv:     kv,
		tokens: tokens,
		users:  users,
		mods:   mods,
		auth:   handler.NewAuthHandler(users, tokens, false, logger),
		modsH:  handler.NewModHandler(mods, users, logger),
		usersH: handler.NewUserHandler(users, logger),
	}
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func as(req *http.Request, username string) *http.Request {
	return req.WithContext(auth.WithUsername(req.Context(), username))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

// =========================================================================
// AUTH
// =========================================================================

func TestHandleRegister(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()

	f.auth.HandleRegister(rec, jsonRequest(t, http.MethodPost, "/auth/register", map[string]string{
		"username": " steve ", "password": "secret1", "confirm": "secret1",
	}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode[handler.UserResponse](t, rec)
	assert.Equal(t, "steve", user.Username)
	assert.Equal(t, model.RoleUser, user.Role)
	assert.False(t, user.IsAdmin)

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	username, err := f.tokens.Validate(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "steve", username)
}

func TestHandleRegister_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		body  map[string]string
		field string
	}{
		{"confirm mismatch", map[string]string{"username": "steve", "password": "secret1", "confirm": "secret2"}, "confirm"},
		{"short username", map[string]string{"username": "al", "password": "secret1", "confirm": "secret1"}, "username"},
		{"short password", map[string]string{"username": "steve", "password": "abc", "confirm": "abc"}, "password"},
		{"taken", map[string]string{"username": "Minelux", "password": "secret1", "confirm": "secret1"}, "username"},
		{"bad image", map[string]string{"username": "steve", "password": "secret1", "confirm": "secret1", "image": "ftp://x"}, "image"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			rec := httptest.NewRecorder()

			f.auth.HandleRegister(rec, jsonRequest(t, http.MethodPost, "/auth/register", tc.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[handler.ErrorResponse](t, rec)
			assert.Equal(t, "validation_error", resp.Error)
			assert.Equal(t, tc.field, resp.Field)
			assert.Nil(t, sessionCookie(rec))
		})
	}
}

func TestHandleRegister_InvalidJSON(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString("{not json"))

	f.auth.HandleRegister(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decode[handler.ErrorResponse](t, rec).Error)
}

func TestHandleRegister_StorageDown(t *testing.T) {
	f := newFixture(t)
	f.kv.failWrites = true
	rec := httptest.NewRecorder()

	f.auth.HandleRegister(rec, jsonRequest(t, http.MethodPost, "/auth/register", map[string]string{
		"username": "steve", "password": "secret1", "confirm": "secret1",
	}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "storage_error", decode[handler.ErrorResponse](t, rec).Error)
	_, err := f.users.Get("steve")
	assert.Error(t, err)
}

func TestHandleLogin(t *testing.T) {
	f := newFixture(t)

	t.Run("admin", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.auth.HandleLogin(rec, jsonRequest(t, http.MethodPost, "/auth/login", map[string]string{
			"username": "Minelux", "password": "admin-pass",
		}))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[handler.UserResponse](t, rec).IsAdmin)
		assert.NotNil(t, sessionCookie(rec))
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.auth.HandleLogin(rec, jsonRequest(t, http.MethodPost, "/auth/login", map[string]string{
			"username": "Minelux", "password": "nope",
		}))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, sessionCookie(rec))
	})

	t.Run("unknown user gets the same answer", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.auth.HandleLogin(rec, jsonRequest(t, http.MethodPost, "/auth/login", map[string]string{
			"username": "ghost", "password": "whatever",
		}))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid username or password", decode[handler.ErrorResponse](t, rec).Message)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.auth.HandleLogin(rec, jsonRequest(t, http.MethodPost, "/auth/login", map[string]string{
			"username": "Minelux",
		}))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleLogout_ClearsCookie(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()

	f.auth.HandleLogout(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Less(t, cookie.MaxAge, 0)
}

func TestHandleMe(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.auth.HandleMe(rec, as(httptest.NewRequest(http.MethodGet, "/api/me", nil), "Minelux"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Minelux", decode[handler.UserResponse](t, rec).Username)

	rec = httptest.NewRecorder()
	f.auth.HandleMe(rec, as(httptest.NewRequest(http.MethodGet, "/api/me", nil), "deleted-since"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	f.auth.HandleMe(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleUpdateImage(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.auth.HandleUpdateImage(rec, as(jsonRequest(t, http.MethodPut, "/api/me/image",
		map[string]string{"image": "https://img.example/a.png"}), "Minelux"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "https://img.example/a.png", decode[handler.UserResponse](t, rec).Image)

	rec = httptest.NewRecorder()
	f.auth.HandleUpdateImage(rec, as(jsonRequest(t, http.MethodPut, "/api/me/image",
		map[string]string{"image": "javascript:alert(1)"}), "Minelux"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUpdateImage_StorageDownKeepsOldImage(t *testing.T) {
	f := newFixture(t)
	f.kv.failWrites = true

	rec := httptest.NewRecorder()
	f.auth.HandleUpdateImage(rec, as(jsonRequest(t, http.MethodPut, "/api/me/image",
		map[string]string{"image": "https://img.example/a.png"}), "Minelux"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "storage_error", decode[handler.ErrorResponse](t, rec).Error)
	u, err := f.users.Get("Minelux")
	require.NoError(t, err)
	assert.Empty(t, u.Image)
}

// =========================================================================
// MODS
// =========================================================================

func (f *fixture) createMod(t *testing.T, in service.ModInput) model.Mod {
	t.Helper()
	rec := httptest.NewRecorder()
	f.modsH.HandleCreate(rec, jsonRequest(t, http.MethodPost, "/api/mods", in))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Mod](t, rec)
}

func TestModHandler_Lifecycle(t *testing.T) {
	f := newFixture(t)

	foo := f.createMod(t, service.ModInput{Name: "Foo", Version: "1.20", Type: "tool", Link: "http://x"})
	f.createMod(t, service.ModInput{Name: "Bar", Version: "1.19", Type: "world", Link: "http://y", Desc: "caves"})
	assert.NotEmpty(t, foo.ID)

	// list with a filter
	rec := httptest.NewRecorder()
	f.modsH.HandleList(rec, httptest.NewRequest(http.MethodGet, "/api/mods?q=CAVES", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]model.Mod](t, rec)
	require.Len(t, listed, 1)
	assert.Equal(t, "Bar", listed[0].Name)

	// get
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/mods/"+foo.ID, nil)
	req.SetPathValue("id", foo.ID)
	f.modsH.HandleGet(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Foo", decode[model.Mod](t, rec).Name)

	// facets
	rec = httptest.NewRecorder()
	f.modsH.HandleFacets(rec, httptest.NewRequest(http.MethodGet, "/api/mods/facets", nil))
	facets := decode[service.Facets](t, rec)
	assert.Equal(t, []string{"1.20", "1.19"}, facets.Versions)
	assert.Equal(t, []string{"tool", "world"}, facets.Types)

	// stats
	rec = httptest.NewRecorder()
	f.modsH.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	assert.Equal(t, service.Stats{Mods: 2, Users: 1, Versions: 2, Types: 2}, decode[service.Stats](t, rec))

	// delete, then delete again
	for _, want := range []int{http.StatusNoContent, http.StatusNotFound} {
		rec = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodDelete, "/api/mods/"+foo.ID, nil)
		req.SetPathValue("id", foo.ID)
		f.modsH.HandleDelete(rec, req)
		assert.Equal(t, want, rec.Code)
	}

	rec = httptest.NewRecorder()
	f.modsH.HandleList(rec, httptest.NewRequest(http.MethodGet, "/api/mods", nil))
	assert.Len(t, decode[[]model.Mod](t, rec), 1)
}

func TestModHandler_ListEmptyIsArray(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()

	f.modsH.HandleList(rec, httptest.NewRequest(http.MethodGet, "/api/mods", nil))

	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestModHandler_CreateValidation(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()

	f.modsH.HandleCreate(rec, jsonRequest(t, http.MethodPost, "/api/mods",
		service.ModInput{Version: "1.20", Type: "tool", Link: "http://x"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name", decode[handler.ErrorResponse](t, rec).Field)
}

func TestModHandler_CreateStorageDown(t *testing.T) {
	f := newFixture(t)
	f.kv.failWrites = true
	rec := httptest.NewRecorder()

	f.modsH.HandleCreate(rec, jsonRequest(t, http.MethodPost, "/api/mods",
		service.ModInput{Name: "Foo", Version: "1.20", Type: "tool", Link: "http://x"}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "storage_error", decode[handler.ErrorResponse](t, rec).Error)
	assert.Empty(t, f.mods.Mods(context.Background()))
}

func TestModHandler_Reload(t *testing.T) {
	f := newFixture(t)
	f.createMod(t, service.ModInput{Name: "Foo", Version: "1.20", Type: "tool", Link: "http://x"})

	rec := httptest.NewRecorder()
	f.modsH.HandleReload(rec, httptest.NewRequest(http.MethodPost, "/api/mods/reload", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Count int         `json:"count"`
		Mods  []model.Mod `json:"mods"`
	}](t, rec)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "Foo", resp.Mods[0].Name)
}

// =========================================================================
// USERS
// =========================================================================

func TestUserHandler_Lifecycle(t *testing.T) {
	f := newFixture(t)

	// The admin form skips the registration length rules.
	rec := httptest.NewRecorder()
	f.usersH.HandleCreate(rec, jsonRequest(t, http.MethodPost, "/api/users",
		map[string]string{"username": "al", "password": "pw"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "al", decode[handler.UserResponse](t, rec).Username)

	rec = httptest.NewRecorder()
	f.usersH.HandleCreate(rec, jsonRequest(t, http.MethodPost, "/api/users",
		map[string]string{"username": "al", "password": "pw"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	f.usersH.HandleList(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	var names []string
	for _, u := range decode[[]handler.UserResponse](t, rec) {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"Minelux", "al"}, names)
	assert.NotContains(t, rec.Body.String(), "password")

	deleteUser := func(name string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/users/"+name, nil)
		req.SetPathValue("username", name)
		f.usersH.HandleDelete(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNoContent, deleteUser("al"))
	assert.Equal(t, http.StatusNotFound, deleteUser("al"))
	assert.Equal(t, http.StatusForbidden, deleteUser("Minelux"))
}
