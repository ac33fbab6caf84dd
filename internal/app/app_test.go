package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coremodel/coremodel/internal/config"
	"github.com/coremodel/coremodel/internal/gormstore"
	"github.com/coremodel/coremodel/internal/service"
	"github.com/coremodel/coremodel/internal/sqlite"
	"github.com/coremodel/coremodel/internal/store"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:             "development",
		AppPort:            8080,
		StoreBackend:       backend,
		DatabaseURL:        filepath.Join(t.TempDir(), "coremodel.db"),
		GormDialect:        config.BackendSQLite,
		OwnerDeletePolicy:  "restrict",
		MigrateOnStart:     true,
		LogLevel:           "debug",
		LogFormat:          "json",
		MaxRequestBodySize: 1 << 20,
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_SQLiteBackend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.BackendSQLite)

	a, err := New(ctx, cfg, discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, ok := a.Store.(*sqlite.Store)
	require.True(t, ok, "expected sqlite store, got %T", a.Store)
	assert.Nil(t, a.Cache)
	assert.Nil(t, a.Events)

	user, err := a.Users.CreateUser(ctx, service.CreateUserInput{Email: "a@example.com", Name: "A"})
	require.NoError(t, err)
	entity, err := a.Entities.CreateEntity(ctx, service.CreateEntityInput{Title: "T", Content: "C", OwnerID: user.ID})
	require.NoError(t, err)

	err = a.Users.DeleteUser(ctx, user.ID)
	assert.ErrorIs(t, err, service.ErrUserHasEntities)

	owner, err := a.Entities.EntityOwner(ctx, entity)
	require.NoError(t, err)
	assert.Equal(t, user.Email, owner.Email)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "Close must be idempotent")
}

func TestNew_GormBackend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.BackendGorm)
	cfg.OwnerDeletePolicy = "cascade"

	a, err := New(ctx, cfg, discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, ok := a.Store.(*gormstore.Store)
	require.True(t, ok, "expected gorm store, got %T", a.Store)
	assert.Equal(t, store.DeleteCascade, a.Users.DeletePolicy())

	user, err := a.Users.CreateUser(ctx, service.CreateUserInput{Email: "g@example.com", Name: "G"})
	require.NoError(t, err)
	_, err = a.Entities.CreateEntity(ctx, service.CreateEntityInput{Title: "T", Content: "C", OwnerID: user.ID})
	require.NoError(t, err)

	require.NoError(t, a.Users.DeleteUser(ctx, user.ID))
	owned, err := a.Entities.ListEntitiesByOwner(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestNew_InvalidPolicy(t *testing.T) {
	cfg := testConfig(t, config.BackendSQLite)
	cfg.OwnerDeletePolicy = "orphan"

	_, err := New(context.Background(), cfg, discard())
	assert.ErrorIs(t, err, store.ErrInvalidDeletePolicy)
}

func TestOpenMigrator(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t, config.BackendSQLite)
	m, release, err := OpenMigrator(ctx, cfg, nil)
	require.NoError(t, err)
	defer release()

	n, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, _, err = OpenMigrator(ctx, testConfig(t, config.BackendGorm), nil)
	assert.ErrorIs(t, err, ErrUnsupportedForGorm)
}

func TestRouter(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t, config.BackendSQLite), discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.Users.CreateUser(ctx, service.CreateUserInput{Email: "r@example.com", Name: "R"})
	require.NoError(t, err)

	srv := httptest.NewServer(a.Router("test"))
	t.Cleanup(srv.Close)

	get := func(path string) (*http.Response, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(body)
	}

	resp, body := get("/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var ready struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &ready))
	assert.Equal(t, "ok", ready.Checks["store"])
	assert.Equal(t, "not configured", ready.Checks["cache"])

	resp, body = get("/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "coremodel_users_created_total 1")

	resp, body = get("/schema")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"table":"core_entities"`)

	resp, body = get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"version":"test"`)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, _ = get("/users")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	postResp, err := http.Post(srv.URL+"/schema", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	postResp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, postResp.StatusCode)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	NewLogger(&buf, "warn", "json").Info("hidden")
	assert.Empty(t, buf.String())

	NewLogger(&buf, "debug", "json").Debug("shown", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	NewLogger(&buf, "info", "text").Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/var/lib/coremodel.db", "/var/lib/coremodel.db"},
		{"postgres://app:s3cret@db:5432/coremodel", "postgres://app@db:5432/coremodel"},
		{"redis://:s3cret@cache:6379/0", "redis://redacted@cache:6379/0"},
		{"postgres://db/coremodel?password=s3cret", "postgres://db/coremodel?password=redacted"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RedactURL(tt.in), tt.in)
	}
}

func TestSanitizeError(t *testing.T) {
	dsn := "postgres://app:s3cret@db:5432/coremodel"
	err := errors.New("dial " + dsn + ": refused; password=hunter2")

	got := SanitizeError(err, dsn, "")
	assert.NotContains(t, got, "s3cret")
	assert.NotContains(t, got, "hunter2")
	assert.Contains(t, got, "postgres://app@db:5432/coremodel")
	assert.Empty(t, SanitizeError(nil))
}
