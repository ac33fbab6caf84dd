package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/coremodel/coremodel/internal/migrate"
	"github.com/coremodel/coremodel/internal/model"
)

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema rolls back and reapplies the postgres migrations.
func ResetSchema(ctx context.Context, databaseURL string) error {
	db, err := migrate.OpenPostgres(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := migrate.New(db, migrate.DialectPostgres)
	if err != nil {
		return err
	}
	if err := m.Reset(ctx); err != nil {
		return fmt.Errorf("reset schema: %w", err)
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ============================================================================
// Test Data Factories
// ============================================================================

var seq atomic.Uint64

// UniqueEmail generates an email address no other test uses.
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d-%d@example.com", prefix, time.Now().UnixNano(), seq.Add(1))
}

// NewTestUser creates an unsaved user with sensible defaults.
func NewTestUser(t testing.TB) *model.User {
	t.Helper()
	return &model.User{
		Email: UniqueEmail("user"),
		Name:  "Test User",
	}
}

// NewTestEntity creates an unsaved entity owned by ownerID.
func NewTestEntity(t testing.TB, ownerID string) *model.CoreEntity {
	t.Helper()
	n := seq.Add(1)
	return &model.CoreEntity{
		Title:   fmt.Sprintf("Entity %d", n),
		Content: fmt.Sprintf("Body of entity %d", n),
		OwnerID: ownerID,
	}
}
