//go:build integration

package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coremodel/coremodel/internal/model"
	"github.com/coremodel/coremodel/internal/store"
	"github.com/coremodel/coremodel/internal/store/storetest"
	"github.com/coremodel/coremodel/internal/testutil"
)

// ============================================================================
// Store conformance against PostgreSQL
// ============================================================================

func TestIntegrationRepository_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		_, repo := newTestEnv(t)
		return repo
	})
}

// ============================================================================
// Migration checks
// ============================================================================

func TestIntegrationMigration_TablesMatchSchema(t *testing.T) {
	ctx, repo := newTestEnv(t)

	for _, spec := range model.Schema {
		for _, col := range spec.Columns() {
			exists, err := columnExists(ctx, repo.Pool(), spec.Table, col)
			if err != nil {
				t.Fatalf("columnExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Column %q should exist in %s table", col, spec.Table)
			}
		}
	}
}

func TestIntegrationMigration_Constraints(t *testing.T) {
	ctx, repo := newTestEnv(t)
	pool := repo.Pool()

	var id string
	err := pool.QueryRow(ctx, `
		INSERT INTO users (email, name) VALUES ('defaults@example.com', 'Defaults')
		RETURNING id, role
	`).Scan(&id, new(string))
	if err != nil {
		t.Fatalf("insert with defaults: %v", err)
	}
	if !store.ValidID(id) {
		t.Errorf("generated id %q is not a UUID", id)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO users (email, name, created_at, updated_at)
		VALUES ('skew@example.com', 'Skew', NOW(), NOW() - INTERVAL '1 second')
	`)
	if err == nil {
		t.Error("Expected check constraint violation for created_at > updated_at")
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO core_entities (title, content, owner_id)
		VALUES ('t', 'c', gen_random_uuid())
	`)
	if !isForeignKeyViolation(err) {
		t.Errorf("Expected foreign key violation, got %v", err)
	}
}

func TestIntegrationRepository_ConcurrentDuplicateEmail(t *testing.T) {
	ctx, repo := newTestEnv(t)
	email := testutil.UniqueEmail("race")

	const writers = 8
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := testutil.NewTestUser(t)
			u.Email = email
			errs <- repo.CreateUser(ctx, u)
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		switch {
		case err == nil:
			created++
		case !errors.Is(err, store.ErrDuplicateEmail):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one insert to win, got %d", created)
	}

	owner, err := repo.GetUserByEmail(ctx, email)
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := repo.CreateEntity(ctx, testutil.NewTestEntity(t, owner.ID)); err != nil {
			t.Fatalf("CreateEntity: %v", err)
		}
	}
	owned, err := repo.ListEntitiesByOwner(ctx, owner.ID)
	if err != nil || len(owned) != 3 {
		t.Fatalf("ListEntitiesByOwner: %d entities (err %v)", len(owned), err)
	}
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()

	ctx := context.Background()
	dbURL := testutil.PostgresURL(t)

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, dbURL); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, repo
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		)
	`, tableName, columnName).Scan(&exists)
	return exists, err
}
