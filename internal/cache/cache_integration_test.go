//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coremodel/coremodel/internal/model"
	"github.com/coremodel/coremodel/internal/store"
	"github.com/coremodel/coremodel/internal/testutil"
)

func newTestCache(t *testing.T) (context.Context, *Cache) {
	t.Helper()
	ctx := context.Background()
	redisURL := testutil.RedisURL(t)

	c, err := New(ctx, redisURL, WithTTL(time.Minute))
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return ctx, c
}

func TestIntegrationCache_UserRoundTrip(t *testing.T) {
	ctx, c := newTestCache(t)

	u := testutil.NewTestUser(t)
	u.Role = model.RoleAdmin
	store.PrepareUser(u)
	u.UpdatedAt = u.CreatedAt.Add(time.Microsecond)

	if _, err := c.GetUser(ctx, u.ID); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	if err := c.SetUser(ctx, u); err != nil {
		t.Fatalf("SetUser: %v", err)
	}

	got, err := c.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Email != u.Email || got.Role != u.Role || !got.UpdatedAt.Equal(u.UpdatedAt) {
		t.Errorf("cached user mismatch: got %+v, want %+v", got, u)
	}

	ttl, err := c.Client().TTL(ctx, userKey(u.ID)).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Errorf("unexpected TTL %v (err %v)", ttl, err)
	}

	if err := c.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := c.GetUser(ctx, u.ID); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss after delete, got %v", err)
	}
}

func TestIntegrationCache_NegativeEntries(t *testing.T) {
	ctx, c := newTestCache(t)
	id := store.NewID()

	neg, err := c.IsEntityNegativelyCached(ctx, id)
	if err != nil || neg {
		t.Fatalf("expected no negative entry, got %v (err %v)", neg, err)
	}

	if err := c.SetEntityNegativeCache(ctx, id); err != nil {
		t.Fatalf("SetEntityNegativeCache: %v", err)
	}
	if neg, _ := c.IsEntityNegativelyCached(ctx, id); !neg {
		t.Fatal("expected negative entry")
	}

	// Storing the record clears the negative entry.
	e := &model.CoreEntity{ID: id, Title: "t", Content: "c", OwnerID: store.NewID(), CreatedAt: model.Now(), UpdatedAt: model.Now()}
	if err := c.SetEntity(ctx, e); err != nil {
		t.Fatalf("SetEntity: %v", err)
	}
	if neg, _ := c.IsEntityNegativelyCached(ctx, id); neg {
		t.Error("negative entry should be cleared by SetEntity")
	}

	if err := c.DeleteEntities(ctx, id, store.NewID()); err != nil {
		t.Fatalf("DeleteEntities: %v", err)
	}
	if _, err := c.GetEntity(ctx, id); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestIntegrationCache_BackfillKeepsNewerVersion(t *testing.T) {
	ctx, c := newTestCache(t)

	stale := testutil.NewTestUser(t)
	store.PrepareUser(stale)
	fresh := *stale
	fresh.Name = "Renamed"
	fresh.UpdatedAt = stale.UpdatedAt.Add(time.Millisecond)

	if err := c.SetUser(ctx, &fresh); err != nil {
		t.Fatalf("SetUser: %v", err)
	}

	stored, err := c.BackfillUser(ctx, stale)
	if err != nil {
		t.Fatalf("BackfillUser: %v", err)
	}
	if stored {
		t.Error("older backfill must not replace the newer cached user")
	}
	if got, _ := c.GetUser(ctx, stale.ID); got == nil || got.Name != "Renamed" {
		t.Errorf("cached user = %+v, want the renamed version", got)
	}

	// An older write-through loses as well; an equal or newer one wins.
	if err := c.SetUser(ctx, stale); err != nil {
		t.Fatalf("SetUser stale: %v", err)
	}
	if got, _ := c.GetUser(ctx, stale.ID); got == nil || got.Name != "Renamed" {
		t.Errorf("cached user = %+v after stale write", got)
	}
	newer := fresh
	newer.Name = "Again"
	newer.UpdatedAt = fresh.UpdatedAt.Add(time.Millisecond)
	if err := c.SetUser(ctx, &newer); err != nil {
		t.Fatalf("SetUser newer: %v", err)
	}
	if got, _ := c.GetUser(ctx, stale.ID); got == nil || got.Name != "Again" {
		t.Errorf("cached user = %+v, want newest version", got)
	}
}

func TestIntegrationCache_TombstoneBlocksBackfill(t *testing.T) {
	ctx, c := newTestCache(t)

	e := &model.CoreEntity{ID: store.NewID(), Title: "t", Content: "c", OwnerID: store.NewID(), CreatedAt: model.Now(), UpdatedAt: model.Now()}
	if err := c.SetEntity(ctx, e); err != nil {
		t.Fatalf("SetEntity: %v", err)
	}

	if err := c.MarkEntitiesDeleted(ctx, e.ID); err != nil {
		t.Fatalf("MarkEntitiesDeleted: %v", err)
	}
	if neg, _ := c.IsEntityNegativelyCached(ctx, e.ID); !neg {
		t.Fatal("deleted entity should be negatively cached")
	}

	stored, err := c.BackfillEntity(ctx, e)
	if err != nil {
		t.Fatalf("BackfillEntity: %v", err)
	}
	if stored {
		t.Error("backfill of a deleted entity must be skipped")
	}
	if _, err := c.GetEntity(ctx, e.ID); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}

	// A plain backfill with no tombstone lands.
	other := &model.CoreEntity{ID: store.NewID(), Title: "o", Content: "c", OwnerID: e.OwnerID, CreatedAt: model.Now(), UpdatedAt: model.Now()}
	if stored, err := c.BackfillEntity(ctx, other); err != nil || !stored {
		t.Errorf("BackfillEntity = %v, %v; want stored", stored, err)
	}
}
