package cache

import (
	"context"

	"github.com/coremodel/coremodel/internal/model"
)

// GetEntity retrieves a core entity from cache by ID.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetEntity(ctx context.Context, id string) (*model.CoreEntity, error) {
	var cached model.CachedEntity
	if err := c.getHash(ctx, entityKey(id), &cached); err != nil {
		return nil, err
	}
	return cached.ToEntity(id), nil
}

// SetEntity writes a freshly stored entity through to the cache. A cached
// copy with a newer UpdatedAt is kept.
func (c *Cache) SetEntity(ctx context.Context, entity *model.CoreEntity) error {
	cached := entity.ToCachedEntity()
	_, err := c.storeHash(ctx, entityKey(entity.ID), cached.UpdatedAt, false, entityFields(cached))
	return err
}

// BackfillEntity caches an entity read from the store after a miss. See
// BackfillUser.
func (c *Cache) BackfillEntity(ctx context.Context, entity *model.CoreEntity) (bool, error) {
	cached := entity.ToCachedEntity()
	return c.storeHash(ctx, entityKey(entity.ID), cached.UpdatedAt, true, entityFields(cached))
}

// DeleteEntities removes core entities from cache.
func (c *Cache) DeleteEntities(ctx context.Context, ids ...string) error {
	return c.deleteKeys(ctx, entityKeys(ids)...)
}

// MarkEntitiesDeleted evicts deleted entities and negatively caches their IDs.
func (c *Cache) MarkEntitiesDeleted(ctx context.Context, ids ...string) error {
	return c.tombstone(ctx, entityKeys(ids)...)
}

// IsEntityNegativelyCached checks if an entity ID is in negative cache.
func (c *Cache) IsEntityNegativelyCached(ctx context.Context, id string) (bool, error) {
	return c.isNegative(ctx, entityKey(id))
}

// SetEntityNegativeCache marks an entity ID as not found.
func (c *Cache) SetEntityNegativeCache(ctx context.Context, id string) error {
	return c.setNegative(ctx, entityKey(id))
}

func entityKeys(ids []string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = entityKey(id)
	}
	return keys
}

func entityFields(e *model.CachedEntity) []any {
	return []any{
		"title", e.Title,
		"content", e.Content,
		"owner_id", e.OwnerID,
		"created_at", e.CreatedAt,
		"updated_at", e.UpdatedAt,
	}
}
