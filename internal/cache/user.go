package cache

import (
	"context"

	"github.com/coremodel/coremodel/internal/model"
)

// GetUser retrieves a user from cache by ID.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetUser(ctx context.Context, id string) (*model.User, error) {
	var cached model.CachedUser
	if err := c.getHash(ctx, userKey(id), &cached); err != nil {
		return nil, err
	}
	return cached.ToUser(id), nil
}

// SetUser writes a freshly stored user through to the cache. A cached copy
// with a newer UpdatedAt is kept.
func (c *Cache) SetUser(ctx context.Context, user *model.User) error {
	cached := user.ToCachedUser()
	_, err := c.storeHash(ctx, userKey(user.ID), cached.UpdatedAt, false, userFields(cached))
	return err
}

// BackfillUser caches a user read from the store after a miss. It is a no-op
// when a newer copy is cached or the user was deleted within the negative TTL.
func (c *Cache) BackfillUser(ctx context.Context, user *model.User) (bool, error) {
	cached := user.ToCachedUser()
	return c.storeHash(ctx, userKey(user.ID), cached.UpdatedAt, true, userFields(cached))
}

// DeleteUser removes a user from cache.
func (c *Cache) DeleteUser(ctx context.Context, id string) error {
	return c.deleteKeys(ctx, userKey(id))
}

// MarkUserDeleted evicts a deleted user and negatively caches its ID.
func (c *Cache) MarkUserDeleted(ctx context.Context, id string) error {
	return c.tombstone(ctx, userKey(id))
}

// IsUserNegativelyCached checks if a user ID is in negative cache.
func (c *Cache) IsUserNegativelyCached(ctx context.Context, id string) (bool, error) {
	return c.isNegative(ctx, userKey(id))
}

// SetUserNegativeCache marks a user ID as not found.
func (c *Cache) SetUserNegativeCache(ctx context.Context, id string) error {
	return c.setNegative(ctx, userKey(id))
}

func userFields(u *model.CachedUser) []any {
	return []any{
		"email", u.Email,
		"name", u.Name,
		"role", u.Role,
		"created_at", u.CreatedAt,
		"updated_at", u.UpdatedAt,
	}
}
