// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/coremodel/coremodel/internal/cache"
	"github.com/coremodel/coremodel/internal/events"
	"github.com/coremodel/coremodel/internal/metrics"
	"github.com/coremodel/coremodel/internal/model"
	"github.com/coremodel/coremodel/internal/store"
)

// Service errors.
var (
	ErrEmailRequired   = errors.New("email is required")
	ErrNameRequired    = errors.New("name is required")
	ErrTitleRequired   = errors.New("title is required")
	ErrContentRequired = errors.New("content is required")
	ErrOwnerRequired   = errors.New("owner_id is required")

	ErrEmailTaken      = errors.New("email already exists")
	ErrOwnerNotFound   = errors.New("owner does not exist")
	ErrUserNotFound    = errors.New("user not found")
	ErrEntityNotFound  = errors.New("entity not found")
	ErrUserHasEntities = errors.New("user still owns entities")
	ErrInvalidCursor   = errors.New("invalid pagination cursor")
)

// Cache is the read-through cache used for point lookups.
// *cache.Cache satisfies it.
//
// Set writes through after a store write and Backfill fills after a miss.
// Both keep a cached copy with a newer UpdatedAt, and Backfill also yields
// to the tombstone left by MarkDeleted.
type Cache interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	SetUser(ctx context.Context, user *model.User) error
	BackfillUser(ctx context.Context, user *model.User) (bool, error)
	DeleteUser(ctx context.Context, id string) error
	MarkUserDeleted(ctx context.Context, id string) error
	IsUserNegativelyCached(ctx context.Context, id string) (bool, error)
	SetUserNegativeCache(ctx context.Context, id string) error

	GetEntity(ctx context.Context, id string) (*model.CoreEntity, error)
	SetEntity(ctx context.Context, entity *model.CoreEntity) error
	BackfillEntity(ctx context.Context, entity *model.CoreEntity) (bool, error)
	DeleteEntities(ctx context.Context, ids ...string) error
	MarkEntitiesDeleted(ctx context.Context, ids ...string) error
	IsEntityNegativelyCached(ctx context.Context, id string) (bool, error)
	SetEntityNegativeCache(ctx context.Context, id string) error
}

// Publisher emits data-change events. *events.Publisher satisfies it.
type Publisher interface {
	PublishAsync(event events.Event)
}

var (
	_ Cache     = (*cache.Cache)(nil)
	_ Publisher = (*events.Publisher)(nil)
)

// Options configures the services. Cache and Events may be nil.
type Options struct {
	Cache        Cache
	Events       Publisher
	Metrics      metrics.Recorder
	Logger       *slog.Logger
	DeletePolicy store.DeletePolicy
}

// core holds the collaborators shared by UserService and EntityService.
type core struct {
	store   store.Store
	cache   Cache
	events  Publisher
	metrics metrics.Recorder
	logger  *slog.Logger
	policy  store.DeletePolicy
}

func newCore(st store.Store, opts Options, component string) *core {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DeletePolicy == "" {
		opts.DeletePolicy = store.DeleteRestrict
	}
	return &core{
		store:   st,
		cache:   opts.Cache,
		events:  opts.Events,
		metrics: opts.Metrics,
		logger:  opts.Logger.With("component", component),
		policy:  opts.DeletePolicy,
	}
}

// mapStoreError converts store errors to service errors and counts
// constraint violations.
func (c *core) mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, store.ErrEntityNotFound):
		return ErrEntityNotFound
	case errors.Is(err, store.ErrInvalidCursor):
		return ErrInvalidCursor
	case errors.Is(err, store.ErrDuplicateEmail):
		c.metrics.IncConstraintViolation(metrics.ViolationDuplicateEmail)
		return ErrEmailTaken
	case errors.Is(err, store.ErrOwnerNotFound):
		c.metrics.IncConstraintViolation(metrics.ViolationOwnerNotFound)
		return ErrOwnerNotFound
	case errors.Is(err, store.ErrUserHasEntities):
		c.metrics.IncConstraintViolation(metrics.ViolationOwnerHasData)
		return ErrUserHasEntities
	default:
		return err
	}
}

// getUser is the cache-aside user lookup shared by both services.
func (c *core) getUser(ctx context.Context, id string) (*model.User, error) {
	if c.cache != nil {
		user, err := c.cache.GetUser(ctx, id)
		if err == nil {
			c.metrics.IncCacheHit()
			return user, nil
		}
		if errors.Is(err, cache.ErrCacheMiss) {
			c.metrics.IncCacheMiss()
			if negative, _ := c.cache.IsUserNegativelyCached(ctx, id); negative {
				return nil, ErrUserNotFound
			}
		} else {
			c.logger.Warn("cache read failed", "user_id", id, "error", err)
		}
	}

	start := time.Now()
	user, err := c.store.GetUser(ctx, id)
	c.metrics.ObserveStoreDuration(time.Since(start))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) && c.cache != nil {
			_ = c.cache.SetUserNegativeCache(ctx, id)
		}
		return nil, c.mapStoreError(err)
	}

	if c.cache != nil {
		if stored, err := c.cache.BackfillUser(ctx, user); err != nil {
			c.logger.Warn("cache backfill failed", "user_id", id, "error", err)
		} else if !stored {
			c.logger.Debug("cache backfill skipped", "user_id", id)
		}
	}
	return user, nil
}

func (c *core) getEntity(ctx context.Context, id string) (*model.CoreEntity, error) {
	if c.cache != nil {
		entity, err := c.cache.GetEntity(ctx, id)
		if err == nil {
			c.metrics.IncCacheHit()
			return entity, nil
		}
		if errors.Is(err, cache.ErrCacheMiss) {
			c.metrics.IncCacheMiss()
			if negative, _ := c.cache.IsEntityNegativelyCached(ctx, id); negative {
				return nil, ErrEntityNotFound
			}
		} else {
			c.logger.Warn("cache read failed", "entity_id", id, "error", err)
		}
	}

	start := time.Now()
	entity, err := c.store.GetEntity(ctx, id)
	c.metrics.ObserveStoreDuration(time.Since(start))
	if err != nil {
		if errors.Is(err, store.ErrEntityNotFound) && c.cache != nil {
			_ = c.cache.SetEntityNegativeCache(ctx, id)
		}
		return nil, c.mapStoreError(err)
	}

	if c.cache != nil {
		if stored, err := c.cache.BackfillEntity(ctx, entity); err != nil {
			c.logger.Warn("cache backfill failed", "entity_id", id, "error", err)
		} else if !stored {
			c.logger.Debug("cache backfill skipped", "entity_id", id)
		}
	}
	return entity, nil
}

// refreshUser writes an updated user through to the cache. When that fails
// the entry is evicted so readers fall back to the store.
func (c *core) refreshUser(ctx context.Context, user *model.User) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetUser(ctx, user); err != nil {
		c.logger.Warn("cache write-through failed", "user_id", user.ID, "error", err)
		if err := c.cache.DeleteUser(ctx, user.ID); err != nil {
			c.logger.Warn("cache invalidation failed", "user_id", user.ID, "error", err)
		}
	}
}

func (c *core) refreshEntity(ctx context.Context, entity *model.CoreEntity) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetEntity(ctx, entity); err != nil {
		c.logger.Warn("cache write-through failed", "entity_id", entity.ID, "error", err)
		if err := c.cache.DeleteEntities(ctx, entity.ID); err != nil {
			c.logger.Warn("cache invalidation failed", "entity_id", entity.ID, "error", err)
		}
	}
}

func (c *core) forgetUser(ctx context.Context, id string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.MarkUserDeleted(ctx, id); err != nil {
		c.logger.Warn("cache invalidation failed", "user_id", id, "error", err)
	}
}

func (c *core) forgetEntities(ctx context.Context, ids ...string) {
	if c.cache == nil || len(ids) == 0 {
		return
	}
	if err := c.cache.MarkEntitiesDeleted(ctx, ids...); err != nil {
		c.logger.Warn("cache invalidation failed", "entity_ids", ids, "error", err)
	}
}

func (c *core) publish(event events.Event) {
	if c.events == nil {
		return
	}
	c.events.PublishAsync(event)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
