// Package store defines the persistence contract for users and core entities.
// Backends live in their own packages (repository, sqlite, gormstore) and all
// enforce the same invariants: generated identifiers, unique email, owner
// referential integrity and managed timestamps.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/coremodel/coremodel/internal/model"
)

// Common errors returned by every backend.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEntityNotFound      = errors.New("entity not found")
	ErrDuplicateEmail      = errors.New("email already exists")
	ErrOwnerNotFound       = errors.New("owner does not exist")
	ErrUserHasEntities     = errors.New("user still owns entities")
	ErrInvalidCursor       = errors.New("invalid pagination cursor")
	ErrInvalidDeletePolicy = errors.New("invalid delete policy")
)

// DeletePolicy decides what happens to owned entities when a user is deleted.
type DeletePolicy string

const (
	// DeleteRestrict refuses to delete a user that still owns entities.
	DeleteRestrict DeletePolicy = "restrict"
	// DeleteCascade deletes the owned entities together with the user.
	DeleteCascade DeletePolicy = "cascade"
)

// ParseDeletePolicy converts a configuration value to a DeletePolicy.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch DeletePolicy(s) {
	case DeleteRestrict, DeleteCascade:
		return DeletePolicy(s), nil
	case "":
		return DeleteRestrict, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDeletePolicy, s)
	}
}

// UserStore persists users.
type UserStore interface {
	// CreateUser assigns ID, default role and timestamps, then inserts.
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// ListUsers returns a page ordered newest first and the cursor of the next page.
	ListUsers(ctx context.Context, cursor string, limit int) ([]*model.User, string, error)
	// UpdateUser writes email, name and role and refreshes updated_at.
	// CreatedAt and UpdatedAt on user are set to the stored values.
	UpdateUser(ctx context.Context, user *model.User) error
	// DeleteUser removes the user and returns the IDs of the entities the
	// same transaction cascaded, which is always empty under DeleteRestrict.
	DeleteUser(ctx context.Context, id string, policy DeletePolicy) ([]string, error)
}

// EntityStore persists core entities.
type EntityStore interface {
	CreateEntity(ctx context.Context, entity *model.CoreEntity) error
	GetEntity(ctx context.Context, id string) (*model.CoreEntity, error)
	// ListEntitiesByOwner returns every entity whose owner is ownerID,
	// oldest first.
	ListEntitiesByOwner(ctx context.Context, ownerID string) ([]*model.CoreEntity, error)
	// UpdateEntity writes title, content and owner and refreshes updated_at.
	UpdateEntity(ctx context.Context, entity *model.CoreEntity) error
	DeleteEntity(ctx context.Context, id string) error
}

// Store is the full persistence contract.
type Store interface {
	UserStore
	EntityStore
	Ping(ctx context.Context) error
	Close() error
}

// NewID generates a primary key.
func NewID() string {
	return uuid.NewString()
}

// PrepareUser populates the generated fields of a user about to be inserted.
func PrepareUser(u *model.User) {
	now := model.Now()
	u.ID = NewID()
	u.ApplyDefaults()
	u.CreatedAt = now
	u.UpdatedAt = now
}

// PrepareEntity populates the generated fields of an entity about to be inserted.
func PrepareEntity(e *model.CoreEntity) {
	now := model.Now()
	e.ID = NewID()
	e.CreatedAt = now
	e.UpdatedAt = now
}

// ValidID reports whether id has the shape of a generated identifier.
// Backends use it to short-circuit lookups that cannot match.
func ValidID(id string) bool {
	return uuid.Validate(id) == nil
}
