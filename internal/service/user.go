package service

import (
	"context"

	"github.com/coremodel/coremodel/internal/events"
	"github.com/coremodel/coremodel/internal/model"
	"github.com/coremodel/coremodel/internal/store"
)

// UserService handles user business logic.
type UserService struct {
	*core
}

// NewUserService creates a new UserService.
func NewUserService(st store.Store, opts Options) *UserService {
	return &UserService{core: newCore(st, opts, "service.user")}
}

// CreateUserInput defines input for creating a user.
type CreateUserInput struct {
	Email string
	Name  string
	Role  string // optional, defaults to model.DefaultRole
}

// CreateUser creates a new user.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*model.User, error) {
	if blank(input.Email) {
		return nil, ErrEmailRequired
	}
	if blank(input.Name) {
		return nil, ErrNameRequired
	}

	user := &model.User{
		Email: input.Email,
		Name:  input.Name,
		Role:  input.Role,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, s.mapStoreError(err)
	}

	s.metrics.IncUserCreated()
	s.logger.Info("user_created", "user_id", user.ID, "role", user.Role)
	s.publish(events.ForUser(events.UserCreated, user))

	return user, nil
}

// GetUser retrieves a user by ID.
func (s *UserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, id)
}

// GetUserByEmail retrieves a user by email. Lookups by email bypass the cache.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if blank(email) {
		return nil, ErrEmailRequired
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	return user, nil
}

// ListUsersInput defines input for listing users.
type ListUsersInput struct {
	Cursor string
	Limit  int
}

// ListUsersOutput defines output for listing users.
type ListUsersOutput struct {
	Users      []*model.User
	NextCursor string
	HasMore    bool
}

// ListUsers retrieves a page of users, newest first.
func (s *UserService) ListUsers(ctx context.Context, input ListUsersInput) (*ListUsersOutput, error) {
	users, next, err := s.store.ListUsers(ctx, input.Cursor, store.ClampPageSize(input.Limit))
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	return &ListUsersOutput{
		Users:      users,
		NextCursor: next,
		HasMore:    next != "",
	}, nil
}

// UpdateUserInput defines input for updating a user. Nil fields are left unchanged.
type UpdateUserInput struct {
	ID    string
	Email *string
	Name  *string
	Role  *string
}

// UpdateUser updates a user's mutable fields.
func (s *UserService) UpdateUser(ctx context.Context, input UpdateUserInput) (*model.User, error) {
	user, err := s.store.GetUser(ctx, input.ID)
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	if input.Email != nil {
		if blank(*input.Email) {
			return nil, ErrEmailRequired
		}
		user.Email = *input.Email
	}
	if input.Name != nil {
		if blank(*input.Name) {
			return nil, ErrNameRequired
		}
		user.Name = *input.Name
	}
	if input.Role != nil {
		user.Role = *input.Role
		user.ApplyDefaults()
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, s.mapStoreError(err)
	}

	s.metrics.IncUserUpdated()
	s.refreshUser(ctx, user)
	s.logger.Info("user_updated", "user_id", user.ID)
	s.publish(events.ForUser(events.UserUpdated, user))

	return user, nil
}

// DeleteUser removes a user using the configured delete policy.
// Under cascade the user's entities are removed in the same transaction,
// and each one the store reports gets evicted and an entity.deleted event
// ahead of user.deleted.
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	cascaded, err := s.store.DeleteUser(ctx, id, s.policy)
	if err != nil {
		return s.mapStoreError(err)
	}

	s.metrics.IncUserDeleted()
	s.metrics.IncEntityDeleted(len(cascaded))
	s.forgetUser(ctx, id)
	s.forgetEntities(ctx, cascaded...)
	s.logger.Info("user_deleted", "user_id", id, "policy", string(s.policy), "entities_deleted", len(cascaded))

	for _, entityID := range cascaded {
		s.publish(events.ForEntity(events.EntityDeleted, &model.CoreEntity{ID: entityID, OwnerID: id}))
	}
	s.publish(events.ForUser(events.UserDeleted, &model.User{ID: id}))

	return nil
}

// DeletePolicy returns the policy applied by DeleteUser.
func (s *UserService) DeletePolicy() store.DeletePolicy {
	return s.policy
}
