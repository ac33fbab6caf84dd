package service

import (
	"context"

	"github.com/coremodel/coremodel/internal/events"
	"github.com/coremodel/coremodel/internal/model"
	"github.com/coremodel/coremodel/internal/store"
)

// EntityService handles core entity business logic.
type EntityService struct {
	*core
}

// NewEntityService creates a new EntityService.
func NewEntityService(st store.Store, opts Options) *EntityService {
	return &EntityService{core: newCore(st, opts, "service.entity")}
}

// CreateEntityInput defines input for creating an entity.
type CreateEntityInput struct {
	Title   string
	Content string
	OwnerID string
}

// CreateEntity creates a new entity owned by input.OwnerID.
func (s *EntityService) CreateEntity(ctx context.Context, input CreateEntityInput) (*model.CoreEntity, error) {
	if blank(input.Title) {
		return nil, ErrTitleRequired
	}
	if blank(input.Content) {
		return nil, ErrContentRequired
	}
	if blank(input.OwnerID) {
		return nil, ErrOwnerRequired
	}

	entity := &model.CoreEntity{
		Title:   input.Title,
		Content: input.Content,
		OwnerID: input.OwnerID,
	}
	if err := s.store.CreateEntity(ctx, entity); err != nil {
		return nil, s.mapStoreError(err)
	}

	s.metrics.IncEntityCreated()
	s.logger.Info("entity_created", "entity_id", entity.ID, "owner_id", entity.OwnerID)
	s.publish(events.ForEntity(events.EntityCreated, entity))

	return entity, nil
}

// GetEntity retrieves an entity by ID.
func (s *EntityService) GetEntity(ctx context.Context, id string) (*model.CoreEntity, error) {
	return s.getEntity(ctx, id)
}

// ListEntitiesByOwner returns exactly the entities owned by ownerID, oldest first.
func (s *EntityService) ListEntitiesByOwner(ctx context.Context, ownerID string) ([]*model.CoreEntity, error) {
	entities, err := s.store.ListEntitiesByOwner(ctx, ownerID)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	return entities, nil
}

// EntityOwner resolves the user that owns entity.
func (s *EntityService) EntityOwner(ctx context.Context, entity *model.CoreEntity) (*model.User, error) {
	owner, err := s.getUser(ctx, entity.OwnerID)
	if err != nil {
		return nil, err
	}
	return owner, nil
}

// UpdateEntityInput defines input for updating an entity. Nil fields are left unchanged.
type UpdateEntityInput struct {
	ID      string
	Title   *string
	Content *string
	OwnerID *string
}

// UpdateEntity updates an entity's mutable fields, including its owner.
func (s *EntityService) UpdateEntity(ctx context.Context, input UpdateEntityInput) (*model.CoreEntity, error) {
	entity, err := s.store.GetEntity(ctx, input.ID)
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	if input.Title != nil {
		if blank(*input.Title) {
			return nil, ErrTitleRequired
		}
		entity.Title = *input.Title
	}
	if input.Content != nil {
		if blank(*input.Content) {
			return nil, ErrContentRequired
		}
		entity.Content = *input.Content
	}
	if input.OwnerID != nil {
		if blank(*input.OwnerID) {
			return nil, ErrOwnerRequired
		}
		entity.OwnerID = *input.OwnerID
	}

	if err := s.store.UpdateEntity(ctx, entity); err != nil {
		return nil, s.mapStoreError(err)
	}

	s.metrics.IncEntityUpdated()
	s.refreshEntity(ctx, entity)
	s.logger.Info("entity_updated", "entity_id", entity.ID, "owner_id", entity.OwnerID)
	s.publish(events.ForEntity(events.EntityUpdated, entity))

	return entity, nil
}

// DeleteEntity removes an entity.
func (s *EntityService) DeleteEntity(ctx context.Context, id string) error {
	// Load first so the event carries the owner.
	entity, err := s.store.GetEntity(ctx, id)
	if err != nil {
		return s.mapStoreError(err)
	}

	if err := s.store.DeleteEntity(ctx, id); err != nil {
		return s.mapStoreError(err)
	}

	s.metrics.IncEntityDeleted(1)
	s.forgetEntities(ctx, id)
	s.logger.Info("entity_deleted", "entity_id", id, "owner_id", entity.OwnerID)
	s.publish(events.ForEntity(events.EntityDeleted, entity))

	return nil
}
