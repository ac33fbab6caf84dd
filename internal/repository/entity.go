package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/coremodel/coremodel/internal/model"
	"github.com/coremodel/coremodel/internal/store"
)

// CreateEntity inserts a new core entity into the database.
func (r *Repository) CreateEntity(ctx context.Context, entity *model.CoreEntity) error {
	if !store.ValidID(entity.OwnerID) {
		return store.ErrOwnerNotFound
	}
	store.PrepareEntity(entity)

	query := `
		INSERT INTO core_entities (id, title, content, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		entity.ID,
		entity.Title,
		entity.Content,
		entity.OwnerID,
		entity.CreatedAt,
		entity.UpdatedAt,
	)

	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrOwnerNotFound
		}
		return fmt.Errorf("failed to create entity: %w", err)
	}

	return nil
}

// GetEntity retrieves a core entity by its ID.
func (r *Repository) GetEntity(ctx context.Context, id string) (*model.CoreEntity, error) {
	if !store.ValidID(id) {
		return nil, store.ErrEntityNotFound
	}

	query := `
		SELECT id, title, content, owner_id, created_at, updated_at
		FROM core_entities
		WHERE id = $1
	`

	entity, err := scanEntity(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get entity by ID: %w", err)
	}

	return entity, nil
}

// ListEntitiesByOwner retrieves every entity owned by a user, oldest first.
func (r *Repository) ListEntitiesByOwner(ctx context.Context, ownerID string) ([]*model.CoreEntity, error) {
	if !store.ValidID(ownerID) {
		return []*model.CoreEntity{}, nil
	}

	query := `
		SELECT id, title, content, owner_id, created_at, updated_at
		FROM core_entities
		WHERE owner_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	entities := []*model.CoreEntity{}
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, entity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}

	return entities, nil
}

// UpdateEntity updates an entity's mutable fields, including its owner.
func (r *Repository) UpdateEntity(ctx context.Context, entity *model.CoreEntity) error {
	if !store.ValidID(entity.ID) {
		return store.ErrEntityNotFound
	}
	if !store.ValidID(entity.OwnerID) {
		return store.ErrOwnerNotFound
	}

	query := `
		UPDATE core_entities
		SET title = $2, content = $3, owner_id = $4,
		    updated_at = GREATEST($5, updated_at + INTERVAL '1 microsecond')
		WHERE id = $1
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		entity.ID,
		entity.Title,
		entity.Content,
		entity.OwnerID,
		model.Now(),
	).Scan(&entity.CreatedAt, &entity.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrEntityNotFound
		}
		if isForeignKeyViolation(err) {
			return store.ErrOwnerNotFound
		}
		return fmt.Errorf("failed to update entity: %w", err)
	}

	entity.CreatedAt = entity.CreatedAt.UTC()
	entity.UpdatedAt = entity.UpdatedAt.UTC()
	return nil
}

// DeleteEntity removes a core entity.
func (r *Repository) DeleteEntity(ctx context.Context, id string) error {
	if !store.ValidID(id) {
		return store.ErrEntityNotFound
	}

	result, err := r.pool.Exec(ctx, `DELETE FROM core_entities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrEntityNotFound
	}

	return nil
}

// scanEntity scans a single row into a CoreEntity model.
func scanEntity(row pgx.Row) (*model.CoreEntity, error) {
	var entity model.CoreEntity
	err := row.Scan(
		&entity.ID,
		&entity.Title,
		&entity.Content,
		&entity.OwnerID,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	entity.CreatedAt = entity.CreatedAt.UTC()
	entity.UpdatedAt = entity.UpdatedAt.UTC()
	return &entity, nil
}
