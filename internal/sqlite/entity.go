package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coremodel/coremodel/internal/model"
	"github.com/coremodel/coremodel/internal/store"
)

const entityColumns = `id, title, content, owner_id, created_at, updated_at`

// CreateEntity inserts a new core entity.
func (s *Store) CreateEntity(ctx context.Context, entity *model.CoreEntity) error {
	store.PrepareEntity(entity)

	query := `
		INSERT INTO core_entities (id, title, content, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entity.ID,
		entity.Title,
		entity.Content,
		entity.OwnerID,
		toMicros(entity.CreatedAt),
		toMicros(entity.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrOwnerNotFound
		}
		return fmt.Errorf("failed to create entity: %w", err)
	}

	return nil
}

// GetEntity retrieves a core entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*model.CoreEntity, error) {
	query := `SELECT ` + entityColumns + ` FROM core_entities WHERE id = ?`

	entity, err := scanEntity(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get entity by ID: %w", err)
	}

	return entity, nil
}

// ListEntitiesByOwner returns all entities owned by ownerID, oldest first.
func (s *Store) ListEntitiesByOwner(ctx context.Context, ownerID string) ([]*model.CoreEntity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM core_entities
		WHERE owner_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
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

// UpdateEntity writes the mutable fields and advances updated_at.
func (s *Store) UpdateEntity(ctx context.Context, entity *model.CoreEntity) error {
	query := `
		UPDATE core_entities
		SET title = ?, content = ?, owner_id = ?, updated_at = MAX(?, updated_at + 1)
		WHERE id = ?
		RETURNING created_at, updated_at
	`

	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query,
		entity.Title,
		entity.Content,
		entity.OwnerID,
		toMicros(model.Now()),
		entity.ID,
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrEntityNotFound
		}
		if isForeignKeyViolation(err) {
			return store.ErrOwnerNotFound
		}
		return fmt.Errorf("failed to update entity: %w", err)
	}

	entity.CreatedAt = fromMicros(createdAt)
	entity.UpdatedAt = fromMicros(updatedAt)
	return nil
}

// DeleteEntity removes a core entity.
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM core_entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return store.ErrEntityNotFound
	}

	return nil
}

func scanEntity(row rowScanner) (*model.CoreEntity, error) {
	var (
		entity             model.CoreEntity
		createdAt, updated int64
	)
	err := row.Scan(
		&entity.ID,
		&entity.Title,
		&entity.Content,
		&entity.OwnerID,
		&createdAt,
		&updated,
	)
	if err != nil {
		return nil, err
	}
	entity.CreatedAt = fromMicros(createdAt)
	entity.UpdatedAt = fromMicros(updated)
	return &entity, nil
}
