package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coremodel/coremodel/internal/model"
	"github.com/coremodel/coremodel/internal/store"
)

const userColumns = `id, email, name, role, created_at, updated_at`

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	store.PrepareUser(user)

	query := `
		INSERT INTO users (id, email, name, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.Role,
		toMicros(user.CreatedAt),
		toMicros(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

// GetUserByEmail retrieves a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// ListUsers returns users newest first using keyset pagination.
func (s *Store) ListUsers(ctx context.Context, cursor string, limit int) ([]*model.User, string, error) {
	c, err := store.DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = store.ClampPageSize(limit)

	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if c != nil {
		query += ` WHERE (created_at, id) < (?, ?)`
		args = append(args, toMicros(c.CreatedAt), c.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating users: %w", err)
	}

	users, next := store.NextCursor(users, limit)
	return users, next, nil
}

// UpdateUser writes the mutable fields and advances updated_at.
func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	user.ApplyDefaults()

	query := `
		UPDATE users
		SET email = ?, name = ?, role = ?, updated_at = MAX(?, updated_at + 1)
		WHERE id = ?
		RETURNING created_at, updated_at
	`

	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query,
		user.Email,
		user.Name,
		user.Role,
		toMicros(model.Now()),
		user.ID,
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	user.CreatedAt = fromMicros(createdAt)
	user.UpdatedAt = fromMicros(updatedAt)
	return nil
}

// DeleteUser removes a user. With DeleteCascade the owned entities are
// removed in the same transaction and their IDs returned.
func (s *Store) DeleteUser(ctx context.Context, id string, policy store.DeletePolicy) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var deleted []string
	if policy == store.DeleteCascade {
		deleted, err = deleteOwnedEntities(ctx, tx, id)
		if err != nil {
			return nil, err
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrUserHasEntities
		}
		return nil, fmt.Errorf("failed to delete user: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return nil, store.ErrUserNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit user delete: %w", err)
	}
	return deleted, nil
}

func deleteOwnedEntities(ctx context.Context, tx *sql.Tx, ownerID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `DELETE FROM core_entities WHERE owner_id = ? RETURNING id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete owned entities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan deleted entity: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to delete owned entities: %w", err)
	}
	return ids, nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		user               model.User
		createdAt, updated int64
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&createdAt,
		&updated,
	)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = fromMicros(createdAt)
	user.UpdatedAt = fromMicros(updated)
	return &user, nil
}
