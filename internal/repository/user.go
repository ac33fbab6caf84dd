package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/coremodel/coremodel/internal/model"
	"github.com/coremodel/coremodel/internal/store"
)

// CreateUser inserts a new user into the database.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	store.PrepareUser(user)

	query := `
		INSERT INTO users (id, email, name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUser retrieves a user by their ID.
func (r *Repository) GetUser(ctx context.Context, id string) (*model.User, error) {
	if !store.ValidID(id) {
		return nil, store.ErrUserNotFound
	}

	query := `
		SELECT id, email, name, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

// GetUserByEmail retrieves a user by their email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `
		SELECT id, email, name, role, created_at, updated_at
		FROM users
		WHERE email = $1
	`

	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// ListUsers retrieves a paginated list of users, newest first.
func (r *Repository) ListUsers(ctx context.Context, cursor string, limit int) ([]*model.User, string, error) {
	cursorData, err := store.DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = store.ClampPageSize(limit)

	query := `
		SELECT id, email, name, role, created_at, updated_at
		FROM users
	`
	var args []any
	argIndex := 1

	if cursorData != nil {
		query += fmt.Sprintf(" WHERE (created_at, id) < ($%d, $%d)", argIndex, argIndex+1)
		args = append(args, cursorData.CreatedAt, cursorData.ID)
		argIndex += 2
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIndex)
	args = append(args, limit+1) // Fetch one extra to determine hasMore

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, "", store.ErrInvalidCursor
		}
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

	users, nextCursor := store.NextCursor(users, limit)
	return users, nextCursor, nil
}

// UpdateUser updates a user's mutable fields. updated_at always moves
// forward, even when two updates land within the same microsecond.
func (r *Repository) UpdateUser(ctx context.Context, user *model.User) error {
	if !store.ValidID(user.ID) {
		return store.ErrUserNotFound
	}
	user.ApplyDefaults()

	query := `
		UPDATE users
		SET email = $2, name = $3, role = $4,
		    updated_at = GREATEST($5, updated_at + INTERVAL '1 microsecond')
		WHERE id = $1
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.Role,
		model.Now(),
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return nil
}

// DeleteUser removes a user. Under DeleteCascade the owned entities are
// removed in the same transaction and their IDs returned; under
// DeleteRestrict the foreign key blocks the delete while entities remain.
func (r *Repository) DeleteUser(ctx context.Context, id string, policy store.DeletePolicy) ([]string, error) {
	if !store.ValidID(id) {
		return nil, store.ErrUserNotFound
	}

	var deleted []string
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if policy == store.DeleteCascade {
			rows, err := tx.Query(ctx, `DELETE FROM core_entities WHERE owner_id = $1 RETURNING id`, id)
			if err != nil {
				return fmt.Errorf("failed to delete owned entities: %w", err)
			}
			deleted, err = pgx.CollectRows(rows, pgx.RowTo[string])
			if err != nil {
				return fmt.Errorf("failed to delete owned entities: %w", err)
			}
		}

		result, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrUserHasEntities
			}
			return fmt.Errorf("failed to delete user: %w", err)
		}

		if result.RowsAffected() == 0 {
			return store.ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// scanUser scans a single row into a User model.
func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return &user, nil
}
