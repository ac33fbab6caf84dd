// Package gormstore implements the store contract with gorm. Field mapping,
// the owner relationship and the delete rule are declared as struct tags on
// the row types; the schema is created with AutoMigrate.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coremodel/coremodel/internal/model"
	sqlitestore "github.com/coremodel/coremodel/internal/sqlite"
	"github.com/coremodel/coremodel/internal/store"
)

// Supported dialects.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Store is a gorm-backed store.Store.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Dialector returns the gorm dialector for dialect. For sqlite, dsn is a
// file path or empty for an in-memory database.
func Dialector(dialect, dsn string) (gorm.Dialector, error) {
	switch dialect {
	case DialectPostgres:
		return postgres.Open(dsn), nil
	case DialectSQLite:
		return sqlite.Open(sqlitestore.DSN(dsn)), nil
	default:
		return nil, fmt.Errorf("unsupported gorm dialect %q", dialect)
	}
}

// Open connects to the database. Call AutoMigrate before first use.
func Open(ctx context.Context, dialect, dsn string, log *slog.Logger) (*Store, error) {
	dialector, err := Dialector(dialect, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		NowFunc:        model.Now,
		Logger:         newSlogLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	if dialect == DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the users and core_entities tables.
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&userRow{}, &entityRow{}); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}
	return nil
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	store.PrepareUser(user)

	row := userRowFrom(user)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicateKey(err) {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	if !store.ValidID(id) {
		return nil, store.ErrUserNotFound
	}
	return s.findUser(ctx, "id = ?", id)
}

// GetUserByEmail retrieves a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, "email = ?", email)
}

func (s *Store) findUser(ctx context.Context, cond string, arg any) (*model.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, cond, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toUser(), nil
}

// ListUsers returns users newest first using keyset pagination.
func (s *Store) ListUsers(ctx context.Context, cursor string, limit int) ([]*model.User, string, error) {
	c, err := store.DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = store.ClampPageSize(limit)

	q := s.db.WithContext(ctx).Model(&userRow{})
	if c != nil {
		q = q.Where("(created_at, id) < (?, ?)", c.CreatedAt, c.ID)
	}

	var rows []userRow
	err = q.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&rows).Error
	if err != nil {
		return nil, "", fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*model.User, len(rows))
	for i := range rows {
		users[i] = rows[i].toUser()
	}

	users, next := store.NextCursor(users, limit)
	return users, next, nil
}

// UpdateUser writes the mutable fields and advances updated_at.
func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	if !store.ValidID(user.ID) {
		return store.ErrUserNotFound
	}
	user.ApplyDefaults()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row userRow
		if err := tx.First(&row, "id = ?", user.ID).Error; err != nil {
			return err
		}

		next := model.NextUpdatedAt(row.UpdatedAt)
		err := tx.Model(&row).Updates(map[string]any{
			"email":      user.Email,
			"name":       user.Name,
			"role":       user.Role,
			"updated_at": next,
		}).Error
		if err != nil {
			return err
		}

		user.CreatedAt = row.CreatedAt.UTC()
		user.UpdatedAt = next
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.ErrUserNotFound
		}
		if isDuplicateKey(err) {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}

// DeleteUser removes a user, applying policy to the entities it owns.
// Cascaded entity IDs are read and deleted inside one transaction.
func (s *Store) DeleteUser(ctx context.Context, id string, policy store.DeletePolicy) ([]string, error) {
	if !store.ValidID(id) {
		return nil, store.ErrUserNotFound
	}

	var deleted []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if policy == store.DeleteCascade {
			// Row lock on the owner blocks concurrent entity inserts, whose
			// foreign key check needs a share lock on the same row.
			if tx.Dialector.Name() == DialectPostgres {
				err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&userRow{}).Error
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return store.ErrUserNotFound
				}
				if err != nil {
					return err
				}
			}
			if err := tx.Model(&entityRow{}).Where("owner_id = ?", id).Pluck("id", &deleted).Error; err != nil {
				return err
			}
			if err := tx.Where("owner_id = ?", id).Delete(&entityRow{}).Error; err != nil {
				return err
			}
		}

		result := tx.Where("id = ?", id).Delete(&userRow{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return store.ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, err
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrUserHasEntities
		}
		return nil, fmt.Errorf("failed to delete user: %w", err)
	}

	return deleted, nil
}

// CreateEntity inserts a new core entity.
func (s *Store) CreateEntity(ctx context.Context, entity *model.CoreEntity) error {
	if !store.ValidID(entity.OwnerID) {
		return store.ErrOwnerNotFound
	}
	store.PrepareEntity(entity)

	row := entityRowFrom(entity)
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrOwnerNotFound
		}
		return fmt.Errorf("failed to create entity: %w", err)
	}

	return nil
}

// GetEntity retrieves a core entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*model.CoreEntity, error) {
	if !store.ValidID(id) {
		return nil, store.ErrEntityNotFound
	}
	var row entityRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return row.toEntity(), nil
}

// ListEntitiesByOwner returns all entities owned by ownerID, oldest first.
func (s *Store) ListEntitiesByOwner(ctx context.Context, ownerID string) ([]*model.CoreEntity, error) {
	if !store.ValidID(ownerID) {
		return []*model.CoreEntity{}, nil
	}
	var rows []entityRow
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	entities := make([]*model.CoreEntity, len(rows))
	for i := range rows {
		entities[i] = rows[i].toEntity()
	}
	return entities, nil
}

// UpdateEntity writes the mutable fields and advances updated_at.
func (s *Store) UpdateEntity(ctx context.Context, entity *model.CoreEntity) error {
	if !store.ValidID(entity.ID) {
		return store.ErrEntityNotFound
	}
	if !store.ValidID(entity.OwnerID) {
		return store.ErrOwnerNotFound
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row entityRow
		if err := tx.First(&row, "id = ?", entity.ID).Error; err != nil {
			return err
		}

		next := model.NextUpdatedAt(row.UpdatedAt)
		err := tx.Model(&row).Omit(clause.Associations).Updates(map[string]any{
			"title":      entity.Title,
			"content":    entity.Content,
			"owner_id":   entity.OwnerID,
			"updated_at": next,
		}).Error
		if err != nil {
			return err
		}

		entity.CreatedAt = row.CreatedAt.UTC()
		entity.UpdatedAt = next
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.ErrEntityNotFound
		}
		if isForeignKeyViolation(err) {
			return store.ErrOwnerNotFound
		}
		return fmt.Errorf("failed to update entity: %w", err)
	}

	return nil
}

// DeleteEntity removes a core entity.
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	if !store.ValidID(id) {
		return store.ErrEntityNotFound
	}
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&entityRow{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete entity: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrEntityNotFound
	}
	return nil
}
