package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coremodel/coremodel/internal/config"
	"github.com/coremodel/coremodel/internal/gormstore"
	"github.com/coremodel/coremodel/internal/migrate"
	"github.com/coremodel/coremodel/internal/repository"
	"github.com/coremodel/coremodel/internal/sqlite"
	"github.com/coremodel/coremodel/internal/store"
)

// ErrUnsupportedForGorm is returned for goose operations on the gorm
// backend, whose schema is owned by AutoMigrate.
var ErrUnsupportedForGorm = errors.New("not supported for the gorm backend; its schema is managed by AutoMigrate")

// OpenStore connects the backend selected by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	// Assign through typed locals so a failed open never yields a non-nil
	// interface holding a nil pointer.
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		var r *repository.Repository
		if r, err = repository.New(ctx, cfg.DatabaseURL); err == nil {
			st = r
		}
	case config.BackendSQLite:
		var s *sqlite.Store
		if s, err = sqlite.Open(ctx, cfg.DatabaseURL); err == nil {
			st = s
		}
	case config.BackendGorm:
		var g *gormstore.Store
		if g, err = gormstore.Open(ctx, cfg.GormDialect, cfg.DatabaseURL, logger.With("component", "gorm")); err == nil {
			st = g
		}
	default:
		err = fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// MigrateStore brings the schema of st up to date and returns how many
// migrations ran. The gorm backend reports 0 after AutoMigrate.
func MigrateStore(ctx context.Context, cfg *config.Config, st store.Store) (int, error) {
	if gs, ok := st.(*gormstore.Store); ok {
		return 0, gs.AutoMigrate(ctx)
	}

	m, closeDB, err := OpenMigrator(ctx, cfg, st)
	if err != nil {
		return 0, err
	}
	defer closeDB()

	return m.Up(ctx)
}

// OpenMigrator returns a goose migrator for the configured backend. When st
// is a SQLite store its handle is reused, since an in-memory database is
// private to its connection. The returned func releases any handle opened here.
func OpenMigrator(ctx context.Context, cfg *config.Config, st store.Store) (*migrate.Migrator, func(), error) {
	noop := func() {}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := migrate.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return newMigrator(db, migrate.DialectPostgres, func() { _ = db.Close() })
	case config.BackendSQLite:
		if s, ok := st.(*sqlite.Store); ok {
			return newMigrator(s.DB(), migrate.DialectSQLite, noop)
		}
		s, err := sqlite.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return newMigrator(s.DB(), migrate.DialectSQLite, func() { _ = s.Close() })
	case config.BackendGorm:
		return nil, noop, fmt.Errorf("goose migrations: %w", ErrUnsupportedForGorm)
	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func newMigrator(db *sql.DB, dialect migrate.Dialect, release func()) (*migrate.Migrator, func(), error) {
	m, err := migrate.New(db, dialect)
	if err != nil {
		release()
		return nil, func() {}, err
	}
	return m, release, nil
}
