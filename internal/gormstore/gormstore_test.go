package gormstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/coremodel/coremodel/internal/model"
	"github.com/coremodel/coremodel/internal/store"
	"github.com/coremodel/coremodel/internal/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	s, err := Open(ctx, DialectSQLite, "", slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.AutoMigrate(ctx))
	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t)
	})
}

func TestAutoMigrate_MatchesSchema(t *testing.T) {
	s := newTestStore(t)
	migrator := s.DB().Migrator()

	for _, spec := range model.Schema {
		require.True(t, migrator.HasTable(spec.Table), "table %s", spec.Table)
		for _, col := range spec.Columns() {
			assert.True(t, migrator.HasColumn(spec.Table, col), "column %s.%s", spec.Table, col)
		}
	}

	assert.True(t, migrator.HasIndex(&userRow{}, "idx_users_email"))
}

func TestAutoMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.AutoMigrate(context.Background()))
}

func TestDialector(t *testing.T) {
	d, err := Dialector(DialectPostgres, "postgres://localhost/db")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	d, err = Dialector(DialectSQLite, "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	_, err = Dialector("mysql", "")
	assert.Error(t, err)
}

func TestUUIDColumnType(t *testing.T) {
	for dialect, want := range map[string]string{
		DialectPostgres: "uuid",
		DialectSQLite:   "varchar(36)",
	} {
		dsn := ""
		if dialect == DialectPostgres {
			dsn = "postgres://localhost/db"
		}
		d, err := Dialector(dialect, dsn)
		require.NoError(t, err)
		db := &gorm.DB{Config: &gorm.Config{Dialector: d}}
		assert.Equal(t, want, uuidColumn("").GormDBDataType(db, nil), dialect)
	}

	var u uuidColumn
	require.NoError(t, u.Scan([]byte("8d3c1f8e-0000-4000-8000-000000000000")))
	assert.Equal(t, uuidColumn("8d3c1f8e-0000-4000-8000-000000000000"), u)
	v, err := u.Value()
	require.NoError(t, err)
	assert.Equal(t, "8d3c1f8e-0000-4000-8000-000000000000", v)
	assert.Error(t, u.Scan(42))
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, isDuplicateKey(gorm.ErrDuplicatedKey))
	assert.True(t, isDuplicateKey(fmt.Errorf("wrap: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, isDuplicateKey(errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)")))
	assert.True(t, isForeignKeyViolation(gorm.ErrForeignKeyViolated))
	assert.True(t, isForeignKeyViolation(errors.New(`ERROR: insert or update violates foreign key constraint (SQLSTATE 23503)`)))
	assert.False(t, isDuplicateKey(nil))
	assert.False(t, isForeignKeyViolation(errors.New("connection refused")))
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	ctx := context.Background()
	sql := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String(), "record not found should not be logged")

	l.Trace(ctx, time.Now(), sql, errors.New("boom"))
	assert.Contains(t, buf.String(), "query failed")
	assert.Contains(t, buf.String(), "component=gorm")
	buf.Reset()

	l.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	assert.Contains(t, buf.String(), "slow query")
	buf.Reset()

	silent := l.LogMode(logger.Silent)
	silent.Trace(ctx, time.Now(), sql, errors.New("boom"))
	silent.Error(ctx, "hidden %d", 1)
	assert.Empty(t, buf.String())

	verbose := l.LogMode(logger.Info)
	verbose.Trace(ctx, time.Now(), sql, nil)
	verbose.Info(ctx, "hello %s", "gorm")
	out := buf.String()
	assert.Contains(t, out, "SELECT 1")
	assert.True(t, strings.Contains(out, "hello gorm"))
}
