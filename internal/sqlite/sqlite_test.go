package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coremodel/coremodel/internal/migrate"
	"github.com/coremodel/coremodel/internal/model"
	"github.com/coremodel/coremodel/internal/store"
	"github.com/coremodel/coremodel/internal/store/storetest"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	m, err := migrate.New(s.DB(), migrate.DialectSQLite)
	require.NoError(t, err)
	_, err = m.Up(ctx)
	require.NoError(t, err)

	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t, "")
	})
}

func TestStoreConformance_File(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t, filepath.Join(t.TempDir(), "coremodel.db"))
	})
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", DSN(""))
	assert.Equal(t, DSN(""), DSN(":memory:"))
	assert.Contains(t, DSN("/tmp/x.db"), "file:/tmp/x.db?")
	assert.Contains(t, DSN("file:/tmp/x.db"), "file:/tmp/x.db?")
	assert.Contains(t, DSN("/tmp/x.db"), "foreign_keys(1)")
}

func TestForeignKeysEnforced(t *testing.T) {
	s := newTestStore(t, "")

	var enabled int
	require.NoError(t, s.DB().QueryRow(`PRAGMA foreign_keys`).Scan(&enabled))
	assert.Equal(t, 1, enabled)
}

func TestTimestampsStoredAsMicros(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "")

	u := &model.User{Email: "micro@example.com", Name: "Micro"}
	require.NoError(t, s.CreateUser(ctx, u))

	var created int64
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT created_at FROM users WHERE id = ?`, u.ID).Scan(&created))
	assert.Equal(t, u.CreatedAt.UnixMicro(), created)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestCreateUser_MapsUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"))

	err := s.CreateUser(context.Background(), &model.User{Email: "a@example.com", Name: "A"})
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntity_MapsForeignKeyViolation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO core_entities")).
		WillReturnError(errors.New("constraint failed: FOREIGN KEY constraint failed (787)"))

	err := s.CreateEntity(context.Background(), &model.CoreEntity{Title: "t", Content: "c", OwnerID: store.NewID()})
	assert.ErrorIs(t, err, store.ErrOwnerNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntity_WrapsOtherErrors(t *testing.T) {
	s, mock := newMockStore(t)

	boom := errors.New("disk I/O error")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO core_entities")).WillReturnError(boom)

	err := s.CreateEntity(context.Background(), &model.CoreEntity{Title: "t", Content: "c", OwnerID: store.NewID()})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, store.ErrOwnerNotFound)
}

func TestDeleteUser_RestrictMapsForeignKeyViolation(t *testing.T) {
	s, mock := newMockStore(t)
	id := store.NewID()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = ?")).
		WithArgs(id).
		WillReturnError(errors.New("constraint failed: FOREIGN KEY constraint failed (1811)"))
	mock.ExpectRollback()

	deleted, err := s.DeleteUser(context.Background(), id, store.DeleteRestrict)
	assert.ErrorIs(t, err, store.ErrUserHasEntities)
	assert.Empty(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUser_CascadeRunsInTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	id := store.NewID()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM core_entities WHERE owner_id = ? RETURNING id")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("e1").AddRow("e2"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = ?")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := s.DeleteUser(context.Background(), id, store.DeleteCascade)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUser_CascadeRollsBackWhenUserMissing(t *testing.T) {
	s, mock := newMockStore(t)
	id := store.NewID()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM core_entities WHERE owner_id = ? RETURNING id")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = ?")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	deleted, err := s.DeleteUser(context.Background(), id, store.DeleteCascade)
	assert.ErrorIs(t, err, store.ErrUserNotFound)
	assert.Nil(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUser_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}))

	err := s.UpdateUser(context.Background(), &model.User{ID: store.NewID(), Email: "x@example.com", Name: "X"})
	assert.ErrorIs(t, err, store.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
