// Package storetest provides a conformance suite that every store backend runs
// from its own tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coremodel/coremodel/internal/model"
	"github.com/coremodel/coremodel/internal/store"
)

// Factory returns an empty store. It is called once per subtest and is
// responsible for registering its own cleanup.
type Factory func(t *testing.T) store.Store

// Run executes the full suite against the backend produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateUserAssignsIDAndTimestamps", testCreateUserAssignsIDAndTimestamps},
		{"CreateUserDefaultRole", testCreateUserDefaultRole},
		{"CreateUserDuplicateEmail", testCreateUserDuplicateEmail},
		{"GetUser", testGetUser},
		{"GetUserNotFound", testGetUserNotFound},
		{"GetUserByEmail", testGetUserByEmail},
		{"UpdateUserRefreshesUpdatedAt", testUpdateUserRefreshesUpdatedAt},
		{"UpdateUserDuplicateEmail", testUpdateUserDuplicateEmail},
		{"UpdateUserNotFound", testUpdateUserNotFound},
		{"ListUsersPagination", testListUsersPagination},
		{"ListUsersInvalidCursor", testListUsersInvalidCursor},
		{"DeleteUser", testDeleteUser},
		{"DeleteUserRestrict", testDeleteUserRestrict},
		{"DeleteUserCascade", testDeleteUserCascade},
		{"CreateEntity", testCreateEntity},
		{"CreateEntityUnknownOwner", testCreateEntityUnknownOwner},
		{"UpdateEntityRefreshesUpdatedAt", testUpdateEntityRefreshesUpdatedAt},
		{"UpdateEntityUnknownOwner", testUpdateEntityUnknownOwner},
		{"UpdateEntityNotFound", testUpdateEntityNotFound},
		{"DeleteEntity", testDeleteEntity},
		{"ListEntitiesByOwner", testListEntitiesByOwner},
		{"ListEntitiesByOwnerEmpty", testListEntitiesByOwnerEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func newUser(email string) *model.User {
	return &model.User{Email: email, Name: "User " + email}
}

func newEntity(ownerID, title string) *model.CoreEntity {
	return &model.CoreEntity{
		Title:   title,
		Content: "content of " + title,
		OwnerID: ownerID,
	}
}

func mustCreateUser(t *testing.T, s store.Store, email string) *model.User {
	t.Helper()
	u := newUser(email)
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func mustCreateEntity(t *testing.T, s store.Store, ownerID, title string) *model.CoreEntity {
	t.Helper()
	e := newEntity(ownerID, title)
	require.NoError(t, s.CreateEntity(context.Background(), e))
	return e
}

func testCreateUserAssignsIDAndTimestamps(t *testing.T, s store.Store) {
	a := mustCreateUser(t, s, "a@example.com")
	b := mustCreateUser(t, s, "b@example.com")

	assert.True(t, store.ValidID(a.ID), "id %q is not a UUID", a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.CreatedAt.IsZero())
	assert.True(t, a.CreatedAt.Equal(a.UpdatedAt), "createdAt %v != updatedAt %v", a.CreatedAt, a.UpdatedAt)

	stored, err := s.GetUser(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, stored.CreatedAt.Equal(stored.UpdatedAt))
	assert.True(t, stored.CreatedAt.Equal(a.CreatedAt), "stored createdAt %v, returned %v", stored.CreatedAt, a.CreatedAt)
}

func testCreateUserDefaultRole(t *testing.T, s store.Store) {
	u := mustCreateUser(t, s, "role@example.com")
	assert.Equal(t, model.RoleStandardUser, u.Role)

	stored, err := s.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleStandardUser, stored.Role)

	admin := newUser("admin@example.com")
	admin.Role = model.RoleAdmin
	require.NoError(t, s.CreateUser(context.Background(), admin))
	stored, err = s.GetUser(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, stored.Role)
}

func testCreateUserDuplicateEmail(t *testing.T, s store.Store) {
	mustCreateUser(t, s, "dup@example.com")

	err := s.CreateUser(context.Background(), newUser("dup@example.com"))
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)
}

func testGetUser(t *testing.T, s store.Store) {
	u := mustCreateUser(t, s, "get@example.com")

	got, err := s.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, u.Name, got.Name)
	assert.Equal(t, u.Role, got.Role)
}

func testGetUserNotFound(t *testing.T, s store.Store) {
	_, err := s.GetUser(context.Background(), store.NewID())
	assert.ErrorIs(t, err, store.ErrUserNotFound)

	_, err = s.GetUser(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func testGetUserByEmail(t *testing.T, s store.Store) {
	u := mustCreateUser(t, s, "lookup@example.com")

	got, err := s.GetUserByEmail(context.Background(), "lookup@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.GetUserByEmail(context.Background(), "missing@example.com")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func testUpdateUserRefreshesUpdatedAt(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustCreateUser(t, s, "update@example.com")
	created := u.CreatedAt
	prevUpdated := u.UpdatedAt

	u.Name = "Renamed"
	u.Role = model.RoleAdmin
	require.NoError(t, s.UpdateUser(ctx, u))

	assert.True(t, u.CreatedAt.Equal(created), "createdAt changed from %v to %v", created, u.CreatedAt)
	assert.True(t, u.UpdatedAt.After(prevUpdated), "updatedAt %v not after %v", u.UpdatedAt, prevUpdated)

	stored, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, model.RoleAdmin, stored.Role)
	assert.True(t, stored.CreatedAt.Equal(created))
	assert.True(t, stored.UpdatedAt.Equal(u.UpdatedAt))
	assert.False(t, stored.UpdatedAt.Before(stored.CreatedAt))

	// A second update in quick succession still advances.
	second := stored.UpdatedAt
	stored.Email = "update2@example.com"
	require.NoError(t, s.UpdateUser(ctx, stored))
	assert.True(t, stored.UpdatedAt.After(second))
}

func testUpdateUserDuplicateEmail(t *testing.T, s store.Store) {
	mustCreateUser(t, s, "taken@example.com")
	u := mustCreateUser(t, s, "free@example.com")

	u.Email = "taken@example.com"
	err := s.UpdateUser(context.Background(), u)
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)

	stored, err := s.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "free@example.com", stored.Email)
}

func testUpdateUserNotFound(t *testing.T, s store.Store) {
	u := newUser("ghost@example.com")
	u.ID = store.NewID()
	u.Role = model.RoleStandardUser
	assert.ErrorIs(t, s.UpdateUser(context.Background(), u), store.ErrUserNotFound)
}

func testListUsersPagination(t *testing.T, s store.Store) {
	ctx := context.Background()
	want := make(map[string]bool)
	for i := 0; i < 5; i++ {
		u := mustCreateUser(t, s, fmt.Sprintf("page%d@example.com", i))
		want[u.ID] = true
	}

	var (
		seen   []*model.User
		cursor string
		pages  int
	)
	for {
		page, next, err := s.ListUsers(ctx, cursor, 2)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(page), 2)
		seen = append(seen, page...)
		pages++
		if next == "" {
			break
		}
		require.Less(t, pages, 10, "pagination did not terminate")
		cursor = next
	}

	assert.Equal(t, 3, pages)
	require.Len(t, seen, 5)
	for _, u := range seen {
		assert.True(t, want[u.ID], "unexpected user %s", u.ID)
		delete(want, u.ID)
	}
	assert.Empty(t, want)

	ordered := sort.SliceIsSorted(seen, func(i, j int) bool {
		if seen[i].CreatedAt.Equal(seen[j].CreatedAt) {
			return seen[i].ID > seen[j].ID
		}
		return seen[i].CreatedAt.After(seen[j].CreatedAt)
	})
	assert.True(t, ordered, "users not ordered newest first")
}

func testListUsersInvalidCursor(t *testing.T, s store.Store) {
	_, _, err := s.ListUsers(context.Background(), "%%%", 10)
	assert.ErrorIs(t, err, store.ErrInvalidCursor)
}

func testDeleteUser(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustCreateUser(t, s, "delete@example.com")

	deleted, err := s.DeleteUser(ctx, u.ID, store.DeleteRestrict)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	_, err = s.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, store.ErrUserNotFound)
	_, err = s.DeleteUser(ctx, u.ID, store.DeleteRestrict)
	assert.ErrorIs(t, err, store.ErrUserNotFound)

	// Email is free again once the holder is gone.
	mustCreateUser(t, s, "delete@example.com")
}

func testDeleteUserRestrict(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustCreateUser(t, s, "restrict@example.com")
	e := mustCreateEntity(t, s, u.ID, "kept")

	_, err := s.DeleteUser(ctx, u.ID, store.DeleteRestrict)
	assert.ErrorIs(t, err, store.ErrUserHasEntities)

	_, err = s.GetUser(ctx, u.ID)
	assert.NoError(t, err)
	_, err = s.GetEntity(ctx, e.ID)
	assert.NoError(t, err)
}

func testDeleteUserCascade(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustCreateUser(t, s, "cascade@example.com")
	other := mustCreateUser(t, s, "bystander@example.com")
	e1 := mustCreateEntity(t, s, u.ID, "one")
	e2 := mustCreateEntity(t, s, u.ID, "two")
	kept := mustCreateEntity(t, s, other.ID, "kept")

	deleted, err := s.DeleteUser(ctx, u.ID, store.DeleteCascade)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{e1.ID, e2.ID}, deleted)

	for _, id := range []string{e1.ID, e2.ID} {
		_, err := s.GetEntity(ctx, id)
		assert.ErrorIs(t, err, store.ErrEntityNotFound)
	}
	_, err = s.GetEntity(ctx, kept.ID)
	assert.NoError(t, err)
	_, err = s.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, store.ErrUserNotFound)

	// A user without entities cascades nothing.
	lone := mustCreateUser(t, s, "lone@example.com")
	deleted, err = s.DeleteUser(ctx, lone.ID, store.DeleteCascade)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func testCreateEntity(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustCreateUser(t, s, "owner@example.com")
	e := mustCreateEntity(t, s, owner.ID, "first")

	assert.True(t, store.ValidID(e.ID))
	assert.True(t, e.CreatedAt.Equal(e.UpdatedAt))

	got, err := s.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Title, got.Title)
	assert.Equal(t, e.Content, got.Content)
	assert.Equal(t, owner.ID, got.OwnerID)
	assert.True(t, got.OwnedBy(owner))
	assert.True(t, got.CreatedAt.Equal(e.CreatedAt))

	_, err = s.GetEntity(ctx, store.NewID())
	assert.ErrorIs(t, err, store.ErrEntityNotFound)
}

func testCreateEntityUnknownOwner(t *testing.T, s store.Store) {
	err := s.CreateEntity(context.Background(), newEntity(store.NewID(), "orphan"))
	assert.ErrorIs(t, err, store.ErrOwnerNotFound)
}

func testUpdateEntityRefreshesUpdatedAt(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustCreateUser(t, s, "eowner@example.com")
	next := mustCreateUser(t, s, "enext@example.com")
	e := mustCreateEntity(t, s, owner.ID, "before")
	created := e.CreatedAt
	prevUpdated := e.UpdatedAt

	e.Title = "after"
	e.Content = "rewritten"
	e.OwnerID = next.ID
	require.NoError(t, s.UpdateEntity(ctx, e))

	assert.True(t, e.CreatedAt.Equal(created))
	assert.True(t, e.UpdatedAt.After(prevUpdated))

	got, err := s.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
	assert.Equal(t, "rewritten", got.Content)
	assert.Equal(t, next.ID, got.OwnerID)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.Equal(e.UpdatedAt))
}

func testUpdateEntityUnknownOwner(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustCreateUser(t, s, "keep@example.com")
	e := mustCreateEntity(t, s, owner.ID, "stay")

	e.OwnerID = store.NewID()
	assert.ErrorIs(t, s.UpdateEntity(ctx, e), store.ErrOwnerNotFound)

	got, err := s.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, got.OwnerID)
}

func testUpdateEntityNotFound(t *testing.T, s store.Store) {
	owner := mustCreateUser(t, s, "nf@example.com")
	e := newEntity(owner.ID, "missing")
	e.ID = store.NewID()
	assert.ErrorIs(t, s.UpdateEntity(context.Background(), e), store.ErrEntityNotFound)
}

func testDeleteEntity(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustCreateUser(t, s, "del-entity@example.com")
	e := mustCreateEntity(t, s, owner.ID, "gone")

	require.NoError(t, s.DeleteEntity(ctx, e.ID))
	_, err := s.GetEntity(ctx, e.ID)
	assert.ErrorIs(t, err, store.ErrEntityNotFound)
	assert.ErrorIs(t, s.DeleteEntity(ctx, e.ID), store.ErrEntityNotFound)

	// The owner is deletable under restrict once its last entity is gone.
	_, err = s.DeleteUser(ctx, owner.ID, store.DeleteRestrict)
	assert.NoError(t, err)
}

func testListEntitiesByOwner(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mustCreateUser(t, s, "alice@example.com")
	bob := mustCreateUser(t, s, "bob@example.com")

	var want []string
	for i := 0; i < 3; i++ {
		e := mustCreateEntity(t, s, alice.ID, fmt.Sprintf("alice-%d", i))
		want = append(want, e.ID)
		time.Sleep(time.Millisecond)
	}
	mustCreateEntity(t, s, bob.ID, "bob-0")

	got, err := s.ListEntitiesByOwner(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	ids := make([]string, len(got))
	for i, e := range got {
		ids[i] = e.ID
		assert.Equal(t, alice.ID, e.OwnerID)
	}
	assert.Equal(t, want, ids, "entities not returned oldest first")
}

func testListEntitiesByOwnerEmpty(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustCreateUser(t, s, "empty@example.com")

	got, err := s.ListEntitiesByOwner(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.ListEntitiesByOwner(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Empty(t, got)
}
