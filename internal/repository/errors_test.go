package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coremodel/coremodel/internal/model"
	"github.com/coremodel/coremodel/internal/store"
)

func TestErrorClassification(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
	fk := &pgconn.PgError{Code: "23503", ConstraintName: "core_entities_owner_id_fkey"}
	badUUID := &pgconn.PgError{Code: "22P02"}

	tests := []struct {
		name    string
		err     error
		unique  bool
		fk      bool
		invalid bool
	}{
		{"nil", nil, false, false, false},
		{"plain", errors.New("unique something 23505"), false, false, false},
		{"unique", unique, true, false, false},
		{"wrapped unique", fmt.Errorf("exec: %w", unique), true, false, false},
		{"foreign key", fk, false, true, false},
		{"invalid uuid", badUUID, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.unique {
				t.Errorf("isUniqueViolation = %v, want %v", got, tt.unique)
			}
			if got := isForeignKeyViolation(tt.err); got != tt.fk {
				t.Errorf("isForeignKeyViolation = %v, want %v", got, tt.fk)
			}
			if got := isInvalidUUID(tt.err); got != tt.invalid {
				t.Errorf("isInvalidUUID = %v, want %v", got, tt.invalid)
			}
		})
	}
}

// Malformed identifiers never reach the database.
func TestRepository_InvalidIDsShortCircuit(t *testing.T) {
	ctx := context.Background()
	repo := &Repository{}

	if _, err := repo.GetUser(ctx, "nope"); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("GetUser: expected ErrUserNotFound, got %v", err)
	}
	if _, err := repo.GetEntity(ctx, "nope"); !errors.Is(err, store.ErrEntityNotFound) {
		t.Errorf("GetEntity: expected ErrEntityNotFound, got %v", err)
	}
	if _, err := repo.DeleteUser(ctx, "nope", store.DeleteCascade); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("DeleteUser: expected ErrUserNotFound, got %v", err)
	}
	if err := repo.DeleteEntity(ctx, "nope"); !errors.Is(err, store.ErrEntityNotFound) {
		t.Errorf("DeleteEntity: expected ErrEntityNotFound, got %v", err)
	}

	entities, err := repo.ListEntitiesByOwner(ctx, "nope")
	if err != nil || len(entities) != 0 {
		t.Errorf("ListEntitiesByOwner: expected empty result, got %v, %v", entities, err)
	}

	err = repo.CreateEntity(ctx, &model.CoreEntity{Title: "t", Content: "c", OwnerID: "nope"})
	if !errors.Is(err, store.ErrOwnerNotFound) {
		t.Errorf("CreateEntity: expected ErrOwnerNotFound, got %v", err)
	}

	err = repo.UpdateEntity(ctx, &model.CoreEntity{ID: store.NewID(), Title: "t", Content: "c", OwnerID: "nope"})
	if !errors.Is(err, store.ErrOwnerNotFound) {
		t.Errorf("UpdateEntity: expected ErrOwnerNotFound, got %v", err)
	}
}
