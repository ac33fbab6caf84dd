package events

import (
	"fmt"
	"time"

	"github.com/coremodel/coremodel/internal/model"
)

// Type names a data-change event.
type Type string

// Event types.
const (
	UserCreated   Type = "user.created"
	UserUpdated   Type = "user.updated"
	UserDeleted   Type = "user.deleted"
	EntityCreated Type = "entity.created"
	EntityUpdated Type = "entity.updated"
	EntityDeleted Type = "entity.deleted"
)

// IsValid checks if the event type is known.
func (t Type) IsValid() bool {
	switch t {
	case UserCreated, UserUpdated, UserDeleted, EntityCreated, EntityUpdated, EntityDeleted:
		return true
	}
	return false
}

func (t Type) isEntity() bool {
	return t == EntityCreated || t == EntityUpdated || t == EntityDeleted
}

// Event is the compact payload written to the stream.
type Event struct {
	Type       Type   `json:"type"`
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id,omitempty"` // entity events only
	OccurredAt int64  `json:"t"`                  // Unix microseconds
}

// Validate validates event fields.
func (e Event) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.Type.isEntity() && e.OwnerID == "" {
		return fmt.Errorf("owner_id is required for %s", e.Type)
	}
	if e.OccurredAt <= 0 {
		return fmt.Errorf("occurred_at must be set")
	}
	return nil
}

// Time returns OccurredAt as a time.
func (e Event) Time() time.Time {
	return time.UnixMicro(e.OccurredAt).UTC()
}

// ForUser builds a user event stamped with the record's updated_at.
func ForUser(t Type, u *model.User) Event {
	at := u.UpdatedAt
	if t == UserDeleted || at.IsZero() {
		at = model.Now()
	}
	return Event{Type: t, ID: u.ID, OccurredAt: at.UnixMicro()}
}

// ForEntity builds an entity event stamped with the record's updated_at.
func ForEntity(t Type, e *model.CoreEntity) Event {
	at := e.UpdatedAt
	if t == EntityDeleted || at.IsZero() {
		at = model.Now()
	}
	return Event{Type: t, ID: e.ID, OwnerID: e.OwnerID, OccurredAt: at.UnixMicro()}
}
