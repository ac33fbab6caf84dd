package model

import "time"

// CoreEntity is a record owned by exactly one User.
// The owning relationship is carried by OwnerID alone; resolve the owner
// on demand through the user store.
type CoreEntity struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnedBy reports whether the entity belongs to the given user.
func (e *CoreEntity) OwnedBy(u *User) bool {
	return u != nil && e.OwnerID == u.ID
}

// CachedEntity represents entity data stored in a Redis hash.
type CachedEntity struct {
	Title     string `redis:"title"`
	Content   string `redis:"content"`
	OwnerID   string `redis:"owner_id"`
	CreatedAt string `redis:"created_at"` // Unix microseconds
	UpdatedAt string `redis:"updated_at"` // Unix microseconds
}

// ToCachedEntity converts a CoreEntity to its cached form.
func (e *CoreEntity) ToCachedEntity() *CachedEntity {
	return &CachedEntity{
		Title:     e.Title,
		Content:   e.Content,
		OwnerID:   e.OwnerID,
		CreatedAt: formatMicros(e.CreatedAt),
		UpdatedAt: formatMicros(e.UpdatedAt),
	}
}

// ToEntity converts CachedEntity back to the domain model.
func (c *CachedEntity) ToEntity(id string) *CoreEntity {
	return &CoreEntity{
		ID:        id,
		Title:     c.Title,
		Content:   c.Content,
		OwnerID:   c.OwnerID,
		CreatedAt: parseMicros(c.CreatedAt),
		UpdatedAt: parseMicros(c.UpdatedAt),
	}
}
