// Package model defines domain entities for the application.
package model

import (
	"strconv"
	"time"
)

// Role values. Any string is accepted as a role; these are the intended ones.
const (
	RoleAdmin        = "Admin"
	RoleStandardUser = "Standard User"

	// DefaultRole is assigned when a user is created without a role.
	DefaultRole = RoleStandardUser
)

// User is the leaf entity of the data model. Users own CoreEntity records.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user carries the Admin role.
// The role is informational only; nothing enforces it.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ApplyDefaults fills unset optional fields.
func (u *User) ApplyDefaults() {
	if u.Role == "" {
		u.Role = DefaultRole
	}
}

// CachedUser represents user data stored in a Redis hash.
type CachedUser struct {
	Email     string `redis:"email"`
	Name      string `redis:"name"`
	Role      string `redis:"role"`
	CreatedAt string `redis:"created_at"` // Unix microseconds
	UpdatedAt string `redis:"updated_at"` // Unix microseconds
}

// ToCachedUser converts a User to its cached form.
func (u *User) ToCachedUser() *CachedUser {
	return &CachedUser{
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: formatMicros(u.CreatedAt),
		UpdatedAt: formatMicros(u.UpdatedAt),
	}
}

// ToUser converts CachedUser back to the domain model.
func (c *CachedUser) ToUser(id string) *User {
	return &User{
		ID:        id,
		Email:     c.Email,
		Name:      c.Name,
		Role:      c.Role,
		CreatedAt: parseMicros(c.CreatedAt),
		UpdatedAt: parseMicros(c.UpdatedAt),
	}
}

func formatMicros(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func parseMicros(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	us, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}
