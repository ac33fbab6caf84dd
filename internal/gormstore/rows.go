package gormstore

import (
	"database/sql/driver"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/coremodel/coremodel/internal/model"
)

// uuidColumn is an identifier column. It is a native uuid on Postgres,
// matching the SQL migrations, and varchar(36) elsewhere.
type uuidColumn string

// GormDBDataType picks the column type per dialect.
func (uuidColumn) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == DialectPostgres {
		return "uuid"
	}
	return "varchar(36)"
}

// Value implements driver.Valuer.
func (u uuidColumn) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner.
func (u *uuidColumn) Scan(src any) error {
	switch v := src.(type) {
	case string:
		*u = uuidColumn(v)
	case []byte:
		*u = uuidColumn(v)
	case nil:
		*u = ""
	default:
		return fmt.Errorf("unsupported uuid column source %T", src)
	}
	return nil
}

// userRow is the ORM mapping of model.User.
type userRow struct {
	ID        uuidColumn `gorm:"column:id;primaryKey;size:36"`
	Email     string     `gorm:"column:email;uniqueIndex:idx_users_email;not null"`
	Name      string     `gorm:"column:name;not null"`
	Role      string     `gorm:"column:role;not null;default:Standard User"`
	CreatedAt time.Time  `gorm:"column:created_at;not null;index:idx_users_created,priority:1"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`
}

func (userRow) TableName() string { return "users" }

func userRowFrom(u *model.User) userRow {
	return userRow{
		ID:        uuidColumn(u.ID),
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (r *userRow) toUser() *model.User {
	return &model.User{
		ID:        string(r.ID),
		Email:     r.Email,
		Name:      r.Name,
		Role:      r.Role,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// entityRow is the ORM mapping of model.CoreEntity. Owner is the
// relationship reference; OwnerID is the stored foreign key.
type entityRow struct {
	ID        uuidColumn `gorm:"column:id;primaryKey;size:36"`
	Title     string     `gorm:"column:title;not null"`
	Content   string     `gorm:"column:content;type:text;not null"`
	OwnerID   uuidColumn `gorm:"column:owner_id;size:36;not null;index:idx_core_entities_owner_created,priority:1"`
	Owner     userRow    `gorm:"foreignKey:OwnerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	CreatedAt time.Time  `gorm:"column:created_at;not null;index:idx_core_entities_owner_created,priority:2"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`
}

func (entityRow) TableName() string { return "core_entities" }

func entityRowFrom(e *model.CoreEntity) entityRow {
	return entityRow{
		ID:        uuidColumn(e.ID),
		Title:     e.Title,
		Content:   e.Content,
		OwnerID:   uuidColumn(e.OwnerID),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func (r *entityRow) toEntity() *model.CoreEntity {
	return &model.CoreEntity{
		ID:        string(r.ID),
		Title:     r.Title,
		Content:   r.Content,
		OwnerID:   string(r.OwnerID),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}
