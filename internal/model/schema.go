package model

import "strings"

// FieldType is the logical storage type of a schema field.
type FieldType string

// Field types.
const (
	TypeUUID      FieldType = "UUID"
	TypeString    FieldType = "string"
	TypeText      FieldType = "text"
	TypeTimestamp FieldType = "timestamp"
)

// Constraint is a rule the persistence layer enforces on a field.
type Constraint string

// Constraints.
const (
	PrimaryKey  Constraint = "primary key"
	Generated   Constraint = "generated"
	Unique      Constraint = "unique"
	Required    Constraint = "required"
	ForeignKey  Constraint = "foreign key"
	AutoManaged Constraint = "auto-managed"
)

// FieldSpec maps one entity field to its column and constraints.
type FieldSpec struct {
	Field       string
	Column      string
	Type        FieldType
	Constraints []Constraint
	Default     string // literal default value, empty if none
	References  string // "Entity.field" for foreign keys
}

// Has reports whether the field carries the constraint.
func (f FieldSpec) Has(c Constraint) bool {
	for _, have := range f.Constraints {
		if have == c {
			return true
		}
	}
	return false
}

// Describe renders the constraints as a single human readable cell.
func (f FieldSpec) Describe() string {
	parts := make([]string, 0, len(f.Constraints)+1)
	for _, c := range f.Constraints {
		if c == ForeignKey && f.References != "" {
			parts = append(parts, string(c)+" → "+f.References)
			continue
		}
		parts = append(parts, string(c))
	}
	if f.Default != "" {
		parts = append(parts, `default "`+f.Default+`"`)
	}
	return strings.Join(parts, ", ")
}

// EntitySpec describes one persisted entity type.
type EntitySpec struct {
	Name   string
	Table  string
	Fields []FieldSpec
}

// Columns returns the column names in declaration order.
func (e EntitySpec) Columns() []string {
	cols := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		cols[i] = f.Column
	}
	return cols
}

// Field looks up a field by its model name.
func (e EntitySpec) Field(name string) (FieldSpec, bool) {
	for _, f := range e.Fields {
		if f.Field == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Schema is the field-to-constraint contract every store backend implements.
var Schema = []EntitySpec{
	{
		Name:  "User",
		Table: "users",
		Fields: []FieldSpec{
			{Field: "id", Column: "id", Type: TypeUUID, Constraints: []Constraint{PrimaryKey, Generated}},
			{Field: "email", Column: "email", Type: TypeString, Constraints: []Constraint{Unique, Required}},
			{Field: "name", Column: "name", Type: TypeString, Constraints: []Constraint{Required}},
			{Field: "role", Column: "role", Type: TypeString, Default: DefaultRole},
			{Field: "createdAt", Column: "created_at", Type: TypeTimestamp, Constraints: []Constraint{AutoManaged}},
			{Field: "updatedAt", Column: "updated_at", Type: TypeTimestamp, Constraints: []Constraint{AutoManaged}},
		},
	},
	{
		Name:  "CoreEntity",
		Table: "core_entities",
		Fields: []FieldSpec{
			{Field: "id", Column: "id", Type: TypeUUID, Constraints: []Constraint{PrimaryKey, Generated}},
			{Field: "title", Column: "title", Type: TypeString, Constraints: []Constraint{Required}},
			{Field: "content", Column: "content", Type: TypeText, Constraints: []Constraint{Required}},
			{Field: "ownerId", Column: "owner_id", Type: TypeUUID, Constraints: []Constraint{ForeignKey}, References: "User.id"},
			{Field: "createdAt", Column: "created_at", Type: TypeTimestamp, Constraints: []Constraint{AutoManaged}},
			{Field: "updatedAt", Column: "updated_at", Type: TypeTimestamp, Constraints: []Constraint{AutoManaged}},
		},
	},
}

// LookupEntity finds an entity spec by name.
func LookupEntity(name string) (EntitySpec, bool) {
	for _, e := range Schema {
		if e.Name == name {
			return e, true
		}
	}
	return EntitySpec{}, false
}
