package handler

import (
	"net/http"

	"github.com/coremodel/coremodel/internal/model"
)

// SchemaField is one row of the schema contract.
type SchemaField struct {
	Field       string   `json:"field"`
	Column      string   `json:"column"`
	Type        string   `json:"type"`
	Constraints []string `json:"constraints"`
	Default     string   `json:"default,omitempty"`
	References  string   `json:"references,omitempty"`
}

// SchemaEntity is one entity of the schema contract.
type SchemaEntity struct {
	Name   string        `json:"name"`
	Table  string        `json:"table"`
	Fields []SchemaField `json:"fields"`
}

// Schema renders model.Schema as JSON.
// GET /schema
func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	out := make([]SchemaEntity, 0, len(model.Schema))
	for _, e := range model.Schema {
		entity := SchemaEntity{Name: e.Name, Table: e.Table, Fields: make([]SchemaField, 0, len(e.Fields))}
		for _, f := range e.Fields {
			constraints := make([]string, 0, len(f.Constraints))
			for _, c := range f.Constraints {
				constraints = append(constraints, string(c))
			}
			entity.Fields = append(entity.Fields, SchemaField{
				Field:       f.Field,
				Column:      f.Column,
				Type:        string(f.Type),
				Constraints: constraints,
				Default:     f.Default,
				References:  f.References,
			})
		}
		out = append(out, entity)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": out})
}
