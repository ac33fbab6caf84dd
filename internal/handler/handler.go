// Package handler provides the operational HTTP handlers.
package handler

import (
	"encoding/json"
	"net/http"
)

// Handler serves service information and fallback responses.
type Handler struct {
	version string
	backend string
}

// New creates a new Handler instance.
func New(version, backend string) *Handler {
	return &Handler{version: version, backend: backend}
}

// InfoResponse describes the running service.
type InfoResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Store   string `json:"store"`
}

// Info reports the service name, version and store backend.
// GET /
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		Service: "coremodel",
		Version: h.version,
		Store:   h.backend,
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"error": "resource not found",
	}
	writeJSON(w, http.StatusNotFound, response)
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"error": "method not allowed",
	}
	writeJSON(w, http.StatusMethodNotAllowed, response)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
