// Package web serves the job status endpoints.
package web

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stackforge/layerbot/internal/jobstore"
)

// Handler serves job records as JSON.
type Handler struct {
	store *jobstore.Store
}

// NewHandler creates a web handler over the job store.
func NewHandler(store *jobstore.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers the status routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/jobs", h.handleJobList).Methods("GET")
	r.HandleFunc("/jobs/{id}", h.handleJobDetail).Methods("GET")
}

func (h *Handler) handleJobList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.List())
}

func (h *Handler) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	job, ok := h.store.Get(vars["id"])
	if !ok {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
