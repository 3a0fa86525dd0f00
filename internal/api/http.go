package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/heysubinoy/flagstore/pkg/flags"
)

// Server wraps a flags.Storage and exposes HTTP endpoints for flag
// operations.
type Server struct {
	Storage flags.Storage
	Logger  hclog.Logger
}

// NewServer creates a new HTTP server with the given storage.
func NewServer(storage flags.Storage, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Server{
		Storage: storage,
		Logger:  logger,
	}
}

// RegisterRoutes registers all HTTP handlers on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /flags", s.handleList)
	mux.HandleFunc("POST /flags", s.handleCreate)
	mux.HandleFunc("GET /flags/{name}/{environment}", s.handleGet)
	mux.HandleFunc("PATCH /flags/{name}/{environment}", s.handleUpdate)
	mux.HandleFunc("DELETE /flags/{name}", s.handleDelete)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps storage errors to status codes. Anything unrecognised is
// logged and reported as a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case flags.IsDuplicate(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case flags.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, flags.ErrUnknownEnvironment):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.Logger.Error("storage request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

// handleList handles GET /flags.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := s.Storage.ListFlags(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleCreate handles POST /flags with a full flag as JSON body.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var flag flags.Flag
	if err := json.NewDecoder(r.Body).Decode(&flag); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if flag.Name == "" {
		http.Error(w, "Missing name field", http.StatusBadRequest)
		return
	}

	if err := s.Storage.CreateFlag(r.Context(), flag); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, flag)
}

// handleGet handles GET /flags/{name}/{environment}.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	env, err := flags.ParseEnvironment(r.PathValue("environment"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flag, found, err := s.Storage.GetFlag(r.Context(), r.PathValue("name"), env)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !found {
		http.Error(w, "Flag not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, flag)
}

// handleUpdate handles PATCH /flags/{name}/{environment} with a patch body.
// Expects: {"enabled": true, "percentage": null, "updatedAt": 200}
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	env, err := flags.ParseEnvironment(r.PathValue("environment"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var patch flags.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid patch: "+err.Error(), http.StatusBadRequest)
		return
	}

	flag, err := s.Storage.UpdateFlag(r.Context(), r.PathValue("name"), env, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flag)
}

// handleDelete handles DELETE /flags/{name}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.Storage.DeleteFlag(r.Context(), r.PathValue("name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
