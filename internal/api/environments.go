package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/petcare-core/internal/environment"
)

// environmentRequest is the body of create and update requests.
type environmentRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Server) handleListEnvironments(w http.ResponseWriter, r *http.Request) {
	envs, err := s.environments.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if envs == nil {
		envs = []environment.Environment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"environments": envs,
		"count":        len(envs),
	})
}

func (s *Server) handleCreateEnvironment(w http.ResponseWriter, r *http.Request) {
	var req environmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	env := &environment.Environment{Name: req.Name, Color: req.Color}
	if err := s.environments.Create(r.Context(), env); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

func (s *Server) handleGetEnvironment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid environment id")
		return
	}

	env, err := s.environments.GetByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleUpdateEnvironment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid environment id")
		return
	}

	var req environmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	env := &environment.Environment{ID: id, Name: req.Name, Color: req.Color}
	if err := s.environments.Update(r.Context(), env); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	// Re-read so created_at is returned.
	updated, err := s.environments.GetByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteEnvironment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid environment id")
		return
	}

	if err := s.environments.Delete(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
