package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/efebarandurmaz/kindred/internal/matching"
	"github.com/efebarandurmaz/kindred/internal/profile"
	"github.com/efebarandurmaz/kindred/internal/server"
)

type createProfileRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Age         int    `json:"age,omitempty"`
	Location    string `json:"location,omitempty"`
}

type createProfileResponse struct {
	ProfileID string `json:"profile_id"`
	profile.Profile
}

type searchRequest struct {
	QueryDescription string `json:"query_description"`
	// Pointer so an explicit 0 is distinguishable from an omitted limit.
	Limit     *int   `json:"limit,omitempty"`
	ExcludeID string `json:"exclude_id,omitempty"`
}

type searchResponse struct {
	Query   string          `json:"query"`
	Results []profile.Match `json:"results"`
	Count   int             `json:"count"`
}

type listResponse struct {
	Profiles []profile.Profile `json:"profiles"`
	Count    int               `json:"count"`
}

type deleteResponse struct {
	Message   string `json:"message"`
	ProfileID string `json:"profile_id"`
}

// handleRoot handles GET /, answering service metadata and the endpoint list.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"service": "Kindred person matching service",
		"version": Version,
		"status":  "running",
		"endpoints": map[string]string{
			"add_profile":    "POST /profiles",
			"get_profile":    "GET /profiles/{id}",
			"search_similar": "POST /profiles/search",
			"list_profiles":  "GET /profiles",
			"delete_profile": "DELETE /profiles/{id}",
			"stats":          "GET /stats",
			"health":         "GET /health",
		},
	})
}

// handleCreateProfile handles POST /profiles.
func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid JSON body: "+err.Error())
		return
	}

	p, err := s.service.CreateProfile(r.Context(), matching.CreateRequest{
		Name:        req.Name,
		Description: req.Description,
		Age:         req.Age,
		Location:    req.Location,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, createProfileResponse{ProfileID: p.ID, Profile: p})
}

// handleGetProfile handles GET /profiles/{id}.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.GetProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// handleListProfiles handles GET /profiles?limit=N.
func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "validation_error", "limit must be a positive integer")
			return
		}
		limit = n
	}

	profiles, err := s.service.ListProfiles(r.Context(), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Profiles: profiles, Count: len(profiles)})
}

// handleSearchProfiles handles POST /profiles/search.
func (s *Server) handleSearchProfiles(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid JSON body: "+err.Error())
		return
	}

	limit := 0
	if req.Limit != nil {
		if *req.Limit <= 0 {
			respondError(w, http.StatusBadRequest, "validation_error", "limit must be a positive integer")
			return
		}
		limit = *req.Limit
	}

	matches, err := s.service.SearchProfiles(r.Context(), req.QueryDescription, limit, req.ExcludeID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if matches == nil {
		matches = []profile.Match{}
	}
	respondJSON(w, http.StatusOK, searchResponse{
		Query:   req.QueryDescription,
		Results: matches,
		Count:   len(matches),
	})
}

// handleDeleteProfile handles DELETE /profiles/{id}.
func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteProfile(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, deleteResponse{
		Message:   "profile deleted",
		ProfileID: id,
	})
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.GetStats(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// handleHealth handles GET /health. Degraded and unhealthy states still
// answer 200 with the report body, except a fully unhealthy service
// which answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Run(r.Context())

	status := http.StatusOK
	if report.Status == server.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]any{
		"status":          report.Status,
		"version":         report.Version,
		"timestamp":       report.Timestamp,
		"embedding_model": s.service.EmbeddingModel(),
		"checks":          report.Checks,
	})
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a structured error response.
func respondError(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, map[string]any{
		"error": map[string]string{
			"kind":    kind,
			"message": message,
		},
	})
}

// respondServiceError maps a matching-service error to an HTTP response.
func respondServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr *matching.ValidationError
		notFoundErr   *matching.NotFoundError
		storageErr    *matching.StorageError
		embeddingErr  *matching.EmbeddingError
	)
	switch {
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, "validation_error", validationErr.Error())
	case errors.As(err, &notFoundErr):
		respondError(w, http.StatusNotFound, "not_found", notFoundErr.Error())
	case errors.As(err, &storageErr):
		slog.Error("storage failure", "error", err)
		respondError(w, http.StatusInternalServerError, "storage_error", "profile store operation failed")
	case errors.As(err, &embeddingErr):
		slog.Error("embedding failure", "error", err)
		respondError(w, http.StatusInternalServerError, "embedding_error", "embedding computation failed")
	default:
		slog.Error("unexpected failure", "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
