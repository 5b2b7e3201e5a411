// Package matching orchestrates profile creation, retrieval, deletion,
// and similarity search over the embedding provider and profile store.
package matching

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/kindred/internal/embedding"
	"github.com/efebarandurmaz/kindred/internal/observability"
	"github.com/efebarandurmaz/kindred/internal/profile"
	"github.com/efebarandurmaz/kindred/internal/store"
)

// Validation bounds for create requests.
const (
	MaxNameLen        = 100
	MaxDescriptionLen = 2000
	MaxLocationLen    = 100
	MinAge            = 18
	MaxAge            = 100
)

// Limit bounds for list and search.
const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 50
	DefaultListLimit   = 100
	MaxListLimit       = 1000
)

// Service implements the matching operations. Both dependencies are
// initialized once at startup and shared across requests; neither needs
// extra locking here.
type Service struct {
	embedder   embedding.Provider
	store      store.Store
	collection string
	now        func() time.Time
}

// NewService creates a matching service over the given embedder and store.
func NewService(embedder embedding.Provider, st store.Store, collection string) *Service {
	return &Service{
		embedder:   embedder,
		store:      st,
		collection: collection,
		now:        time.Now,
	}
}

// CreateRequest carries the client-supplied fields of a new profile.
type CreateRequest struct {
	Name        string
	Description string
	Age         int
	Location    string
}

// Stats summarizes the store and the active embedding model.
type Stats struct {
	TotalProfiles  int    `json:"total_profiles"`
	Collection     string `json:"collection"`
	EmbeddingModel string `json:"embedding_model"`
	Dimension      int    `json:"dimension"`
}

// EmbeddingModel returns the name of the active embedding model.
func (s *Service) EmbeddingModel() string { return s.embedder.Name() }

// Ping verifies the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.store.Count(ctx)
	return err
}

// CreateProfile validates the request, embeds the description, and
// stores the profile under a fresh id. The stored metadata is echoed
// back. If the insert fails after embedding succeeded, the computed
// vector is discarded; nothing was persisted, so the caller simply
// retries the whole operation.
func (s *Service) CreateProfile(ctx context.Context, req CreateRequest) (profile.Profile, error) {
	ctx, span := observability.StartOperationSpan(ctx, "create_profile")
	defer span.End()

	if err := validateCreate(req); err != nil {
		observability.RecordError(span, err)
		return profile.Profile{}, err
	}

	vectors, err := s.embedder.Embed(ctx, []string{req.Description})
	if err != nil {
		eerr := &EmbeddingError{Err: err}
		observability.RecordError(span, eerr)
		return profile.Profile{}, eerr
	}

	p := profile.Profile{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Age:         req.Age,
		Location:    strings.TrimSpace(req.Location),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Insert(ctx, store.Record{Profile: p, Vector: vectors[0]}); err != nil {
		serr := &StorageError{Op: "insert", Err: err}
		observability.RecordError(span, serr)
		return profile.Profile{}, serr
	}
	return p, nil
}

// GetProfile returns the stored metadata for id. The embedding is never
// part of the result.
func (s *Service) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	ctx, span := observability.StartOperationSpan(ctx, "get_profile")
	defer span.End()

	p, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		nerr := &NotFoundError{ID: id}
		observability.RecordError(span, nerr)
		return profile.Profile{}, nerr
	}
	if err != nil {
		serr := &StorageError{Op: "get", Err: err}
		observability.RecordError(span, serr)
		return profile.Profile{}, serr
	}
	return p, nil
}

// ListProfiles returns up to limit profiles. limit 0 means the default.
func (s *Service) ListProfiles(ctx context.Context, limit int) ([]profile.Profile, error) {
	ctx, span := observability.StartOperationSpan(ctx, "list_profiles")
	defer span.End()

	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit < 0 {
		verr := &ValidationError{Field: "limit", Msg: "must be a positive integer"}
		observability.RecordError(span, verr)
		return nil, verr
	}
	if limit > MaxListLimit {
		verr := &ValidationError{Field: "limit", Msg: "cannot exceed 1000"}
		observability.RecordError(span, verr)
		return nil, verr
	}

	out, err := s.store.List(ctx, limit)
	if err != nil {
		serr := &StorageError{Op: "list", Err: err}
		observability.RecordError(span, serr)
		return nil, serr
	}
	if out == nil {
		out = []profile.Profile{}
	}
	return out, nil
}

// DeleteProfile removes the profile for id.
func (s *Service) DeleteProfile(ctx context.Context, id string) error {
	ctx, span := observability.StartOperationSpan(ctx, "delete_profile")
	defer span.End()

	err := s.store.Delete(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		nerr := &NotFoundError{ID: id}
		observability.RecordError(span, nerr)
		return nerr
	}
	if err != nil {
		serr := &StorageError{Op: "delete", Err: err}
		observability.RecordError(span, serr)
		return serr
	}
	return nil
}

// SearchProfiles embeds the query and returns up to limit stored
// profiles ranked by descending similarity. The store's ascending
// distance order is preserved as-is, including its tie-break for equal
// distances. excludeID, when non-empty, drops that one profile from the
// results (so a person can search for matches other than themselves).
// An empty store yields an empty result, not an error.
func (s *Service) SearchProfiles(ctx context.Context, query string, limit int, excludeID string) ([]profile.Match, error) {
	ctx, span := observability.StartOperationSpan(ctx, "search_profiles")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		verr := &ValidationError{Field: "query_description", Msg: "must not be empty"}
		observability.RecordError(span, verr)
		return nil, verr
	}
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 0 {
		verr := &ValidationError{Field: "limit", Msg: "must be a positive integer"}
		observability.RecordError(span, verr)
		return nil, verr
	}
	if limit > MaxSearchLimit {
		verr := &ValidationError{Field: "limit", Msg: "cannot exceed 50"}
		observability.RecordError(span, verr)
		return nil, verr
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		eerr := &EmbeddingError{Err: err}
		observability.RecordError(span, eerr)
		return nil, eerr
	}

	// Fetch one extra hit in case the excluded id ranks among the results.
	k := limit
	if excludeID != "" {
		k++
	}
	hits, err := s.store.Query(ctx, vectors[0], k)
	if err != nil {
		serr := &StorageError{Op: "query", Err: err}
		observability.RecordError(span, serr)
		return nil, serr
	}

	matches := make([]profile.Match, 0, len(hits))
	for _, hit := range hits {
		if hit.ID == excludeID {
			continue
		}
		p, err := s.store.Get(ctx, hit.ID)
		if errors.Is(err, store.ErrNotFound) {
			// Deleted between query and fetch; skip.
			continue
		}
		if err != nil {
			serr := &StorageError{Op: "get", Err: err}
			observability.RecordError(span, serr)
			return nil, serr
		}
		matches = append(matches, profile.Match{
			Profile:    p,
			Similarity: clamp01(1 - hit.Distance),
		})
		if len(matches) == limit {
			break
		}
	}
	return matches, nil
}

// GetStats reports the total profile count alongside the collection and
// model identity, for the /stats and /health surfaces.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	ctx, span := observability.StartOperationSpan(ctx, "get_stats")
	defer span.End()

	count, err := s.store.Count(ctx)
	if err != nil {
		serr := &StorageError{Op: "count", Err: err}
		observability.RecordError(span, serr)
		return Stats{}, serr
	}
	return Stats{
		TotalProfiles:  count,
		Collection:     s.collection,
		EmbeddingModel: s.embedder.Name(),
		Dimension:      s.embedder.Dimension(),
	}, nil
}

func validateCreate(req CreateRequest) error {
	name := strings.TrimSpace(req.Name)
	desc := strings.TrimSpace(req.Description)
	switch {
	case name == "":
		return &ValidationError{Field: "name", Msg: "must not be empty"}
	case len(name) > MaxNameLen:
		return &ValidationError{Field: "name", Msg: "too long"}
	case desc == "":
		return &ValidationError{Field: "description", Msg: "must not be empty"}
	case len(desc) > MaxDescriptionLen:
		return &ValidationError{Field: "description", Msg: "too long"}
	case req.Age != 0 && (req.Age < MinAge || req.Age > MaxAge):
		return &ValidationError{Field: "age", Msg: "must be between 18 and 100"}
	case len(req.Location) > MaxLocationLen:
		return &ValidationError{Field: "location", Msg: "too long"}
	}
	return nil
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
