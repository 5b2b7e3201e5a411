// Package memory provides an in-memory profile store with exact
// brute-force similarity search. It backs tests and persistence-free
// development runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/efebarandurmaz/kindred/internal/profile"
	"github.com/efebarandurmaz/kindred/internal/store"
)

// MemoryStore holds all records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	dim     int
	records map[string]store.Record
	order   []string // insertion order, for stable listing
}

// New creates an empty store for vectors of the given dimension.
// A dimension of 0 accepts the first inserted vector's length.
func New(dim int) *MemoryStore {
	return &MemoryStore{
		dim:     dim,
		records: make(map[string]store.Record),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, rec store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dim == 0 {
		s.dim = len(rec.Vector)
	}
	if len(rec.Vector) != s.dim {
		return store.ErrDimensionMismatch
	}
	if _, ok := s.records[rec.Profile.ID]; ok {
		return store.ErrDuplicateID
	}
	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)
	rec.Vector = vec
	s.records[rec.Profile.ID] = rec
	s.order = append(s.order, rec.Profile.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return profile.Profile{}, store.ErrNotFound
	}
	return rec.Profile, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.records, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, limit int) ([]profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.order)
	if limit < n {
		n = limit
	}
	out := make([]profile.Profile, 0, n)
	for _, id := range s.order[:n] {
		out = append(out, s.records[id].Profile)
	}
	return out, nil
}

func (s *MemoryStore) Query(ctx context.Context, vector []float32, k int) ([]store.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dim != 0 && len(vector) != s.dim {
		return nil, store.ErrDimensionMismatch
	}
	hits := make([]store.Hit, 0, len(s.order))
	for _, id := range s.order {
		hits = append(hits, store.Hit{
			ID:       id,
			Distance: store.CosineDistance(vector, s.records[id].Vector),
		})
	}
	// Stable sort keeps insertion order as the tie-break for equal distances.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) Close() error { return nil }

var _ store.Store = (*MemoryStore)(nil)
