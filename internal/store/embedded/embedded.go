// Package embedded provides the default profile store backend: a bbolt
// file for durable profile+vector records and an in-process HNSW graph
// for approximate nearest-neighbor search, rebuilt from the file at open.
package embedded

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/coder/hnsw"
	"go.etcd.io/bbolt"

	"github.com/efebarandurmaz/kindred/internal/profile"
	"github.com/efebarandurmaz/kindred/internal/store"
)

var (
	bucketRecords = []byte("records")
	bucketMeta    = []byte("meta")
	keyDimension  = []byte("dimension")
)

// EmbeddedStore is a bbolt-backed profile store with an HNSW index.
type EmbeddedStore struct {
	db  *bbolt.DB
	dim int

	mu      sync.Mutex
	graph   *hnsw.Graph[string]
	vectors map[string][]float32
}

type record struct {
	Profile profile.Profile `json:"profile"`
	Vector  []float32       `json:"vector"`
}

// Open opens (or creates) the store file at path for vectors of the given
// dimension. Opening a file recorded with a different dimension fails:
// vectors from two embedding models must never share one store.
func Open(path string, dim int) (*EmbeddedStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedded store: dimension must be positive, got %d", dim)
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open store file: %w", err)
	}

	s := &EmbeddedStore{
		db:      db,
		dim:     dim,
		graph:   hnsw.NewGraph[string](),
		vectors: make(map[string][]float32),
	}
	s.graph.Distance = hnsw.CosineDistance

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRecords); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if stored := meta.Get(keyDimension); stored != nil {
			got, err := strconv.Atoi(string(stored))
			if err != nil {
				return fmt.Errorf("corrupt dimension record %q", stored)
			}
			if got != dim {
				return fmt.Errorf("%w: store has dimension %d, configured %d",
					store.ErrDimensionMismatch, got, dim)
			}
			return nil
		}
		return meta.Put(keyDimension, []byte(strconv.Itoa(dim)))
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := s.rebuild(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// rebuild loads every persisted vector into the HNSW graph.
func (s *EmbeddedStore) rebuild() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt record %s: %w", k, err)
			}
			s.graph.Add(hnsw.MakeNode(string(k), rec.Vector))
			s.vectors[string(k)] = rec.Vector
			return nil
		})
	})
}

func (s *EmbeddedStore) Insert(ctx context.Context, rec store.Record) error {
	if len(rec.Vector) != s.dim {
		return store.ErrDimensionMismatch
	}
	id := []byte(rec.Profile.ID)
	data, err := json.Marshal(record{Profile: rec.Profile, Vector: rec.Vector})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b.Get(id) != nil {
			return store.ErrDuplicateID
		}
		return b.Put(id, data)
	})
	if err != nil {
		return err
	}

	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)
	s.graph.Add(hnsw.MakeNode(rec.Profile.ID, vec))
	s.vectors[rec.Profile.ID] = vec
	return nil
}

func (s *EmbeddedStore) Get(ctx context.Context, id string) (profile.Profile, error) {
	var p profile.Profile
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get([]byte(id))
		if data == nil {
			return store.ErrNotFound
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		p = rec.Profile
		return nil
	})
	return p, err
}

func (s *EmbeddedStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b.Get([]byte(id)) == nil {
			return store.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		return err
	}
	s.graph.Delete(id)
	delete(s.vectors, id)
	return nil
}

func (s *EmbeddedStore) List(ctx context.Context, limit int) ([]profile.Profile, error) {
	var out []profile.Profile
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()
		for k, v := c.First(); k != nil && len(out) < limit; k, v = c.Next() {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec.Profile)
		}
		return nil
	})
	return out, err
}

func (s *EmbeddedStore) Query(ctx context.Context, vector []float32, k int) ([]store.Hit, error) {
	if len(vector) != s.dim {
		return nil, store.ErrDimensionMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	neighbors := s.graph.Search(vector, k)

	// The graph orders candidates already, but distances are recomputed
	// exactly from the stored vectors so scores do not drift with the
	// graph's internal approximations.
	hits := make([]store.Hit, 0, len(neighbors))
	for _, node := range neighbors {
		vec, ok := s.vectors[node.Key]
		if !ok {
			continue
		}
		hits = append(hits, store.Hit{ID: node.Key, Distance: store.CosineDistance(vector, vec)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return hits, nil
}

func (s *EmbeddedStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vectors), nil
}

func (s *EmbeddedStore) Close() error {
	return s.db.Close()
}

var _ store.Store = (*EmbeddedStore)(nil)
