// Package store defines the profile store contract: vector storage with
// attached metadata and k-nearest-neighbor search by cosine distance.
package store

import (
	"context"
	"errors"

	"github.com/efebarandurmaz/kindred/internal/profile"
)

// ErrNotFound is returned when the requested profile id does not exist.
var ErrNotFound = errors.New("profile not found")

// ErrDuplicateID is returned by Insert when the id already exists.
var ErrDuplicateID = errors.New("duplicate profile id")

// ErrDimensionMismatch is returned when a vector's length does not match
// the dimension the store was opened with.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Record is a profile together with its embedding, as persisted.
type Record struct {
	Profile profile.Profile
	Vector  []float32
}

// Hit is a single result from a similarity query. Distance is cosine
// distance (1 - cosine similarity), so smaller means more similar.
type Hit struct {
	ID       string
	Distance float32
}

// Store provides vector storage and similarity search over profiles.
// Implementations must be safe for concurrent use.
type Store interface {
	// Insert adds a new record. Fails with ErrDuplicateID if the id exists.
	Insert(ctx context.Context, rec Record) error
	// Get returns the profile for id, or ErrNotFound.
	Get(ctx context.Context, id string) (profile.Profile, error)
	// Delete removes the profile for id, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
	// List returns up to limit profiles in store-defined order.
	List(ctx context.Context, limit int) ([]profile.Profile, error)
	// Query returns up to k hits ordered by ascending cosine distance.
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)
	// Count returns the total number of stored profiles.
	Count(ctx context.Context) (int, error)
	// Close releases resources.
	Close() error
}
