// Package profile defines the core domain types for personality profiles.
package profile

import "time"

// Profile is a stored person record: identity, descriptive text, and
// optional demographic metadata. The embedding derived from Description
// lives in the store and is never exposed through the API.
type Profile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Age         int       `json:"age,omitempty"`
	Location    string    `json:"location,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Match is a profile paired with its similarity to a search query.
// Similarity is in [0, 1], higher is more similar.
type Match struct {
	Profile
	Similarity float32 `json:"similarity_score"`
}
