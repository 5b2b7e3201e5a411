// Package embedding defines the text-embedding provider contract and the
// factory that loads a configured provider with a documented fallback.
package embedding

import "context"

// Provider turns text into fixed-length dense vectors. Implementations
// must be safe for concurrent use; Embed is a pure function of its input
// for a loaded model.
type Provider interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider/model identifier (e.g. "ollama/all-minilm").
	Name() string
	// Dimension returns the vector length this provider produces.
	Dimension() int
}
