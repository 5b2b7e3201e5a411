package store

import "math"

// CosineDistance returns 1 - cosine similarity of a and b.
// A zero-magnitude vector yields the maximum distance of 1.
func CosineDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)))
}
