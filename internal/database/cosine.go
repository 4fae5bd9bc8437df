package database

import (
	"fmt"
	"math"
	"sort"
)

// CosineDistance computes the cosine distance between two vectors
// Returns a value between 0 (identical) and 2 (opposite)
// Cosine distance = 1 - cosine similarity
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0 // Maximum distance for invalid input
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0 // Maximum distance for zero vectors
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}

// ValidateEmbedding checks dimension, finiteness and that the vector is not all zeros.
// dim <= 0 skips the dimension check.
func ValidateEmbedding(embedding []float32, dim int) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidEmbedding)
	}
	if dim > 0 && len(embedding) != dim {
		return fmt.Errorf("%w: expected %d dimensions, got %d", ErrInvalidEmbedding, dim, len(embedding))
	}

	nonZero := false
	for i, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidEmbedding, i)
		}
		if v != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		return fmt.Errorf("%w: zero vector", ErrInvalidEmbedding)
	}
	return nil
}

// SortMatches orders candidates by ascending distance. Equal distances put the
// most recently created row first.
func SortMatches(matches []SimilarityMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		if !matches[i].Biometric.CreatedAt.Equal(matches[j].Biometric.CreatedAt) {
			return matches[i].Biometric.CreatedAt.After(matches[j].Biometric.CreatedAt)
		}
		return matches[i].Biometric.ID > matches[j].Biometric.ID
	})
}

// BruteForceSearch scans every active row and returns up to limit candidates whose
// similarity is at least minSimilarity. An empty set yields an empty result.
func BruteForceSearch(active []ActiveBiometric, query []float32, minSimilarity float64, limit int) []SimilarityMatch {
	if len(active) == 0 || limit <= 0 {
		return nil
	}
	maxDistance := 1 - minSimilarity

	var matches []SimilarityMatch
	for i := range active {
		if len(active[i].Embedding) != len(query) {
			continue
		}
		d := CosineDistance(query, active[i].Embedding)
		if d > maxDistance {
			continue
		}
		matches = append(matches, SimilarityMatch{Biometric: active[i], Distance: d})
	}

	SortMatches(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
