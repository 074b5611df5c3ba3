package domain

import (
	"fmt"
	"math"
)

// CosineSimilarity returns the normalized dot product of two vectors in
// [-1, 1]. Vectors of differing length fail with ErrDimensionMismatch;
// a zero vector scores 0 against everything.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine: %d vs %d: %w", len(a), len(b), ErrDimensionMismatch)
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// ValidateBatchDims checks that every vector in a batch shares the same
// length. Returns that length, or ErrDimensionMismatch.
func ValidateBatchDims(vectors [][]float32) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}
	dims := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dims {
			return 0, fmt.Errorf("vector %d has %d dimensions, want %d: %w",
				i, len(v), dims, ErrDimensionMismatch)
		}
	}
	return dims, nil
}
