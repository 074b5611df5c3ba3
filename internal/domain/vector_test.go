package domain

import (
	"errors"
	"math"
	"testing"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{0.3, -0.5, 0.8}
	got, err := CosineSimilarity(v, v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("identical vectors: got %f, want 1.0", got)
	}
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	got, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: got %f, want 0", got)
	}
}

func TestCosineSimilarityOpposite(t *testing.T) {
	got, err := CosineSimilarity([]float32{1, 1}, []float32{-1, -1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got+1.0) > 1e-9 {
		t.Errorf("opposite vectors: got %f, want -1.0", got)
	}
}

func TestCosineSimilarityDimMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("got %v, want ErrDimensionMismatch", err)
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	got, err := CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("zero vector: got %f, want 0", got)
	}
}

func TestValidateBatchDims(t *testing.T) {
	dims, err := ValidateBatchDims([][]float32{{1, 2, 3}, {4, 5, 6}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dims != 3 {
		t.Errorf("got dims %d, want 3", dims)
	}

	_, err = ValidateBatchDims([][]float32{{1, 2, 3}, {4, 5}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("uneven batch: got %v, want ErrDimensionMismatch", err)
	}

	if dims, err := ValidateBatchDims(nil); err != nil || dims != 0 {
		t.Errorf("empty batch: got (%d, %v), want (0, nil)", dims, err)
	}
}
