package vectorstore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{
			name: "identical vectors",
			a:    []float32{1, 2, 3},
			b:    []float32{1, 2, 3},
			want: 1,
		},
		{
			name: "orthogonal vectors",
			a:    []float32{1, 0},
			b:    []float32{0, 1},
			want: 0,
		},
		{
			name: "opposite vectors",
			a:    []float32{1, 1},
			b:    []float32{-1, -1},
			want: -1,
		},
		{
			name: "zero vector left",
			a:    []float32{0, 0, 0},
			b:    []float32{1, 2, 3},
			want: 0,
		},
		{
			name: "zero vector right",
			a:    []float32{1, 2, 3},
			b:    []float32{0, 0, 0},
			want: 0,
		},
		{
			name: "both empty",
			a:    nil,
			b:    nil,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestCosineSimilarity_Symmetric(t *testing.T) {
	a := []float32{0.3, -0.2, 0.9, 0.1}
	b := []float32{-0.5, 0.4, 0.2, 0.7}

	assert.InDelta(t, CosineSimilarity(a, b), CosineSimilarity(b, a), 1e-6)
}

func TestCosineSimilarity_Bounded(t *testing.T) {
	vectors := [][]float32{
		{1, 2, 3},
		{-4, 5, -6},
		{0.001, 1000, -0.5},
		{7},
	}

	for _, a := range vectors {
		for _, b := range vectors {
			got := float64(CosineSimilarity(a, b))
			assert.False(t, math.IsNaN(got))
			assert.GreaterOrEqual(t, got, -1.0-1e-6)
			assert.LessOrEqual(t, got, 1.0+1e-6)
		}
	}
}

func TestCosineSimilarity_DimensionMismatchZeroPads(t *testing.T) {
	// Padding the shorter vector with explicit zeros must not change the
	// result: the extra components contribute nothing to dot or norm.
	short := []float32{1, 2}
	long := []float32{3, 4, 5, 6}
	padded := []float32{1, 2, 0, 0}

	assert.InDelta(t, CosineSimilarity(padded, long), CosineSimilarity(short, long), 1e-6)

	// Mismatched magnitudes still rank lower than an exact-dimension match.
	same := []float32{3, 4, 5, 6}
	assert.Greater(t, CosineSimilarity(same, long), CosineSimilarity(short, long))
}
