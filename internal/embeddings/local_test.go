package embeddings

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProvider_Deterministic(t *testing.T) {
	p := NewLocalProvider(128)
	ctx := context.Background()

	a, err := p.EmbedQuery(ctx, "nutrient solution for lettuce")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "nutrient solution for lettuce")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 128)
}

func TestLocalProvider_Normalized(t *testing.T) {
	p := NewLocalProvider(64)

	vector, err := p.EmbedQuery(context.Background(), "pH buffering in recirculating systems")
	require.NoError(t, err)

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestLocalProvider_EmptyTextYieldsZeroVector(t *testing.T) {
	p := NewLocalProvider(32)

	vector, err := p.EmbedQuery(context.Background(), "")
	require.NoError(t, err)

	for _, v := range vector {
		assert.Zero(t, v)
	}
}

func TestLocalProvider_SimilarTextsShareBuckets(t *testing.T) {
	p := NewLocalProvider(256)
	ctx := context.Background()

	a, err := p.EmbedQuery(ctx, "lettuce lettuce lettuce")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "lettuce")
	require.NoError(t, err)

	// Same single token in both: identical direction after normalization.
	assert.InDeltaSlice(t, a, b, 1e-6)
}

func TestLocalProvider_EmbedDocuments(t *testing.T) {
	p := NewLocalProvider(64)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Len(t, v, 64)
	}
}

func TestLocalProvider_DefaultDimension(t *testing.T) {
	p := NewLocalProvider(0)
	assert.Equal(t, 256, p.Dimension())
}
