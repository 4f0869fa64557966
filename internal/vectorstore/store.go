// Package vectorstore provides append-only chunk storage with brute-force
// cosine similarity search.
//
// The corpus is small by design; a production-grade ANN index is explicitly
// out of scope. Two implementations exist behind the Store interface: an
// in-memory store (default, reference semantics) and an embedded chromem-go
// store for persistence across restarts.
package vectorstore

import (
	"context"
	"errors"
	"math"
)

// Sentinel errors for store operations.
var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyChunks indicates empty or nil chunk input.
	ErrEmptyChunks = errors.New("empty or nil chunks")
)

// Store is the interface for chunk storage and similarity search.
//
// Writes are append-only at ingestion time; the core never deletes or
// mutates stored chunks. Implementations must be safe for concurrent use.
type Store interface {
	// AppendChunks persists chunks. Chunks without an embedding are
	// accepted; they are simply excluded from search.
	AppendChunks(ctx context.Context, chunks []Chunk) error

	// Search ranks stored chunks in scope against the query vector by
	// cosine similarity, descending, returning at most topK results at or
	// above minSimilarity. Only chunks with embeddings participate.
	Search(ctx context.Context, scope string, query []float32, topK int, minSimilarity float32) ([]SearchResult, error)

	// Count returns the number of searchable chunks in scope.
	Count(ctx context.Context, scope string) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// CosineSimilarity computes the cosine similarity of two vectors.
//
// Vectors of different lengths are reconciled by zero-padding the shorter
// one, which is equivalent to taking the dot product over the common prefix
// while keeping each vector's own magnitude. This is deliberately lossy:
// vectors from different embedding stamps are only roughly comparable, and
// a mismatch should rank low rather than crash. A zero vector on either
// side scores 0, never NaN.
func CosineSimilarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, v := range a {
		normA += float64(v) * float64(v)
	}
	for _, v := range b {
		normB += float64(v) * float64(v)
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
