package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// MemoryStore is the in-memory Store implementation. Chunks are held per
// scope in insertion order; that order is the tie-break for equal
// similarities (stable sort).
type MemoryStore struct {
	mu     sync.RWMutex
	scopes map[string][]Chunk
	logger *zap.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		scopes: make(map[string][]Chunk),
		logger: logger,
	}
}

// AppendChunks persists chunks in insertion order.
func (s *MemoryStore) AppendChunks(_ context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: nothing to append", ErrEmptyChunks)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range chunks {
		s.scopes[chunk.Scope] = append(s.scopes[chunk.Scope], chunk)
	}

	return nil
}

// Search ranks searchable chunks in scope against the query vector.
func (s *MemoryStore) Search(_ context.Context, scope string, query []float32, topK int, minSimilarity float32) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", ErrInvalidConfig)
	}

	s.mu.RLock()
	chunks := s.scopes[scope]
	results := make([]SearchResult, 0, len(chunks))
	for _, chunk := range chunks {
		if !chunk.Searchable() {
			continue
		}
		similarity := CosineSimilarity(query, chunk.Embedding)
		if similarity < minSimilarity {
			continue
		}
		results = append(results, SearchResult{Chunk: chunk, Similarity: similarity})
	}
	s.mu.RUnlock()

	// Stable: ties keep storage order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// Count returns the number of searchable chunks in scope.
func (s *MemoryStore) Count(_ context.Context, scope string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, chunk := range s.scopes[scope] {
		if chunk.Searchable() {
			count++
		}
	}
	return count, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
