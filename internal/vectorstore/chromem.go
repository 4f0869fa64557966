package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ChromemStore implements Store on top of chromem-go, an embeddable pure-Go
// vector database with gob persistence. One collection is kept per scope.
//
// Embeddings are always computed upstream and attached to chunks before
// storage; chromem's own embedding hook is never invoked. Chunks without an
// embedding cannot be represented in chromem and are skipped with a log —
// the in-memory store is the reference implementation for that edge, and
// document storage still succeeds.
type ChromemStore struct {
	db     *chromem.DB
	logger *zap.Logger

	// collections caches scope -> *chromem.Collection.
	collections sync.Map
}

// NewChromemStore opens or creates a persistent chromem store.
func NewChromemStore(cfg ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: storage path required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding storage path: %w", err)
	}

	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem database: %w", err)
	}

	return &ChromemStore{db: db, logger: logger}, nil
}

// rejectEmbeddingFunc guards against chromem computing embeddings itself.
func rejectEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, errors.New("embeddings must be precomputed")
}

func (s *ChromemStore) collection(scope string) (*chromem.Collection, error) {
	if cached, ok := s.collections.Load(scope); ok {
		return cached.(*chromem.Collection), nil
	}

	name := "hydrochat_" + sanitizeCollectionName(scope)
	col, err := s.db.GetOrCreateCollection(name, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}

	s.collections.Store(scope, col)
	return col, nil
}

// AppendChunks persists searchable chunks. Chunks without embeddings are
// logged and skipped.
func (s *ChromemStore) AppendChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: nothing to append", ErrEmptyChunks)
	}

	byScope := make(map[string][]chromem.Document)
	for _, chunk := range chunks {
		if !chunk.Searchable() {
			s.logger.Warn("skipping chunk without embedding",
				zap.String("chunk_id", chunk.ID),
				zap.String("document_id", chunk.DocumentID))
			continue
		}
		byScope[chunk.Scope] = append(byScope[chunk.Scope], chromem.Document{
			ID:        chunk.ID,
			Content:   chunk.Content,
			Embedding: chunk.Embedding,
			Metadata: map[string]string{
				"document_id":    chunk.DocumentID,
				"document_title": chunk.DocumentTitle,
				"index":          strconv.Itoa(chunk.Index),
				"provider":       chunk.Provider,
				"model":          chunk.Model,
				"created_at":     chunk.CreatedAt.UTC().Format(time.RFC3339Nano),
			},
		})
	}

	for scope, docs := range byScope {
		col, err := s.collection(scope)
		if err != nil {
			return err
		}
		if err := col.AddDocuments(ctx, docs, 1); err != nil {
			return fmt.Errorf("adding documents to scope %s: %w", scope, err)
		}
	}

	return nil
}

// Search ranks stored chunks against the query vector via chromem's cosine
// search. Vectors in a chromem collection share one dimension, so the
// zero-padding reconciliation of the in-memory store does not arise here.
func (s *ChromemStore) Search(ctx context.Context, scope string, query []float32, topK int, minSimilarity float32) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", ErrInvalidConfig)
	}

	col, err := s.collection(scope)
	if err != nil {
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	hits, err := col.QueryEmbedding(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying scope %s: %w", scope, err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Similarity < minSimilarity {
			continue
		}
		results = append(results, SearchResult{
			Chunk:      chunkFromResult(scope, hit),
			Similarity: hit.Similarity,
		})
	}

	return results, nil
}

// Count returns the number of searchable chunks in scope.
func (s *ChromemStore) Count(_ context.Context, scope string) (int, error) {
	col, err := s.collection(scope)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// Close is a no-op; chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}

func chunkFromResult(scope string, hit chromem.Result) Chunk {
	index, _ := strconv.Atoi(hit.Metadata["index"])
	createdAt, _ := time.Parse(time.RFC3339Nano, hit.Metadata["created_at"])
	return Chunk{
		ID:            hit.ID,
		DocumentID:    hit.Metadata["document_id"],
		DocumentTitle: hit.Metadata["document_title"],
		Index:         index,
		Content:       hit.Content,
		Scope:         scope,
		Embedding:     hit.Embedding,
		Provider:      hit.Metadata["provider"],
		Model:         hit.Metadata["model"],
		CreatedAt:     createdAt,
	}
}

// sanitizeCollectionName keeps collection names to lowercase alphanumerics
// and underscores.
func sanitizeCollectionName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}

// expandPath resolves a leading "~" to the user's home directory.
func expandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

var _ Store = (*ChromemStore)(nil)
