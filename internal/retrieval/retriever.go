// Package retrieval runs similarity search over stored chunks and assembles
// retrieved content into a prompt-ready context block.
package retrieval

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/verdantlabs/hydrochat/internal/config"
	"github.com/verdantlabs/hydrochat/internal/embeddings"
	"github.com/verdantlabs/hydrochat/internal/vectorstore"
)

// ErrInvalidConfig indicates invalid retriever configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Retriever embeds queries and ranks stored chunks against them.
type Retriever struct {
	embedder embeddings.Provider
	store    vectorstore.Store
	cfg      config.RetrievalConfig
	logger   *zap.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(embedder embeddings.Provider, store vectorstore.Store, cfg config.RetrievalConfig, logger *zap.Logger) (*Retriever, error) {
	if embedder == nil {
		return nil, errors.New("embedding provider is required")
	}
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if cfg.TopK <= 0 {
		return nil, errors.New("topK must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Retrieve embeds the query and returns the top-ranked chunks in the
// configured scope.
//
// Query embedding fails soft: a provider error yields an empty result set,
// not an error. The caller proceeds ungrounded instead of failing the whole
// request because an embedding backend hiccupped.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]vectorstore.SearchResult, error) {
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, skipping retrieval",
			zap.String("provider", r.embedder.Stamp().Provider),
			zap.Error(err))
		return nil, nil
	}

	results, err := r.store.Search(ctx, r.cfg.Scope, vector, r.cfg.TopK, float32(r.cfg.MinSimilarity))
	if err != nil {
		return nil, err
	}

	r.logger.Debug("retrieval complete",
		zap.String("scope", r.cfg.Scope),
		zap.Int("results", len(results)))
	return results, nil
}

// Assemble builds the context block from results using the configured
// high-confidence threshold.
func (r *Retriever) Assemble(results []vectorstore.SearchResult) AssembledContext {
	return Assemble(results, float32(r.cfg.HighConfidence))
}
