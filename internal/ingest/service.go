// Package ingest turns documents into embedded, searchable chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verdantlabs/hydrochat/internal/chunker"
	"github.com/verdantlabs/hydrochat/internal/embeddings"
	"github.com/verdantlabs/hydrochat/internal/vectorstore"
)

// ErrEmptyDocument indicates a document with no content.
var ErrEmptyDocument = errors.New("empty document")

// Service chunks, embeds, and stores documents.
type Service struct {
	chunker  *chunker.Chunker
	embedder embeddings.Provider
	store    vectorstore.Store
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates an ingestion service.
func NewService(ch *chunker.Chunker, embedder embeddings.Provider, store vectorstore.Store, logger *zap.Logger) (*Service, error) {
	if ch == nil {
		return nil, errors.New("chunker is required")
	}
	if embedder == nil {
		return nil, errors.New("embedding provider is required")
	}
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		chunker:  ch,
		embedder: embedder,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Result summarizes one ingestion.
type Result struct {
	DocumentID string `json:"document_id"`

	// ChunkCount is the number of chunks stored.
	ChunkCount int `json:"chunk_count"`

	// EmbeddedCount is how many of them carry an embedding. Chunks whose
	// embedding failed are stored anyway and excluded from search.
	EmbeddedCount int `json:"embedded_count"`
}

// Ingest chunks and embeds a document, then appends the chunks to the store.
//
// Embedding fails soft per chunk: a failed chunk is persisted without a
// vector and the document still succeeds. Only a storage error fails the
// call.
func (s *Service) Ingest(ctx context.Context, doc vectorstore.Document) (*Result, error) {
	if doc.Content == "" {
		return nil, ErrEmptyDocument
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	pieces := s.chunker.Split(doc.Content)
	if len(pieces) == 0 {
		// Everything fell below the noise floor.
		return &Result{DocumentID: doc.ID}, nil
	}

	stamp := s.embedder.Stamp()
	now := s.now().UTC()

	chunks := make([]vectorstore.Chunk, 0, len(pieces))
	embedded := 0
	for i, piece := range pieces {
		chunk := vectorstore.Chunk{
			ID:            uuid.NewString(),
			DocumentID:    doc.ID,
			DocumentTitle: doc.Title,
			Index:         i,
			Content:       piece,
			Scope:         doc.Scope,
			CreatedAt:     now,
		}

		vector, err := s.embedder.EmbedQuery(ctx, piece)
		if err != nil {
			s.logger.Warn("chunk embedding failed, storing without vector",
				zap.String("document_id", doc.ID),
				zap.Int("chunk_index", i),
				zap.Error(err))
		} else {
			chunk.Embedding = vector
			chunk.Provider = stamp.Provider
			chunk.Model = stamp.Model
			embedded++
		}

		chunks = append(chunks, chunk)
	}

	if err := s.store.AppendChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("storing chunks: %w", err)
	}

	s.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("title", doc.Title),
		zap.Int("chunks", len(chunks)),
		zap.Int("embedded", embedded))

	return &Result{
		DocumentID:    doc.ID,
		ChunkCount:    len(chunks),
		EmbeddedCount: embedded,
	}, nil
}
