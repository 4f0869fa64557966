// Package embeddings provides embedding generation via multiple providers.
//
// Hosted providers (OpenAI-compatible APIs, Ollama) produce real semantic
// vectors; the local provider derives a deterministic pseudo-embedding from
// a term-hash histogram and exists only as an explicit opt-in fallback.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/verdantlabs/hydrochat/internal/config"
)

// Provider names accepted by the factory.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrNotConfigured indicates no embedding provider is configured.
	ErrNotConfigured = errors.New("no embedding provider configured")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Stamp identifies the (provider, model) pair that produced a vector.
// Vectors from different stamps are only comparable after dimension
// reconciliation in the search layer.
type Stamp struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// String returns the stamp as "provider/model".
func (s Stamp) String() string {
	return s.Provider + "/" + s.Model
}

// Provider generates embedding vectors from text.
type Provider interface {
	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Stamp returns the (provider, model) pair stamped onto produced vectors.
	Stamp() Stamp

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// NewProvider creates an embedding provider from configuration.
//
// An explicit cfg.Provider wins. When empty, the first configured hosted
// provider is selected in priority order (openai, ollama). The local
// hash-based provider is used only when nothing else is configured AND
// AllowLocalFallback is set; silently degrading to pseudo-embeddings in a
// deployment that expected a hosted provider is treated as a configuration
// error instead.
func NewProvider(cfg config.EmbeddingsConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAI, cfg.Timeout.Duration(), logger)
	case ProviderOllama:
		return NewOllamaProvider(cfg.Ollama, cfg.Timeout.Duration(), logger)
	case ProviderLocal:
		return NewLocalProvider(cfg.Local.Dimension), nil
	case "":
		return autoSelect(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", config.ErrInvalidConfig, cfg.Provider)
	}
}

// autoSelect picks the first configured hosted provider in priority order.
func autoSelect(cfg config.EmbeddingsConfig, logger *zap.Logger) (Provider, error) {
	if cfg.OpenAI.APIKey.IsSet() {
		return NewOpenAIProvider(cfg.OpenAI, cfg.Timeout.Duration(), logger)
	}
	if cfg.Ollama.Enabled {
		return NewOllamaProvider(cfg.Ollama, cfg.Timeout.Duration(), logger)
	}
	if cfg.AllowLocalFallback {
		logger.Warn("no hosted embedding provider configured, using local hash embedder",
			zap.Int("dimension", cfg.Local.Dimension))
		return NewLocalProvider(cfg.Local.Dimension), nil
	}
	return nil, fmt.Errorf("%w: set an API key, enable ollama, or opt in to the local fallback", ErrNotConfigured)
}

// detectDimension returns the embedding dimension for a known model name,
// falling back to fallback for unknown models.
func detectDimension(model string, fallback int) int {
	switch {
	case strings.Contains(model, "text-embedding-3-large"):
		return 3072
	case strings.Contains(model, "text-embedding-3-small"),
		strings.Contains(model, "ada-002"):
		return 1536
	case strings.Contains(model, "mxbai-embed-large"),
		strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "nomic-embed-text"),
		strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "minilm"),
		strings.Contains(model, "small"),
		strings.Contains(model, "mini"):
		return 384
	default:
		return fallback
	}
}
