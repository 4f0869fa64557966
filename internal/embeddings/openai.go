package embeddings

import (
	"context"
	"fmt"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/verdantlabs/hydrochat/internal/config"
)

// OpenAIProvider generates embeddings via the OpenAI embeddings API, or any
// OpenAI-compatible endpoint (TEI, vLLM) selected by base URL.
type OpenAIProvider struct {
	embedder *lcembeddings.EmbedderImpl
	model    string
	timeout  time.Duration
	metrics  *Metrics
}

// NewOpenAIProvider creates an OpenAI-backed embedding provider.
func NewOpenAIProvider(cfg config.OpenAIEmbeddingsConfig, timeout time.Duration, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", config.ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", config.ErrInvalidConfig)
	}

	apiKey := cfg.APIKey.Value()
	if apiKey == "" {
		// langchaingo requires a token; OpenAI-compatible local endpoints
		// ignore it.
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &OpenAIProvider{
		embedder: embedder,
		model:    cfg.Model,
		timeout:  timeout,
		metrics:  NewMetrics(logger),
	}, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	ctx, cancel := p.callContext(ctx)
	defer cancel()

	vector, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		genErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		return nil, genErr
	}
	return vector, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	ctx, cancel := p.callContext(ctx)
	defer cancel()

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		genErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		return nil, genErr
	}
	return vectors, nil
}

// Stamp returns the (provider, model) stamp for produced vectors.
func (p *OpenAIProvider) Stamp() Stamp {
	return Stamp{Provider: ProviderOpenAI, Model: p.model}
}

// Dimension returns the embedding dimension for the configured model.
func (p *OpenAIProvider) Dimension() int {
	return detectDimension(p.model, 1536)
}

// Close is a no-op; the provider holds no persistent connections.
func (p *OpenAIProvider) Close() error {
	return nil
}

func (p *OpenAIProvider) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

var _ Provider = (*OpenAIProvider)(nil)
