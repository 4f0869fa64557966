package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/verdantlabs/hydrochat/internal/config"
)

// OllamaProvider generates embeddings via a local Ollama server.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
	metrics *Metrics
}

// NewOllamaProvider creates an Ollama-backed embedding provider.
func NewOllamaProvider(cfg config.OllamaEmbeddingsConfig, timeout time.Duration, logger *zap.Logger) (*OllamaProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", config.ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", config.ErrInvalidConfig)
	}

	return &OllamaProvider{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
		metrics: NewMetrics(logger),
	}, nil
}

// ollamaEmbedRequest is the request body for the Ollama embeddings endpoint.
type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// ollamaEmbedResponse is the response body for the Ollama embeddings endpoint.
type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedQuery generates an embedding for a single query.
func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vector, err := p.embed(ctx, text)
	if err != nil {
		genErr = err
		return nil, genErr
	}
	return vector, nil
}

// EmbedDocuments generates embeddings for multiple texts. The Ollama
// embeddings endpoint takes one prompt per call, so documents are embedded
// sequentially.
func (p *OllamaProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vector, err := p.embed(ctx, text)
		if err != nil {
			genErr = err
			return nil, genErr
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

func (p *OllamaProvider) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrEmbeddingFailed)
	}

	return embedResp.Embedding, nil
}

// Stamp returns the (provider, model) stamp for produced vectors.
func (p *OllamaProvider) Stamp() Stamp {
	return Stamp{Provider: ProviderOllama, Model: p.model}
}

// Dimension returns the embedding dimension for the configured model.
func (p *OllamaProvider) Dimension() int {
	return detectDimension(p.model, 768)
}

// Close is a no-op; the provider holds no persistent connections.
func (p *OllamaProvider) Close() error {
	return nil
}

var _ Provider = (*OllamaProvider)(nil)
