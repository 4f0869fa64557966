package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/verdantlabs/hydrochat/internal/config"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaProvider generates text via a local Ollama server's chat API.
// Ollama streams JSON objects one per line rather than server-sent events.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *Metrics
}

// NewOllamaProvider creates an Ollama-backed provider.
func NewOllamaProvider(cfg config.OllamaLLMConfig, timeout time.Duration, logger *zap.Logger) *OllamaProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    NewMetrics(logger),
	}
}

// Name returns "ollama".
func (p *OllamaProvider) Name() string { return ProviderOllama }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

func (p *OllamaProvider) buildRequest(req Request, stream bool) ollamaRequest {
	messages := withSystemPrompt(req)

	wire := ollamaRequest{
		Model:  req.Config.Model,
		Stream: stream,
		Options: ollamaOptions{
			Temperature: req.Config.Temperature,
			NumPredict:  req.Config.MaxTokens,
		},
	}
	for _, m := range messages {
		wire.Messages = append(wire.Messages, ollamaMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return wire
}

func (p *OllamaProvider) newHTTPRequest(ctx context.Context, wire ollamaRequest) (*http.Request, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

// Generate produces the full reply synchronously.
func (p *OllamaProvider) Generate(ctx context.Context, req Request) (string, error) {
	if err := req.Config.Validate(); err != nil {
		return "", err
	}

	start := time.Now()
	text, err := p.doGenerate(ctx, req)
	p.metrics.RecordGeneration(ctx, ProviderOllama, req.Config.Model, "generate", time.Since(start), err)
	return text, err
}

func (p *OllamaProvider) doGenerate(ctx context.Context, req Request) (string, error) {
	httpReq, err := p.newHTTPRequest(ctx, p.buildRequest(req, false))
	if err != nil {
		return "", err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, resp.StatusCode, string(body))
	}

	var parsed ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrGenerationFailed, err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrGenerationFailed, parsed.Error)
	}

	if parsed.Message.Content == "" {
		return NoResponse, nil
	}
	return parsed.Message.Content, nil
}

// GenerateStream produces the reply as a JSON-lines stream, one object per
// generated token batch, ending with done=true.
func (p *OllamaProvider) GenerateStream(ctx context.Context, req Request) (*Stream, error) {
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	httpReq, err := p.newHTTPRequest(streamCtx, p.buildRequest(req, true))
	if err != nil {
		cancel()
		return nil, err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, resp.StatusCode, string(body))
	}

	stream := newStream(cancel)
	go p.consumeLines(streamCtx, resp.Body, stream, req.Config.Model)
	return stream, nil
}

func (p *OllamaProvider) consumeLines(ctx context.Context, body io.ReadCloser, stream *Stream, model string) {
	defer body.Close()
	start := time.Now()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			p.logger.Debug("skipping malformed stream line", zap.Error(err))
			continue
		}
		if chunk.Error != "" {
			err := fmt.Errorf("%w: %s", ErrGenerationFailed, chunk.Error)
			p.metrics.RecordGeneration(ctx, ProviderOllama, model, "generate_stream", time.Since(start), err)
			stream.fail(ctx, err)
			return
		}
		if chunk.Message.Content != "" {
			if !stream.send(ctx, Fragment{Content: chunk.Message.Content}) {
				return
			}
		}
		if chunk.Done {
			p.metrics.RecordGeneration(ctx, ProviderOllama, model, "generate_stream", time.Since(start), nil)
			stream.finish()
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		err = fmt.Errorf("%w: stream ended without completion", ErrGenerationFailed)
	}
	p.metrics.RecordGeneration(ctx, ProviderOllama, model, "generate_stream", time.Since(start), err)
	stream.fail(ctx, err)
}

// Close releases client resources.
func (p *OllamaProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

var _ Provider = (*OllamaProvider)(nil)
