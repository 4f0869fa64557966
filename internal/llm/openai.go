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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider generates text via the OpenAI chat completions API. Also
// serves OpenAI-compatible servers (vLLM, llama.cpp) via BaseURL.
type OpenAIProvider struct {
	baseURL    string
	apiKey     config.Secret
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *Metrics
}

// NewOpenAIProvider creates an OpenAI-backed provider.
func NewOpenAIProvider(cfg config.OpenAILLMConfig, timeout time.Duration, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    NewMetrics(logger),
	}
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAIProvider) buildRequest(req Request, stream bool) openAIRequest {
	messages := withSystemPrompt(req)

	wire := openAIRequest{
		Model:       req.Config.Model,
		Temperature: req.Config.Temperature,
		MaxTokens:   req.Config.MaxTokens,
		Stream:      stream,
	}
	for _, m := range messages {
		wire.Messages = append(wire.Messages, openAIMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return wire
}

func (p *OpenAIProvider) newHTTPRequest(ctx context.Context, wire openAIRequest) (*http.Request, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey.Value())
	return httpReq, nil
}

// Generate produces the full reply synchronously.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	if err := req.Config.Validate(); err != nil {
		return "", err
	}

	start := time.Now()
	text, err := p.doGenerate(ctx, req)
	p.metrics.RecordGeneration(ctx, ProviderOpenAI, req.Config.Model, "generate", time.Since(start), err)
	return text, err
}

func (p *OpenAIProvider) doGenerate(ctx context.Context, req Request) (string, error) {
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

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrGenerationFailed, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: %s: %s", ErrGenerationFailed, parsed.Error.Type, parsed.Error.Message)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return NoResponse, nil
	}
	return parsed.Choices[0].Message.Content, nil
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// GenerateStream produces the reply as a server-sent-event stream. The
// stream terminates on the "[DONE]" marker.
func (p *OpenAIProvider) GenerateStream(ctx context.Context, req Request) (*Stream, error) {
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	httpReq, err := p.newHTTPRequest(streamCtx, p.buildRequest(req, true))
	if err != nil {
		cancel()
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

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
	go p.consumeSSE(streamCtx, resp.Body, stream, req.Config.Model)
	return stream, nil
}

func (p *OpenAIProvider) consumeSSE(ctx context.Context, body io.ReadCloser, stream *Stream, model string) {
	defer body.Close()
	start := time.Now()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			p.metrics.RecordGeneration(ctx, ProviderOpenAI, model, "generate_stream", time.Since(start), nil)
			stream.finish()
			return
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			p.logger.Debug("skipping malformed stream chunk", zap.Error(err))
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			if !stream.send(ctx, Fragment{Content: content}) {
				return
			}
		}
	}

	err := scanner.Err()
	if err == nil {
		err = fmt.Errorf("%w: stream ended without completion", ErrGenerationFailed)
	}
	p.metrics.RecordGeneration(ctx, ProviderOpenAI, model, "generate_stream", time.Since(start), err)
	stream.fail(ctx, err)
}

// Close releases client resources.
func (p *OpenAIProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

var _ Provider = (*OpenAIProvider)(nil)
