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
	"golang.org/x/time/rate"

	"github.com/verdantlabs/hydrochat/internal/config"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"

	// Client-side request pacing; provider quotas are the real limit.
	anthropicRateLimit = 10
	anthropicBurst     = 5
)

// AnthropicProvider generates text via the Anthropic messages API.
type AnthropicProvider struct {
	baseURL    string
	apiKey     config.Secret
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *Metrics
}

// NewAnthropicProvider creates an Anthropic-backed provider.
func NewAnthropicProvider(cfg config.AnthropicConfig, timeout time.Duration, logger *zap.Logger) *AnthropicProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(anthropicRateLimit), anthropicBurst),
		logger:     logger,
		metrics:    NewMetrics(logger),
	}
}

// Name returns "anthropic".
func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// buildRequest maps the abstract turn list to Anthropic's wire shape. The
// system prompt travels in the top-level system field, not the message list.
func (p *AnthropicProvider) buildRequest(req Request, stream bool) anthropicRequest {
	messages := withSystemPrompt(req)

	wire := anthropicRequest{
		Model:       req.Config.Model,
		MaxTokens:   req.Config.MaxTokens,
		Temperature: req.Config.Temperature,
		Stream:      stream,
	}
	for _, m := range messages {
		if m.Role == RoleSystem {
			wire.System = m.Content
			continue
		}
		wire.Messages = append(wire.Messages, anthropicMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return wire
}

func (p *AnthropicProvider) newHTTPRequest(ctx context.Context, wire anthropicRequest) (*http.Request, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey.Value())
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	return httpReq, nil
}

// Generate produces the full reply synchronously.
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (string, error) {
	if err := req.Config.Validate(); err != nil {
		return "", err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	text, err := p.doGenerate(ctx, req)
	p.metrics.RecordGeneration(ctx, ProviderAnthropic, req.Config.Model, "generate", time.Since(start), err)
	return text, err
}

func (p *AnthropicProvider) doGenerate(ctx context.Context, req Request) (string, error) {
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

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrGenerationFailed, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: %s: %s", ErrGenerationFailed, parsed.Error.Type, parsed.Error.Message)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return NoResponse, nil
	}
	return text.String(), nil
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateStream produces the reply as a server-sent-event stream.
func (p *AnthropicProvider) GenerateStream(ctx context.Context, req Request) (*Stream, error) {
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
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

// consumeSSE reads the event stream until message_stop, an error event, or
// cancellation.
func (p *AnthropicProvider) consumeSSE(ctx context.Context, body io.ReadCloser, stream *Stream, model string) {
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

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			p.logger.Debug("skipping malformed stream event", zap.Error(err))
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Text != "" {
				if !stream.send(ctx, Fragment{Content: event.Delta.Text}) {
					return
				}
			}
		case "message_stop":
			p.metrics.RecordGeneration(ctx, ProviderAnthropic, model, "generate_stream", time.Since(start), nil)
			stream.finish()
			return
		case "error":
			err := fmt.Errorf("%w: stream error", ErrGenerationFailed)
			if event.Error != nil {
				err = fmt.Errorf("%w: %s: %s", ErrGenerationFailed, event.Error.Type, event.Error.Message)
			}
			p.metrics.RecordGeneration(ctx, ProviderAnthropic, model, "generate_stream", time.Since(start), err)
			stream.fail(ctx, err)
			return
		}
	}

	// Connection ended without a completion signal.
	err := scanner.Err()
	if err == nil {
		err = fmt.Errorf("%w: stream ended without completion", ErrGenerationFailed)
	}
	p.metrics.RecordGeneration(ctx, ProviderAnthropic, model, "generate_stream", time.Since(start), err)
	stream.fail(ctx, err)
}

// Close releases client resources.
func (p *AnthropicProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

var _ Provider = (*AnthropicProvider)(nil)
