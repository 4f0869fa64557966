// Package llm provides a uniform abstraction over text generation backends,
// with synchronous and streaming generation.
package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/verdantlabs/hydrochat/internal/config"
)

// Supported generation providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// NoResponse is returned in place of a malformed or empty provider reply.
// Callers render it verbatim; they never see an error for an empty body.
const NoResponse = "no response generated"

// Sentinel errors for generation.
var (
	// ErrInvalidConfig indicates an invalid generation configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotConfigured indicates the requested provider has no usable
	// configuration (missing credential or not enabled).
	ErrNotConfigured = errors.New("provider not configured")

	// ErrGenerationFailed indicates the provider call failed.
	ErrGenerationFailed = errors.New("generation failed")
)

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation, provider-agnostic.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerateConfig are the per-request generation parameters. Immutable once
// validated; every dispatch path validates before any network call.
type GenerateConfig struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Validate checks the configuration before dispatch.
func (c GenerateConfig) Validate() error {
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature %.2f outside [0, 2]", ErrInvalidConfig, c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive", ErrInvalidConfig)
	}
	return nil
}

// Request is one generation request: the conversation so far plus optional
// retrieved context. When Context is non-empty a grounded system prompt is
// prepended; otherwise an open one.
type Request struct {
	Messages []Message
	Config   GenerateConfig

	// Context is the assembled retrieval block, empty when nothing was
	// retrieved.
	Context string
}

// Provider is the interface over generation backends.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Generate produces the full reply text for a request. A malformed or
	// empty reply yields NoResponse, not an error.
	Generate(ctx context.Context, req Request) (string, error)

	// GenerateStream produces the reply as a single-pass fragment stream.
	// The consumer must drain or cancel the stream to release the
	// underlying connection.
	GenerateStream(ctx context.Context, req Request) (*Stream, error)

	// Close releases provider resources.
	Close() error
}

// Registry holds the configured providers keyed by name.
type Registry struct {
	providers map[string]Provider
	logger    *zap.Logger
}

// NewRegistry builds providers from configuration. Providers without
// credentials (or not enabled, for Ollama) are skipped, not errors; the
// registry errors only when nothing at all is configured.
func NewRegistry(cfg config.LLMConfig, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		providers: make(map[string]Provider),
		logger:    logger,
	}

	if cfg.Anthropic.APIKey.IsSet() {
		r.providers[ProviderAnthropic] = NewAnthropicProvider(cfg.Anthropic, cfg.Timeout.Duration(), logger)
		logger.Info("registered generation provider", zap.String("provider", ProviderAnthropic))
	}
	if cfg.OpenAI.APIKey.IsSet() {
		r.providers[ProviderOpenAI] = NewOpenAIProvider(cfg.OpenAI, cfg.Timeout.Duration(), logger)
		logger.Info("registered generation provider", zap.String("provider", ProviderOpenAI))
	}
	if cfg.Ollama.Enabled {
		r.providers[ProviderOllama] = NewOllamaProvider(cfg.Ollama, cfg.Timeout.Duration(), logger)
		logger.Info("registered generation provider", zap.String("provider", ProviderOllama))
	}

	if len(r.providers) == 0 {
		return nil, fmt.Errorf("%w: no generation provider configured", ErrNotConfigured)
	}

	return r, nil
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	return p, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Close closes every registered provider.
func (r *Registry) Close() error {
	var errs []error
	for name, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
