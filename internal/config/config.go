// Package config provides configuration loading for hydrochat.
//
// Configuration is loaded from an optional YAML file and overridden by
// environment variables. Every section carries defaults suitable for local
// development; hosted providers activate only when their credentials are set.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for configuration validation.
var (
	// ErrInvalidConfig indicates an invalid configuration value.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds the complete hydrochat configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	LLM         LLMConfig         `koanf:"llm"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Guardrail   GuardrailConfig   `koanf:"guardrail"`
	Chat        ChatConfig        `koanf:"chat"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is "json" or "console".
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "openai", "ollama" or "local".
	// Empty selects the first configured hosted provider, in that priority
	// order, then falls back to local if AllowLocalFallback is set.
	Provider string `koanf:"provider"`

	// AllowLocalFallback permits the hash-based local embedder when no
	// hosted provider is configured. It is deliberately opt-in: local
	// vectors are low quality and should never appear in a production
	// deployment by accident.
	AllowLocalFallback bool `koanf:"allow_local_fallback"`

	// Timeout bounds every embedding call.
	Timeout Duration `koanf:"timeout"`

	OpenAI OpenAIEmbeddingsConfig `koanf:"openai"`
	Ollama OllamaEmbeddingsConfig `koanf:"ollama"`
	Local  LocalEmbeddingsConfig  `koanf:"local"`
}

// OpenAIEmbeddingsConfig configures the OpenAI (or OpenAI-compatible TEI)
// embedding backend.
type OpenAIEmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// OllamaEmbeddingsConfig configures the Ollama embedding backend. Ollama has
// no credential to detect, so it opts in via Enabled.
type OllamaEmbeddingsConfig struct {
	Enabled bool   `koanf:"enabled"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

// LocalEmbeddingsConfig configures the dependency-free local embedder.
type LocalEmbeddingsConfig struct {
	Dimension int `koanf:"dimension"`
}

// LLMConfig holds generation provider configuration.
type LLMConfig struct {
	// DefaultProvider is used when a request does not name one.
	DefaultProvider string `koanf:"default_provider"`
	DefaultModel    string `koanf:"default_model"`

	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`

	// Timeout bounds every generation call, including the guardrail's
	// stage-2 classification call.
	Timeout Duration `koanf:"timeout"`

	Anthropic AnthropicConfig `koanf:"anthropic"`
	OpenAI    OpenAILLMConfig `koanf:"openai"`
	Ollama    OllamaLLMConfig `koanf:"ollama"`
}

// resolveDefaults fills DefaultProvider and DefaultModel from the first
// configured backend when the caller left them blank. Mirrors the registry's
// registration order: anthropic, openai, ollama.
func (c *LLMConfig) resolveDefaults() {
	if c.DefaultProvider == "" {
		switch {
		case c.Anthropic.APIKey.IsSet():
			c.DefaultProvider = "anthropic"
		case c.OpenAI.APIKey.IsSet():
			c.DefaultProvider = "openai"
		case c.Ollama.Enabled:
			c.DefaultProvider = "ollama"
		}
	}
	if c.DefaultModel == "" {
		switch c.DefaultProvider {
		case "anthropic":
			c.DefaultModel = c.Anthropic.Model
		case "openai":
			c.DefaultModel = c.OpenAI.Model
		case "ollama":
			c.DefaultModel = c.Ollama.Model
		}
	}
}

// AnthropicConfig configures the Anthropic generation backend.
type AnthropicConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// OpenAILLMConfig configures the OpenAI generation backend.
type OpenAILLMConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// OllamaLLMConfig configures the Ollama generation backend. Ollama has no
// credential to detect, so it opts in via Enabled.
type OllamaLLMConfig struct {
	Enabled bool   `koanf:"enabled"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

// VectorStoreConfig holds chunk store configuration.
type VectorStoreConfig struct {
	// Provider is "memory" (default) or "chromem".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// RetrievalConfig holds similarity search and context assembly settings.
//
// The two thresholds come straight from the original deployment and are
// untuned; they are configuration precisely so operators can tune them.
type RetrievalConfig struct {
	TopK int `koanf:"top_k"`

	// MinSimilarity is the broad-recall floor for returned chunks.
	MinSimilarity float64 `koanf:"min_similarity"`

	// HighConfidence marks a retrieved chunk as authoritative grounding.
	HighConfidence float64 `koanf:"high_confidence"`

	// Scope is the partition key searched for grounding context.
	Scope string `koanf:"scope"`
}

// GuardrailConfig holds topic classifier settings.
type GuardrailConfig struct {
	// StageTwo enables the generative binary classifier. When disabled,
	// stage 1 falls straight through to the keyword fallback.
	StageTwo bool `koanf:"stage_two"`
}

// ChatConfig holds conversation orchestration settings.
type ChatConfig struct {
	// HistoryWindow is the maximum number of prior turns (messages, not
	// pairs) included in a prompt.
	HistoryWindow int `koanf:"history_window"`
}

// NewDefaultConfig returns a configuration with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8087,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: true,
		},
		Embeddings: EmbeddingsConfig{
			Timeout: Duration(15 * time.Second),
			OpenAI: OpenAIEmbeddingsConfig{
				BaseURL: "https://api.openai.com/v1",
				Model:   "text-embedding-3-small",
			},
			Ollama: OllamaEmbeddingsConfig{
				BaseURL: "http://localhost:11434",
				Model:   "nomic-embed-text",
			},
			Local: LocalEmbeddingsConfig{
				Dimension: 256,
			},
		},
		LLM: LLMConfig{
			Temperature: 0.7,
			MaxTokens:   1024,
			Timeout:     Duration(60 * time.Second),
			Anthropic: AnthropicConfig{
				BaseURL: "https://api.anthropic.com",
				Model:   "claude-3-5-haiku-20241022",
			},
			OpenAI: OpenAILLMConfig{
				BaseURL: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
			Ollama: OllamaLLMConfig{
				BaseURL: "http://localhost:11434",
				Model:   "llama3.2",
			},
		},
		VectorStore: VectorStoreConfig{
			Provider: "memory",
			Chromem: ChromemConfig{
				Path: "~/.config/hydrochat/vectorstore",
			},
		},
		Retrieval: RetrievalConfig{
			TopK:           5,
			MinSimilarity:  0.1,
			HighConfidence: 0.5,
			Scope:          "knowledge-base",
		},
		Guardrail: GuardrailConfig{
			StageTwo: true,
		},
		Chat: ChatConfig{
			HistoryWindow: 10,
		},
	}
}

// Validate validates the full configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port must be in 1-65535, got %d", ErrInvalidConfig, c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Logging.Format)
	}
	switch c.Embeddings.Provider {
	case "", "openai", "ollama", "local":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embeddings.Provider)
	}
	if c.Embeddings.Local.Dimension <= 0 {
		return fmt.Errorf("%w: local embedding dimension must be positive", ErrInvalidConfig)
	}
	switch c.VectorStore.Provider {
	case "", "memory", "chromem":
	default:
		return fmt.Errorf("%w: unknown vectorstore provider %q", ErrInvalidConfig, c.VectorStore.Provider)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval top_k must be positive", ErrInvalidConfig)
	}
	if c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("%w: min_similarity must be in [-1,1]", ErrInvalidConfig)
	}
	if c.Retrieval.HighConfidence < c.Retrieval.MinSimilarity {
		return fmt.Errorf("%w: high_confidence below min_similarity", ErrInvalidConfig)
	}
	if c.Retrieval.Scope == "" {
		return fmt.Errorf("%w: retrieval scope required", ErrInvalidConfig)
	}
	switch c.LLM.DefaultProvider {
	case "", "anthropic", "openai", "ollama":
	default:
		return fmt.Errorf("%w: unknown llm provider %q", ErrInvalidConfig, c.LLM.DefaultProvider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be in [0,2]", ErrInvalidConfig)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidConfig)
	}
	if c.Chat.HistoryWindow < 0 {
		return fmt.Errorf("%w: history_window cannot be negative", ErrInvalidConfig)
	}
	return nil
}
