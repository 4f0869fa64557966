package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces hydrochat environment variables.
const envPrefix = "HYDROCHAT_"

// sections are the top-level config keys recognized by the env transformer.
var sections = []string{
	"server", "logging", "embeddings", "llm",
	"vectorstore", "retrieval", "guardrail", "chat",
}

// subsections are nested keys; anything after them stays a single field name.
var subsections = []string{
	"openai", "ollama", "local", "anthropic", "chromem",
}

// Load loads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (HYDROCHAT_SERVER_PORT, HYDROCHAT_LLM_ANTHROPIC_API_KEY, ...)
//  2. YAML config file (path argument; missing file is not an error)
//  3. Defaults from NewDefaultConfig
//
// Environment variables map to config paths by stripping the prefix,
// lowercasing, and splitting on the section and subsection names:
//
//	HYDROCHAT_SERVER_PORT              -> server.port
//	HYDROCHAT_RETRIEVAL_MIN_SIMILARITY -> retrieval.min_similarity
//	HYDROCHAT_LLM_OPENAI_API_KEY       -> llm.openai.api_key
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.LLM.resolveDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// transformEnvKey maps an environment variable name to a dotted config path.
func transformEnvKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))

	var section string
	for _, sec := range sections {
		if strings.HasPrefix(s, sec+"_") {
			section = sec
			s = strings.TrimPrefix(s, sec+"_")
			break
		}
	}
	if section == "" {
		// Not a recognized hydrochat key; leave untouched so it cannot
		// collide with real config paths.
		return s
	}

	for _, sub := range subsections {
		if strings.HasPrefix(s, sub+"_") {
			return section + "." + sub + "." + strings.TrimPrefix(s, sub+"_")
		}
	}
	return section + "." + s
}
