package guardrail

import (
	_ "embed"
	"fmt"
	"regexp"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

//go:embed patterns.yaml
var defaultPatterns []byte

// ruleset is the compiled form of the blocklist and keyword vocabulary.
type ruleset struct {
	categories []categoryRule
	domain     map[string]struct{}
	offTopic   map[string]struct{}
}

// categoryRule is one blocklist bucket with its compiled patterns.
type categoryRule struct {
	name     string
	patterns []*regexp.Regexp
}

type rulesFile struct {
	Categories []struct {
		Name     string   `koanf:"name"`
		Patterns []string `koanf:"patterns"`
	} `koanf:"categories"`
	DomainKeywords   []string `koanf:"domain_keywords"`
	OffTopicKeywords []string `koanf:"offtopic_keywords"`
}

// loadRules parses and compiles a rules document. Patterns compile
// case-insensitively.
func loadRules(raw []byte) (*ruleset, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(raw), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}

	var file rulesFile
	if err := k.Unmarshal("", &file); err != nil {
		return nil, fmt.Errorf("unmarshaling rules: %w", err)
	}

	rules := &ruleset{
		domain:   make(map[string]struct{}, len(file.DomainKeywords)),
		offTopic: make(map[string]struct{}, len(file.OffTopicKeywords)),
	}

	for _, category := range file.Categories {
		rule := categoryRule{name: category.Name}
		for _, pattern := range category.Patterns {
			compiled, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in category %s: %w", pattern, category.Name, err)
			}
			rule.patterns = append(rule.patterns, compiled)
		}
		rules.categories = append(rules.categories, rule)
	}

	for _, word := range file.DomainKeywords {
		rules.domain[word] = struct{}{}
	}
	for _, word := range file.OffTopicKeywords {
		rules.offTopic[word] = struct{}{}
	}

	return rules, nil
}

// match returns the first category whose patterns match the query, in file
// order, or "" when nothing matches.
func (r *ruleset) match(query string) string {
	for _, category := range r.categories {
		for _, pattern := range category.patterns {
			if pattern.MatchString(query) {
				return category.name
			}
		}
	}
	return ""
}
