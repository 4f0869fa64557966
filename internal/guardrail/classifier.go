package guardrail

import (
	"context"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/verdantlabs/hydrochat/internal/llm"
)

// classifyPrompt is the stage-2 instruction set. Negative few-shot examples
// pin down the boundary; the model must answer with exactly one token.
const classifyPrompt = `You are a topic classifier for a hydroponics assistant. Decide whether the user's question is about hydroponics, indoor/soilless growing, plant nutrition, or directly related equipment.

Answer with exactly one word: ON_TOPIC or OFF_TOPIC. No punctuation, no explanation.

Examples:
Q: What pH should my nutrient solution be for lettuce?
A: ON_TOPIC
Q: Who won the Champions League last year?
A: OFF_TOPIC
Q: Can you recommend a good crime novel?
A: OFF_TOPIC
Q: My basil leaves are yellowing in my DWC setup, why?
A: ON_TOPIC
Q: What stocks should I buy this month?
A: OFF_TOPIC`

// Classifier runs the staged topic check.
type Classifier struct {
	rules    *ruleset
	provider llm.Provider
	genCfg   llm.GenerateConfig
	logger   *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithProvider enables stage 2 using the given generation provider and
// request parameters. Without it, stage 1 defers straight to stage 3.
func WithProvider(provider llm.Provider, genCfg llm.GenerateConfig) Option {
	return func(c *Classifier) {
		c.provider = provider
		c.genCfg = genCfg
	}
}

// WithRules replaces the embedded blocklist and keyword vocabulary.
func WithRules(raw []byte) Option {
	return func(c *Classifier) {
		rules, err := loadRules(raw)
		if err != nil {
			c.logger.Error("invalid guardrail rules, keeping defaults", zap.Error(err))
			return
		}
		c.rules = rules
	}
}

// NewClassifier creates a Classifier with the embedded default rules.
func NewClassifier(logger *zap.Logger, opts ...Option) (*Classifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	rules, err := loadRules(defaultPatterns)
	if err != nil {
		return nil, err
	}

	c := &Classifier{
		rules:  rules,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify decides whether the query is on topic.
//
// Stage 1 is authoritative: a blocklist match is OFF_TOPIC regardless of
// later stages. Stage 2 defers to stage 3 on provider error or an
// unparseable reply. Stage 3 never errors.
func (c *Classifier) Classify(ctx context.Context, query string) Decision {
	if category := c.rules.match(query); category != "" {
		c.logger.Debug("blocklist match",
			zap.String("category", category))
		return Decision{
			OnTopic:  false,
			Stage:    StagePattern,
			Category: category,
			Reason:   "blocklist pattern matched",
		}
	}

	if c.provider != nil {
		if decision, ok := c.classifyLLM(ctx, query); ok {
			return decision
		}
	}

	return c.classifyKeywords(query)
}

// classifyLLM runs the stage-2 binary classification call. The second return
// is false when the stage defers.
func (c *Classifier) classifyLLM(ctx context.Context, query string) (Decision, bool) {
	reply, err := c.provider.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: classifyPrompt},
			{Role: llm.RoleUser, Content: query},
		},
		Config: c.genCfg,
	})
	if err != nil {
		c.logger.Warn("stage-2 classification failed, deferring to keywords", zap.Error(err))
		return Decision{}, false
	}

	switch strings.ToUpper(strings.TrimSpace(reply)) {
	case "ON_TOPIC":
		return Decision{OnTopic: true, Stage: StageLLM}, true
	case "OFF_TOPIC":
		return Decision{
			OnTopic: false,
			Stage:   StageLLM,
			Reason:  "classifier verdict",
		}, true
	default:
		c.logger.Warn("ambiguous stage-2 reply, deferring to keywords",
			zap.String("reply", reply))
		return Decision{}, false
	}
}

// classifyKeywords is the stage-3 fallback: OFF_TOPIC only when off-domain
// vocabulary appears and domain vocabulary does not. Fail-open otherwise.
func (c *Classifier) classifyKeywords(query string) Decision {
	var hasDomain, hasOffTopic bool
	for _, token := range tokenize(query) {
		if _, ok := c.rules.domain[token]; ok {
			hasDomain = true
		}
		if _, ok := c.rules.offTopic[token]; ok {
			hasOffTopic = true
		}
	}

	if hasOffTopic && !hasDomain {
		return Decision{
			OnTopic: false,
			Stage:   StageKeyword,
			Reason:  "off-domain vocabulary without domain vocabulary",
		}
	}
	return Decision{OnTopic: true, Stage: StageKeyword}
}

// tokenize splits a query into lowercase word tokens.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
