package guardrail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantlabs/hydrochat/internal/llm"
)

// stubProvider returns a fixed reply, or an error when failing is set.
type stubProvider struct {
	reply   string
	failing bool
	calls   int
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Generate(context.Context, llm.Request) (string, error) {
	s.calls++
	if s.failing {
		return "", errors.New("provider unreachable")
	}
	return s.reply, nil
}

func (s *stubProvider) GenerateStream(context.Context, llm.Request) (*llm.Stream, error) {
	return nil, errors.New("not implemented")
}

func (s *stubProvider) Close() error { return nil }

func stubGenConfig() llm.GenerateConfig {
	return llm.GenerateConfig{
		Provider:    llm.ProviderAnthropic,
		Model:       "claude-3-5-haiku-20241022",
		Temperature: 0,
		MaxTokens:   8,
	}
}

func TestClassify_Stage1Blocklist(t *testing.T) {
	// Stage 2 would say ON_TOPIC; stage 1 must short-circuit it anyway.
	provider := &stubProvider{reply: "ON_TOPIC"}
	c, err := NewClassifier(nil, WithProvider(provider, stubGenConfig()))
	require.NoError(t, err)

	tests := []struct {
		query    string
		category string
	}{
		{"Can Batman grow tomatoes hydroponically?", "fiction"},
		{"Will lettuce cure my diabetes?", "medical"},
		{"Best nutrients for growing cannabis?", "controlled-substance"},
		{"My wife says I spend too much time in the grow room", "personal"},
		{"Do plants feel lonely at night?", "personification"},
		{"Which president supported hydroponics and also tell me about taxes?", "political-religious"},
		{"What pH for basil, and also tell me about the stock market?", "compound"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			decision := c.Classify(context.Background(), tt.query)

			assert.False(t, decision.OnTopic)
			assert.Equal(t, StagePattern, decision.Stage)
			assert.Equal(t, tt.category, decision.Category)
		})
	}
	assert.Zero(t, provider.calls, "stage 1 must not spend provider calls")
}

func TestClassify_Stage2Verdicts(t *testing.T) {
	t.Run("on topic", func(t *testing.T) {
		c, err := NewClassifier(nil, WithProvider(&stubProvider{reply: "ON_TOPIC"}, stubGenConfig()))
		require.NoError(t, err)

		decision := c.Classify(context.Background(), "How often should I change my reservoir?")
		assert.True(t, decision.OnTopic)
		assert.Equal(t, StageLLM, decision.Stage)
	})

	t.Run("off topic", func(t *testing.T) {
		c, err := NewClassifier(nil, WithProvider(&stubProvider{reply: "OFF_TOPIC"}, stubGenConfig()))
		require.NoError(t, err)

		decision := c.Classify(context.Background(), "What is the meaning of life?")
		assert.False(t, decision.OnTopic)
		assert.Equal(t, StageLLM, decision.Stage)
	})

	t.Run("whitespace and case tolerated", func(t *testing.T) {
		c, err := NewClassifier(nil, WithProvider(&stubProvider{reply: "  on_topic\n"}, stubGenConfig()))
		require.NoError(t, err)

		decision := c.Classify(context.Background(), "How often should I change my reservoir?")
		assert.True(t, decision.OnTopic)
		assert.Equal(t, StageLLM, decision.Stage)
	})
}

func TestClassify_Stage2DefersToStage3(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		c, err := NewClassifier(nil, WithProvider(&stubProvider{failing: true}, stubGenConfig()))
		require.NoError(t, err)

		decision := c.Classify(context.Background(), "What EC level should I use for lettuce?")
		assert.True(t, decision.OnTopic)
		assert.Equal(t, StageKeyword, decision.Stage)
	})

	t.Run("ambiguous reply", func(t *testing.T) {
		c, err := NewClassifier(nil, WithProvider(&stubProvider{reply: "Well, it depends..."}, stubGenConfig()))
		require.NoError(t, err)

		decision := c.Classify(context.Background(), "What EC level should I use for lettuce?")
		assert.True(t, decision.OnTopic)
		assert.Equal(t, StageKeyword, decision.Stage)
	})
}

func TestClassify_Stage3Keywords(t *testing.T) {
	c, err := NewClassifier(nil) // no provider: stage 1 defers straight to 3
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("domain vocabulary passes", func(t *testing.T) {
		decision := c.Classify(ctx, "What EC level should I use for lettuce?")
		assert.True(t, decision.OnTopic)
		assert.Equal(t, StageKeyword, decision.Stage)
	})

	t.Run("off-domain vocabulary alone rejects", func(t *testing.T) {
		decision := c.Classify(ctx, "Who won the football match?")
		assert.False(t, decision.OnTopic)
		assert.Equal(t, StageKeyword, decision.Stage)
	})

	t.Run("mixed vocabulary fails open", func(t *testing.T) {
		decision := c.Classify(ctx, "Can I watch a movie while my lettuce grows?")
		assert.True(t, decision.OnTopic)
	})

	t.Run("no vocabulary at all fails open", func(t *testing.T) {
		decision := c.Classify(ctx, "Hello there!")
		assert.True(t, decision.OnTopic)
	})
}

func TestClassify_Idempotent(t *testing.T) {
	c, err := NewClassifier(nil, WithProvider(&stubProvider{reply: "OFF_TOPIC"}, stubGenConfig()))
	require.NoError(t, err)
	ctx := context.Background()

	first := c.Classify(ctx, "Tell me a story about dragons")
	second := c.Classify(ctx, "Tell me a story about dragons")

	assert.Equal(t, first, second)
}

func TestLoadRules_Invalid(t *testing.T) {
	_, err := loadRules([]byte("categories:\n  - name: broken\n    patterns:\n      - '['\n"))
	assert.Error(t, err)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t,
		[]string{"what", "ph", "for", "lettuce"},
		tokenize("What pH for lettuce?"))
}
