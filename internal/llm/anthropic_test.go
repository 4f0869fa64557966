package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantlabs/hydrochat/internal/config"
)

func anthropicTestProvider(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAnthropicProvider(config.AnthropicConfig{
		BaseURL: server.URL,
		APIKey:  "sk-test",
	}, 5*time.Second, nil)
}

func anthropicRequestOf(t *testing.T) Request {
	t.Helper()
	return Request{
		Messages: []Message{{Role: RoleUser, Content: "What EC for lettuce?"}},
		Config: GenerateConfig{
			Provider:    ProviderAnthropic,
			Model:       "claude-3-5-haiku-20241022",
			Temperature: 0.7,
			MaxTokens:   512,
		},
	}
}

func TestAnthropicProvider_Generate(t *testing.T) {
	p := anthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var wire anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&wire))
		assert.NotEmpty(t, wire.System) // system prompt travels out of band
		require.Len(t, wire.Messages, 1)
		assert.Equal(t, "user", wire.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "EC 1.2 to "},
				{"type": "text", "text": "1.8 mS/cm."},
			},
		})
	})

	text, err := p.Generate(context.Background(), anthropicRequestOf(t))
	require.NoError(t, err)
	assert.Equal(t, "EC 1.2 to 1.8 mS/cm.", text)
}

func TestAnthropicProvider_EmptyReplyYieldsSentinel(t *testing.T) {
	p := anthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"content": []any{}})
	})

	text, err := p.Generate(context.Background(), anthropicRequestOf(t))
	require.NoError(t, err)
	assert.Equal(t, NoResponse, text)
}

func TestAnthropicProvider_HTTPErrorFails(t *testing.T) {
	p := anthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := p.Generate(context.Background(), anthropicRequestOf(t))
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestAnthropicProvider_InvalidConfigRejectedBeforeDispatch(t *testing.T) {
	called := false
	p := anthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := anthropicRequestOf(t)
	req.Config.Temperature = 3

	_, err := p.Generate(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.False(t, called)
}

func TestAnthropicProvider_GenerateStream(t *testing.T) {
	p := anthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`event: content_block_delta
data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"EC 1.2"}}

event: content_block_delta
data: {"type":"content_block_delta","delta":{"type":"text_delta","text":" to 1.8."}}

event: message_stop
data: {"type":"message_stop"}

`))
	})

	stream, err := p.GenerateStream(context.Background(), anthropicRequestOf(t))
	require.NoError(t, err)

	text, err := Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "EC 1.2 to 1.8.", text)
}

func TestAnthropicProvider_StreamErrorEvent(t *testing.T) {
	p := anthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`event: error
data: {"type":"error","error":{"type":"overloaded_error","message":"try later"}}

`))
	})

	stream, err := p.GenerateStream(context.Background(), anthropicRequestOf(t))
	require.NoError(t, err)

	_, err = Collect(stream)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}
