package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantlabs/hydrochat/internal/config"
	"github.com/verdantlabs/hydrochat/internal/conversation"
	"github.com/verdantlabs/hydrochat/internal/embeddings"
	"github.com/verdantlabs/hydrochat/internal/guardrail"
	"github.com/verdantlabs/hydrochat/internal/llm"
	"github.com/verdantlabs/hydrochat/internal/retrieval"
	"github.com/verdantlabs/hydrochat/internal/vectorstore"
)

// stubLLM records requests and answers deterministically, fragmenting the
// same reply for the streaming path.
type stubLLM struct {
	mu       sync.Mutex
	reply    string
	requests []llm.Request
}

func (s *stubLLM) Name() string { return "stub" }

func (s *stubLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.reply, nil
}

func (s *stubLLM) GenerateStream(ctx context.Context, req llm.Request) (*llm.Stream, error) {
	text, err := s.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	fragments := make([]llm.Fragment, 0, len(text)/4+1)
	for i := 0; i < len(text); i += 4 {
		end := i + 4
		if end > len(text) {
			end = len(text)
		}
		fragments = append(fragments, llm.Fragment{Content: text[i:end]})
	}
	return llm.NewBufferedStream(fragments...), nil
}

func (s *stubLLM) Close() error { return nil }

func (s *stubLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubLLM) lastRequest() llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

// stubResolver returns the same provider for every name and records the
// names requested.
type stubResolver struct {
	provider llm.Provider
	names    []string
}

func (r *stubResolver) Get(name string) (llm.Provider, error) {
	r.names = append(r.names, name)
	return r.provider, nil
}

type fixture struct {
	service       *Service
	provider      *stubLLM
	resolver      *stubResolver
	conversations *conversation.MemoryStore
	store         *vectorstore.MemoryStore
}

// respond runs one retrieval-enabled synchronous turn.
func (f *fixture) respond(conversationID, message string) (*Response, error) {
	return f.service.Respond(context.Background(), TurnRequest{
		ConversationID: conversationID,
		SessionID:      "session-1",
		Message:        message,
		UseRetrieval:   true,
	})
}

// respondStream runs one retrieval-enabled streaming turn.
func (f *fixture) respondStream(message string) (*StreamResponse, error) {
	return f.service.RespondStream(context.Background(), TurnRequest{
		SessionID:    "session-1",
		Message:      message,
		UseRetrieval: true,
	})
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	classifier, err := guardrail.NewClassifier(nil) // stages 1 and 3 only
	require.NoError(t, err)

	store := vectorstore.NewMemoryStore(nil)
	embedder := embeddings.NewLocalProvider(64)
	retriever, err := retrieval.NewRetriever(embedder, store, config.RetrievalConfig{
		TopK:           5,
		MinSimilarity:  0.1,
		HighConfidence: 0.5,
		Scope:          "knowledge-base",
	}, nil)
	require.NoError(t, err)

	provider := &stubLLM{reply: "Keep pH between 5.5 and 6.5."}
	resolver := &stubResolver{provider: provider}
	conversations := conversation.NewMemoryStore()

	service, err := NewService(
		classifier,
		retriever,
		resolver,
		conversations,
		config.LLMConfig{
			DefaultProvider: llm.ProviderAnthropic,
			DefaultModel:    "claude-3-5-haiku-20241022",
			Temperature:     0.7,
			MaxTokens:       1024,
			Anthropic:       config.AnthropicConfig{Model: "claude-3-5-haiku-20241022"},
			OpenAI:          config.OpenAILLMConfig{Model: "gpt-4o-mini"},
			Ollama:          config.OllamaLLMConfig{Model: "llama3.2"},
		},
		config.ChatConfig{HistoryWindow: 10},
		nil,
	)
	require.NoError(t, err)

	return &fixture{
		service:       service,
		provider:      provider,
		resolver:      resolver,
		conversations: conversations,
		store:         store,
	}
}

// seedKnowledgeBase stores a chunk embedded with the same local embedder the
// retriever uses, so queries with shared vocabulary rank it highly.
func (f *fixture) seedKnowledgeBase(t *testing.T, title, content string) {
	t.Helper()
	embedder := embeddings.NewLocalProvider(64)
	vector, err := embedder.EmbedQuery(context.Background(), content)
	require.NoError(t, err)

	require.NoError(t, f.store.AppendChunks(context.Background(), []vectorstore.Chunk{{
		ID:            "seed-1",
		DocumentID:    "doc-1",
		DocumentTitle: title,
		Content:       content,
		Scope:         "knowledge-base",
		Embedding:     vector,
	}}))
}

func TestRespond_OffTopicShortCircuits(t *testing.T) {
	f := newFixture(t)

	resp, err := f.respond("", "Can Batman grow tomatoes hydroponically?")
	require.NoError(t, err)

	assert.True(t, resp.OffTopic)
	assert.False(t, resp.RetrievalUsed)
	assert.Equal(t, refusalFor("fiction"), resp.Message.Content)
	assert.Zero(t, f.provider.callCount(), "off-topic must not spend provider calls")

	require.NotNil(t, resp.Message.Metadata)
	assert.Equal(t, string(guardrail.StagePattern), resp.Message.Metadata.GuardrailStage)
	assert.Equal(t, "fiction", resp.Message.Metadata.GuardrailCategory)
	assert.True(t, resp.Message.Metadata.OffTopic)

	msgs, err := f.conversations.Messages(context.Background(), resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
}

func TestRespond_GroundedTurn(t *testing.T) {
	f := newFixture(t)
	f.seedKnowledgeBase(t, "Nutrients - pH Targets", "pH for lettuce nutrient solution is 5.5 to 6.5")

	resp, err := f.respond("", "What pH for lettuce nutrient solution?")
	require.NoError(t, err)

	assert.False(t, resp.OffTopic)
	assert.Equal(t, "Keep pH between 5.5 and 6.5.", resp.Message.Content)
	assert.True(t, resp.RetrievalUsed)
	assert.Equal(t, 1, resp.SourceCount)
	assert.Equal(t, []string{"Nutrients"}, resp.SourceCategories)

	require.NotNil(t, resp.Message.Metadata)
	assert.Equal(t, 1, resp.Message.Metadata.SourceCount)
	assert.Equal(t, []string{"Nutrients"}, resp.Message.Metadata.Categories)
	assert.Equal(t, llm.ProviderAnthropic, resp.Message.Metadata.Provider)

	req := f.provider.lastRequest()
	assert.Contains(t, req.Context, "Source: Nutrients - pH Targets")
}

func TestRespond_UngroundedTurnUsesOpenPrompt(t *testing.T) {
	f := newFixture(t) // empty knowledge base

	resp, err := f.respond("", "What pH for lettuce?")
	require.NoError(t, err)

	assert.False(t, resp.OffTopic)
	assert.False(t, resp.Message.Metadata.FromKnowledgeBase)
	assert.Empty(t, f.provider.lastRequest().Context)
}

func TestRespond_RetrievalDisabled(t *testing.T) {
	f := newFixture(t)
	f.seedKnowledgeBase(t, "Nutrients - pH Targets", "pH for lettuce nutrient solution is 5.5 to 6.5")

	resp, err := f.service.Respond(context.Background(), TurnRequest{
		SessionID:    "session-1",
		Message:      "What pH for lettuce nutrient solution?",
		UseRetrieval: false,
	})
	require.NoError(t, err)

	// The matching chunk stays out of the prompt when retrieval is off.
	assert.Empty(t, f.provider.lastRequest().Context)
	assert.False(t, resp.RetrievalUsed)
	assert.Zero(t, resp.SourceCount)
	assert.Empty(t, resp.SourceCategories)
	assert.Zero(t, resp.Message.Metadata.SourceCount)
	assert.False(t, resp.Message.Metadata.FromKnowledgeBase)
}

func TestRespond_ProviderOverride(t *testing.T) {
	f := newFixture(t)

	temp := 0.2
	resp, err := f.service.Respond(context.Background(), TurnRequest{
		SessionID:    "session-1",
		Message:      "What pH for lettuce?",
		UseRetrieval: true,
		Generation: &GenerationOverrides{
			Provider:    llm.ProviderOllama,
			Temperature: &temp,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{llm.ProviderOllama}, f.resolver.names)
	assert.Equal(t, llm.ProviderOllama, resp.Message.Metadata.Provider)
	// Switching provider picks up that provider's configured model.
	assert.Equal(t, "llama3.2", resp.Message.Metadata.Model)
	assert.Equal(t, 0.2, f.provider.lastRequest().Config.Temperature)
	assert.Equal(t, 1024, f.provider.lastRequest().Config.MaxTokens)
}

func TestRespond_ProviderOverrideValidated(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Respond(context.Background(), TurnRequest{
		SessionID:    "session-1",
		Message:      "What pH for lettuce?",
		UseRetrieval: true,
		Generation:   &GenerationOverrides{Provider: "grok"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrInvalidConfig)
	assert.Zero(t, f.provider.callCount())
}

func TestRespond_ContinuesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.respond("", "What pH for lettuce?")
	require.NoError(t, err)

	_, err = f.respond(first.ConversationID, "And what about EC for the same plants?")
	require.NoError(t, err)

	// Second request carries the first pair as history plus the new turn.
	req := f.provider.lastRequest()
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "What pH for lettuce?", req.Messages[0].Content)
	assert.Equal(t, llm.RoleAssistant, req.Messages[1].Role)
	assert.Equal(t, "And what about EC for the same plants?", req.Messages[2].Content)

	msgs, err := f.conversations.Messages(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestRespond_EmptyMessage(t *testing.T) {
	f := newFixture(t)

	_, err := f.respond("", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestRespond_UnknownConversation(t *testing.T) {
	f := newFixture(t)

	_, err := f.respond("missing", "What pH for lettuce?")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestRespondStream_MatchesSync(t *testing.T) {
	f := newFixture(t)

	stream, err := f.respondStream("What pH for lettuce?")
	require.NoError(t, err)

	var collected string
	for fragment := range stream.Fragments() {
		require.NoError(t, fragment.Err)
		collected += fragment.Content
	}

	msg, err := stream.Wait()
	require.NoError(t, err)
	assert.Equal(t, f.provider.reply, collected)
	assert.Equal(t, collected, msg.Content)

	msgs, err := f.conversations.Messages(context.Background(), stream.ConversationID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestRespondStream_OffTopicStreamsRefusal(t *testing.T) {
	f := newFixture(t)

	stream, err := f.respondStream("Do plants feel lonely at night?")
	require.NoError(t, err)
	assert.True(t, stream.OffTopic)

	var collected string
	for fragment := range stream.Fragments() {
		require.NoError(t, fragment.Err)
		collected += fragment.Content
	}

	_, err = stream.Wait()
	require.NoError(t, err)
	assert.Equal(t, refusalFor("personification"), collected)
	assert.Zero(t, f.provider.callCount())
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "short", deriveTitle("short"))

	long := deriveTitle("This is a very long first message that should definitely be cut down to a title")
	assert.LessOrEqual(t, len(long), titleLimit+3)
	assert.Contains(t, long, "...")
}
