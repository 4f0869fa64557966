package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verdantlabs/hydrochat/internal/chat"
	"github.com/verdantlabs/hydrochat/internal/chunker"
	"github.com/verdantlabs/hydrochat/internal/config"
	"github.com/verdantlabs/hydrochat/internal/conversation"
	"github.com/verdantlabs/hydrochat/internal/embeddings"
	"github.com/verdantlabs/hydrochat/internal/guardrail"
	"github.com/verdantlabs/hydrochat/internal/ingest"
	"github.com/verdantlabs/hydrochat/internal/llm"
	"github.com/verdantlabs/hydrochat/internal/retrieval"
	"github.com/verdantlabs/hydrochat/internal/vectorstore"
)

// echoLLM replies with a fixed string, fragmented for the streaming path,
// and records the last request for assertions.
type echoLLM struct {
	reply   string
	lastReq llm.Request
}

func (e *echoLLM) Name() string { return "stub" }

func (e *echoLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	e.lastReq = req
	return e.reply, nil
}

func (e *echoLLM) GenerateStream(_ context.Context, req llm.Request) (*llm.Stream, error) {
	e.lastReq = req
	half := len(e.reply) / 2
	return llm.NewBufferedStream(
		llm.Fragment{Content: e.reply[:half]},
		llm.Fragment{Content: e.reply[half:]},
	), nil
}

func (e *echoLLM) Close() error { return nil }

// resolver returns the same provider for every name, recording the names.
type resolver struct {
	provider llm.Provider
	names    []string
}

func (r *resolver) Get(name string) (llm.Provider, error) {
	r.names = append(r.names, name)
	return r.provider, nil
}

type testEnv struct {
	server   *Server
	provider *echoLLM
	resolver *resolver
	store    *vectorstore.MemoryStore
	embedder *embeddings.LocalProvider
}

// seedChunk stores one knowledge-base chunk embedded with the same local
// embedder the retriever uses.
func (env *testEnv) seedChunk(t *testing.T, title, content string) {
	t.Helper()
	vector, err := env.embedder.EmbedQuery(context.Background(), content)
	require.NoError(t, err)
	require.NoError(t, env.store.AppendChunks(context.Background(), []vectorstore.Chunk{{
		ID:            "seed-1",
		DocumentTitle: title,
		Content:       content,
		Scope:         "knowledge-base",
		Embedding:     vector,
	}}))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	classifier, err := guardrail.NewClassifier(nil)
	require.NoError(t, err)

	embedder := embeddings.NewLocalProvider(64)
	store := vectorstore.NewMemoryStore(nil)
	retriever, err := retrieval.NewRetriever(embedder, store, config.RetrievalConfig{
		TopK:           5,
		MinSimilarity:  0.1,
		HighConfidence: 0.5,
		Scope:          "knowledge-base",
	}, nil)
	require.NoError(t, err)

	provider := &echoLLM{reply: "Keep pH between 5.5 and 6.5."}
	res := &resolver{provider: provider}

	chatSvc, err := chat.NewService(
		classifier,
		retriever,
		res,
		conversation.NewMemoryStore(),
		config.LLMConfig{
			DefaultProvider: llm.ProviderAnthropic,
			DefaultModel:    "claude-3-5-haiku-20241022",
			Temperature:     0.7,
			MaxTokens:       1024,
			Ollama:          config.OllamaLLMConfig{Model: "llama3.2"},
		},
		config.ChatConfig{HistoryWindow: 10},
		nil,
	)
	require.NoError(t, err)

	ingestSvc, err := ingest.NewService(chunker.New(chunker.DefaultConfig()), embedder, store, nil)
	require.NoError(t, err)

	server, err := NewServer(chatSvc, ingestSvc, config.ServerConfig{Host: "localhost", Port: 0}, zap.NewNop())
	require.NoError(t, err)
	return &testEnv{
		server:   server,
		provider: provider,
		resolver: res,
		store:    store,
		embedder: embedder,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestEnv(t).server
}

func doJSON(t *testing.T, server *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleChat(t *testing.T) {
	env := newTestEnv(t)
	env.seedChunk(t, "Nutrients - pH Targets", "pH for lettuce nutrient solution is 5.5 to 6.5")

	rec := doJSON(t, env.server, http.MethodPost, "/api/v1/chat",
		`{"session_id":"s1","message":"What pH for lettuce nutrient solution?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chat.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ConversationID)
	assert.False(t, resp.OffTopic)
	assert.Equal(t, "Keep pH between 5.5 and 6.5.", resp.Message.Content)

	// Retrieval defaults to enabled and is reported at the top level.
	assert.True(t, resp.RetrievalUsed)
	assert.Equal(t, 1, resp.SourceCount)
	assert.Equal(t, []string{"Nutrients"}, resp.SourceCategories)
	assert.Contains(t, env.provider.lastReq.Context, "Source: Nutrients - pH Targets")
}

func TestHandleChat_RetrievalDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.seedChunk(t, "Nutrients - pH Targets", "pH for lettuce nutrient solution is 5.5 to 6.5")

	rec := doJSON(t, env.server, http.MethodPost, "/api/v1/chat",
		`{"session_id":"s1","message":"What pH for lettuce nutrient solution?","use_retrieval":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chat.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.RetrievalUsed)
	assert.Zero(t, resp.SourceCount)
	assert.Empty(t, env.provider.lastReq.Context,
		"disabled retrieval must not inject context")
}

func TestHandleChat_ProviderConfig(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.server, http.MethodPost, "/api/v1/chat",
		`{"session_id":"s1","message":"What pH for lettuce?","provider_config":{"provider":"ollama","temperature":0.1}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotEmpty(t, env.resolver.names)
	assert.Equal(t, llm.ProviderOllama, env.resolver.names[len(env.resolver.names)-1])
	assert.Equal(t, llm.ProviderOllama, env.provider.lastReq.Config.Provider)
	assert.Equal(t, "llama3.2", env.provider.lastReq.Config.Model)
	assert.Equal(t, 0.1, env.provider.lastReq.Config.Temperature)

	// Unknown providers are rejected before any generation call.
	rec = doJSON(t, env.server, http.MethodPost, "/api/v1/chat",
		`{"session_id":"s1","message":"What pH for lettuce?","provider_config":{"provider":"grok"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_OffTopic(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/chat",
		`{"session_id":"s1","message":"Can Batman grow tomatoes hydroponically?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chat.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OffTopic)
}

func TestHandleChat_Validation(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/chat", `{"session_id":"s1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/api/v1/chat",
		`{"session_id":"s1","conversation_id":"missing","message":"What pH for lettuce?"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleChatStream(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/chat/stream",
		`{"session_id":"s1","message":"What pH for lettuce?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	body := rec.Body.String()
	assert.Contains(t, body, "event: chunk")
	assert.Contains(t, body, "event: complete")
	assert.NotContains(t, body, "event: error")

	// Concatenated chunk payloads equal the synchronous reply, and the
	// complete event carries the same text in full.
	var collected, fullText string
	var eventName string
	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var event streamEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
			switch eventName {
			case "chunk":
				collected += event.Content
			case "complete":
				fullText = event.FullText
				assert.NotEmpty(t, event.ConversationID)
			}
		}
	}
	assert.Equal(t, "Keep pH between 5.5 and 6.5.", collected)
	assert.Equal(t, collected, fullText)
}

func TestHandleIngest(t *testing.T) {
	server := newTestServer(t)

	payload, err := json.Marshal(IngestRequest{
		Title: "Nutrients - pH Targets",
		Content: strings.Repeat(
			"Lettuce in deep water culture wants a pH between five point five and six point five. ", 10),
	})
	require.NoError(t, err)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/documents", string(payload))
	require.Equal(t, http.StatusCreated, rec.Code)

	var result ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.DocumentID)
	assert.Greater(t, result.ChunkCount, 0)
}

func TestHandleIngest_Validation(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/documents", `{"title":"Empty"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMetrics(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
