// Package chat orchestrates one conversational turn: guardrail, retrieval,
// prompt assembly, generation, and history bookkeeping.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/verdantlabs/hydrochat/internal/config"
	"github.com/verdantlabs/hydrochat/internal/conversation"
	"github.com/verdantlabs/hydrochat/internal/guardrail"
	"github.com/verdantlabs/hydrochat/internal/llm"
	"github.com/verdantlabs/hydrochat/internal/retrieval"
)

// ErrEmptyMessage indicates a blank user message.
var ErrEmptyMessage = errors.New("empty message")

// ProviderResolver resolves a generation provider by name. *llm.Registry
// satisfies it.
type ProviderResolver interface {
	Get(name string) (llm.Provider, error)
}

// titleLimit bounds conversation titles derived from the first message.
const titleLimit = 60

// Service composes the per-turn pipeline. Order matters: the guardrail runs
// before retrieval and generation, so off-topic queries never spend provider
// budget.
type Service struct {
	classifier    *guardrail.Classifier
	retriever     *retrieval.Retriever
	registry      ProviderResolver
	conversations conversation.Store
	llmCfg        config.LLMConfig
	historyWindow int
	logger        *zap.Logger
}

// NewService creates the chat orchestrator.
func NewService(
	classifier *guardrail.Classifier,
	retriever *retrieval.Retriever,
	registry ProviderResolver,
	conversations conversation.Store,
	llmCfg config.LLMConfig,
	chatCfg config.ChatConfig,
	logger *zap.Logger,
) (*Service, error) {
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if registry == nil {
		return nil, errors.New("llm registry is required")
	}
	if conversations == nil {
		return nil, errors.New("conversation store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		classifier:    classifier,
		retriever:     retriever,
		registry:      registry,
		conversations: conversations,
		llmCfg:        llmCfg,
		historyWindow: chatCfg.HistoryWindow,
		logger:        logger,
	}, nil
}

// TurnRequest is one user message with its per-request options.
type TurnRequest struct {
	// ConversationID continues an existing conversation; empty starts one.
	ConversationID string

	// SessionID identifies the caller's session; used as the owner key for
	// new conversations.
	SessionID string

	// Message is the user's message text.
	Message string

	// UseRetrieval toggles knowledge-base grounding for this turn. Disabled
	// turns skip search and get the open system prompt.
	UseRetrieval bool

	// Generation overrides the configured generation defaults when non-nil.
	Generation *GenerationOverrides
}

// GenerationOverrides selectively replaces the configured generation
// parameters for one request. Zero-valued fields keep the defaults;
// Temperature is a pointer because zero is a valid temperature.
type GenerationOverrides struct {
	Provider    string
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Response is the outcome of one synchronous turn.
type Response struct {
	ConversationID   string                `json:"conversation_id"`
	Message          *conversation.Message `json:"message"`
	OffTopic         bool                  `json:"off_topic"`
	RetrievalUsed    bool                  `json:"retrieval_used"`
	SourceCount      int                   `json:"source_count"`
	SourceCategories []string              `json:"source_categories,omitempty"`
}

// Respond handles one user message synchronously.
func (s *Service) Respond(ctx context.Context, req TurnRequest) (*Response, error) {
	turn, err := s.prepareTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	if !turn.decision.OnTopic {
		return s.persistTurn(ctx, turn, refusalFor(turn.decision.Category), nil)
	}

	provider, genCfg, err := s.generationTarget(req.Generation)
	if err != nil {
		return nil, err
	}

	reply, err := provider.Generate(ctx, llm.Request{
		Messages: turn.prompt,
		Config:   genCfg,
		Context:  turn.assembled.ContextBlock,
	})
	if err != nil {
		return nil, fmt.Errorf("generating reply: %w", err)
	}

	return s.persistTurn(ctx, turn, reply, &genCfg)
}

// StreamResponse is the outcome of one streaming turn. Fragments arrive on
// the channel; once it closes, Wait returns the persisted assistant message.
type StreamResponse struct {
	ConversationID string
	OffTopic       bool

	fragments chan llm.Fragment
	done      chan struct{}
	message   *conversation.Message
	err       error
}

// Fragments returns the reply fragment channel.
func (r *StreamResponse) Fragments() <-chan llm.Fragment {
	return r.fragments
}

// Wait blocks until the stream has been fully consumed and persisted, then
// returns the assistant message.
func (r *StreamResponse) Wait() (*conversation.Message, error) {
	<-r.done
	return r.message, r.err
}

// RespondStream handles one user message with a streamed reply. The turn is
// persisted only when the provider stream completes; a canceled or failed
// stream persists nothing, so no partial assistant turn ever reaches history.
func (s *Service) RespondStream(ctx context.Context, req TurnRequest) (*StreamResponse, error) {
	turn, err := s.prepareTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &StreamResponse{
		ConversationID: turn.conversationID,
		OffTopic:       !turn.decision.OnTopic,
		fragments:      make(chan llm.Fragment, 16),
		done:           make(chan struct{}),
	}

	if !turn.decision.OnTopic {
		// A refusal streams as a single fragment; no provider involved.
		go func() {
			defer close(resp.done)
			refusal := refusalFor(turn.decision.Category)
			resp.fragments <- llm.Fragment{Content: refusal}
			close(resp.fragments)

			persisted, err := s.persistTurn(ctx, turn, refusal, nil)
			if err != nil {
				resp.err = err
				return
			}
			resp.message = persisted.Message
		}()
		return resp, nil
	}

	provider, genCfg, err := s.generationTarget(req.Generation)
	if err != nil {
		return nil, err
	}

	stream, err := provider.GenerateStream(ctx, llm.Request{
		Messages: turn.prompt,
		Config:   genCfg,
		Context:  turn.assembled.ContextBlock,
	})
	if err != nil {
		return nil, fmt.Errorf("starting generation stream: %w", err)
	}

	go func() {
		defer close(resp.done)
		defer stream.Cancel()

		var full strings.Builder
		for fragment := range stream.Fragments() {
			select {
			case resp.fragments <- fragment:
			case <-ctx.Done():
				close(resp.fragments)
				resp.err = ctx.Err()
				return
			}
			if fragment.Err != nil {
				close(resp.fragments)
				resp.err = fragment.Err
				return
			}
			full.WriteString(fragment.Content)
		}
		close(resp.fragments)

		reply := full.String()
		if reply == "" {
			reply = llm.NoResponse
		}
		persisted, err := s.persistTurn(ctx, turn, reply, &genCfg)
		if err != nil {
			resp.err = err
			return
		}
		resp.message = persisted.Message
	}()

	return resp, nil
}

// turn carries the state shared by the sync and streaming paths.
type turn struct {
	conversationID string
	text           string
	decision       guardrail.Decision
	retrievalUsed  bool
	assembled      retrieval.AssembledContext
	prompt         []llm.Message
}

// prepareTurn resolves the conversation, classifies the query, and — for
// on-topic queries — retrieves context (when enabled) and builds the prompt
// window.
func (s *Service) prepareTurn(ctx context.Context, req TurnRequest) (*turn, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conv, err := s.conversations.Create(ctx, req.SessionID, deriveTitle(text))
		if err != nil {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
		conversationID = conv.ID
	} else if _, err := s.conversations.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	t := &turn{conversationID: conversationID, text: text}

	t.decision = s.classifier.Classify(ctx, text)
	if !t.decision.OnTopic {
		s.logger.Info("query rejected by guardrail",
			zap.String("conversation_id", conversationID),
			zap.String("stage", string(t.decision.Stage)),
			zap.String("category", t.decision.Category))
		return t, nil
	}

	if req.UseRetrieval {
		results, err := s.retriever.Retrieve(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("retrieving context: %w", err)
		}
		t.retrievalUsed = true
		t.assembled = s.retriever.Assemble(results)
	}

	history, err := s.conversations.Messages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	t.prompt = append(windowHistory(history, s.historyWindow), llm.Message{
		Role:    llm.RoleUser,
		Content: text,
	})

	return t, nil
}

// persistTurn appends the user and assistant turns with provenance metadata.
func (s *Service) persistTurn(ctx context.Context, t *turn, reply string, genCfg *llm.GenerateConfig) (*Response, error) {
	if _, err := s.conversations.AppendMessage(ctx, t.conversationID, llm.RoleUser, t.text, nil); err != nil {
		return nil, fmt.Errorf("persisting user turn: %w", err)
	}

	metadata := &conversation.Metadata{
		GuardrailStage:    string(t.decision.Stage),
		GuardrailCategory: t.decision.Category,
		OffTopic:          !t.decision.OnTopic,
		SourceCount:       t.assembled.ChunkCount,
		Categories:        t.assembled.Categories,
		FromKnowledgeBase: t.assembled.FromKnowledgeBase,
	}
	if genCfg != nil {
		metadata.Provider = genCfg.Provider
		metadata.Model = genCfg.Model
	}

	msg, err := s.conversations.AppendMessage(ctx, t.conversationID, llm.RoleAssistant, reply, metadata)
	if err != nil {
		return nil, fmt.Errorf("persisting assistant turn: %w", err)
	}

	return &Response{
		ConversationID:   t.conversationID,
		Message:          msg,
		OffTopic:         !t.decision.OnTopic,
		RetrievalUsed:    t.retrievalUsed,
		SourceCount:      t.assembled.ChunkCount,
		SourceCategories: t.assembled.Categories,
	}, nil
}

// generationTarget resolves the provider and request parameters, applying
// per-request overrides on top of the configured defaults. The merged
// configuration is validated before any provider is resolved.
func (s *Service) generationTarget(overrides *GenerationOverrides) (llm.Provider, llm.GenerateConfig, error) {
	genCfg := llm.GenerateConfig{
		Provider:    s.llmCfg.DefaultProvider,
		Model:       s.llmCfg.DefaultModel,
		Temperature: s.llmCfg.Temperature,
		MaxTokens:   s.llmCfg.MaxTokens,
	}
	if overrides != nil {
		if overrides.Provider != "" && overrides.Provider != genCfg.Provider {
			// Switching provider invalidates the default model; fall back to
			// the requested provider's configured model unless one is given.
			genCfg.Provider = overrides.Provider
			genCfg.Model = s.configuredModel(overrides.Provider)
		}
		if overrides.Model != "" {
			genCfg.Model = overrides.Model
		}
		if overrides.Temperature != nil {
			genCfg.Temperature = *overrides.Temperature
		}
		if overrides.MaxTokens > 0 {
			genCfg.MaxTokens = overrides.MaxTokens
		}
	}
	if err := genCfg.Validate(); err != nil {
		return nil, genCfg, err
	}

	provider, err := s.registry.Get(genCfg.Provider)
	if err != nil {
		return nil, genCfg, err
	}
	return provider, genCfg, nil
}

// configuredModel returns the configured model for a provider, or "" when
// the provider is unknown.
func (s *Service) configuredModel(provider string) string {
	switch provider {
	case llm.ProviderAnthropic:
		return s.llmCfg.Anthropic.Model
	case llm.ProviderOpenAI:
		return s.llmCfg.OpenAI.Model
	case llm.ProviderOllama:
		return s.llmCfg.Ollama.Model
	}
	return ""
}

func deriveTitle(text string) string {
	if len(text) <= titleLimit {
		return text
	}
	return strings.TrimSpace(text[:titleLimit]) + "..."
}
