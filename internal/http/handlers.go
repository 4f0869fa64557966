package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/verdantlabs/hydrochat/internal/chat"
	"github.com/verdantlabs/hydrochat/internal/conversation"
	"github.com/verdantlabs/hydrochat/internal/ingest"
	"github.com/verdantlabs/hydrochat/internal/llm"
	"github.com/verdantlabs/hydrochat/internal/vectorstore"
)

// ChatRequest is the request body for POST /api/v1/chat and /chat/stream.
type ChatRequest struct {
	// ConversationID continues an existing conversation; empty starts one.
	ConversationID string `json:"conversation_id,omitempty"`

	// SessionID identifies the caller's session.
	SessionID string `json:"session_id"`

	// Message is the user's message text.
	Message string `json:"message"`

	// UseRetrieval toggles knowledge-base grounding; omitted means enabled.
	UseRetrieval *bool `json:"use_retrieval,omitempty"`

	// ProviderConfig overrides the server's generation defaults for this
	// request only.
	ProviderConfig *ProviderConfig `json:"provider_config,omitempty"`
}

// ProviderConfig is the per-request generation configuration. Omitted fields
// keep the server defaults; temperature is a pointer so an explicit zero
// survives decoding.
type ProviderConfig struct {
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// turnRequest maps the wire request onto the chat service's request type.
func (r ChatRequest) turnRequest() chat.TurnRequest {
	req := chat.TurnRequest{
		ConversationID: r.ConversationID,
		SessionID:      r.SessionID,
		Message:        r.Message,
		UseRetrieval:   r.UseRetrieval == nil || *r.UseRetrieval,
	}
	if r.ProviderConfig != nil {
		req.Generation = &chat.GenerationOverrides{
			Provider:    r.ProviderConfig.Provider,
			Model:       r.ProviderConfig.Model,
			Temperature: r.ProviderConfig.Temperature,
			MaxTokens:   r.ProviderConfig.MaxTokens,
		}
	}
	return req
}

// handleChat answers one message synchronously.
func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message field is required")
	}

	resp, err := s.chat.Respond(c.Request().Context(), req.turnRequest())
	if err != nil {
		return s.chatError(err)
	}

	return c.JSON(http.StatusOK, resp)
}

// streamEvent is one SSE payload on /api/v1/chat/stream. FullText is set
// only on the complete event and carries the full accumulated reply.
type streamEvent struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	FullText       string `json:"full_text,omitempty"`
	OffTopic       bool   `json:"off_topic,omitempty"`
	Error          string `json:"error,omitempty"`
}

// handleChatStream answers one message as server-sent events: zero or more
// "chunk" events, then "complete" or "error".
func (s *Server) handleChatStream(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message field is required")
	}

	stream, err := s.chat.RespondStream(c.Request().Context(), req.turnRequest())
	if err != nil {
		return s.chatError(err)
	}

	response := c.Response()
	response.Header().Set(echo.HeaderContentType, "text/event-stream")
	response.Header().Set("Cache-Control", "no-cache")
	response.Header().Set("Connection", "keep-alive")
	response.WriteHeader(http.StatusOK)

	for fragment := range stream.Fragments() {
		if fragment.Err != nil {
			writeSSE(response, "error", streamEvent{Error: fragment.Err.Error()})
			return nil
		}
		writeSSE(response, "chunk", streamEvent{Content: fragment.Content})
	}

	message, err := stream.Wait()
	if err != nil {
		writeSSE(response, "error", streamEvent{Error: err.Error()})
		return nil
	}

	writeSSE(response, "complete", streamEvent{
		ConversationID: stream.ConversationID,
		FullText:       message.Content,
		OffTopic:       stream.OffTopic,
	})
	return nil
}

// writeSSE writes one event and flushes it so fragments reach the client as
// they arrive.
func writeSSE(response *echo.Response, event string, payload streamEvent) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(response, "event: %s\ndata: %s\n\n", event, data)
	response.Flush()
}

// IngestRequest is the request body for POST /api/v1/documents.
type IngestRequest struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// handleIngest chunks, embeds, and stores one document.
func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	scope := req.Scope
	if scope == "" {
		scope = "knowledge-base"
	}

	result, err := s.ingest.Ingest(c.Request().Context(), vectorstore.Document{
		Title:       req.Title,
		Content:     req.Content,
		ContentType: req.ContentType,
		Scope:       scope,
	})
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyDocument) {
			return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
		}
		s.logger.Error("ingestion failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "ingestion failed")
	}

	return c.JSON(http.StatusCreated, result)
}

// chatError maps pipeline errors to HTTP status codes.
func (s *Server) chatError(err error) error {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return echo.NewHTTPError(http.StatusBadRequest, "message field is required")
	case errors.Is(err, llm.ErrInvalidConfig):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, llm.ErrNotConfigured):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	default:
		s.logger.Error("chat request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "chat request failed")
	}
}
