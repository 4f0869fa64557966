// Package conversation stores chat conversations and their messages.
// Messages are created once and never mutated; creation order is the sole
// ordering key.
package conversation

import (
	"time"

	"github.com/verdantlabs/hydrochat/internal/llm"
)

// Conversation is one chat session.
type Conversation struct {
	// ID is the unique conversation identifier.
	ID string `json:"id"`

	// OwnerKey identifies the owning session or user.
	OwnerKey string `json:"owner_key"`

	// Title is optional, typically derived from the first user message.
	Title string `json:"title,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metadata carries per-message provenance: how the guardrail ruled, what was
// retrieved, which provider answered. Attached to the message it describes
// and never treated as authoritative state afterward.
type Metadata struct {
	// Guardrail provenance.
	GuardrailStage    string `json:"guardrail_stage,omitempty"`
	GuardrailCategory string `json:"guardrail_category,omitempty"`
	OffTopic          bool   `json:"off_topic,omitempty"`

	// Retrieval provenance.
	SourceCount       int      `json:"source_count,omitempty"`
	Categories        []string `json:"categories,omitempty"`
	FromKnowledgeBase bool     `json:"from_knowledge_base,omitempty"`

	// Generation provenance.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Message is one turn in a conversation.
type Message struct {
	// ID is the unique message identifier.
	ID string `json:"id"`

	// ConversationID references the parent conversation.
	ConversationID string `json:"conversation_id"`

	// Role is the author: user, assistant, or system.
	Role llm.Role `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Metadata is optional provenance, set on assistant turns.
	Metadata *Metadata `json:"metadata,omitempty"`

	// CreatedAt orders messages within a conversation.
	CreatedAt time.Time `json:"created_at"`
}
