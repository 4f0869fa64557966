package conversation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verdantlabs/hydrochat/internal/llm"
)

// ErrNotFound indicates an unknown conversation ID.
var ErrNotFound = errors.New("conversation not found")

// Store persists conversations and messages. Implementations must be safe
// for concurrent use.
type Store interface {
	// Create starts a new conversation for an owner.
	Create(ctx context.Context, ownerKey, title string) (*Conversation, error)

	// Get returns a conversation by ID.
	Get(ctx context.Context, id string) (*Conversation, error)

	// AppendMessage adds a turn to a conversation. The message's ID and
	// CreatedAt are assigned by the store.
	AppendMessage(ctx context.Context, conversationID string, role llm.Role, content string, metadata *Metadata) (*Message, error)

	// Messages returns a conversation's messages in creation order.
	Messages(ctx context.Context, conversationID string) ([]Message, error)
}

// MemoryStore is the in-memory Store implementation.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]Message
	now           func() time.Time
}

// NewMemoryStore creates an empty in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
		now:           time.Now,
	}
}

// Create starts a new conversation.
func (s *MemoryStore) Create(_ context.Context, ownerKey, title string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	conv := &Conversation{
		ID:        uuid.NewString(),
		OwnerKey:  ownerKey,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[conv.ID] = conv
	return copyConversation(conv), nil
}

// Get returns a conversation by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConversation(conv), nil
}

// AppendMessage adds a turn, assigning ID and timestamp.
func (s *MemoryStore) AppendMessage(_ context.Context, conversationID string, role llm.Role, content string, metadata *Metadata) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}

	now := s.now().UTC()
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
		CreatedAt:      now,
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	conv.UpdatedAt = now

	return &msg, nil
}

// Messages returns the conversation's messages in creation order.
func (s *MemoryStore) Messages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}

	msgs := make([]Message, len(s.messages[conversationID]))
	copy(msgs, s.messages[conversationID])

	// Insertion already follows creation time; the sort guards against a
	// future store that appends out of order.
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

func copyConversation(c *Conversation) *Conversation {
	out := *c
	return &out
}

var _ Store = (*MemoryStore)(nil)
