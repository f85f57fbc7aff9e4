// Package store keeps conversation history. Durable persistence is an
// external collaborator; the in-memory implementation backs single-node
// deployments and tests.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one turn of a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"` // "user" or "assistant"
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationStore persists and reads back conversation turns.
type ConversationStore interface {
	Append(ctx context.Context, conversationID, role, content string) (Message, error)
	// Recent returns up to limit messages, oldest first.
	Recent(ctx context.Context, conversationID string, limit int) ([]Message, error)
}

// MemoryStore is the in-process ConversationStore.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]Message
	maxPer   int
}

// NewMemoryStore creates a store keeping at most maxPerConversation
// messages per conversation (0 means unbounded).
func NewMemoryStore(maxPerConversation int) *MemoryStore {
	return &MemoryStore{
		messages: map[string][]Message{},
		maxPer:   maxPerConversation,
	}
}

func (s *MemoryStore) Append(_ context.Context, conversationID, role, content string) (Message, error) {
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.messages[conversationID], msg)
	if s.maxPer > 0 && len(msgs) > s.maxPer {
		msgs = msgs[len(msgs)-s.maxPer:]
	}
	s.messages[conversationID] = msgs
	return msg, nil
}

func (s *MemoryStore) Recent(_ context.Context, conversationID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}
