package ui

import (
	"context"
	"sync"
)

// InstanceStore keeps the live UI instances that event refreshes look up.
type InstanceStore interface {
	// Save stores an instance, superseding any previous instance owned by
	// the same conversation/user pair.
	Save(ctx context.Context, instance *Instance) error
	// FindAffected returns instances with a subscription for subject.
	// Non-empty conversationID/userID narrow the match to that owner.
	FindAffected(ctx context.Context, subject, conversationID, userID string) ([]*Instance, error)
}

// MemoryInstanceStore is the in-process InstanceStore.
type MemoryInstanceStore struct {
	mu        sync.RWMutex
	instances map[string]*Instance // keyed by conversationID|userID
}

func NewMemoryInstanceStore() *MemoryInstanceStore {
	return &MemoryInstanceStore{instances: map[string]*Instance{}}
}

func (s *MemoryInstanceStore) Save(_ context.Context, instance *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[instance.ConversationID+"|"+instance.UserID] = instance
	return nil
}

func (s *MemoryInstanceStore) FindAffected(_ context.Context, subject, conversationID, userID string) ([]*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var affected []*Instance
	for _, inst := range s.instances {
		if conversationID != "" && inst.ConversationID != conversationID {
			continue
		}
		if userID != "" && inst.UserID != userID {
			continue
		}
		if len(inst.RefreshSpecsFor(subject)) == 0 {
			continue
		}
		affected = append(affected, inst)
	}
	return affected, nil
}
