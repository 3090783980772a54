// Package service provides the server side of the assistant chat: thread
// persistence and the streamed exchange with the LLM provider.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/assistant-chat/internal/model"
)

// ThreadStore persists threads and their message history. Implementations
// must be safe for concurrent use.
type ThreadStore interface {
	CreateThread(ctx context.Context, tenantID, userID string) (*model.Thread, error)
	// GetThread returns model.ErrThreadNotFound for unknown threads and for
	// threads owned by another tenant.
	GetThread(ctx context.Context, tenantID, threadID string) (*model.Thread, error)
	AppendMessage(ctx context.Context, msg *model.ThreadMessage) error
	// ListMessages returns at most limit of the most recent messages, oldest first.
	ListMessages(ctx context.Context, tenantID, threadID string, limit int) ([]model.ThreadMessage, error)
}

// InteractionRecorder stores the audit record of finished exchanges.
type InteractionRecorder interface {
	RecordInteraction(ctx context.Context, entry *model.InteractionLog) error
}

// MemoryStore keeps threads and interactions in process memory.
type MemoryStore struct {
	mu           sync.RWMutex
	threads      map[string]*model.Thread
	messages     map[string][]model.ThreadMessage
	interactions []model.InteractionLog
	sequence     uint64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:  make(map[string]*model.Thread),
		messages: make(map[string][]model.ThreadMessage),
	}
}

// CreateThread creates a new thread.
func (s *MemoryStore) CreateThread(ctx context.Context, tenantID, userID string) (*model.Thread, error) {
	thread := &model.Thread{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  tenantID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.threads[thread.ID] = thread
	s.mu.Unlock()

	t := *thread
	return &t, nil
}

// GetThread retrieves a thread by ID.
func (s *MemoryStore) GetThread(ctx context.Context, tenantID, threadID string) (*model.Thread, error) {
	s.mu.RLock()
	thread, exists := s.threads[threadID]
	s.mu.RUnlock()

	if !exists || thread.TenantID != tenantID {
		return nil, model.ErrThreadNotFound
	}

	t := *thread
	return &t, nil
}

// AppendMessage adds a message to its thread and assigns its sequence.
func (s *MemoryStore) AppendMessage(ctx context.Context, msg *model.ThreadMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, exists := s.threads[msg.ThreadID]
	if !exists || thread.TenantID != msg.TenantID {
		return fmt.Errorf("append to %s: %w", msg.ThreadID, model.ErrThreadNotFound)
	}

	s.sequence++
	msg.Sequence = s.sequence
	s.messages[msg.ThreadID] = append(s.messages[msg.ThreadID], *msg)
	return nil
}

// ListMessages retrieves the latest messages of a thread.
func (s *MemoryStore) ListMessages(ctx context.Context, tenantID, threadID string, limit int) ([]model.ThreadMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread, exists := s.threads[threadID]
	if !exists || thread.TenantID != tenantID {
		return nil, model.ErrThreadNotFound
	}

	msgs := s.messages[threadID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]model.ThreadMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// RecordInteraction stores an interaction log entry.
func (s *MemoryStore) RecordInteraction(ctx context.Context, entry *model.InteractionLog) error {
	s.mu.Lock()
	s.interactions = append(s.interactions, *entry)
	s.mu.Unlock()
	return nil
}

// Interactions returns the recorded interactions of a tenant, newest first.
func (s *MemoryStore) Interactions(tenantID string) []model.InteractionLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.InteractionLog
	for _, entry := range s.interactions {
		if entry.TenantID == tenantID {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
