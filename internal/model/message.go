package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ThreadMessage is a message persisted in a thread's history.
type ThreadMessage struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	TenantID  string    `json:"tenant_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// JetStream metadata (populated on read)
	Sequence uint64 `json:"sequence,omitempty"`
}

// Thread groups the exchanges of one logical conversation.
type Thread struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ListThreadMessagesResponse is the response for listing a thread's history.
type ListThreadMessagesResponse struct {
	ThreadID string         `json:"thread_id"`
	Messages []HistoryEntry `json:"messages"`
}
