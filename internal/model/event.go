package model

import (
	"time"
)

// InteractionStatus is the outcome of one chat exchange on the server.
type InteractionStatus string

const (
	InteractionCompleted InteractionStatus = "completed"
	InteractionFailed    InteractionStatus = "failed"
)

// InteractionLog records one user/assistant exchange for auditing.
type InteractionLog struct {
	ID                string            `json:"id"`
	TenantID          string            `json:"tenant_id"`
	UserID            string            `json:"user_id"`
	ThreadID          string            `json:"thread_id,omitempty"`
	UserMessage       string            `json:"user_message"`
	AssistantResponse string            `json:"assistant_response"`
	ResponseTimeMs    int64             `json:"response_time_ms"`
	Status            InteractionStatus `json:"status"`
	Reason            string            `json:"reason,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}
