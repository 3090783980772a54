// Package model defines data structures shared by the chat client and the stream endpoint.
package model

// Source is a reference document attached to an assistant answer.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Content string `json:"content,omitempty"`
}

// StreamPayload is the JSON carried by one `data:` frame of the event stream.
// Type is provider-specific; the remaining fields are populated per type.
type StreamPayload struct {
	Type      string   `json:"type"`
	Content   string   `json:"content,omitempty"`
	ThreadID  string   `json:"threadId,omitempty"`
	SessionID string   `json:"sessionId,omitempty"`
	Sources   []Source `json:"sources,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// MaxChatHistory is the most prior turns a chat request may carry.
const MaxChatHistory = 200

// HistoryEntry is one prior turn sent along with a chat request.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/assistant/chat/stream.
type ChatRequest struct {
	Message     string         `json:"message"`
	ThreadID    string         `json:"threadId,omitempty"`
	ChatHistory []HistoryEntry `json:"chatHistory,omitempty"`
}

// ErrorResponse is the JSON body of a non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
