// Package chat is the client side of the streaming assistant: a conversation
// state machine driven by stream events, and a controller that owns the one
// in-flight exchange, cancellation and retry.
package chat

import (
	"time"

	"github.com/capitalize-ai/assistant-chat/internal/model"
)

// State is the lifecycle state of a message.
type State int

const (
	// StatePending is an assistant placeholder waiting for its first token.
	StatePending State = iota
	// StateStreaming is an assistant message receiving tokens.
	StateStreaming
	// StateFinalized is a complete message; Content is authoritative.
	StateFinalized
	// StateError is a failed assistant message; Content holds the error text.
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events apply to a message in state s.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateError
}

// Message is one turn of the conversation.
type Message struct {
	ID               string
	Role             model.Role
	Content          string
	DisplayedContent string
	Timestamp        time.Time
	State            State
	Sources          []model.Source
}

func (m Message) IsPending() bool   { return m.State == StatePending }
func (m Message) IsStreaming() bool { return m.State == StateStreaming }
func (m Message) IsError() bool     { return m.State == StateError }
func (m Message) IsFinal() bool     { return m.State == StateFinalized }

// Text returns what should be rendered for the message right now.
func (m Message) Text() string {
	if m.State == StateStreaming {
		return m.DisplayedContent
	}
	return m.Content
}

// Status is the phase of the controller's current exchange.
type Status int

const (
	// StatusIdle means no exchange is in flight.
	StatusIdle Status = iota
	// StatusLoading means the request is sent and response headers are awaited.
	StatusLoading
	// StatusStreaming means the response body is being consumed.
	StatusStreaming
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

// Snapshot is a copy of the conversation taken under the controller's lock.
// Version increases with every change; observers receiving snapshots from
// several goroutines keep the highest one.
type Snapshot struct {
	Messages []Message
	ThreadID string
	Status   Status
	Version  uint64
}

// InFlight reports whether an exchange is running.
func (s Snapshot) InFlight() bool {
	return s.Status != StatusIdle
}
