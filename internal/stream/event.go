// Package stream maps the event vocabularies of different assistant backends
// onto one canonical event type, and back.
package stream

import (
	"github.com/capitalize-ai/assistant-chat/internal/model"
)

// Kind is the canonical type of a stream event.
type Kind string

const (
	KindSessionStarted Kind = "session-started"
	KindTextDelta      Kind = "text-delta"
	KindSources        Kind = "sources"
	KindCompleted      Kind = "completed"
	KindError          Kind = "error"
)

// Event is a provider-agnostic stream event. Which fields are set depends on
// Kind: ThreadID for session-started, Text for text-delta, Sources for
// sources and Message for error.
type Event struct {
	Kind     Kind
	ThreadID string
	Text     string
	Sources  []model.Source
	Message  string
}

// SessionStarted returns a session-started event.
func SessionStarted(threadID string) Event {
	return Event{Kind: KindSessionStarted, ThreadID: threadID}
}

// TextDelta returns a text-delta event.
func TextDelta(text string) Event {
	return Event{Kind: KindTextDelta, Text: text}
}

// SourcesFound returns a sources event.
func SourcesFound(sources []model.Source) Event {
	return Event{Kind: KindSources, Sources: sources}
}

// Completed returns a completed event.
func Completed() Event {
	return Event{Kind: KindCompleted}
}

// Failed returns an error event.
func Failed(message string) Event {
	return Event{Kind: KindError, Message: message}
}

// IsTerminal reports whether the event ends an exchange.
func (e Event) IsTerminal() bool {
	return e.Kind == KindCompleted || e.Kind == KindError
}
