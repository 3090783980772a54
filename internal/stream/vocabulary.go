package stream

import (
	"encoding/json"
	"strings"

	"github.com/capitalize-ai/assistant-chat/internal/model"
)

// Vocabulary identifies the event names a backend speaks on the wire.
type Vocabulary string

const (
	// Canonical uses the canonical kind names.
	Canonical Vocabulary = "canonical"
	// LlamaIndex is the retrieval backend: session, text, sources, done, error.
	LlamaIndex Vocabulary = "llamaindex"
	// OpenAIAssistant is the assistants backend: thread.created,
	// message.delta, message.completed, done, error.
	OpenAIAssistant Vocabulary = "openai-assistant"
)

// ParseVocabulary returns the vocabulary named s, defaulting to OpenAIAssistant.
func ParseVocabulary(s string) Vocabulary {
	switch Vocabulary(strings.ToLower(strings.TrimSpace(s))) {
	case Canonical:
		return Canonical
	case LlamaIndex, "llama-index":
		return LlamaIndex
	default:
		return OpenAIAssistant
	}
}

// normalizer maps one payload of a vocabulary to a canonical event.
type normalizer func(p *model.StreamPayload) (Event, bool)

var normalizers = map[Vocabulary]normalizer{
	Canonical:       normalizeCanonical,
	LlamaIndex:      normalizeLlamaIndex,
	OpenAIAssistant: normalizeOpenAIAssistant,
}

// order in which Normalize tries the vocabularies
var vocabularies = []Vocabulary{Canonical, OpenAIAssistant, LlamaIndex}

// Parse decodes a raw payload and normalizes it. It returns false for
// payloads that are not JSON, carry no type, or carry an unsupported type.
func Parse(raw string) (Event, bool) {
	var p model.StreamPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Event{}, false
	}
	return Normalize(&p)
}

// Normalize maps a payload of any known vocabulary to a canonical event.
func Normalize(p *model.StreamPayload) (Event, bool) {
	if p.Type == "" {
		return Event{}, false
	}
	for _, v := range vocabularies {
		if ev, ok := normalizers[v](p); ok {
			return ev, true
		}
	}
	return Event{}, false
}

// NormalizeAs maps a payload of a single vocabulary.
func NormalizeAs(v Vocabulary, p *model.StreamPayload) (Event, bool) {
	n, ok := normalizers[v]
	if !ok || p.Type == "" {
		return Event{}, false
	}
	return n(p)
}

func normalizeCanonical(p *model.StreamPayload) (Event, bool) {
	switch Kind(p.Type) {
	case KindSessionStarted:
		return sessionEvent(p)
	case KindTextDelta:
		return textEvent(p)
	case KindSources:
		return sourcesEvent(p)
	case KindCompleted:
		return Completed(), true
	case KindError:
		return errorEvent(p, "An error occurred")
	}
	return Event{}, false
}

func normalizeLlamaIndex(p *model.StreamPayload) (Event, bool) {
	switch p.Type {
	case "session":
		return sessionEvent(p)
	case "text":
		return textEvent(p)
	case "sources":
		return sourcesEvent(p)
	case "done":
		return Completed(), true
	case "error":
		return errorEvent(p, "An error occurred")
	}
	return Event{}, false
}

func normalizeOpenAIAssistant(p *model.StreamPayload) (Event, bool) {
	switch p.Type {
	case "thread.created":
		return sessionEvent(p)
	case "message.delta", "thread.message.delta":
		return textEvent(p)
	case "sources":
		return sourcesEvent(p)
	case "message.completed", "thread.message.completed", "thread.run.completed", "done":
		return Completed(), true
	case "error", "thread.run.failed":
		return errorEvent(p, "Run failed")
	case "thread.run.cancelled":
		return errorEvent(p, "Run was cancelled")
	case "thread.run.expired":
		return errorEvent(p, "Run expired")
	case "thread.run.requires_action":
		return errorEvent(p, "Tool calls not yet supported")
	}
	return Event{}, false
}

func sessionEvent(p *model.StreamPayload) (Event, bool) {
	id := p.ThreadID
	if id == "" {
		id = p.SessionID
	}
	if id == "" {
		return Event{}, false
	}
	return SessionStarted(id), true
}

func textEvent(p *model.StreamPayload) (Event, bool) {
	if p.Content == "" {
		return Event{}, false
	}
	return TextDelta(p.Content), true
}

func sourcesEvent(p *model.StreamPayload) (Event, bool) {
	if len(p.Sources) == 0 {
		return Event{}, false
	}
	return SourcesFound(p.Sources), true
}

func errorEvent(p *model.StreamPayload, fallback string) (Event, bool) {
	msg := p.Error
	if msg == "" {
		msg = fallback
	}
	return Failed(msg), true
}
