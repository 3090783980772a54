package stream

import (
	"github.com/capitalize-ai/assistant-chat/internal/model"
)

// Encode renders a canonical event as a payload of vocabulary v.
func Encode(v Vocabulary, ev Event) model.StreamPayload {
	p := model.StreamPayload{
		Type:    wireType(v, ev.Kind),
		Content: ev.Text,
		Sources: ev.Sources,
		Error:   ev.Message,
	}

	if ev.Kind == KindSessionStarted {
		if v == LlamaIndex {
			p.SessionID = ev.ThreadID
		} else {
			p.ThreadID = ev.ThreadID
		}
	}

	return p
}

func wireType(v Vocabulary, k Kind) string {
	switch v {
	case LlamaIndex:
		switch k {
		case KindSessionStarted:
			return "session"
		case KindTextDelta:
			return "text"
		case KindCompleted:
			return "done"
		}
	case OpenAIAssistant:
		switch k {
		case KindSessionStarted:
			return "thread.created"
		case KindTextDelta:
			return "message.delta"
		case KindCompleted:
			return "message.completed"
		}
	}
	return string(k)
}
