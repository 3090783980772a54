package chat

import (
	"fmt"
	"time"

	"github.com/capitalize-ai/assistant-chat/internal/model"
	"github.com/capitalize-ai/assistant-chat/internal/stream"
)

// Conversation is the ordered message log and its thread correlator. It is
// mutated only through its methods and is not safe for concurrent use; the
// Controller serializes access.
type Conversation struct {
	messages []Message
	threadID string
	lastUser string
	counter  int
	now      func() time.Time
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{now: time.Now}
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// ThreadID returns the thread correlator, empty before the first exchange.
func (c *Conversation) ThreadID() string {
	return c.threadID
}

// LastUserContent returns the most recently sent user text.
func (c *Conversation) LastUserContent() string {
	return c.lastUser
}

// History returns the finalized turns to send along with the next request,
// at most the trailing model.MaxChatHistory of them.
func (c *Conversation) History() []model.HistoryEntry {
	var out []model.HistoryEntry
	for _, m := range c.messages {
		if m.State != StateFinalized {
			continue
		}
		out = append(out, model.HistoryEntry{Role: m.Role, Content: m.Content})
	}
	if len(out) > model.MaxChatHistory {
		out = out[len(out)-model.MaxChatHistory:]
	}
	return out
}

// BeginExchange appends the user message and a pending assistant placeholder
// and returns the placeholder's ID.
func (c *Conversation) BeginExchange(content string) string {
	now := c.now()

	c.lastUser = content
	c.messages = append(c.messages,
		Message{
			ID:        c.nextID(now),
			Role:      model.RoleUser,
			Content:   content,
			Timestamp: now,
			State:     StateFinalized,
		},
		Message{
			ID:        c.nextID(now),
			Role:      model.RoleAssistant,
			Timestamp: now,
			State:     StatePending,
		},
	)

	return c.messages[len(c.messages)-1].ID
}

func (c *Conversation) nextID(now time.Time) string {
	c.counter++
	return fmt.Sprintf("msg_%d_%d", now.UnixMilli(), c.counter)
}

// Apply applies a normalized event to the assistant message id. buffer is the
// exchange's accumulated text including ev when ev is a text-delta. It
// reports whether the log changed.
func (c *Conversation) Apply(id string, ev stream.Event, buffer string) bool {
	m := c.find(id)
	if m == nil {
		return false
	}

	switch ev.Kind {
	case stream.KindTextDelta:
		if m.State.Terminal() {
			return false
		}
		m.State = StateStreaming
		m.DisplayedContent = buffer
		return true

	case stream.KindSources:
		if m.State == StateError {
			return false
		}
		m.Sources = ev.Sources
		return true

	case stream.KindCompleted:
		return c.Finalize(id, buffer)

	case stream.KindError:
		return c.Fail(id, ev.Message)
	}

	return false
}

// Finalize completes a pending or streaming message with content. It is a
// no-op for a message already in a terminal state.
func (c *Conversation) Finalize(id, content string) bool {
	m := c.find(id)
	if m == nil || m.State.Terminal() {
		return false
	}
	m.State = StateFinalized
	m.Content = content
	m.DisplayedContent = content
	return true
}

// Fail moves a pending or streaming message to the error state.
func (c *Conversation) Fail(id, message string) bool {
	m := c.find(id)
	if m == nil || m.State.Terminal() {
		return false
	}
	m.State = StateError
	m.Content = message
	return true
}

// SetThread records the thread correlator. It reports whether it changed.
func (c *Conversation) SetThread(threadID string) bool {
	if threadID == "" || threadID == c.threadID {
		return false
	}
	c.threadID = threadID
	return true
}

// DiscardIfEmpty removes message id when it has no finalized content.
func (c *Conversation) DiscardIfEmpty(id string) bool {
	for i, m := range c.messages {
		if m.ID != id {
			continue
		}
		if m.Content != "" {
			return false
		}
		c.messages = append(c.messages[:i], c.messages[i+1:]...)
		return true
	}
	return false
}

// DropForRetry removes a trailing error message and then a trailing user
// message, so the last user turn can be replayed.
func (c *Conversation) DropForRetry() {
	if n := len(c.messages); n > 0 && c.messages[n-1].State == StateError {
		c.messages = c.messages[:n-1]
	}
	if n := len(c.messages); n > 0 && c.messages[n-1].Role == model.RoleUser {
		c.messages = c.messages[:n-1]
	}
}

// Reset clears the log, thread and retry state.
func (c *Conversation) Reset() {
	c.messages = nil
	c.threadID = ""
	c.lastUser = ""
	c.counter = 0
}

// Get returns a copy of message id.
func (c *Conversation) Get(id string) (Message, bool) {
	if m := c.find(id); m != nil {
		return *m, true
	}
	return Message{}, false
}

func (c *Conversation) find(id string) *Message {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == id {
			return &c.messages[i]
		}
	}
	return nil
}
