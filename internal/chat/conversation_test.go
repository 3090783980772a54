package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/assistant-chat/internal/model"
	"github.com/capitalize-ai/assistant-chat/internal/stream"
)

func newTestConversation() *Conversation {
	c := NewConversation()
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func TestBeginExchange(t *testing.T) {
	c := newTestConversation()

	id := c.BeginExchange("Qual o prazo?")

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "msg_1700000000000_1", msgs[0].ID)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, StateFinalized, msgs[0].State)
	assert.Equal(t, "Qual o prazo?", msgs[0].Content)

	assert.Equal(t, id, msgs[1].ID)
	assert.Equal(t, "msg_1700000000000_2", id)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.True(t, msgs[1].IsPending())
	assert.Empty(t, msgs[1].Content)
	assert.Equal(t, "Qual o prazo?", c.LastUserContent())
}

func TestApplyStreamingThenCompleted(t *testing.T) {
	c := newTestConversation()
	id := c.BeginExchange("hi")

	assert.True(t, c.Apply(id, stream.TextDelta("Hel"), "Hel"))
	m, _ := c.Get(id)
	assert.True(t, m.IsStreaming())
	assert.Equal(t, "Hel", m.Text())
	assert.Empty(t, m.Content)

	assert.True(t, c.Apply(id, stream.TextDelta("lo"), "Hello"))
	assert.True(t, c.Apply(id, stream.Completed(), "Hello"))

	m, _ = c.Get(id)
	assert.True(t, m.IsFinal())
	assert.Equal(t, "Hello", m.Content)
	assert.Equal(t, "Hello", m.Text())
}

func TestTerminalStatesIgnoreEvents(t *testing.T) {
	c := newTestConversation()
	id := c.BeginExchange("hi")

	require.True(t, c.Fail(id, "Assistant not configured"))

	assert.False(t, c.Apply(id, stream.TextDelta("late"), "late"))
	assert.False(t, c.Apply(id, stream.Completed(), "late"))
	assert.False(t, c.Apply(id, stream.SourcesFound([]model.Source{{Title: "x"}}), ""))
	assert.False(t, c.Fail(id, "again"))

	m, _ := c.Get(id)
	assert.True(t, m.IsError())
	assert.Equal(t, "Assistant not configured", m.Content)
	assert.Empty(t, m.Sources)

	id = c.BeginExchange("second")
	require.True(t, c.Finalize(id, "done"))
	assert.False(t, c.Apply(id, stream.Failed("boom"), ""))
	m, _ = c.Get(id)
	assert.True(t, m.IsFinal())
}

func TestSourcesAttach(t *testing.T) {
	c := newTestConversation()
	id := c.BeginExchange("hi")
	sources := []model.Source{{Title: "Lei 8.666", URL: "https://example.com"}}

	assert.True(t, c.Apply(id, stream.SourcesFound(sources), ""))
	require.True(t, c.Finalize(id, "answer"))

	m, _ := c.Get(id)
	assert.Equal(t, sources, m.Sources)
}

func TestHistoryOnlyFinalized(t *testing.T) {
	c := newTestConversation()

	id := c.BeginExchange("first")
	c.Finalize(id, "answer one")
	id = c.BeginExchange("second")
	c.Fail(id, "failed")
	c.BeginExchange("third")

	assert.Equal(t, []model.HistoryEntry{
		{Role: model.RoleUser, Content: "first"},
		{Role: model.RoleAssistant, Content: "answer one"},
		{Role: model.RoleUser, Content: "second"},
		{Role: model.RoleUser, Content: "third"},
	}, c.History())
}

func TestHistoryKeepsTrailingTurns(t *testing.T) {
	c := newTestConversation()
	for i := 0; i < 102; i++ {
		id := c.BeginExchange(fmt.Sprintf("q%d", i))
		c.Finalize(id, fmt.Sprintf("a%d", i))
	}

	history := c.History()
	require.Len(t, history, model.MaxChatHistory)
	assert.Equal(t, model.HistoryEntry{Role: model.RoleUser, Content: "q2"}, history[0])
	assert.Equal(t, model.HistoryEntry{Role: model.RoleAssistant, Content: "a101"}, history[len(history)-1])
}

func TestSetThread(t *testing.T) {
	c := newTestConversation()

	assert.False(t, c.SetThread(""))
	assert.True(t, c.SetThread("thread_1"))
	assert.False(t, c.SetThread("thread_1"))
	assert.Equal(t, "thread_1", c.ThreadID())
}

func TestDiscardIfEmpty(t *testing.T) {
	c := newTestConversation()
	id := c.BeginExchange("hi")

	c.Apply(id, stream.TextDelta("partial"), "partial")
	assert.True(t, c.DiscardIfEmpty(id))
	assert.Equal(t, 1, c.Len())

	id = c.BeginExchange("again")
	c.Finalize(id, "kept")
	assert.False(t, c.DiscardIfEmpty(id))
	assert.Equal(t, 3, c.Len())
}

func TestDropForRetry(t *testing.T) {
	t.Run("error turn", func(t *testing.T) {
		c := newTestConversation()
		id := c.BeginExchange("first")
		c.Finalize(id, "ok")
		id = c.BeginExchange("second")
		c.Fail(id, "boom")

		c.DropForRetry()

		msgs := c.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, "ok", msgs[1].Content)
	})

	t.Run("trailing user only", func(t *testing.T) {
		c := newTestConversation()
		id := c.BeginExchange("first")
		c.DiscardIfEmpty(id)

		c.DropForRetry()
		assert.Zero(t, c.Len())
	})

	t.Run("finalized turn kept", func(t *testing.T) {
		c := newTestConversation()
		id := c.BeginExchange("first")
		c.Finalize(id, "ok")

		c.DropForRetry()
		assert.Equal(t, 2, c.Len())
	})
}

func TestReset(t *testing.T) {
	c := newTestConversation()
	c.BeginExchange("hi")
	c.SetThread("thread_1")

	c.Reset()

	assert.Zero(t, c.Len())
	assert.Empty(t, c.ThreadID())
	assert.Empty(t, c.LastUserContent())
	assert.Equal(t, "msg_1700000000000_2", c.BeginExchange("again"))
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want ErrorKind
	}{
		{401, ErrorNetwork},
		{408, ErrorTimeout},
		{429, ErrorServiceUnavailable},
		{400, ErrorBadRequest},
		{404, ErrorBadRequest},
		{500, ErrorServiceUnavailable},
		{503, ErrorServiceUnavailable},
		{302, ErrorUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyStatus(tt.code), tt.code)
	}

	assert.True(t, NewChatError(ErrorTimeout, "x").Retryable)
	assert.False(t, NewChatError(ErrorBadRequest, "x").Retryable)
	assert.False(t, NewChatError(ErrorUnknown, "x").Retryable)
}
