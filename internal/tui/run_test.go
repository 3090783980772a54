package tui

import (
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/assistant-chat/internal/chat"
)

// recordingSender stands in for a program whose Update is busy until release
// is closed.
type recordingSender struct {
	mu      sync.Mutex
	got     []tea.Msg
	release chan struct{}
}

func (s *recordingSender) Send(msg tea.Msg) {
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, msg)
}

func (s *recordingSender) received() []tea.Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tea.Msg(nil), s.got...)
}

func TestRelayDeliversInOrderWithoutBlocking(t *testing.T) {
	to := &recordingSender{release: make(chan struct{})}
	relay := &Relay{}
	relay.attach(to)
	defer relay.detach()

	failure := &chat.ChatError{Kind: chat.ErrorNetwork, Message: "down"}
	notified := make(chan struct{})
	go func() {
		relay.OnChange(chat.Snapshot{Version: 1})
		relay.OnChange(chat.Snapshot{Version: 2})
		relay.OnError(failure)
		relay.OnChange(chat.Snapshot{Version: 3})
		close(notified)
	}()

	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Fatal("notifying blocked while the program was busy")
	}
	close(to.release)

	require.Eventually(t, func() bool {
		got := to.received()
		if len(got) == 0 {
			return false
		}
		last, ok := got[len(got)-1].(SnapshotMsg)
		return ok && last.Snapshot.Version == 3
	}, time.Second, 5*time.Millisecond)

	got := to.received()
	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, SnapshotMsg{Snapshot: chat.Snapshot{Version: 2}}, got[len(got)-3])
	assert.Equal(t, ErrorMsg{Err: failure}, got[len(got)-2])

	var last uint64
	for _, msg := range got {
		if snap, ok := msg.(SnapshotMsg); ok {
			assert.Greater(t, snap.Snapshot.Version, last)
			last = snap.Snapshot.Version
		}
	}
}

func TestRelayDropsWhileDetached(t *testing.T) {
	to := &recordingSender{release: make(chan struct{})}
	close(to.release)
	relay := &Relay{}

	relay.OnChange(chat.Snapshot{Version: 1})
	relay.attach(to)
	relay.OnChange(chat.Snapshot{Version: 2})
	require.Eventually(t, func() bool { return len(to.received()) == 1 }, time.Second, 5*time.Millisecond)
	relay.detach()
	relay.OnChange(chat.Snapshot{Version: 3})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []tea.Msg{SnapshotMsg{Snapshot: chat.Snapshot{Version: 2}}}, to.received())
}
