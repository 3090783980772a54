package tui

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/capitalize-ai/assistant-chat/internal/chat"
)

// sender is the part of *tea.Program the relay delivers to.
type sender interface {
	Send(msg tea.Msg)
}

// Relay forwards controller notifications into a running program, in order,
// from a single goroutine. Its methods match chat.Options.OnChange and
// chat.Options.OnError and never block: the controller notifies from inside
// Update (reset, abort) while Program.Send waits for Update to return.
// Consecutive snapshots still queued are collapsed into the newest one.
// Notifications that arrive while no program is attached are dropped.
type Relay struct {
	mu    sync.Mutex
	to    sender
	queue []tea.Msg
	wake  chan struct{}
	stop  chan struct{}
}

func (r *Relay) attach(to sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detachLocked()

	r.to = to
	r.wake = make(chan struct{}, 1)
	r.stop = make(chan struct{})
	go r.deliver(to, r.wake, r.stop)
}

func (r *Relay) detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detachLocked()
}

func (r *Relay) detachLocked() {
	if r.to == nil {
		return
	}
	close(r.stop)
	r.to = nil
	r.queue = nil
}

func (r *Relay) enqueue(msg tea.Msg) {
	r.mu.Lock()
	if r.to == nil {
		r.mu.Unlock()
		return
	}
	if _, ok := msg.(SnapshotMsg); ok && len(r.queue) > 0 {
		if _, tail := r.queue[len(r.queue)-1].(SnapshotMsg); tail {
			r.queue[len(r.queue)-1] = msg
			r.mu.Unlock()
			return
		}
	}
	r.queue = append(r.queue, msg)
	wake := r.wake
	r.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
}

// next pops the oldest queued message for the delivery goroutine started with
// stop.
func (r *Relay) next(stop chan struct{}) (tea.Msg, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != stop || len(r.queue) == 0 {
		return nil, false
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, true
}

func (r *Relay) deliver(to sender, wake, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-wake:
		}
		for {
			msg, ok := r.next(stop)
			if !ok {
				break
			}
			to.Send(msg)
		}
	}
}

func (r *Relay) OnChange(snap chat.Snapshot) {
	r.enqueue(SnapshotMsg{Snapshot: snap})
}

func (r *Relay) OnError(err *chat.ChatError) {
	r.enqueue(ErrorMsg{Err: err})
}

// Run shows m full screen until the user quits or ctx is done.
func Run(ctx context.Context, m Model, relay *Relay) error {
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	relay.attach(p)
	defer relay.detach()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
