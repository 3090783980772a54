// Package tui is the terminal front end of the chat client: a bubbletea
// program rendering a chat.Controller's conversation.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant-chat/internal/chat"
	"github.com/capitalize-ai/assistant-chat/internal/model"
	"github.com/capitalize-ai/assistant-chat/internal/scroll"
	"github.com/capitalize-ai/assistant-chat/pkg/logger"
)

// DefaultNotice is shown once before the first conversation.
const DefaultNotice = "Answers are generated by an AI assistant and may be inaccurate.\n" +
	"Check important information before relying on it.\n\n" +
	"Press enter to continue."

const helpText = "enter send • esc stop • ctrl+r retry • ctrl+n new chat • end follow • ctrl+c quit"

// chrome is the number of lines outside the viewport: header, status line,
// input and help.
const chrome = 4

// Controller is the part of *chat.Controller the view drives.
type Controller interface {
	Snapshot() chat.Snapshot
	SendMessage(ctx context.Context, content string) error
	RetryLastMessage(ctx context.Context) error
	AbortStream()
	ResetChat()
}

// SnapshotMsg carries a conversation change into the program.
type SnapshotMsg struct {
	Snapshot chat.Snapshot
}

// ErrorMsg carries a failed exchange into the program.
type ErrorMsg struct {
	Err *chat.ChatError
}

type exchangeDoneMsg struct {
	err error
}

// Options configures the view.
type Options struct {
	Controller Controller
	// Notices gates the onboarding notice; nil never shows it.
	Notices    NoticeStore
	NoticeText string
	// ScrollThreshold is in lines.
	ScrollThreshold int
	// MarkdownStyle is a glamour standard style name, "dark" by default.
	MarkdownStyle string
	Context       context.Context
	Logger        *logger.Logger
}

// Model is the bubbletea model of the chat view.
type Model struct {
	ctrl    Controller
	ctx     context.Context
	log     *logger.Logger
	notices NoticeStore

	snap    chat.Snapshot
	lastErr *chat.ChatError

	width, height int
	viewport      viewport.Model
	input         textinput.Model
	spinner       spinner.Model
	scroll        *scroll.Coordinator

	markdownStyle string
	renderer      *glamour.TermRenderer
	rendered      map[string]string

	showNotice bool
	noticeText string
}

// New creates the view for opts.Controller.
func New(opts Options) Model {
	m := Model{
		ctrl:          opts.Controller,
		ctx:           opts.Context,
		log:           opts.Logger,
		notices:       opts.Notices,
		snap:          opts.Controller.Snapshot(),
		viewport:      viewport.New(0, 0),
		input:         textinput.New(),
		spinner:       spinner.New(spinner.WithSpinner(spinner.Dot)),
		scroll:        scroll.New(opts.ScrollThreshold),
		markdownStyle: opts.MarkdownStyle,
		rendered:      make(map[string]string),
		noticeText:    opts.NoticeText,
	}
	if m.ctx == nil {
		m.ctx = context.Background()
	}
	if m.log == nil {
		m.log = logger.NewNop()
	}
	if m.markdownStyle == "" {
		m.markdownStyle = "dark"
	}
	if m.noticeText == "" {
		m.noticeText = DefaultNotice
	}

	// Letter keys belong to the input, so the viewport only scrolls on
	// navigation keys and the mouse wheel.
	m.viewport.KeyMap = viewport.KeyMap{
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
		Up:       key.NewBinding(key.WithKeys("up")),
		Down:     key.NewBinding(key.WithKeys("down")),
	}

	m.input.Placeholder = "Ask a question..."
	m.input.Prompt = "> "
	m.input.Focus()

	if m.notices != nil {
		dismissed, err := m.notices.Dismissed()
		if err != nil {
			m.log.Warn("failed to read notice state", zap.Error(err))
		}
		m.showNotice = !dismissed
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if m.showNotice {
			return m.updateNotice(msg)
		}
		return m.updateKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.scroll.HandleScroll(m.position())
		return m, cmd

	case SnapshotMsg:
		m.apply(msg.Snapshot)
		return m, nil

	case ErrorMsg:
		m.lastErr = msg.Err
		return m, nil

	case exchangeDoneMsg:
		var chatErr *chat.ChatError
		switch {
		case errors.As(msg.err, &chatErr):
			m.lastErr = chatErr
		case msg.err != nil && !errors.Is(msg.err, chat.ErrExchangeInFlight) &&
			!errors.Is(msg.err, chat.ErrNothingToRetry) && !errors.Is(msg.err, chat.ErrEmptyMessage):
			m.log.Warn("exchange ended with error", zap.Error(msg.err))
		}
		m.apply(m.ctrl.Snapshot())
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.hasPending() {
			m.refresh()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateNotice(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "enter", "esc":
		m.showNotice = false
		if err := m.notices.Dismiss(); err != nil {
			m.log.Warn("failed to persist notice dismissal", zap.Error(err))
		}
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.ctrl.AbortStream()
		return m, tea.Quit

	case "esc":
		if m.snap.InFlight() {
			m.ctrl.AbortStream()
		}
		return m, nil

	case "enter":
		if m.snap.InFlight() {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		m.lastErr = nil
		m.scroll.ScrollToBottom()
		ctrl, ctx := m.ctrl, m.ctx
		return m, func() tea.Msg {
			return exchangeDoneMsg{err: ctrl.SendMessage(ctx, text)}
		}

	case "ctrl+r":
		if m.snap.InFlight() || len(m.snap.Messages) == 0 {
			return m, nil
		}
		m.lastErr = nil
		ctrl, ctx := m.ctrl, m.ctx
		return m, func() tea.Msg {
			return exchangeDoneMsg{err: ctrl.RetryLastMessage(ctx)}
		}

	case "ctrl+n":
		m.ctrl.ResetChat()
		m.lastErr = nil
		m.scroll.Reset()
		m.apply(m.ctrl.Snapshot())
		return m, nil

	case "end":
		m.viewport.GotoBottom()
		m.scroll.ScrollToBottom()
		return m, nil

	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.scroll.HandleScroll(m.position())
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// apply shows snap unless a newer one is already displayed.
func (m *Model) apply(snap chat.Snapshot) {
	if snap.Version < m.snap.Version {
		return
	}
	m.snap = snap
	m.refresh()
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.viewport.Width = width
	m.viewport.Height = max(height-chrome, 1)
	m.input.Width = max(width-len(m.input.Prompt)-1, 1)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.markdownStyle),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.log.Warn("markdown rendering disabled", zap.Error(err))
		renderer = nil
	}
	m.renderer = renderer
	clear(m.rendered)

	m.refresh()
}

// refresh re-renders the conversation and follows the bottom when the
// coordinator says so.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderConversation())
	if m.scroll.ContentChanged(m.viewport.TotalLineCount()) == scroll.ActionScrollToBottom {
		m.viewport.GotoBottom()
		m.scroll.ScrollToBottom()
	}
}

func (m Model) position() scroll.Position {
	return scroll.Position{
		Offset:         m.viewport.YOffset,
		ContentHeight:  m.viewport.TotalLineCount(),
		ViewportHeight: m.viewport.Height,
	}
}

func (m Model) hasPending() bool {
	for _, msg := range m.snap.Messages {
		if msg.IsPending() {
			return true
		}
	}
	return false
}

func (m Model) View() string {
	if m.showNotice {
		return noticeStyle.Render(m.noticeText)
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusView())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(helpText))
	return b.String()
}

func (m Model) headerView() string {
	header := headerStyle.Render("Assistant")
	if m.snap.InFlight() {
		header += statusStyle.Render(" · " + m.snap.Status.String() + "...")
	}
	if m.snap.ThreadID != "" {
		header += statusStyle.Render(" · thread " + m.snap.ThreadID)
	}
	return header
}

func (m Model) statusView() string {
	switch {
	case m.scroll.ShowIndicator():
		return indicatorStyle.Render("↓ new messages below (end to follow)")
	case m.lastErr != nil && m.lastErr.Retryable:
		return errorStyle.Render(m.lastErr.Message + " (ctrl+r to retry)")
	case m.lastErr != nil:
		return errorStyle.Render(m.lastErr.Message)
	default:
		return ""
	}
}

func (m Model) renderConversation() string {
	if len(m.snap.Messages) == 0 {
		return statusStyle.Render("Ask a question to start a conversation.")
	}

	var b strings.Builder
	for i, msg := range m.snap.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMessage(msg chat.Message) string {
	if msg.Role == model.RoleUser {
		return userStyle.Render("You") + "\n" + m.wrap(msg.Content)
	}

	label := assistantStyle.Render("Assistant")
	switch msg.State {
	case chat.StatePending:
		return label + "\n" + m.spinner.View() + " Thinking..."
	case chat.StateStreaming:
		return label + "\n" + m.wrap(msg.Text()+"▍")
	case chat.StateError:
		return label + "\n" + errorStyle.Render(m.wrap(msg.Content))
	}

	out := label + "\n" + m.markdown(msg)
	if len(msg.Sources) > 0 {
		out += "\n" + renderSources(msg.Sources)
	}
	return out
}

// markdown renders a finalized message once per width.
func (m Model) markdown(msg chat.Message) string {
	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}
	if m.renderer == nil {
		return m.wrap(msg.Content)
	}
	out, err := m.renderer.Render(msg.Content)
	if err != nil {
		m.log.Debug("markdown render failed", zap.String("message_id", msg.ID), zap.Error(err))
		return m.wrap(msg.Content)
	}
	out = strings.TrimRight(out, "\n")
	m.rendered[msg.ID] = out
	return out
}

func (m Model) wrap(s string) string {
	if m.width <= 0 {
		return s
	}
	return lipgloss.NewStyle().Width(m.width).Render(s)
}

func renderSources(sources []model.Source) string {
	lines := make([]string, 0, len(sources)+1)
	lines = append(lines, "Sources:")
	for _, s := range sources {
		line := "  • " + s.Title
		if s.URL != "" {
			line += " (" + s.URL + ")"
		}
		lines = append(lines, line)
	}
	return sourceStyle.Render(strings.Join(lines, "\n"))
}
