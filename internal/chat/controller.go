package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant-chat/internal/model"
	"github.com/capitalize-ai/assistant-chat/internal/sse"
	"github.com/capitalize-ai/assistant-chat/internal/stream"
	"github.com/capitalize-ai/assistant-chat/pkg/logger"
)

// maxErrorBody bounds how much of a non-2xx response body is read.
const maxErrorBody = 64 * 1024

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource returns the bearer credential for a request. It is called with
// the controller's lock held and must not call back into the Controller.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// Options configures a Controller.
type Options struct {
	// Endpoint is the URL of the stream endpoint.
	Endpoint string
	// HTTPClient defaults to a client without timeout.
	HTTPClient Doer
	// Token is required; an empty token fails the exchange before any request.
	Token TokenSource
	// Timeout bounds a whole exchange when positive.
	Timeout time.Duration
	// StrictCompletion reports a stream that closes without a completed or
	// error event as ErrorIncomplete instead of finalizing what arrived.
	StrictCompletion bool
	Logger           *logger.Logger

	// Observers are invoked without the controller's lock held.
	OnChange        func(Snapshot)
	OnError         func(*ChatError)
	OnThreadCreated func(threadID string)
}

// session is the state of one in-flight exchange.
type session struct {
	gen         uint64
	assistantID string
	cancel      context.CancelFunc
	buf         strings.Builder
	status      Status
	threadSeen  bool
}

// Controller owns a Conversation and at most one in-flight exchange. All
// methods are safe for concurrent use. SendMessage and RetryLastMessage block
// until the exchange ends; AbortStream and ResetChat may be called from any
// goroutine meanwhile.
type Controller struct {
	opts Options
	http Doer
	log  *logger.Logger

	mu      sync.Mutex
	conv    *Conversation
	active  *session
	gen     uint64
	version uint64
}

// NewController creates a Controller with an empty conversation.
func NewController(opts Options) *Controller {
	c := &Controller{
		opts: opts,
		http: opts.HTTPClient,
		log:  opts.Logger,
		conv: NewConversation(),
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.log == nil {
		c.log = logger.NewNop()
	}
	return c
}

// Snapshot returns a copy of the conversation and the exchange status.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Messages: c.conv.Messages(),
		ThreadID: c.conv.ThreadID(),
		Status:   StatusIdle,
		Version:  c.version,
	}
	if c.active != nil {
		s.Status = c.active.status
	}
	return s
}

// Status returns the phase of the current exchange.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return StatusIdle
	}
	return c.active.status
}

// SendMessage sends content as a new user turn and consumes the streamed
// answer. It returns ErrEmptyMessage or ErrExchangeInFlight without touching
// the log, nil when the exchange completed or was cancelled, and a
// *ChatError when it failed.
func (c *Controller) SendMessage(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	return c.send(ctx, func(*Conversation) (string, error) {
		return content, nil
	})
}

// RetryLastMessage drops the trailing failed exchange and sends the last user
// text again.
func (c *Controller) RetryLastMessage(ctx context.Context) error {
	return c.send(ctx, func(conv *Conversation) (string, error) {
		last := conv.LastUserContent()
		if last == "" {
			return "", ErrNothingToRetry
		}
		conv.DropForRetry()
		return last, nil
	})
}

// AbortStream cancels the in-flight exchange. An assistant placeholder that
// has no finalized content is removed from the log.
func (c *Controller) AbortStream() {
	c.mu.Lock()
	sess := c.active
	c.mu.Unlock()

	if sess != nil {
		c.abort(sess)
	}
}

// ResetChat cancels any exchange and clears the log, thread and retry state.
func (c *Controller) ResetChat() {
	c.mu.Lock()
	if c.active != nil {
		c.active.cancel()
		c.active = nil
	}
	c.conv.Reset()
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.log.Debug("chat reset")
	c.emitChange(snap)
}

// send starts an exchange. prepare runs under the lock after the
// single-flight check and returns the user text to send.
func (c *Controller) send(ctx context.Context, prepare func(*Conversation) (string, error)) error {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return ErrExchangeInFlight
	}

	content, err := prepare(c.conv)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	token, err := c.token(ctx)
	if err != nil {
		c.version++
		snap := c.snapshotLocked()
		c.mu.Unlock()

		chatErr := wrapChatError(ErrorNetwork, "Not authenticated", err)
		c.emitChange(snap)
		c.emitError(chatErr)
		return chatErr
	}

	body := model.ChatRequest{
		Message:     content,
		ThreadID:    c.conv.ThreadID(),
		ChatHistory: c.conv.History(),
	}

	var sessCtx context.Context
	var cancel context.CancelFunc
	if c.opts.Timeout > 0 {
		sessCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
	} else {
		sessCtx, cancel = context.WithCancel(ctx)
	}

	c.gen++
	sess := &session{
		gen:         c.gen,
		assistantID: c.conv.BeginExchange(content),
		cancel:      cancel,
		status:      StatusLoading,
	}
	c.active = sess
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emitChange(snap)

	log := c.log.With(zap.Uint64("session", sess.gen), zap.String("thread_id", body.ThreadID))
	log.Debug("exchange started")

	start := time.Now()
	err = c.run(sessCtx, sess, token, &body)
	c.release(sess)

	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		log.Warn("exchange failed",
			zap.String("kind", string(chatErr.Kind)),
			zap.String("error", chatErr.Message),
			zap.Duration("duration", time.Since(start)),
		)
		return chatErr
	}

	log.Debug("exchange ended", zap.Duration("duration", time.Since(start)))
	return err
}

func (c *Controller) token(ctx context.Context) (string, error) {
	if c.opts.Token == nil {
		return "", errors.New("no token source configured")
	}
	token, err := c.opts.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.New("missing credential")
	}
	return token, nil
}

// run performs the HTTP exchange and pipes the body through the decoder and
// normalizer into the conversation.
func (c *Controller) run(ctx context.Context, sess *session, token string, body *model.ChatRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return c.fail(sess, wrapChatError(ErrorUnknown, "failed to encode request", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return c.fail(sess, wrapChatError(ErrorUnknown, err.Error(), err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportFailure(ctx, sess, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(sess, NewChatError(ClassifyStatus(resp.StatusCode), errorMessage(resp)))
	}

	c.apply(sess, func() bool {
		sess.status = StatusStreaming
		return true
	})

	reader := sse.NewReader(resp.Body)
	for {
		raw, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return c.transportFailure(ctx, sess, err)
		}

		ev, ok := stream.Parse(raw)
		if !ok {
			continue
		}

		if ev.Kind == stream.KindError {
			return c.fail(sess, NewChatError(ErrorServiceUnavailable, ev.Message))
		}
		c.handle(sess, ev)
	}

	return c.closed(sess)
}

// handle applies a non-error event for sess.
func (c *Controller) handle(sess *session, ev stream.Event) {
	switch ev.Kind {
	case stream.KindSessionStarted:
		var created string
		c.apply(sess, func() bool {
			if sess.threadSeen {
				return false
			}
			sess.threadSeen = true
			if c.conv.SetThread(ev.ThreadID) {
				created = ev.ThreadID
				return true
			}
			return false
		})
		if created != "" && c.opts.OnThreadCreated != nil {
			c.opts.OnThreadCreated(created)
		}

	case stream.KindTextDelta:
		c.apply(sess, func() bool {
			sess.buf.WriteString(ev.Text)
			return c.conv.Apply(sess.assistantID, ev, sess.buf.String())
		})

	default:
		c.apply(sess, func() bool {
			return c.conv.Apply(sess.assistantID, ev, sess.buf.String())
		})
	}
}

// closed handles a normal end of the transport.
func (c *Controller) closed(sess *session) error {
	if c.opts.StrictCompletion {
		var pending bool
		c.apply(sess, func() bool {
			m, ok := c.conv.Get(sess.assistantID)
			pending = ok && !m.State.Terminal()
			return false
		})
		if pending {
			return c.fail(sess, NewChatError(ErrorIncomplete, "The response ended before it was complete"))
		}
		return nil
	}

	c.apply(sess, func() bool {
		return c.conv.Finalize(sess.assistantID, sess.buf.String())
	})
	return nil
}

// transportFailure classifies a request or read error. Cancellation of the
// session, or of the caller's context, is not a failure.
func (c *Controller) transportFailure(ctx context.Context, sess *session, err error) error {
	if !c.isActive(sess) {
		return nil
	}

	switch {
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		c.abort(sess)
		return nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return c.fail(sess, wrapChatError(ErrorTimeout, "The request timed out", err))
	default:
		return c.fail(sess, wrapChatError(ErrorNetwork, err.Error(), err))
	}
}

// fail moves the session's assistant message to the error state and reports
// chatErr. It reports nothing when the session has been superseded or the
// message already reached a terminal state, such as a transport error after
// the completed event.
func (c *Controller) fail(sess *session, chatErr *ChatError) error {
	var failed bool
	c.apply(sess, func() bool {
		failed = c.conv.Fail(sess.assistantID, chatErr.Message)
		return failed
	})
	if !failed {
		return nil
	}
	c.emitError(chatErr)
	return chatErr
}

// abort cancels sess and removes its placeholder when it has no content.
func (c *Controller) abort(sess *session) {
	c.mu.Lock()
	if c.active != sess {
		c.mu.Unlock()
		return
	}
	sess.cancel()
	c.active = nil
	discarded := c.conv.DiscardIfEmpty(sess.assistantID)
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.log.Debug("exchange cancelled",
		zap.Uint64("session", sess.gen),
		zap.Bool("placeholder_discarded", discarded),
	)
	c.emitChange(snap)
}

// release ends sess if it is still the active session.
func (c *Controller) release(sess *session) {
	sess.cancel()

	c.mu.Lock()
	if c.active != sess {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emitChange(snap)
}

// apply runs fn under the lock when sess is still the active session and
// publishes a snapshot when fn reports a change. It reports whether sess was
// current.
func (c *Controller) apply(sess *session, fn func() bool) bool {
	c.mu.Lock()
	if c.active != sess {
		c.mu.Unlock()
		return false
	}
	if !fn() {
		c.mu.Unlock()
		return true
	}
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emitChange(snap)
	return true
}

func (c *Controller) isActive(sess *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.active == sess
}

func (c *Controller) emitChange(snap Snapshot) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(snap)
	}
}

func (c *Controller) emitError(err *ChatError) {
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}

// errorMessage extracts the message of a non-2xx response.
func errorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body model.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}
