package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/assistant-chat/internal/chat"
	"github.com/capitalize-ai/assistant-chat/internal/llm"
	"github.com/capitalize-ai/assistant-chat/internal/middleware"
	"github.com/capitalize-ai/assistant-chat/internal/model"
	"github.com/capitalize-ai/assistant-chat/internal/service"
	"github.com/capitalize-ai/assistant-chat/pkg/logger"
)

const testSecret = "handler-test-secret"

// scriptedLLM streams tokens with an optional pause before each one.
type scriptedLLM struct {
	tokens []string
	pause  time.Duration
	err    error
}

func (s *scriptedLLM) Name() string     { return "scripted" }
func (s *scriptedLLM) Models() []string { return []string{"scripted"} }

func (s *scriptedLLM) CompleteStream(ctx context.Context, req *llm.CompletionRequest, callback llm.StreamCallback) (*llm.CompletionResponse, error) {
	for i, tok := range s.tokens {
		if s.pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.pause):
			}
		}
		if err := callback(tok, i); err != nil {
			return nil, err
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: strings.Join(s.tokens, ""), Model: "scripted"}, nil
}

type testServer struct {
	*httptest.Server
	store *service.MemoryStore
	chat  *service.ChatService
}

func newTestServer(t *testing.T, client llm.Client, keepAlive time.Duration) *testServer {
	t.Helper()

	log := logger.NewNop()
	store := service.NewMemoryStore()

	svc := service.NewChatService(store, store, client, service.ChatConfig{}, log)

	router := NewRouter(RouterConfig{
		Stream:            NewStreamHandler(svc, NewTenantVocabulary([]string{"3"}), keepAlive, log),
		Threads:           NewThreadHandler(svc, log),
		Health:            NewHealthHandler(nil, svc.Configured),
		JWTSecret:         testSecret,
		CORSOrigins:       []string{"*"},
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
		Logger:            log,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		svc.Wait()
	})
	return &testServer{Server: srv, store: store, chat: svc}
}

func token(t *testing.T, tenantID string) string {
	t.Helper()
	tok, err := middleware.IssueToken(testSecret, "user-1", tenantID, time.Hour)
	require.NoError(t, err)
	return tok
}

func postStream(t *testing.T, srv *testServer, bearer, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/assistant/chat/stream", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func errorBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body model.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error
}

func newClient(srv *testServer, tenantID string, t *testing.T) *chat.Controller {
	return chat.NewController(chat.Options{
		Endpoint: srv.URL + "/api/assistant/chat/stream",
		Token:    chat.StaticToken(token(t, tenantID)),
		Timeout:  5 * time.Second,
	})
}

func TestStreamRejectsRequests(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{tokens: []string{"x"}}, 0)

	resp := postStream(t, srv, "", `{"message":"oi"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", errorBody(t, resp))

	resp = postStream(t, srv, token(t, "acme"), `{"message":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request body", errorBody(t, resp))

	resp = postStream(t, srv, token(t, "acme"), `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Message is required", errorBody(t, resp))
}

func TestStreamNotConfigured(t *testing.T) {
	srv := newTestServer(t, nil, 0)

	resp := postStream(t, srv, token(t, "acme"), `{"message":"oi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "Assistant is not configured", errorBody(t, resp))

	c := newClient(srv, "acme", t)
	err := c.SendMessage(context.Background(), "oi")

	var chatErr *chat.ChatError
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, chat.ErrorServiceUnavailable, chatErr.Kind)
	assert.Equal(t, "Assistant is not configured", c.Snapshot().Messages[1].Content)
}

func TestStreamHeadersAndVocabulary(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{tokens: []string{"Olá"}}, 0)

	t.Run("openai assistant", func(t *testing.T) {
		resp := postStream(t, srv, token(t, "acme"), `{"message":"oi"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
		assert.Equal(t, "no-cache, no-transform", resp.Header.Get("Cache-Control"))
		assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"type":"thread.created","threadId":"`)
		assert.Contains(t, string(body), `data: {"type":"message.delta","content":"Olá"}`)
		assert.Contains(t, string(body), `data: {"type":"message.completed"}`)
	})

	t.Run("llamaindex tenant", func(t *testing.T) {
		resp := postStream(t, srv, token(t, "3"), `{"message":"oi"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"type":"session","sessionId":"`)
		assert.Contains(t, string(body), `data: {"type":"text","content":"Olá"}`)
		assert.Contains(t, string(body), `data: {"type":"done"}`)
	})
}

func TestStreamKeepAlive(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{tokens: []string{"a", "b"}, pause: 60 * time.Millisecond}, 10*time.Millisecond)

	resp := postStream(t, srv, token(t, "acme"), `{"message":"oi"}`)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), ": keepalive\n\n")
}

func TestControllerAgainstServer(t *testing.T) {
	for _, tenant := range []string{"acme", "3"} {
		t.Run("tenant "+tenant, func(t *testing.T) {
			srv := newTestServer(t, &scriptedLLM{tokens: []string{"Hello", " world"}}, 0)

			var created []string
			c := chat.NewController(chat.Options{
				Endpoint:        srv.URL + "/api/assistant/chat/stream",
				Token:           chat.StaticToken(token(t, tenant)),
				OnThreadCreated: func(id string) { created = append(created, id) },
			})

			require.NoError(t, c.SendMessage(context.Background(), "first"))
			require.NoError(t, c.SendMessage(context.Background(), "second"))

			snap := c.Snapshot()
			require.Len(t, snap.Messages, 4)
			for _, m := range snap.Messages {
				assert.True(t, m.IsFinal())
			}
			assert.Equal(t, "Hello world", snap.Messages[3].Content)
			require.Len(t, created, 1)
			assert.Equal(t, created[0], snap.ThreadID)

			req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/assistant/threads/"+snap.ThreadID+"/messages", nil)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token(t, tenant))
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, http.StatusOK, resp.StatusCode)
			var history model.ListThreadMessagesResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
			assert.Equal(t, snap.ThreadID, history.ThreadID)
			assert.Equal(t, []model.HistoryEntry{
				{Role: model.RoleUser, Content: "first"},
				{Role: model.RoleAssistant, Content: "Hello world"},
				{Role: model.RoleUser, Content: "second"},
				{Role: model.RoleAssistant, Content: "Hello world"},
			}, history.Messages)
		})
	}
}

func TestControllerSeesProviderFailure(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{tokens: []string{"par"}, err: errors.New("upstream")}, 0)
	c := newClient(srv, "acme", t)

	err := c.SendMessage(context.Background(), "oi")

	var chatErr *chat.ChatError
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, chat.ErrorServiceUnavailable, chatErr.Kind)

	last := c.Snapshot().Messages[1]
	assert.True(t, last.IsError())
	assert.Equal(t, "Failed to generate a response", last.Content)

	require.Eventually(t, func() bool {
		logs := srv.store.Interactions("acme")
		return len(logs) == 1 && logs[0].Status == model.InteractionFailed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestControllerAbortAgainstServer(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{tokens: []string{"a", "b", "c"}, pause: time.Second}, 0)
	c := newClient(srv, "acme", t)

	done := make(chan error, 1)
	go func() { done <- c.SendMessage(context.Background(), "oi") }()

	require.Eventually(t, func() bool {
		return c.Status() == chat.StatusStreaming
	}, 2*time.Second, 5*time.Millisecond)
	c.AbortStream()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("exchange did not end after abort")
	}
	assert.Len(t, c.Snapshot().Messages, 1)

	require.Eventually(t, func() bool {
		logs := srv.store.Interactions("acme")
		return len(logs) == 1 && logs[0].Reason == "client disconnected"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestThreadMessagesNotFound(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{}, 0)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/assistant/threads/unknown/messages", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, "acme"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Thread not found", errorBody(t, resp))
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{}, 0)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	unconfigured := newTestServer(t, nil, 0)
	resp, err = http.Get(unconfigured.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

type fakeConn struct{ connected bool }

func (f fakeConn) IsConnected() bool { return f.connected }

func TestReadyReportsStore(t *testing.T) {
	h := NewHealthHandler(fakeConn{connected: false}, nil)
	rec := httptest.NewRecorder()

	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "NATS not connected")
}
