package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	_, err := NewClient(ProviderOpenAI, "")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient(ProviderAnthropic, "")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient("llama", "key")
	assert.Error(t, err)

	client, err := NewClient(ProviderMock, "")
	require.NoError(t, err)
	assert.Equal(t, "mock", client.Name())
}

func TestMockClientEchoes(t *testing.T) {
	client := &MockClient{}

	var tokens []string
	resp, err := client.CompleteStream(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "reply"},
			{Role: "user", Content: "hello there"},
		},
	}, func(token string, index int) error {
		assert.Equal(t, len(tokens), index)
		tokens = append(tokens, token)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"You ", "said: ", "hello ", "there"}, tokens)
	assert.Equal(t, "You said: hello there", resp.Content)
}

func TestMockClientStopsOnCallbackError(t *testing.T) {
	client := &MockClient{Reply: "a b c"}
	stop := errors.New("client gone")

	_, err := client.CompleteStream(context.Background(), &CompletionRequest{}, func(token string, index int) error {
		if index == 1 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
}

func TestMockClientHonorsContext(t *testing.T) {
	client := NewMockClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.CompleteStream(ctx, &CompletionRequest{}, func(string, int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenAIClientStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Olá", ", ", "mundo"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", chunk)
		}
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	client := NewOpenAIClientWithConfig(cfg)

	var got strings.Builder
	resp, err := client.CompleteStream(context.Background(), &CompletionRequest{
		System:   "be brief",
		Messages: []ChatMessage{{Role: "user", Content: "oi"}},
	}, func(token string, index int) error {
		got.WriteString(token)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Olá, mundo", got.String())
	assert.Equal(t, "Olá, mundo", resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, defaultOpenAIModel, resp.Model)
}

func TestTokenize(t *testing.T) {
	assert.Nil(t, tokenize(""))
	assert.Equal(t, []string{"one"}, tokenize("one"))
	assert.Equal(t, []string{"a ", " ", "b"}, tokenize("a  b"))
}
