package llm

import (
	"context"
	"strings"
	"time"
)

// MockClient echoes the last user message back word by word. It backs local
// development when no provider key is available.
type MockClient struct {
	// Delay is the pause between tokens.
	Delay time.Duration
	// Reply, when set, replaces the echo.
	Reply string
}

// NewMockClient creates a MockClient with a short per-token delay.
func NewMockClient() *MockClient {
	return &MockClient{Delay: 30 * time.Millisecond}
}

func (c *MockClient) Name() string {
	return string(ProviderMock)
}

func (c *MockClient) Models() []string {
	return []string{"mock-echo"}
}

// CompleteStream streams the reply and stops early when ctx is done.
func (c *MockClient) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	start := time.Now()

	reply := c.Reply
	if reply == "" {
		reply = "You said: " + lastUserMessage(req.Messages)
	}

	var content strings.Builder
	for i, token := range tokenize(reply) {
		if c.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.Delay):
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}

		content.WriteString(token)
		if err := callback(token, i); err != nil {
			return nil, err
		}
	}

	return &CompletionResponse{
		Content:    content.String(),
		Model:      "mock-echo",
		TokensOut:  len(tokenize(reply)),
		StopReason: "stop",
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

func lastUserMessage(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// tokenize splits s after each space so that joining the parts yields s.
func tokenize(s string) []string {
	var out []string
	for s != "" {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+1])
		s = s[i+1:]
	}
	return out
}
