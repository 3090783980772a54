package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LLAMAINDEX_TENANTS", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 10*time.Second, cfg.SSEKeepAliveInterval)
	assert.Empty(t, cfg.LlamaIndexTenants)
	assert.Equal(t, 60, cfg.RateLimitRequests)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LLAMAINDEX_TENANTS", " 3, ,7 ")
	t.Setenv("SSE_KEEPALIVE_INTERVAL", "15s")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := Load()
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, []string{"3", "7"}, cfg.LlamaIndexTenants)
	assert.Equal(t, 15*time.Second, cfg.SSEKeepAliveInterval)
	assert.Equal(t, 60, cfg.RateLimitRequests)
	assert.True(t, cfg.TracingEnabled)
}

func TestLoadClient(t *testing.T) {
	t.Setenv("CHAT_ENDPOINT", "http://chat.local/stream")
	t.Setenv("CHAT_TIMEOUT", "45s")
	t.Setenv("CHAT_STRICT_COMPLETION", "1")
	t.Setenv("CHAT_NOTICE_FILE", "/tmp/notice")

	cfg := LoadClient()
	assert.Equal(t, "http://chat.local/stream", cfg.Endpoint)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.True(t, cfg.StrictCompletion)
	assert.Equal(t, 2, cfg.ScrollThreshold)
	assert.Equal(t, "/tmp/notice", cfg.NoticeFile)
}
