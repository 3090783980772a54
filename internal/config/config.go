// Package config provides environment configuration for the stream endpoint
// and the terminal client.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the API server.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// NATS settings; an empty URL keeps thread history in memory
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	DefaultModel    string
	SystemPrompt    string
	HistoryLimit    int

	// Stream settings
	SSEKeepAliveInterval time.Duration
	LlamaIndexTenants    []string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel    string
	Environment string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads server configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),
		CORSOrigins:        getListEnv("CORS_ORIGINS", []string{"https://*", "http://*"}),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "openai"),
		DefaultModel:    getEnv("DEFAULT_MODEL", ""),
		SystemPrompt:    getEnv("SYSTEM_PROMPT", ""),
		HistoryLimit:    getIntEnv("HISTORY_LIMIT", 50),

		// Stream
		SSEKeepAliveInterval: getDurationEnv("SSE_KEEPALIVE_INTERVAL", 10*time.Second),
		LlamaIndexTenants:    getListEnv("LLAMAINDEX_TENANTS", nil),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("ENV", "production"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// ClientConfig holds configuration for the terminal client.
type ClientConfig struct {
	Endpoint         string
	Token            string
	JWTSecret        string
	Timeout          time.Duration
	StrictCompletion bool
	ScrollThreshold  int
	NoticeFile       string
	LogFile          string
	LogLevel         string
}

// LoadClient reads client configuration from environment variables.
func LoadClient() *ClientConfig {
	return &ClientConfig{
		Endpoint:         getEnv("CHAT_ENDPOINT", "http://localhost:8080/api/assistant/chat/stream"),
		Token:            getEnv("CHAT_TOKEN", ""),
		JWTSecret:        getEnv("JWT_SECRET", "development-secret-change-in-production"),
		Timeout:          getDurationEnv("CHAT_TIMEOUT", 0),
		StrictCompletion: getBoolEnv("CHAT_STRICT_COMPLETION", false),
		ScrollThreshold:  getIntEnv("CHAT_SCROLL_THRESHOLD", 2),
		NoticeFile:       getEnv("CHAT_NOTICE_FILE", defaultNoticeFile()),
		LogFile:          getEnv("CHAT_LOG_FILE", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
}

func defaultNoticeFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "assistant-chat", "notice_dismissed")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated value, dropping empty items.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
