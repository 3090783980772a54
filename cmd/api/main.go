// Package main is the entry point for the assistant stream endpoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant-chat/internal/config"
	"github.com/capitalize-ai/assistant-chat/internal/handler"
	"github.com/capitalize-ai/assistant-chat/internal/llm"
	natsclient "github.com/capitalize-ai/assistant-chat/internal/nats"
	"github.com/capitalize-ai/assistant-chat/internal/service"
	"github.com/capitalize-ai/assistant-chat/pkg/logger"
	"github.com/capitalize-ai/assistant-chat/pkg/tracing"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting assistant stream endpoint")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "assistant-chat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Thread history lives in JetStream when NATS is configured, in memory
	// otherwise.
	var (
		threads      service.ThreadStore
		interactions service.InteractionRecorder
		readiness    handler.ReadinessChecker
	)
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		threads, interactions, readiness = streamManager, streamManager, natsClient
	} else {
		log.Warn("NATS_URL not set, keeping thread history in memory")
		store := service.NewMemoryStore()
		threads, interactions = store, store
	}

	llmClient, err := newLLMClient(cfg)
	if err != nil {
		log.Warn("failed to create LLM client, assistant disabled", zap.Error(err))
		llmClient = nil
	} else if llmClient == nil {
		log.Warn("no LLM API key configured, assistant disabled")
	} else {
		log.Info("LLM client ready", zap.String("provider", llmClient.Name()))
	}

	chatSvc := service.NewChatService(threads, interactions, llmClient, service.ChatConfig{
		Model:        cfg.DefaultModel,
		SystemPrompt: cfg.SystemPrompt,
		HistoryLimit: cfg.HistoryLimit,
	}, log.Named("chat"))

	router := handler.NewRouter(handler.RouterConfig{
		Stream: handler.NewStreamHandler(
			chatSvc,
			handler.NewTenantVocabulary(cfg.LlamaIndexTenants),
			cfg.SSEKeepAliveInterval,
			log,
		),
		Threads:           handler.NewThreadHandler(chatSvc, log),
		Health:            handler.NewHealthHandler(readiness, chatSvc.Configured),
		JWTSecret:         cfg.JWTSecret,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Logger:            log,
	})

	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: cfg.ServerReadTimeout,
		// Streams stay open for the whole answer; zero disables the limit.
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// Interaction logs are written after the response; let them land.
	chatSvc.Wait()

	log.Info("server stopped")
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	if cfg.Environment == "development" {
		return logger.NewDevelopment()
	}
	return logger.New(cfg.LogLevel)
}

// newLLMClient picks DEFAULT_LLM when its key is set and falls back to any
// other configured provider. It returns nil when no provider has a key.
func newLLMClient(cfg *config.Config) (llm.Client, error) {
	keys := map[llm.Provider]string{
		llm.ProviderAnthropic: cfg.AnthropicAPIKey,
		llm.ProviderOpenAI:    cfg.OpenAIAPIKey,
	}

	preferred := llm.Provider(cfg.DefaultLLM)
	if preferred == llm.ProviderMock {
		return llm.NewClient(preferred, "")
	}
	if key := keys[preferred]; key != "" {
		return llm.NewClient(preferred, key)
	}
	for _, provider := range []llm.Provider{llm.ProviderAnthropic, llm.ProviderOpenAI} {
		if key := keys[provider]; key != "" {
			return llm.NewClient(provider, key)
		}
	}
	return nil, nil
}
