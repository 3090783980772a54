package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant-chat/internal/llm"
	"github.com/capitalize-ai/assistant-chat/internal/model"
	"github.com/capitalize-ai/assistant-chat/internal/stream"
	"github.com/capitalize-ai/assistant-chat/pkg/logger"
	"github.com/capitalize-ai/assistant-chat/pkg/metrics"
)

// ErrAssistantNotConfigured is returned when no LLM provider is available.
var ErrAssistantNotConfigured = errors.New("assistant is not configured")

// failureMessage is the error text sent to clients when the provider fails.
const failureMessage = "Failed to generate a response"

// recordTimeout bounds the asynchronous interaction write.
const recordTimeout = 5 * time.Second

// EventSink receives the canonical events of one exchange. An error stops the
// exchange.
type EventSink func(ev stream.Event) error

// Exchange is one authenticated chat request.
type Exchange struct {
	TenantID   string
	UserID     string
	Request    model.ChatRequest
	Vocabulary stream.Vocabulary
}

// ChatConfig configures a ChatService.
type ChatConfig struct {
	Model        string
	SystemPrompt string
	HistoryLimit int
}

// ChatService runs exchanges against an LLM provider and keeps thread history.
type ChatService struct {
	threads      ThreadStore
	interactions InteractionRecorder
	llmClient    llm.Client
	cfg          ChatConfig
	logger       *logger.Logger
	tracer       trace.Tracer

	wg sync.WaitGroup
}

// NewChatService creates a chat service. llmClient may be nil, in which case
// every exchange fails with ErrAssistantNotConfigured; interactions may be nil
// to skip the audit log.
func NewChatService(
	threads ThreadStore,
	interactions InteractionRecorder,
	llmClient llm.Client,
	cfg ChatConfig,
	log *logger.Logger,
) *ChatService {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &ChatService{
		threads:      threads,
		interactions: interactions,
		llmClient:    llmClient,
		cfg:          cfg,
		logger:       log,
		tracer:       otel.Tracer("github.com/capitalize-ai/assistant-chat/internal/service"),
	}
}

// Configured reports whether an LLM provider is available.
func (s *ChatService) Configured() bool {
	return s.llmClient != nil
}

// Stream runs one exchange and reports its progress to emit: session-started
// when a thread is created, a text-delta per token, and completed or error.
// It returns the failure, if any, after the error event has been emitted.
func (s *ChatService) Stream(ctx context.Context, ex *Exchange, emit EventSink) error {
	if !s.Configured() {
		return ErrAssistantNotConfigured
	}

	ctx, span := s.tracer.Start(ctx, "chat.stream", trace.WithAttributes(
		attribute.String("tenant_id", ex.TenantID),
		attribute.String("vocabulary", string(ex.Vocabulary)),
	))
	defer span.End()

	start := time.Now()
	log := s.logger.With(zap.String("tenant_id", ex.TenantID), zap.String("user_id", ex.UserID))

	thread, created, err := s.resolveThread(ctx, ex)
	if err != nil {
		return s.failed(ctx, span, ex, "", start, err, emit)
	}
	span.SetAttributes(attribute.String("thread_id", thread.ID))
	log = log.With(zap.String("thread_id", thread.ID))

	if created {
		metrics.ThreadsTotal.WithLabelValues(ex.TenantID).Inc()
		if err := emit(stream.SessionStarted(thread.ID)); err != nil {
			return s.failed(ctx, span, ex, thread.ID, start, err, nil)
		}
	}

	messages, err := s.history(ctx, ex, thread.ID)
	if err != nil {
		return s.failed(ctx, span, ex, thread.ID, start, err, emit)
	}

	if err := s.append(ctx, ex, thread.ID, model.RoleUser, ex.Request.Message); err != nil {
		return s.failed(ctx, span, ex, thread.ID, start, err, emit)
	}

	var answer strings.Builder
	resp, err := s.llmClient.CompleteStream(ctx, &llm.CompletionRequest{
		Model:    s.cfg.Model,
		System:   s.cfg.SystemPrompt,
		Messages: append(messages, llm.ChatMessage{Role: string(model.RoleUser), Content: ex.Request.Message}),
	}, func(token string, index int) error {
		answer.WriteString(token)
		return emit(stream.TextDelta(token))
	})
	if err != nil {
		metrics.RecordLLMStream(s.llmClient.Name(), "error", time.Since(start).Seconds(), 0, 0)
		return s.failed(ctx, span, ex, thread.ID, start, fmt.Errorf("llm stream failed: %w", err), emit)
	}

	metrics.RecordLLMStream(resp.Model, "success", float64(resp.LatencyMs)/1000.0, resp.TokensIn, resp.TokensOut)

	if err := s.append(ctx, ex, thread.ID, model.RoleAssistant, resp.Content); err != nil {
		log.Warn("failed to store assistant message", zap.Error(err))
	}

	if err := emit(stream.Completed()); err != nil {
		return s.failed(ctx, span, ex, thread.ID, start, err, nil)
	}

	elapsed := time.Since(start)
	log.Info("chat exchange completed",
		zap.String("model", resp.Model),
		zap.Int("tokens_out", resp.TokensOut),
		zap.Duration("duration", elapsed),
	)
	metrics.RecordInteraction(string(model.InteractionCompleted), string(ex.Vocabulary))
	s.record(ex, thread.ID, answer.String(), elapsed, model.InteractionCompleted, "")
	return nil
}

// History returns a thread's stored turns.
func (s *ChatService) History(ctx context.Context, tenantID, threadID string) ([]model.HistoryEntry, error) {
	msgs, err := s.threads.ListMessages(ctx, tenantID, threadID, 0)
	if err != nil {
		return nil, err
	}

	out := make([]model.HistoryEntry, len(msgs))
	for i, m := range msgs {
		out[i] = model.HistoryEntry{Role: m.Role, Content: m.Content}
	}
	return out, nil
}

// Wait blocks until pending interaction writes finish.
func (s *ChatService) Wait() {
	s.wg.Wait()
}

// resolveThread returns the request's thread, or a new one when the request
// has none or names an unknown thread.
func (s *ChatService) resolveThread(ctx context.Context, ex *Exchange) (*model.Thread, bool, error) {
	if id := ex.Request.ThreadID; id != "" {
		thread, err := s.threads.GetThread(ctx, ex.TenantID, id)
		if err == nil {
			return thread, false, nil
		}
		if !errors.Is(err, model.ErrThreadNotFound) {
			return nil, false, fmt.Errorf("failed to load thread: %w", err)
		}
		s.logger.Debug("unknown thread, starting a new one", zap.String("thread_id", id))
	}

	thread, err := s.threads.CreateThread(ctx, ex.TenantID, ex.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create thread: %w", err)
	}
	return thread, true, nil
}

// history returns the prior turns for the provider. Stored history wins; the
// client-supplied history is used for threads the store has nothing for.
func (s *ChatService) history(ctx context.Context, ex *Exchange, threadID string) ([]llm.ChatMessage, error) {
	stored, err := s.threads.ListMessages(ctx, ex.TenantID, threadID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get message history: %w", err)
	}

	var out []llm.ChatMessage
	if len(stored) > 0 {
		for _, m := range stored {
			out = append(out, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
		}
		return out, nil
	}

	entries := ex.Request.ChatHistory
	if len(entries) > s.cfg.HistoryLimit {
		entries = entries[len(entries)-s.cfg.HistoryLimit:]
	}
	for _, e := range entries {
		if e.Role != model.RoleUser && e.Role != model.RoleAssistant {
			continue
		}
		out = append(out, llm.ChatMessage{Role: string(e.Role), Content: e.Content})
	}
	return out, nil
}

func (s *ChatService) append(ctx context.Context, ex *Exchange, threadID string, role model.Role, content string) error {
	err := s.threads.AppendMessage(ctx, &model.ThreadMessage{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ThreadID:  threadID,
		TenantID:  ex.TenantID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to store %s message: %w", role, err)
	}
	metrics.MessagesTotal.WithLabelValues(ex.TenantID, string(role)).Inc()
	return nil
}

// failed records a failed exchange. The error event is sent through emit
// unless emit is nil or the client has gone away.
func (s *ChatService) failed(ctx context.Context, span trace.Span, ex *Exchange, threadID string, start time.Time, err error, emit EventSink) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	reason := err.Error()
	if ctx.Err() != nil {
		reason = "client disconnected"
	} else if emit != nil {
		if emitErr := emit(stream.Failed(failureMessage)); emitErr != nil {
			s.logger.Debug("failed to send error event", zap.Error(emitErr))
		}
	}

	s.logger.Error("chat exchange failed",
		zap.String("tenant_id", ex.TenantID),
		zap.String("thread_id", threadID),
		zap.String("reason", reason),
		zap.Error(err),
	)
	metrics.RecordInteraction(string(model.InteractionFailed), string(ex.Vocabulary))
	s.record(ex, threadID, "", time.Since(start), model.InteractionFailed, reason)
	return err
}

// record writes the interaction log in the background; the request context
// is usually done by then.
func (s *ChatService) record(ex *Exchange, threadID, response string, elapsed time.Duration, status model.InteractionStatus, reason string) {
	if s.interactions == nil {
		return
	}

	entry := &model.InteractionLog{
		ID:                uuid.Must(uuid.NewV7()).String(),
		TenantID:          ex.TenantID,
		UserID:            ex.UserID,
		ThreadID:          threadID,
		UserMessage:       ex.Request.Message,
		AssistantResponse: response,
		ResponseTimeMs:    elapsed.Milliseconds(),
		Status:            status,
		Reason:            reason,
		CreatedAt:         time.Now(),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if err := s.interactions.RecordInteraction(ctx, entry); err != nil {
			s.logger.Warn("failed to record interaction",
				zap.String("interaction_id", entry.ID),
				zap.Error(err),
			)
		}
	}()
}
