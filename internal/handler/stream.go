package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant-chat/internal/middleware"
	"github.com/capitalize-ai/assistant-chat/internal/model"
	"github.com/capitalize-ai/assistant-chat/internal/service"
	"github.com/capitalize-ai/assistant-chat/internal/sse"
	"github.com/capitalize-ai/assistant-chat/internal/stream"
	"github.com/capitalize-ai/assistant-chat/pkg/logger"
	"github.com/capitalize-ai/assistant-chat/pkg/metrics"
)

// maxRequestBody bounds the JSON body of a chat request.
const maxRequestBody = 1 << 20

// Streamer runs one chat exchange. *service.ChatService satisfies it.
type Streamer interface {
	Configured() bool
	Stream(ctx context.Context, ex *service.Exchange, emit service.EventSink) error
}

// TenantVocabulary picks the event vocabulary a tenant's client expects.
type TenantVocabulary struct {
	llamaIndex map[string]bool
}

// NewTenantVocabulary creates a resolver that serves the LlamaIndex vocabulary
// to the listed tenants and the OpenAI-assistant vocabulary to all others.
func NewTenantVocabulary(llamaIndexTenants []string) *TenantVocabulary {
	v := &TenantVocabulary{llamaIndex: make(map[string]bool, len(llamaIndexTenants))}
	for _, t := range llamaIndexTenants {
		v.llamaIndex[t] = true
	}
	return v
}

// For returns the vocabulary for tenantID.
func (v *TenantVocabulary) For(tenantID string) stream.Vocabulary {
	if v != nil && v.llamaIndex[tenantID] {
		return stream.LlamaIndex
	}
	return stream.OpenAIAssistant
}

// StreamHandler serves the chat event stream.
type StreamHandler struct {
	chat       Streamer
	vocabulary *TenantVocabulary
	keepAlive  time.Duration
	logger     *logger.Logger
}

// NewStreamHandler creates a new stream handler. A keepAlive of zero disables
// keep-alive comments.
func NewStreamHandler(chat Streamer, vocabulary *TenantVocabulary, keepAlive time.Duration, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		chat:       chat,
		vocabulary: vocabulary,
		keepAlive:  keepAlive,
		logger:     log,
	}
}

// Stream handles POST /api/assistant/chat/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	userID := middleware.GetUserID(ctx)
	log := h.logger.WithRequest(middleware.GetCorrelationID(ctx), tenantID, userID)

	var req model.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := middleware.ValidateChatRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.chat.Configured() {
		writeError(w, http.StatusServiceUnavailable, "Assistant is not configured")
		return
	}

	sw, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	vocabulary := h.vocabulary.For(tenantID)
	sw.WriteHeader()

	if h.keepAlive > 0 {
		keepAlive := sse.NewTickerKeepAlive(h.keepAlive)
		stopped := keepAlive.Start(sw, log)
		defer func() {
			keepAlive.Stop()
			<-stopped
		}()
	}

	err = h.chat.Stream(ctx, &service.Exchange{
		TenantID:   tenantID,
		UserID:     userID,
		Request:    req,
		Vocabulary: vocabulary,
	}, func(ev stream.Event) error {
		return sw.WriteData(stream.Encode(vocabulary, ev))
	})

	switch {
	case err == nil:
		log.Debug("chat stream closed", zap.String("vocabulary", string(vocabulary)))
	case ctx.Err() != nil:
		log.Info("chat client disconnected", zap.Error(err))
	case errors.Is(err, service.ErrAssistantNotConfigured):
		_ = sw.WriteData(stream.Encode(vocabulary, stream.Failed("Assistant is not configured")))
	default:
		log.Warn("chat stream failed", zap.Error(err))
	}
}
