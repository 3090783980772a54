package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant-chat/internal/middleware"
	"github.com/capitalize-ai/assistant-chat/internal/model"
	"github.com/capitalize-ai/assistant-chat/pkg/logger"
)

// HistoryReader returns the stored turns of a thread.
type HistoryReader interface {
	History(ctx context.Context, tenantID, threadID string) ([]model.HistoryEntry, error)
}

// ThreadHandler serves thread history.
type ThreadHandler struct {
	history HistoryReader
	logger  *logger.Logger
}

// NewThreadHandler creates a new thread handler.
func NewThreadHandler(history HistoryReader, log *logger.Logger) *ThreadHandler {
	return &ThreadHandler{history: history, logger: log}
}

// Messages handles GET /api/assistant/threads/{id}/messages
func (h *ThreadHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	threadID := chi.URLParam(r, "id")

	if threadID == "" {
		writeError(w, http.StatusBadRequest, "Thread ID is required")
		return
	}
	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.history.History(ctx, tenantID, threadID)
	if errors.Is(err, model.ErrThreadNotFound) {
		writeError(w, http.StatusNotFound, "Thread not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get thread messages",
			zap.String("thread_id", threadID),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to get thread messages")
		return
	}

	if messages == nil {
		messages = []model.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, model.ListThreadMessagesResponse{
		ThreadID: threadID,
		Messages: messages,
	})
}
