package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/capitalize-ai/assistant-chat/internal/model"
)

const (
	maxMessageLength  = 100000
	maxThreadIDLength = 128
)

// ValidateMessageContent validates the user message of a chat request.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("Message is required")
	}
	if len(content) > maxMessageLength {
		return errors.New("Message exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("Message must be valid UTF-8")
	}
	return nil
}

// ValidateThreadID validates a thread correlator. Empty is allowed.
func ValidateThreadID(id string) error {
	if len(id) > maxThreadIDLength {
		return errors.New("Thread ID exceeds maximum length")
	}
	if strings.ContainsAny(id, " \t\r\n") {
		return errors.New("Invalid thread ID format")
	}
	return nil
}

// ValidateChatHistory validates client-supplied prior turns.
func ValidateChatHistory(history []model.HistoryEntry) error {
	if len(history) > model.MaxChatHistory {
		return errors.New("Chat history exceeds maximum length")
	}
	for _, e := range history {
		if e.Role != model.RoleUser && e.Role != model.RoleAssistant {
			return errors.New("Chat history has an invalid role")
		}
		if len(e.Content) > maxMessageLength {
			return errors.New("Chat history entry exceeds maximum length")
		}
	}
	return nil
}

// ValidateChatRequest validates a chat request body.
func ValidateChatRequest(req *model.ChatRequest) error {
	if err := ValidateMessageContent(req.Message); err != nil {
		return err
	}
	if err := ValidateThreadID(req.ThreadID); err != nil {
		return err
	}
	return ValidateChatHistory(req.ChatHistory)
}
