package chat

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyMessage is returned when the message is blank.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrExchangeInFlight is returned when an exchange is already running.
	ErrExchangeInFlight = errors.New("an exchange is already in flight")
	// ErrNothingToRetry is returned when no user message has been sent yet.
	ErrNothingToRetry = errors.New("no message to retry")
)

// ErrorKind classifies a failed exchange.
type ErrorKind string

const (
	ErrorNetwork            ErrorKind = "network"
	ErrorTimeout            ErrorKind = "timeout"
	ErrorServiceUnavailable ErrorKind = "service-unavailable"
	ErrorBadRequest         ErrorKind = "bad-request"
	ErrorUnknown            ErrorKind = "unknown"
	// ErrorIncomplete is a stream that closed without a terminal event, only
	// reported when strict completion is enabled.
	ErrorIncomplete ErrorKind = "incomplete"
)

// Retryable reports whether replaying the same input may succeed.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorNetwork, ErrorTimeout, ErrorServiceUnavailable, ErrorIncomplete:
		return true
	default:
		return false
	}
}

// ChatError is a classified exchange failure.
type ChatError struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
	Err       error
}

// NewChatError creates a ChatError of kind with the kind's retry policy.
func NewChatError(kind ErrorKind, message string) *ChatError {
	return &ChatError{Kind: kind, Message: message, Retryable: kind.Retryable()}
}

func wrapChatError(kind ErrorKind, message string, err error) *ChatError {
	e := NewChatError(kind, message)
	e.Err = err
	return e
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps a non-success HTTP status to an error kind.
func ClassifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized:
		return ErrorNetwork
	case code == http.StatusRequestTimeout:
		return ErrorTimeout
	case code == http.StatusTooManyRequests:
		return ErrorServiceUnavailable
	case code >= 400 && code < 500:
		return ErrorBadRequest
	case code >= 500 && code < 600:
		return ErrorServiceUnavailable
	default:
		return ErrorUnknown
	}
}
