package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/assistant-chat/internal/model"
)

const (
	// StreamName is the name of the assistant chat stream.
	StreamName = "ASSISTANT_CHAT"

	// SubjectPrefix is the prefix for all chat subjects.
	SubjectPrefix = "chat"

	fetchBatch   = 256
	fetchMaxWait = 2 * time.Second
)

// StreamManager stores threads, their messages and interaction logs as
// JetStream messages. It satisfies the service's ThreadStore and
// InteractionRecorder.
type StreamManager struct {
	client *Client
	stream jetstream.Stream
}

// NewStreamManager creates a new stream manager. EnsureStream must be called
// before use.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the chat stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	stream, err := js.Stream(ctx, StreamName)
	if err == nil {
		m.stream = stream
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	stream, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Assistant chat threads, messages and interaction logs",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	m.stream = stream
	return nil
}

// subjectToken makes s usable as a single subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// validThreadID reports whether id can be a thread created by this store.
func validThreadID(id string) bool {
	return id != "" && subjectToken(id) == id
}

// ThreadSubject returns the subject holding a thread's creation record.
func ThreadSubject(tenantID, threadID string) string {
	return fmt.Sprintf("%s.%s.%s.thread", SubjectPrefix, subjectToken(tenantID), threadID)
}

// MessageSubject returns the subject for a thread message.
func MessageSubject(tenantID, threadID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, subjectToken(tenantID), threadID, role)
}

// InteractionSubject returns the subject for an interaction log entry.
func InteractionSubject(tenantID, threadID string) string {
	return fmt.Sprintf("%s.%s.%s.interaction", SubjectPrefix, subjectToken(tenantID), subjectToken(threadID))
}

func messageFilter(tenantID, threadID string) string {
	return fmt.Sprintf("%s.%s.%s.msg.>", SubjectPrefix, subjectToken(tenantID), threadID)
}

func (m *StreamManager) publish(ctx context.Context, subject string, v any) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s: %w", subject, err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return ack.Sequence, nil
}

// CreateThread creates a new thread.
func (m *StreamManager) CreateThread(ctx context.Context, tenantID, userID string) (*model.Thread, error) {
	thread := &model.Thread{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  tenantID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}

	if _, err := m.publish(ctx, ThreadSubject(tenantID, thread.ID), thread); err != nil {
		return nil, err
	}
	return thread, nil
}

// GetThread retrieves a thread by ID.
func (m *StreamManager) GetThread(ctx context.Context, tenantID, threadID string) (*model.Thread, error) {
	if !validThreadID(threadID) {
		return nil, model.ErrThreadNotFound
	}

	raw, err := m.stream.GetLastMsgForSubject(ctx, ThreadSubject(tenantID, threadID))
	if errors.Is(err, jetstream.ErrMsgNotFound) {
		return nil, model.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	var thread model.Thread
	if err := json.Unmarshal(raw.Data, &thread); err != nil {
		return nil, fmt.Errorf("failed to decode thread: %w", err)
	}
	return &thread, nil
}

// AppendMessage publishes a thread message.
func (m *StreamManager) AppendMessage(ctx context.Context, msg *model.ThreadMessage) error {
	if !validThreadID(msg.ThreadID) {
		return model.ErrThreadNotFound
	}

	seq, err := m.publish(ctx, MessageSubject(msg.TenantID, msg.ThreadID, msg.Role), msg)
	if err != nil {
		return err
	}
	msg.Sequence = seq
	return nil
}

// RecordInteraction publishes an interaction log entry.
func (m *StreamManager) RecordInteraction(ctx context.Context, entry *model.InteractionLog) error {
	_, err := m.publish(ctx, InteractionSubject(entry.TenantID, entry.ThreadID), entry)
	return err
}

// ListMessages reads a thread's messages through an ephemeral consumer and
// keeps the latest limit of them.
func (m *StreamManager) ListMessages(ctx context.Context, tenantID, threadID string, limit int) ([]model.ThreadMessage, error) {
	if _, err := m.GetThread(ctx, tenantID, threadID); err != nil {
		return nil, err
	}

	js := m.client.JetStream()
	consumer, err := js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject:     messageFilter(tenantID, threadID),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	defer func() {
		_ = js.DeleteConsumer(context.WithoutCancel(ctx), StreamName, consumer.CachedInfo().Name)
	}()

	info, err := consumer.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer info: %w", err)
	}

	var messages []model.ThreadMessage
	for remaining := int(info.NumPending); remaining > 0; {
		batch, err := consumer.Fetch(min(remaining, fetchBatch), jetstream.FetchMaxWait(fetchMaxWait))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch messages: %w", err)
		}

		received := 0
		for msg := range batch.Messages() {
			received++

			var message model.ThreadMessage
			if err := json.Unmarshal(msg.Data(), &message); err != nil {
				continue
			}
			if meta, err := msg.Metadata(); err == nil {
				message.Sequence = meta.Sequence.Stream
			}
			messages = append(messages, message)
		}

		if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, nats.ErrTimeout) {
			return nil, fmt.Errorf("batch error: %w", err)
		}
		if received == 0 {
			break
		}
		remaining -= received
	}

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}
