package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sessionauth "github.com/MrEthical07/sessionauth"
)

type recordingWriter struct {
	mu       sync.Mutex
	msgs     []kafkago.Message
	err      error
	closed   bool
	deadline bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, w.deadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Topic: "audit"})
	assert.Error(t, err)

	_, err = New(Config{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	s, err := New(Config{Brokers: []string{"localhost:9092"}, Topic: "audit"})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestEmitPublishesJSONKeyedByUser(t *testing.T) {
	w := &recordingWriter{}
	s := NewWithWriter(w, Config{})

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Emit(context.Background(), sessionauth.AuditEvent{
		Timestamp: ts,
		EventType: "login_success",
		UserID:    "user-1",
		Success:   true,
	})

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "user-1", string(msg.Key))
	assert.Equal(t, ts, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "login_success", string(msg.Headers[0].Value))
	assert.True(t, w.deadline)

	var decoded sessionauth.AuditEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "login_success", decoded.EventType)
	assert.True(t, decoded.Success)
}

func TestEmitIgnoresCanceledCaller(t *testing.T) {
	w := &recordingWriter{}
	s := NewWithWriter(w, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Emit(ctx, sessionauth.AuditEvent{EventType: "logout"})

	assert.Len(t, w.msgs, 1)
}

func TestEmitLogsPublishFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	w := &recordingWriter{err: errors.New("broker down")}
	s := NewWithWriter(w, Config{Logger: logger})

	s.Emit(context.Background(), sessionauth.AuditEvent{EventType: "refresh_success"})

	assert.Contains(t, buf.String(), "audit event publish failed")
	assert.Contains(t, buf.String(), "broker down")
}

func TestCloseClosesWriter(t *testing.T) {
	w := &recordingWriter{}
	s := NewWithWriter(w, Config{})

	for i := 0; i < 3; i++ {
		s.Emit(context.Background(), sessionauth.AuditEvent{EventType: "logout", UserID: "u"})
	}
	require.NoError(t, s.Close())

	assert.Len(t, w.msgs, 3)
	assert.True(t, w.closed)
}
