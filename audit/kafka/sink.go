package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	sessionauth "github.com/MrEthical07/sessionauth"
)

const defaultWriteTimeout = 5 * time.Second

// MessageWriter is the subset of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config describes the target cluster.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Sink encodes each event as JSON, keyed by user id so one user's events
// stay ordered within a partition.
type Sink struct {
	w       MessageWriter
	timeout time.Duration
	logger  *slog.Logger
}

var _ sessionauth.AuditSink = (*Sink)(nil)

// New builds a sink over a kafka-go Writer with hash balancing.
func New(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka audit: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka audit: topic is required")
	}
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewWithWriter(w, cfg), nil
}

// NewWithWriter wraps an existing writer. Topic and Brokers in cfg are
// ignored.
func NewWithWriter(w MessageWriter, cfg Config) *Sink {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sink{w: w, timeout: cfg.WriteTimeout, logger: cfg.Logger}
}

// Emit writes one message. Failures are logged and the event is dropped.
func (s *Sink) Emit(ctx context.Context, event sessionauth.AuditEvent) {
	if s == nil || s.w == nil {
		return
	}
	value, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("audit event encode failed", "op", "kafka.emit", "event_type", event.EventType, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	msg := kafkago.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		s.logger.Warn("audit event publish failed", "op", "kafka.emit", "event_type", event.EventType, "error", err)
	}
}

// Close flushes pending writes and releases the connection.
func (s *Sink) Close() error {
	if s == nil || s.w == nil {
		return nil
	}
	return s.w.Close()
}
