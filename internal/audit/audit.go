package audit

import (
	"context"
	"encoding/json"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one security-relevant state change. Raw emails are never
// recorded; callers put fingerprints in Metadata.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	TokenID   string            `json:"token_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives events from the dispatcher goroutine. Implementations
// should honor ctx; it carries the delivery deadline.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// MultiSink fans an event out to every non-nil sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}

// TypeFilter forwards only the listed event types, for example to send
// lockouts and reuse detections to a paging sink.
func TypeFilter(next Sink, types ...string) Sink {
	return SinkFunc(func(ctx context.Context, event Event) {
		if slices.Contains(types, event.EventType) {
			next.Emit(ctx, event)
		}
	})
}

// ChannelSink buffers events for an in-process consumer. When the buffer is
// full the event is dropped and counted rather than stalling delivery.
type ChannelSink struct {
	events  chan Event
	dropped atomic.Uint64
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(_ context.Context, event Event) {
	select {
	case s.events <- event:
	default:
		s.dropped.Add(1)
	}
}

func (s *ChannelSink) Events() <-chan Event { return s.events }

func (s *ChannelSink) Dropped() uint64 { return s.dropped.Load() }

// JSONWriterSink writes newline-delimited JSON. Write errors are counted,
// not returned.
type JSONWriterSink struct {
	mu     sync.Mutex
	enc    *json.Encoder
	errors atomic.Uint64
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		w = io.Discard
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	err := s.enc.Encode(event)
	s.mu.Unlock()
	if err != nil {
		s.errors.Add(1)
	}
}

// WriteErrors reports how many events failed to encode or write.
func (s *JSONWriterSink) WriteErrors() uint64 { return s.errors.Load() }
