package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one security-relevant outcome: a login, a registration, a TFA
// change or a revoked session.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Country   string            `json:"country,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Level is the slog level an event is reported at: failures warn.
func (e Event) Level() slog.Level {
	if e.Success {
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

// Sink receives emitted audit events. Emit runs on the dispatcher worker
// and should not block for long.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink keeps the most recent events in a bounded channel. When the
// reader falls behind, the oldest buffered event is evicted so the
// dispatcher worker never stalls on it.
type ChannelSink struct {
	events  chan Event
	mu      sync.Mutex
	evicted atomic.Uint64
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case s.events <- event:
			return
		default:
		}
		select {
		case <-s.events:
			s.evicted.Add(1)
		default:
		}
	}
}

// Events is the receive side of the buffer.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// Evicted counts events pushed out by newer ones before anyone read them.
func (s *ChannelSink) Evicted() uint64 {
	return s.evicted.Load()
}

// JSONWriterSink writes one JSON object per line to w.
type JSONWriterSink struct {
	mu       sync.Mutex
	enc      *json.Encoder
	failures atomic.Uint64
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONWriterSink{enc: enc}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	err := s.enc.Encode(event)
	s.mu.Unlock()
	if err != nil {
		s.failures.Add(1)
	}
}

// Failures counts events the underlying writer rejected.
func (s *JSONWriterSink) Failures() uint64 {
	if s == nil {
		return 0
	}
	return s.failures.Load()
}

// SlogSink writes each event as one structured log record.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(l *slog.Logger) *SlogSink {
	if l == nil {
		l = slog.Default()
	}
	return &SlogSink{logger: l}
}

func (s *SlogSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("event", event.EventType),
		slog.Bool("success", event.Success),
		slog.Time("at", event.Timestamp),
	}
	optional := [...]struct{ key, value string }{
		{"user_id", event.UserID},
		{"session_id", event.SessionID},
		{"ip", event.IP},
		{"user_agent", event.UserAgent},
		{"country", event.Country},
		{"error", event.Error},
	}
	for _, o := range optional {
		if o.value != "" {
			attrs = append(attrs, slog.String(o.key, o.value))
		}
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.String("meta."+k, v))
	}
	s.logger.LogAttrs(ctx, event.Level(), "audit", attrs...)
}
