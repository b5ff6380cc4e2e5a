// Package observability exposes the narrow logging collaborator the core
// translation engine depends on. The core passes unredacted structures and
// trusts the sink to redact before it writes anything out; a Sink that
// never logs (NoopSink) is the default so the core performs no logging
// when observability is disabled.
package observability

import (
	"context"
	"log/slog"
)

// Fields is the event payload passed to a Sink.
type Fields map[string]any

// Sink is the logging collaborator interface. Implementations decide what
// to do with an event; the core never inspects return values.
type Sink interface {
	Log(ctx context.Context, event string, fields Fields)
}

// NoopSink discards every event.
type NoopSink struct{}

func (NoopSink) Log(context.Context, string, Fields) {}

// SlogSink logs events through a *slog.Logger, redacting large text
// payloads (message/tool-argument bodies) before they reach the log line.
// Redaction is this sink's responsibility, not the core's, per the
// observability interface's design.
type SlogSink struct {
	Logger      *slog.Logger
	RedactAfter int // bytes; 0 disables truncation
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{Logger: logger, RedactAfter: 2048}
}

func (s *SlogSink) Log(ctx context.Context, event string, fields Fields) {
	if s == nil || s.Logger == nil {
		return
	}
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, s.redact(v))
	}
	s.Logger.InfoContext(ctx, event, attrs...)
}

func (s *SlogSink) redact(v any) any {
	if s.RedactAfter <= 0 {
		return v
	}
	str, ok := v.(string)
	if !ok || len(str) <= s.RedactAfter {
		return v
	}
	return str[:s.RedactAfter] + "...<redacted>"
}
