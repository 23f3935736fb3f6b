// Package telemetry decorates a ContentGenerator with per-call instrumentation.
// Instrumentation runs on a side channel: it never changes what the wrapped
// client returns.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/lizzyg/gemrouter/internal/core"
)

// Operation names recorded in Event.Operation.
const (
	OpGenerateContent       = "generateContent"
	OpGenerateContentStream = "generateContentStream"
	OpCountTokens           = "countTokens"
	OpEmbedContent          = "embedContent"
)

// Event describes one finished call.
type Event struct {
	CallID     string
	Operation  string
	AuthType   string
	Model      string
	Start      time.Time
	Duration   time.Duration
	Success    bool
	ErrorClass string
	Error      string

	// Usage is the upstream-reported usage, or a local estimate when
	// UsageEstimated is set. Nil when neither is available.
	Usage          *core.UsageMetadata
	UsageEstimated bool

	// Chunks counts the responses delivered by a stream.
	Chunks int
	// Count is the token total returned by countTokens.
	Count int32
	// Embeddings is the number of vectors returned by embedContent.
	Embeddings int
}

// Sink receives events. Implementations may be slow or fail; errors are logged
// and otherwise ignored.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Record(ctx context.Context, ev Event) error { return f(ctx, ev) }

// SlogSink writes one "llm call" record per event.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Record(ctx context.Context, ev Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []slog.Attr{
		slog.String("call_id", ev.CallID),
		slog.String("operation", ev.Operation),
		slog.String("auth_type", ev.AuthType),
		slog.String("model", ev.Model),
		slog.Duration("latency_ms", ev.Duration),
		slog.Bool("error", !ev.Success),
	}
	if !ev.Success {
		attrs = append(attrs, slog.String("error_class", ev.ErrorClass), slog.String("error_message", ev.Error))
	}
	if ev.Usage != nil {
		attrs = append(attrs,
			slog.Int("prompt_tokens", int(ev.Usage.PromptTokenCount)),
			slog.Int("completion_tokens", int(ev.Usage.CandidatesTokenCount)),
			slog.Int("total_tokens", int(ev.Usage.TotalTokenCount)),
			slog.Bool("usage_estimated", ev.UsageEstimated),
		)
	}
	switch ev.Operation {
	case OpGenerateContentStream:
		attrs = append(attrs, slog.Int("chunks", ev.Chunks))
	case OpCountTokens:
		attrs = append(attrs, slog.Int("count", int(ev.Count)))
	case OpEmbedContent:
		attrs = append(attrs, slog.Int("embeddings", ev.Embeddings))
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "llm call", attrs...)
	return nil
}

// MultiSink fans an event out to every sink and returns the first error.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, ev Event) error {
	var first error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
