package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	moderr "github.com/lizzyg/gemrouter/errors"
	"github.com/lizzyg/gemrouter/internal/core"
)

// Generator forwards every call to the wrapped client unchanged and records
// an Event for it.
type Generator struct {
	inner     core.ContentGenerator
	sink      Sink
	logger    *slog.Logger
	estimator Estimator
	authType  string
	model     string
	now       func() time.Time
}

var _ core.ContentGenerator = (*Generator)(nil)

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger used to report sink failures.
func WithLogger(l *slog.Logger) Option { return func(g *Generator) { g.logger = l } }

// WithEstimator enables local usage estimates for calls whose upstream
// reports no usage.
func WithEstimator(e Estimator) Option { return func(g *Generator) { g.estimator = e } }

// WithAuthType tags every event with the resolved auth type.
func WithAuthType(t string) Option { return func(g *Generator) { g.authType = t } }

// WithDefaultModel names the model recorded for requests that leave Model empty.
func WithDefaultModel(m string) Option { return func(g *Generator) { g.model = m } }

// Wrap decorates inner. A nil sink records to SlogSink with the configured logger.
func Wrap(inner core.ContentGenerator, sink Sink, opts ...Option) *Generator {
	g := &Generator{inner: inner, sink: sink, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	if g.sink == nil {
		g.sink = SlogSink{Logger: g.logger}
	}
	return g
}

// Unwrap returns the decorated client.
func (g *Generator) Unwrap() core.ContentGenerator { return g.inner }

func (g *Generator) GenerateContent(ctx context.Context, req core.GenerateContentRequest) (*core.GenerateContentResponse, error) {
	start := g.now()
	resp, err := g.inner.GenerateContent(ctx, req)
	g.record(ctx, func() Event {
		ev := g.event(OpGenerateContent, req.Model, start, err)
		if err == nil {
			ev.Usage, ev.UsageEstimated = g.usage(resp.UsageMetadata, req, resp.Text())
		}
		return ev
	})
	return resp, err
}

// GenerateContentStream wraps the inner stream; the event is recorded when
// iteration ends, whether by exhaustion, error or the consumer stopping early.
func (g *Generator) GenerateContentStream(ctx context.Context, req core.GenerateContentRequest) core.Stream {
	inner := g.inner.GenerateContentStream(ctx, req)
	return func(yield func(*core.GenerateContentResponse, error) bool) {
		var (
			start   = g.now()
			chunks  int
			usage   *core.UsageMetadata
			text    strings.Builder
			lastErr error
		)
		defer func() {
			if errors.Is(lastErr, moderr.ErrStreamConsumed) && chunks == 0 {
				return
			}
			g.record(ctx, func() Event {
				ev := g.event(OpGenerateContentStream, req.Model, start, lastErr)
				ev.Chunks = chunks
				if lastErr == nil {
					ev.Usage, ev.UsageEstimated = g.usage(usage, req, text.String())
				}
				return ev
			})
		}()
		for resp, err := range inner {
			if err != nil {
				lastErr = err
			} else if resp != nil {
				chunks++
				text.WriteString(resp.Text())
				if !resp.UsageMetadata.IsZero() {
					usage = resp.UsageMetadata
				}
			}
			if !yield(resp, err) {
				return
			}
		}
	}
}

func (g *Generator) CountTokens(ctx context.Context, req core.CountTokensRequest) (*core.CountTokensResponse, error) {
	start := g.now()
	resp, err := g.inner.CountTokens(ctx, req)
	g.record(ctx, func() Event {
		ev := g.event(OpCountTokens, req.Model, start, err)
		if err == nil {
			ev.Count = resp.TotalTokens
		}
		return ev
	})
	return resp, err
}

func (g *Generator) EmbedContent(ctx context.Context, req core.EmbedContentRequest) (*core.EmbedContentResponse, error) {
	start := g.now()
	resp, err := g.inner.EmbedContent(ctx, req)
	g.record(ctx, func() Event {
		ev := g.event(OpEmbedContent, req.Model, start, err)
		if err == nil {
			ev.Embeddings = len(resp.Embeddings)
		}
		return ev
	})
	return resp, err
}

func (g *Generator) event(op, model string, start time.Time, err error) Event {
	if model == "" {
		model = g.model
	}
	ev := Event{
		CallID:    uuid.NewString(),
		Operation: op,
		AuthType:  g.authType,
		Model:     model,
		Start:     start,
		Duration:  g.now().Sub(start),
		Success:   err == nil,
	}
	if err != nil {
		ev.ErrorClass = moderr.Class(err)
		ev.Error = err.Error()
	}
	return ev
}

// usage returns the upstream usage when present, otherwise a local estimate.
func (g *Generator) usage(reported *core.UsageMetadata, req core.GenerateContentRequest, completion string) (*core.UsageMetadata, bool) {
	if !reported.IsZero() {
		u := *reported
		return &u, false
	}
	if est, ok := estimateUsage(g.estimator, contentsText(req.Config.SystemInstruction, req.Contents), completion); ok {
		return est, true
	}
	if reported != nil {
		u := *reported
		return &u, false
	}
	return nil, false
}

// record builds and delivers an event. Panics and errors from either step are
// logged and dropped.
func (g *Generator) record(ctx context.Context, build func() Event) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("telemetry sink panicked", slog.String("panic", fmt.Sprint(r)))
		}
	}()
	ev := build()
	if err := g.sink.Record(context.WithoutCancel(ctx), ev); err != nil {
		g.logger.Warn("telemetry sink failed", slog.String("call_id", ev.CallID), slog.Any("err", err))
	}
}
