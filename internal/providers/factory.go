// Package providers builds the ContentGenerator for a resolved ProviderConfig.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	moderr "github.com/lizzyg/gemrouter/errors"
	"github.com/lizzyg/gemrouter/internal/config"
	"github.com/lizzyg/gemrouter/internal/core"
	"github.com/lizzyg/gemrouter/internal/providers/codeassist"
	"github.com/lizzyg/gemrouter/internal/providers/gemini"
	"github.com/lizzyg/gemrouter/internal/providers/openrouter"
	"github.com/lizzyg/gemrouter/internal/providers/transport"
	"github.com/lizzyg/gemrouter/internal/telemetry"
)

// deps carries the collaborators shared by every constructor.
type deps struct {
	httpClient  *http.Client
	logger      *slog.Logger
	sink        telemetry.Sink
	estimator   telemetry.Estimator
	tokenSource oauth2.TokenSource
}

// Option customises Create.
type Option func(*deps)

// WithHTTPClient replaces the proxy-aware default client.
func WithHTTPClient(hc *http.Client) Option { return func(d *deps) { d.httpClient = hc } }

// WithLogger sets the logger handed to clients and the decorator.
func WithLogger(l *slog.Logger) Option { return func(d *deps) { d.logger = l } }

// WithSink sets the telemetry sink. Default: telemetry.SlogSink.
func WithSink(s telemetry.Sink) Option { return func(d *deps) { d.sink = s } }

// WithEstimator enables telemetry usage estimates.
func WithEstimator(e telemetry.Estimator) Option { return func(d *deps) { d.estimator = e } }

// WithTokenSource supplies OAuth credentials for the Code Assist modes instead
// of application default credentials.
func WithTokenSource(ts oauth2.TokenSource) Option { return func(d *deps) { d.tokenSource = ts } }

type constructor func(ctx context.Context, cfg config.ProviderConfig, d deps) (core.ContentGenerator, error)

// registry holds one constructor per auth type.
var registry = map[config.AuthType]constructor{
	config.AuthLoginWithGoogle: newCodeAssist,
	config.AuthCloudShell:      newCodeAssist,
	config.AuthGeminiAPIKey:    newGemini,
	config.AuthVertexAI:        newGemini,
	config.AuthOpenRouter:      newOpenRouter,
}

// Supported reports whether Create has a constructor for t.
func Supported(t config.AuthType) bool {
	_, ok := registry[t]
	return ok
}

// Create builds the client for cfg.AuthType and wraps it with the telemetry
// decorator.
func Create(ctx context.Context, cfg config.ProviderConfig, opts ...Option) (*telemetry.Generator, error) {
	build, ok := registry[cfg.AuthType]
	if !ok {
		return nil, &moderr.UnsupportedAuthTypeError{AuthType: string(cfg.AuthType)}
	}
	d := deps{logger: slog.Default()}
	for _, opt := range opts {
		opt(&d)
	}
	if d.httpClient == nil {
		hc, err := transport.NewHTTPClient(cfg.Proxy)
		if err != nil {
			return nil, &moderr.ConfigurationError{Reason: fmt.Sprintf("invalid proxy %q: %v", cfg.Proxy, err)}
		}
		d.httpClient = hc
	}

	inner, err := build(ctx, cfg, d)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("content generator created",
		slog.String("auth_type", string(cfg.AuthType)),
		slog.String("model", cfg.Model),
	)

	topts := []telemetry.Option{
		telemetry.WithLogger(d.logger),
		telemetry.WithAuthType(string(cfg.AuthType)),
		telemetry.WithDefaultModel(cfg.Model),
	}
	if d.estimator != nil {
		topts = append(topts, telemetry.WithEstimator(d.estimator))
	}
	return telemetry.Wrap(inner, d.sink, topts...), nil
}

func newOpenRouter(_ context.Context, cfg config.ProviderConfig, d deps) (core.ContentGenerator, error) {
	return openrouter.New(cfg, d.httpClient, d.logger), nil
}

func newGemini(ctx context.Context, cfg config.ProviderConfig, d deps) (core.ContentGenerator, error) {
	return gemini.New(ctx, cfg, d.httpClient, d.logger)
}

func newCodeAssist(ctx context.Context, cfg config.ProviderConfig, d deps) (core.ContentGenerator, error) {
	ts := d.tokenSource
	if ts == nil {
		var err error
		if ts, err = codeassist.DefaultTokenSource(ctx); err != nil {
			return nil, err
		}
	}
	return codeassist.New(cfg, d.httpClient, ts, d.logger), nil
}
