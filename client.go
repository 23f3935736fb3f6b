package gemrouter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/oauth2"

	"github.com/lizzyg/gemrouter/internal/config"
	"github.com/lizzyg/gemrouter/internal/providers"
	"github.com/lizzyg/gemrouter/internal/telemetry"
)

// Client is a decorated ContentGenerator bound to one resolved configuration.
// Safe for concurrent use; a different auth mode needs a new Client.
type Client struct {
	*telemetry.Generator
	resolution config.Resolution
}

var _ ContentGenerator = (*Client)(nil)

type options struct {
	logger      *slog.Logger
	httpClient  *http.Client
	settings    config.SettingsStore
	env         config.Environment
	envSet      bool
	authType    config.AuthType
	sink        telemetry.Sink
	tokenSource oauth2.TokenSource
	workDir     string

	usageEstimates bool
}

// Option allows functional configuration.
type Option func(*options)

// WithLogger sets a custom slog logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithHTTPClient sets a custom http.Client for REST providers.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithSettings replaces the settings files read by NewFromEnvironment.
func WithSettings(s SettingsStore) Option { return func(o *options) { o.settings = s } }

// WithEnvironment replaces the process environment and .env discovery.
func WithEnvironment(env Environment) Option {
	return func(o *options) { o.env, o.envSet = env, true }
}

// WithAuthType passes an explicit auth type to the resolver. Enforced settings
// and environment detection still take precedence.
func WithAuthType(t AuthType) Option { return func(o *options) { o.authType = t } }

// WithSink sets the telemetry sink. Default: one "llm call" log record per call.
func WithSink(s Sink) Option { return func(o *options) { o.sink = s } }

// WithUsageEstimates fills telemetry usage with a local tokenizer estimate
// when the upstream reports none.
func WithUsageEstimates() Option {
	return func(o *options) { o.usageEstimates = true }
}

// WithTokenSource supplies OAuth credentials for the Code Assist modes.
func WithTokenSource(ts oauth2.TokenSource) Option { return func(o *options) { o.tokenSource = ts } }

// WithWorkDir sets the directory searched for .env and workspace settings.
// Default: the current working directory.
func WithWorkDir(dir string) Option { return func(o *options) { o.workDir = dir } }

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) estimator() telemetry.Estimator {
	if !o.usageEstimates {
		return nil
	}
	return &telemetry.TiktokenEstimator{Logger: o.logger}
}

// New builds a Client for an already assembled configuration.
func New(ctx context.Context, cfg ProviderConfig, opts ...Option) (*Client, error) {
	o := buildOptions(opts)
	return create(ctx, config.Resolution{Config: cfg, Source: config.SourceExplicit}, o)
}

// NewFromEnvironment resolves the auth mode from the environment and the
// layered settings files, then builds the Client.
func NewFromEnvironment(ctx context.Context, opts ...Option) (*Client, error) {
	o := buildOptions(opts)
	dir := o.workDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		dir = wd
	}

	env := o.env
	if !o.envSet {
		loaded, err := config.LoadEnvironment(dir)
		if err != nil {
			return nil, err
		}
		env = loaded
	}

	settings := o.settings
	if settings == nil {
		home, err := os.UserHomeDir()
		if err != nil {
			o.logger.Warn("no home directory; user settings disabled", slog.Any("err", err))
		}
		s, err := config.LoadSettings(config.DefaultSettingsPaths(home, dir), env)
		if err != nil {
			return nil, err
		}
		settings = s
	}

	res, err := config.Resolver{Env: env, Settings: settings, Logger: o.logger}.Resolve(o.authType)
	if err != nil {
		return nil, err
	}
	return create(ctx, res, o)
}

func create(ctx context.Context, res config.Resolution, o options) (*Client, error) {
	popts := []providers.Option{providers.WithLogger(o.logger)}
	if o.httpClient != nil {
		popts = append(popts, providers.WithHTTPClient(o.httpClient))
	}
	if o.sink != nil {
		popts = append(popts, providers.WithSink(o.sink))
	}
	if est := o.estimator(); est != nil {
		popts = append(popts, providers.WithEstimator(est))
	}
	if o.tokenSource != nil {
		popts = append(popts, providers.WithTokenSource(o.tokenSource))
	}
	g, err := providers.Create(ctx, res.Config, popts...)
	if err != nil {
		return nil, err
	}
	return &Client{Generator: g, resolution: res}, nil
}

// Config returns the resolved provider configuration.
func (c *Client) Config() ProviderConfig { return c.resolution.Config }

// Source names where the auth type came from: enforced, environment,
// explicit or settings.
func (c *Client) Source() string { return c.resolution.Source }

// SelectedTypeUpdated reports whether resolution persisted a newly detected
// auth type to the user settings.
func (c *Client) SelectedTypeUpdated() bool { return c.resolution.SelectedTypeUpdated }

// PersistErr returns the error from writing a newly detected auth type to the
// user settings, or nil.
func (c *Client) PersistErr() error { return c.resolution.PersistErr }
