package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	moderr "github.com/lizzyg/gemrouter/errors"
	"github.com/lizzyg/gemrouter/internal/config"
	"github.com/lizzyg/gemrouter/internal/core"
	"github.com/lizzyg/gemrouter/internal/providers/codeassist"
	"github.com/lizzyg/gemrouter/internal/providers/gemini"
	"github.com/lizzyg/gemrouter/internal/providers/openrouter"
	"github.com/lizzyg/gemrouter/internal/telemetry"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateDispatchesOnAuthType(t *testing.T) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"})
	tests := []struct {
		cfg  config.ProviderConfig
		want any
	}{
		{config.ProviderConfig{AuthType: config.AuthOpenRouter, APIKey: "k"}, &openrouter.Client{}},
		{config.ProviderConfig{AuthType: config.AuthGeminiAPIKey, APIKey: "k"}, &gemini.Client{}},
		{config.ProviderConfig{AuthType: config.AuthVertexAI, Vertex: true, APIKey: "k"}, &gemini.Client{}},
		{config.ProviderConfig{AuthType: config.AuthLoginWithGoogle, Project: "p"}, &codeassist.Client{}},
		{config.ProviderConfig{AuthType: config.AuthCloudShell, Project: "p"}, &codeassist.Client{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.cfg.AuthType), func(t *testing.T) {
			g, err := Create(context.Background(), tt.cfg, WithTokenSource(ts), quiet())
			require.NoError(t, err)
			require.NotNil(t, g)
			assert.IsType(t, tt.want, g.Unwrap())
		})
	}
}

func TestCreateUnsupportedAuthType(t *testing.T) {
	_, err := Create(context.Background(), config.ProviderConfig{AuthType: "carrier-pigeon"})
	var unsupported *moderr.UnsupportedAuthTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "carrier-pigeon", unsupported.AuthType)
	assert.False(t, Supported("carrier-pigeon"))
}

func TestEveryAuthTypeIsRegistered(t *testing.T) {
	for _, at := range config.AuthTypes() {
		assert.True(t, Supported(at), at)
	}
}

func TestCreateInvalidProxy(t *testing.T) {
	_, err := Create(context.Background(), config.ProviderConfig{AuthType: config.AuthOpenRouter, APIKey: "k", Proxy: "://nope"})
	var cfgErr *moderr.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

// Env has only the gateway key: resolution defaults the base URL, the factory
// picks the adapter, and the request reaches /api/v1/chat/completions with the
// mapped model.
func TestOpenRouterScenario(t *testing.T) {
	var (
		path  string
		model string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		model, _ = body["model"].(string)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
	}))
	defer srv.Close()

	res, err := config.Resolver{Env: config.Environment{config.EnvOpenRouterAPIKey: "sk-or-test"}}.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultOpenRouterBaseURL, res.Config.BaseURL)
	assert.Equal(t, config.AuthOpenRouter, res.Config.AuthType)

	// Route the default host to the test server.
	hc := srv.Client()
	hc.Transport = rewriteHost{target: srv.URL, next: hc.Transport}

	var logs bytes.Buffer
	sinkEvents := 0
	g, err := Create(context.Background(), res.Config,
		WithHTTPClient(hc),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithSink(telemetry.SinkFunc(func(context.Context, telemetry.Event) error { sinkEvents++; return nil })),
	)
	require.NoError(t, err)

	resp, err := g.GenerateContent(context.Background(), core.GenerateContentRequest{
		Model:    "gemini-2.5-pro",
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/chat/completions", path)
	assert.Equal(t, "google/gemini-2.5-pro", model)

	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, core.RoleModel, resp.Candidates[0].Content.Role)
	assert.Equal(t, "hello", resp.Text())
	assert.Equal(t, core.FinishReasonStop, resp.Candidates[0].FinishReason)
	assert.Equal(t, &core.UsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 2, TotalTokenCount: 5}, resp.UsageMetadata)
	assert.Equal(t, 1, sinkEvents)
}

type rewriteHost struct {
	target string
	next   http.RoundTripper
}

func (r rewriteHost) RoundTrip(req *http.Request) (*http.Response, error) {
	u, err := req.URL.Parse(r.target)
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.URL.Scheme = u.Scheme
	req.URL.Host = u.Host
	req.Host = u.Host
	return r.next.RoundTrip(req)
}
