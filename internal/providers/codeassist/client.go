// Package codeassist talks to the Code Assist backend used by the
// login-with-google and cloud-shell auth modes.
package codeassist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	moderr "github.com/lizzyg/gemrouter/errors"
	"github.com/lizzyg/gemrouter/internal/config"
	"github.com/lizzyg/gemrouter/internal/core"
	"github.com/lizzyg/gemrouter/internal/modelmap"
	"github.com/lizzyg/gemrouter/internal/providers/transport"
)

const (
	ProviderName = "code-assist"

	DefaultEndpoint = "https://cloudcode-pa.googleapis.com"
	apiVersion      = "v1internal"
)

// Scopes requested when building the default token source.
var Scopes = []string{"https://www.googleapis.com/auth/cloud-platform"}

type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	model      string

	projectMu sync.Mutex
	project   string
	loaded    bool
	discovery singleflight.Group
}

var _ core.ContentGenerator = (*Client)(nil)

// DefaultTokenSource returns application default credentials scoped for Code Assist.
func DefaultTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	ts, err := google.DefaultTokenSource(ctx, Scopes...)
	if err != nil {
		return nil, &moderr.ConfigurationError{Reason: fmt.Sprintf("google credentials: %v", err)}
	}
	return ts, nil
}

// New returns a client that authenticates every request with ts, using hc as
// the base transport.
func New(cfg config.ProviderConfig, hc *http.Client, ts oauth2.TokenSource, logger *slog.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultEndpoint
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
	return &Client{
		httpClient: oauth2.NewClient(ctx, ts),
		baseURL:    base,
		logger:     logger.With(slog.String("provider", ProviderName)),
		model:      cfg.Model,
		project:    cfg.Project,
		loaded:     cfg.Project != "",
	}
}

type generateRequest struct {
	Model        string        `json:"model"`
	Project      string        `json:"project,omitempty"`
	UserPromptID string        `json:"user_prompt_id"`
	Request      vertexRequest `json:"request"`
}

type vertexRequest struct {
	Contents          []core.Content       `json:"contents"`
	SystemInstruction *core.Content        `json:"systemInstruction,omitempty"`
	GenerationConfig  *core.GenerateConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Response *core.GenerateContentResponse `json:"response"`
}

func (c *Client) GenerateContent(ctx context.Context, req core.GenerateContentRequest) (*core.GenerateContentResponse, error) {
	body, err := c.buildGenerate(ctx, req)
	if err != nil {
		return nil, err
	}
	var out generateResponse
	if err := c.call(ctx, "generateContent", body, &out); err != nil {
		return nil, err
	}
	return normalize(out.Response), nil
}

func (c *Client) GenerateContentStream(ctx context.Context, req core.GenerateContentRequest) core.Stream {
	return transport.Once(func(yield func(*core.GenerateContentResponse, error) bool) {
		body, err := c.buildGenerate(ctx, req)
		if err != nil {
			yield(nil, err)
			return
		}
		resp, err := c.post(ctx, c.methodURL("streamGenerateContent")+"?alt=sse", body)
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()
		r, err := transport.DecodeBody(resp)
		if err != nil {
			yield(nil, &moderr.UpstreamError{Provider: ProviderName, Err: err})
			return
		}
		defer r.Close()

		for data, err := range transport.Events(r) {
			if err != nil {
				yield(nil, moderr.FromContext(ctx, err))
				return
			}
			var chunk generateResponse
			if err := json.Unmarshal(data, &chunk); err != nil {
				yield(nil, &moderr.UpstreamError{Provider: ProviderName, Err: fmt.Errorf("decode stream chunk: %w", err)})
				return
			}
			if !yield(normalize(chunk.Response), nil) {
				return
			}
		}
		if err := ctx.Err(); err != nil {
			yield(nil, moderr.Cancelled(err))
		}
	})
}

type countTokensRequest struct {
	Request struct {
		Model    string         `json:"model"`
		Contents []core.Content `json:"contents"`
	} `json:"request"`
}

type countTokensResponse struct {
	TotalTokens int32 `json:"totalTokens"`
}

func (c *Client) CountTokens(ctx context.Context, req core.CountTokensRequest) (*core.CountTokensResponse, error) {
	var in countTokensRequest
	in.Request.Model = "models/" + modelmap.StripModelsPrefix(c.modelFor(req.Model))
	in.Request.Contents = nonNil(req.Contents)
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("%s marshal payload: %w", ProviderName, err)
	}
	var out countTokensResponse
	if err := c.call(ctx, "countTokens", body, &out); err != nil {
		return nil, err
	}
	return &core.CountTokensResponse{TotalTokens: out.TotalTokens}, nil
}

// EmbedContent is not offered by Code Assist.
func (c *Client) EmbedContent(ctx context.Context, req core.EmbedContentRequest) (*core.EmbedContentResponse, error) {
	return nil, fmt.Errorf("%s embed content: %w", ProviderName, moderr.ErrUnsupportedOperation)
}

func (c *Client) buildGenerate(ctx context.Context, req core.GenerateContentRequest) ([]byte, error) {
	project, err := c.projectID(ctx)
	if err != nil {
		return nil, err
	}
	genCfg := req.Config
	genCfg.SystemInstruction = nil
	in := generateRequest{
		Model:        modelmap.StripModelsPrefix(c.modelFor(req.Model)),
		Project:      project,
		UserPromptID: uuid.NewString(),
		Request: vertexRequest{
			Contents:          nonNil(req.Contents),
			SystemInstruction: req.Config.SystemInstruction,
			GenerationConfig:  &genCfg,
		},
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("%s marshal payload: %w", ProviderName, err)
	}
	return b, nil
}

func (c *Client) call(ctx context.Context, method string, body []byte, out any) error {
	resp, err := c.post(ctx, c.methodURL(method), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	r, err := transport.DecodeBody(resp)
	if err != nil {
		return &moderr.UpstreamError{Provider: ProviderName, Err: err}
	}
	defer r.Close()
	if err := json.NewDecoder(r).Decode(out); err != nil {
		if ctxErr := moderr.FromContext(ctx, err); ctxErr != err {
			return ctxErr
		}
		return &moderr.UpstreamError{Provider: ProviderName, Err: err}
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s new request: %w", ProviderName, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", transport.AcceptEncoding)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, moderr.FromContext(ctx, fmt.Errorf("%s request: %w", ProviderName, err))
	}
	if !transport.IsSuccess(resp.StatusCode) {
		return nil, transport.StatusError(ProviderName, resp)
	}
	return resp, nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/%s:%s", c.baseURL, apiVersion, method)
}

func (c *Client) modelFor(model string) string {
	if model == "" {
		return c.model
	}
	return model
}

// normalize guarantees a non-nil response with model-role candidates.
func normalize(r *core.GenerateContentResponse) *core.GenerateContentResponse {
	if r == nil {
		return &core.GenerateContentResponse{}
	}
	for i := range r.Candidates {
		if r.Candidates[i].Content.Role == "" {
			r.Candidates[i].Content.Role = core.RoleModel
		}
	}
	return r
}

func nonNil(c []core.Content) []core.Content {
	if c == nil {
		return []core.Content{}
	}
	return c
}
