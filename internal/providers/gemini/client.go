// Package gemini implements the generator contract on the native Gemini API,
// reached either with an API key or through Vertex AI.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/genai"

	moderr "github.com/lizzyg/gemrouter/errors"
	"github.com/lizzyg/gemrouter/internal/config"
	"github.com/lizzyg/gemrouter/internal/core"
	"github.com/lizzyg/gemrouter/internal/providers/transport"
)

// Provider names reported in errors and telemetry.
const (
	ProviderGemini = "gemini"
	ProviderVertex = "vertex-ai"
)

type Client struct {
	models   *genai.Models
	logger   *slog.Logger
	model    string
	provider string
}

var _ core.ContentGenerator = (*Client)(nil)

// New builds a client for cfg. In Vertex mode without an API key the SDK
// authenticates with application default credentials and hc is not used,
// since a caller-supplied client would bypass the credential transport.
func New(ctx context.Context, cfg config.ProviderConfig, hc *http.Client, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cc := &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  hc,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	}
	provider := ProviderGemini
	if cfg.Vertex {
		provider = ProviderVertex
		cc.Backend = genai.BackendVertexAI
		if cfg.APIKey == "" {
			cc.Project = cfg.Project
			cc.Location = cfg.Location
			cc.HTTPClient = nil
		}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%s new client: %w", provider, err)
	}
	return &Client{
		models:   client.Models,
		logger:   logger.With(slog.String("provider", provider)),
		model:    cfg.Model,
		provider: provider,
	}, nil
}

func (c *Client) GenerateContent(ctx context.Context, req core.GenerateContentRequest) (*core.GenerateContentResponse, error) {
	resp, err := c.models.GenerateContent(ctx, c.modelFor(req.Model), toContents(req.Contents), toConfig(req.Config))
	if err != nil {
		return nil, c.wrapErr(ctx, err)
	}
	return fromResponse(resp), nil
}

func (c *Client) GenerateContentStream(ctx context.Context, req core.GenerateContentRequest) core.Stream {
	return transport.Once(func(yield func(*core.GenerateContentResponse, error) bool) {
		for resp, err := range c.models.GenerateContentStream(ctx, c.modelFor(req.Model), toContents(req.Contents), toConfig(req.Config)) {
			if err != nil {
				yield(nil, c.wrapErr(ctx, err))
				return
			}
			if !yield(fromResponse(resp), nil) {
				return
			}
		}
	})
}

func (c *Client) CountTokens(ctx context.Context, req core.CountTokensRequest) (*core.CountTokensResponse, error) {
	resp, err := c.models.CountTokens(ctx, c.modelFor(req.Model), toContents(req.Contents), nil)
	if err != nil {
		return nil, c.wrapErr(ctx, err)
	}
	return &core.CountTokensResponse{TotalTokens: resp.TotalTokens}, nil
}

func (c *Client) EmbedContent(ctx context.Context, req core.EmbedContentRequest) (*core.EmbedContentResponse, error) {
	resp, err := c.models.EmbedContent(ctx, c.modelFor(req.Model), toContents(req.Contents), nil)
	if err != nil {
		return nil, c.wrapErr(ctx, err)
	}
	out := &core.EmbedContentResponse{Embeddings: make([][]float32, 0, len(resp.Embeddings))}
	for _, e := range resp.Embeddings {
		if e == nil {
			out.Embeddings = append(out.Embeddings, nil)
			continue
		}
		out.Embeddings = append(out.Embeddings, e.Values)
	}
	return out, nil
}

func (c *Client) modelFor(model string) string {
	if model == "" {
		return c.model
	}
	return model
}

// wrapErr maps SDK errors onto the module's error kinds.
func (c *Client) wrapErr(ctx context.Context, err error) error {
	if err = moderr.FromContext(ctx, err); errors.Is(err, moderr.ErrCancelled) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return upstream(c.provider, apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return upstream(c.provider, *apiErrPtr)
	}
	return fmt.Errorf("%s: %w", c.provider, err)
}

func upstream(provider string, e genai.APIError) error {
	statusText := fmt.Sprintf("%d", e.Code)
	if e.Status != "" {
		statusText += " " + e.Status
	}
	return &moderr.UpstreamError{Provider: provider, Status: e.Code, StatusText: statusText, Body: e.Message, Err: e}
}
