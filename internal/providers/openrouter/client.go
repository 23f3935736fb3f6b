// Package openrouter adapts the Gemini-shaped generator contract to an
// OpenAI-compatible chat completions gateway.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	moderr "github.com/lizzyg/gemrouter/errors"
	"github.com/lizzyg/gemrouter/internal/config"
	"github.com/lizzyg/gemrouter/internal/core"
	"github.com/lizzyg/gemrouter/internal/modelmap"
	"github.com/lizzyg/gemrouter/internal/providers/transport"
	"github.com/lizzyg/gemrouter/internal/translate"
)

// ProviderName identifies this adapter in errors and telemetry.
const ProviderName = "openrouter"

const (
	appReferer = "https://github.com/lizzyg/gemrouter"
	appTitle   = "gemrouter"
)

// reservedKeys may not be overridden through GenerateConfig.Extra.
var reservedKeys = map[string]bool{"model": true, "messages": true, "stream": true, "stream_options": true}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	mapper     modelmap.Mapper
	model      string
}

var _ core.ContentGenerator = (*Client)(nil)

func New(cfg config.ProviderConfig, hc *http.Client, logger *slog.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultOpenRouterBaseURL
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: hc,
		logger:     logger.With(slog.String("provider", ProviderName)),
		mapper:     modelmap.New(cfg.ModelAliases()),
		model:      cfg.Model,
	}
}

// GenerateContent sends one chat completion request. Non-2xx statuses are
// returned as UpstreamError without retrying.
func (c *Client) GenerateContent(ctx context.Context, req core.GenerateContentRequest) (*core.GenerateContentResponse, error) {
	body, err := c.buildBody(req, false)
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	r, err := transport.DecodeBody(resp)
	if err != nil {
		return nil, &moderr.UpstreamError{Provider: ProviderName, Err: err}
	}
	defer r.Close()
	var cc streamChunk
	if err := json.NewDecoder(r).Decode(&cc); err != nil {
		if ctxErr := moderr.FromContext(ctx, err); ctxErr != err {
			return nil, ctxErr
		}
		return nil, &moderr.UpstreamError{Provider: ProviderName, Err: err}
	}
	if cc.Error != nil {
		return nil, cc.upstreamError()
	}
	return translate.FromChatCompletion(ProviderName, cc.ChatCompletion)
}

// GenerateContentStream issues a streaming request on first iteration and
// yields one response per received delta. The stream is single-pass.
func (c *Client) GenerateContentStream(ctx context.Context, req core.GenerateContentRequest) core.Stream {
	return transport.Once(func(yield func(*core.GenerateContentResponse, error) bool) {
		body, err := c.buildBody(req, true)
		if err != nil {
			yield(nil, err)
			return
		}
		resp, err := c.post(ctx, body)
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
			var chunk streamChunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				yield(nil, &moderr.UpstreamError{Provider: ProviderName, Err: fmt.Errorf("decode stream chunk: %w", err)})
				return
			}
			if chunk.Error != nil {
				yield(nil, chunk.upstreamError())
				return
			}
			if !yield(translate.FromChatChunk(chunk.ChatCompletion), nil) {
				return
			}
		}
		if err := ctx.Err(); err != nil {
			yield(nil, moderr.Cancelled(err))
		}
	})
}

// CountTokens estimates locally; the gateway has no counting endpoint.
func (c *Client) CountTokens(ctx context.Context, req core.CountTokensRequest) (*core.CountTokensResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, moderr.Cancelled(err)
	}
	return &core.CountTokensResponse{TotalTokens: translate.EstimateTokens(req.Contents), Estimated: true}, nil
}

// EmbedContent is not offered by the gateway.
func (c *Client) EmbedContent(ctx context.Context, req core.EmbedContentRequest) (*core.EmbedContentResponse, error) {
	return nil, fmt.Errorf("%s embed content: %w", ProviderName, moderr.ErrUnsupportedOperation)
}

type streamChunk struct {
	translate.ChatCompletion
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// upstreamError converts an error object the gateway sent with a 2xx status.
func (c streamChunk) upstreamError() error {
	code := c.Error.Code
	text := strconv.Itoa(code)
	if st := http.StatusText(code); st != "" {
		text += " " + st
	}
	return moderr.NewUpstreamError(ProviderName, code, text, c.Error.Message)
}

func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s new request: %w", ProviderName, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", transport.AcceptEncoding)
	req.Header.Set("HTTP-Referer", appReferer)
	req.Header.Set("X-Title", appTitle)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, moderr.FromContext(ctx, fmt.Errorf("%s request: %w", ProviderName, err))
	}
	if !transport.IsSuccess(resp.StatusCode) {
		upErr := transport.StatusError(ProviderName, resp)
		c.logger.Debug("upstream error", slog.Int("status", resp.StatusCode))
		return nil, upErr
	}
	return resp, nil
}

func (c *Client) buildBody(req core.GenerateContentRequest, stream bool) ([]byte, error) {
	msgs, err := translate.ToFlatMessages(req.Config.SystemInstruction, req.Contents)
	if err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = c.model
	}

	payload := map[string]any{}
	cfg := req.Config
	for k, v := range cfg.Extra {
		if !reservedKeys[k] {
			payload[k] = v
		}
	}
	payload["model"] = c.mapper.Map(model)
	payload["messages"] = msgs
	if cfg.Temperature != nil {
		payload["temperature"] = *cfg.Temperature
	}
	if cfg.TopP != nil {
		payload["top_p"] = *cfg.TopP
	}
	if cfg.TopK != nil {
		payload["top_k"] = *cfg.TopK
	}
	if cfg.MaxOutputTokens > 0 {
		payload["max_tokens"] = cfg.MaxOutputTokens
	}
	if len(cfg.StopSequences) > 0 {
		payload["stop"] = cfg.StopSequences
	}
	if cfg.Seed != nil {
		payload["seed"] = *cfg.Seed
	}
	if cfg.PresencePenalty != nil {
		payload["presence_penalty"] = *cfg.PresencePenalty
	}
	if cfg.FrequencyPenalty != nil {
		payload["frequency_penalty"] = *cfg.FrequencyPenalty
	}
	switch {
	case cfg.ResponseSchema != nil:
		payload["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "response",
				"strict": true,
				"schema": cfg.ResponseSchema,
			},
		}
	case cfg.ResponseMIMEType == "application/json":
		payload["response_format"] = map[string]any{"type": "json_object"}
	}
	if stream {
		payload["stream"] = true
		payload["stream_options"] = map[string]any{"include_usage": true}
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s marshal payload: %w", ProviderName, err)
	}
	return b, nil
}
