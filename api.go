// Package gemrouter exposes the Gemini content-generation contract and routes
// it to the provider selected from the environment and settings: the native
// Gemini API, Vertex AI, Code Assist, or an OpenAI-compatible gateway.
package gemrouter

import (
	"context"
	"encoding/json"
	"fmt"

	moderr "github.com/lizzyg/gemrouter/errors"
	"github.com/lizzyg/gemrouter/internal/config"
	"github.com/lizzyg/gemrouter/internal/core"
	"github.com/lizzyg/gemrouter/internal/telemetry"
	"github.com/lizzyg/gemrouter/internal/util"
)

type (
	ContentGenerator        = core.ContentGenerator
	Stream                  = core.Stream
	Content                 = core.Content
	Part                    = core.Part
	Blob                    = core.Blob
	FileData                = core.FileData
	FunctionCall            = core.FunctionCall
	FunctionResponse        = core.FunctionResponse
	GenerateConfig          = core.GenerateConfig
	GenerateContentRequest  = core.GenerateContentRequest
	GenerateContentResponse = core.GenerateContentResponse
	Candidate               = core.Candidate
	FinishReason            = core.FinishReason
	UsageMetadata           = core.UsageMetadata
	CountTokensRequest      = core.CountTokensRequest
	CountTokensResponse     = core.CountTokensResponse
	EmbedContentRequest     = core.EmbedContentRequest
	EmbedContentResponse    = core.EmbedContentResponse

	AuthType       = config.AuthType
	ProviderConfig = config.ProviderConfig
	Environment    = config.Environment
	SettingsStore  = config.SettingsStore
	Scope          = config.Scope

	Event = telemetry.Event
	Sink  = telemetry.Sink
)

const (
	RoleUser   = core.RoleUser
	RoleModel  = core.RoleModel
	RoleSystem = core.RoleSystem
)

const (
	AuthLoginWithGoogle = config.AuthLoginWithGoogle
	AuthCloudShell      = config.AuthCloudShell
	AuthGeminiAPIKey    = config.AuthGeminiAPIKey
	AuthVertexAI        = config.AuthVertexAI
	AuthOpenRouter      = config.AuthOpenRouter
)

// Text builds a single-part text turn.
func Text(role, text string) Content { return core.NewTextContent(role, text) }

// GenerateJSON requests a JSON answer shaped like T and decodes it. The
// response schema is reflected from T and sent with the request; fenced or
// lightly damaged JSON is repaired before giving up with ErrStructuredOutput.
// If T is string, the raw text is returned.
func GenerateJSON[T any](ctx context.Context, g ContentGenerator, req GenerateContentRequest) (T, error) {
	var zero T
	isString := util.IsStringType[T]()
	if !isString {
		schema, err := util.SchemaFor(new(T))
		if err != nil {
			return zero, fmt.Errorf("reflect response schema: %w", err)
		}
		req.Config.ResponseMIMEType = "application/json"
		req.Config.ResponseSchema = schema
	}

	resp, err := g.GenerateContent(ctx, req)
	if err != nil {
		return zero, err
	}
	s := resp.Text()
	if isString {
		return any(s).(T), nil
	}

	var out T
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		if repaired, ok := util.RepairJSON(s); ok {
			if err2 := json.Unmarshal([]byte(repaired), &out); err2 == nil {
				return out, nil
			}
		}
		return zero, fmt.Errorf("%w: %v", moderr.ErrStructuredOutput, err)
	}
	return out, nil
}
