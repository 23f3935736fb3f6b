package core

import (
	"context"
	"iter"
	"strings"
)

// ContentGenerator is implemented by every provider client and by the telemetry decorator.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, req GenerateContentRequest) (*GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, req GenerateContentRequest) iter.Seq2[*GenerateContentResponse, error]
	CountTokens(ctx context.Context, req CountTokensRequest) (*CountTokensResponse, error)
	EmbedContent(ctx context.Context, req EmbedContentRequest) (*EmbedContentResponse, error)
}

// Stream is the lazy, single-pass sequence returned by GenerateContentStream.
type Stream = iter.Seq2[*GenerateContentResponse, error]

const (
	RoleUser   = "user"
	RoleModel  = "model"
	RoleSystem = "system"
)

// Content is one conversational turn.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a typed piece of a Content. Exactly one field is expected to be set;
// a Part with no payload is treated as empty text.
type Part struct {
	Text             string            `json:"text,omitempty"`
	InlineData       *Blob             `json:"inlineData,omitempty"`
	FileData         *FileData         `json:"fileData,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type FileData struct {
	MIMEType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Part kinds reported by Kind.
const (
	PartText             = "text"
	PartInlineData       = "inlineData"
	PartFileData         = "fileData"
	PartFunctionCall     = "functionCall"
	PartFunctionResponse = "functionResponse"
)

// Kind names the payload carried by the part.
func (p Part) Kind() string {
	switch {
	case p.InlineData != nil:
		return PartInlineData
	case p.FileData != nil:
		return PartFileData
	case p.FunctionCall != nil:
		return PartFunctionCall
	case p.FunctionResponse != nil:
		return PartFunctionResponse
	default:
		return PartText
	}
}

// NewTextContent builds a single-part text turn.
func NewTextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

// GenerateConfig holds the well-known generation parameters. Extra is passed
// through to providers that accept arbitrary request fields.
type GenerateConfig struct {
	Temperature       *float32       `json:"temperature,omitempty"`
	TopP              *float32       `json:"topP,omitempty"`
	TopK              *float32       `json:"topK,omitempty"`
	MaxOutputTokens   int32          `json:"maxOutputTokens,omitempty"`
	StopSequences     []string       `json:"stopSequences,omitempty"`
	Seed              *int32         `json:"seed,omitempty"`
	PresencePenalty   *float32       `json:"presencePenalty,omitempty"`
	FrequencyPenalty  *float32       `json:"frequencyPenalty,omitempty"`
	SystemInstruction *Content       `json:"systemInstruction,omitempty"`
	ResponseMIMEType  string         `json:"responseMimeType,omitempty"`
	ResponseSchema    map[string]any `json:"responseJsonSchema,omitempty"`
	Extra             map[string]any `json:"-"`
}

type GenerateContentRequest struct {
	Model    string
	Contents []Content
	Config   GenerateConfig
}

// FinishReason mirrors the Gemini finish reason enum.
type FinishReason string

const (
	FinishReasonUnspecified FinishReason = "FINISH_REASON_UNSPECIFIED"
	FinishReasonStop        FinishReason = "STOP"
	FinishReasonMaxTokens   FinishReason = "MAX_TOKENS"
	FinishReasonSafety      FinishReason = "SAFETY"
	FinishReasonRecitation  FinishReason = "RECITATION"
	FinishReasonOther       FinishReason = "OTHER"
)

type Candidate struct {
	Content      Content      `json:"content"`
	FinishReason FinishReason `json:"finishReason,omitempty"`
	Index        int32        `json:"index"`
}

// UsageMetadata counts are never negative. Providers that do not report usage leave them at zero.
type UsageMetadata struct {
	PromptTokenCount     int32 `json:"promptTokenCount"`
	CandidatesTokenCount int32 `json:"candidatesTokenCount"`
	TotalTokenCount      int32 `json:"totalTokenCount"`
}

// IsZero reports whether no counts were recorded.
func (u *UsageMetadata) IsZero() bool {
	return u == nil || (u.PromptTokenCount == 0 && u.CandidatesTokenCount == 0 && u.TotalTokenCount == 0)
}

type GenerateContentResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ResponseID    string         `json:"responseId,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
}

// Text concatenates the text parts of the first candidate.
func (r *GenerateContentResponse) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

type CountTokensRequest struct {
	Model    string
	Contents []Content
}

// CountTokensResponse carries the token total. Estimated is set when the provider
// has no counting endpoint and the total was approximated locally.
type CountTokensResponse struct {
	TotalTokens int32
	Estimated   bool
}

type EmbedContentRequest struct {
	Model    string
	Contents []Content
}

type EmbedContentResponse struct {
	Embeddings [][]float32
}
