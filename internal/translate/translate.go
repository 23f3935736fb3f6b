// Package translate converts between the Gemini contents/parts representation
// and the flat message list used by OpenAI-compatible chat completion APIs.
package translate

import (
	"errors"
	"fmt"
	"strings"

	moderr "github.com/lizzyg/gemrouter/errors"
	"github.com/lizzyg/gemrouter/internal/core"
)

const (
	flatRoleUser      = "user"
	flatRoleAssistant = "assistant"
	flatRoleSystem    = "system"
)

// FlatMessage is one chat-completions message.
type FlatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UnsupportedPartError reports a part kind the flat format cannot carry.
// Content entries are never silently truncated.
type UnsupportedPartError struct {
	Content int
	Part    int
	Kind    string
}

func (e *UnsupportedPartError) Error() string {
	return fmt.Sprintf("contents[%d].parts[%d]: %s parts are not supported by chat completion gateways", e.Content, e.Part, e.Kind)
}

func (e *UnsupportedPartError) Is(target error) bool {
	return target == moderr.ErrUnsupportedOperation
}

// ToFlatMessages converts contents into chat messages, one message per entry.
// A non-nil system instruction becomes a leading system message.
func ToFlatMessages(system *core.Content, contents []core.Content) ([]FlatMessage, error) {
	out := make([]FlatMessage, 0, len(contents)+1)
	if system != nil {
		text, err := joinText(-1, *system)
		if err != nil {
			return nil, err
		}
		if text != "" {
			out = append(out, FlatMessage{Role: flatRoleSystem, Content: text})
		}
	}
	for i, c := range contents {
		text, err := joinText(i, c)
		if err != nil {
			return nil, err
		}
		out = append(out, FlatMessage{Role: flatRole(c.Role), Content: text})
	}
	return out, nil
}

// FromFlatMessages is the inverse of ToFlatMessages for text-only content.
func FromFlatMessages(msgs []FlatMessage) []core.Content {
	out := make([]core.Content, len(msgs))
	for i, m := range msgs {
		out[i] = core.NewTextContent(canonicalRole(m.Role), m.Content)
	}
	return out
}

func joinText(idx int, c core.Content) (string, error) {
	var b strings.Builder
	for j, p := range c.Parts {
		if kind := p.Kind(); kind != core.PartText {
			return "", &UnsupportedPartError{Content: idx, Part: j, Kind: kind}
		}
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

func flatRole(role string) string {
	switch role {
	case "", core.RoleUser:
		return flatRoleUser
	case core.RoleModel:
		return flatRoleAssistant
	case core.RoleSystem:
		return flatRoleSystem
	default:
		return role
	}
}

func canonicalRole(role string) string {
	switch role {
	case flatRoleAssistant:
		return core.RoleModel
	case "":
		return core.RoleUser
	default:
		return role
	}
}

// ChatCompletion is the subset of a chat completions response (or stream chunk) we read.
type ChatCompletion struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	Delta        ChatMessage `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// ChatMessage content is either a string or an array of typed parts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type ChatUsage struct {
	PromptTokens     int32 `json:"prompt_tokens"`
	CompletionTokens int32 `json:"completion_tokens"`
	TotalTokens      int32 `json:"total_tokens"`
}

var errNoChoices = errors.New("response contains no choices")

// FromChatCompletion converts a non-streaming response. Only the first choice is used.
func FromChatCompletion(provider string, cc ChatCompletion) (*core.GenerateContentResponse, error) {
	if len(cc.Choices) == 0 {
		return nil, &moderr.UpstreamError{Provider: provider, Err: errNoChoices}
	}
	choice := cc.Choices[0]
	return &core.GenerateContentResponse{
		Candidates: []core.Candidate{{
			Content:      core.NewTextContent(core.RoleModel, contentText(choice.Message.Content)),
			FinishReason: finishReason(choice.FinishReason),
			Index:        0,
		}},
		UsageMetadata: usage(cc.Usage),
		ResponseID:    cc.ID,
		ModelVersion:  cc.Model,
	}, nil
}

// FromChatChunk converts one streamed chunk. Chunks carrying only usage yield a
// response with no candidates.
func FromChatChunk(cc ChatCompletion) *core.GenerateContentResponse {
	resp := &core.GenerateContentResponse{ResponseID: cc.ID, ModelVersion: cc.Model}
	if len(cc.Choices) > 0 {
		choice := cc.Choices[0]
		var reason core.FinishReason
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			reason = finishReason(choice.FinishReason)
		}
		resp.Candidates = []core.Candidate{{
			Content:      core.NewTextContent(core.RoleModel, contentText(choice.Delta.Content)),
			FinishReason: reason,
		}}
	}
	if cc.Usage != nil {
		resp.UsageMetadata = usage(cc.Usage)
	}
	return resp
}

func finishReason(r *string) core.FinishReason {
	if r != nil && *r == "stop" {
		return core.FinishReasonStop
	}
	return core.FinishReasonOther
}

func usage(u *ChatUsage) *core.UsageMetadata {
	if u == nil {
		return &core.UsageMetadata{}
	}
	out := &core.UsageMetadata{
		PromptTokenCount:     max(u.PromptTokens, 0),
		CandidatesTokenCount: max(u.CompletionTokens, 0),
		TotalTokenCount:      max(u.TotalTokens, 0),
	}
	if out.TotalTokenCount == 0 {
		out.TotalTokenCount = out.PromptTokenCount + out.CandidatesTokenCount
	}
	return out
}

func contentText(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []any:
		var b strings.Builder
		for _, p := range c {
			m, ok := p.(map[string]any)
			if !ok || m["type"] != "text" {
				continue
			}
			if s, ok := m["text"].(string); ok {
				b.WriteString(s)
			}
		}
		return b.String()
	default:
		return ""
	}
}
