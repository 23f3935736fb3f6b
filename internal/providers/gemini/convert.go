package gemini

import (
	"google.golang.org/genai"

	"github.com/lizzyg/gemrouter/internal/core"
)

func toContents(in []core.Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(in))
	for i := range in {
		out = append(out, toContent(&in[i]))
	}
	return out
}

func toContent(c *core.Content) *genai.Content {
	if c == nil {
		return nil
	}
	gc := &genai.Content{Role: c.Role, Parts: make([]*genai.Part, 0, len(c.Parts))}
	for _, p := range c.Parts {
		gp := &genai.Part{Text: p.Text}
		switch p.Kind() {
		case core.PartInlineData:
			gp.InlineData = &genai.Blob{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}
		case core.PartFileData:
			gp.FileData = &genai.FileData{MIMEType: p.FileData.MIMEType, FileURI: p.FileData.FileURI}
		case core.PartFunctionCall:
			gp.FunctionCall = &genai.FunctionCall{ID: p.FunctionCall.ID, Name: p.FunctionCall.Name, Args: p.FunctionCall.Args}
		case core.PartFunctionResponse:
			gp.FunctionResponse = &genai.FunctionResponse{ID: p.FunctionResponse.ID, Name: p.FunctionResponse.Name, Response: p.FunctionResponse.Response}
		}
		gc.Parts = append(gc.Parts, gp)
	}
	return gc
}

func toConfig(cfg core.GenerateConfig) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{
		SystemInstruction: toContent(cfg.SystemInstruction),
		Temperature:       cfg.Temperature,
		TopP:              cfg.TopP,
		TopK:              cfg.TopK,
		MaxOutputTokens:   cfg.MaxOutputTokens,
		StopSequences:     cfg.StopSequences,
		Seed:              cfg.Seed,
		PresencePenalty:   cfg.PresencePenalty,
		FrequencyPenalty:  cfg.FrequencyPenalty,
		ResponseMIMEType:  cfg.ResponseMIMEType,
	}
	if cfg.ResponseSchema != nil {
		gc.ResponseJsonSchema = cfg.ResponseSchema
		if gc.ResponseMIMEType == "" {
			gc.ResponseMIMEType = "application/json"
		}
	}
	return gc
}

func fromContent(gc *genai.Content) core.Content {
	if gc == nil {
		return core.Content{Role: core.RoleModel}
	}
	c := core.Content{Role: gc.Role, Parts: make([]core.Part, 0, len(gc.Parts))}
	for _, gp := range gc.Parts {
		if gp == nil {
			continue
		}
		p := core.Part{Text: gp.Text}
		switch {
		case gp.InlineData != nil:
			p.InlineData = &core.Blob{MIMEType: gp.InlineData.MIMEType, Data: gp.InlineData.Data}
		case gp.FileData != nil:
			p.FileData = &core.FileData{MIMEType: gp.FileData.MIMEType, FileURI: gp.FileData.FileURI}
		case gp.FunctionCall != nil:
			p.FunctionCall = &core.FunctionCall{ID: gp.FunctionCall.ID, Name: gp.FunctionCall.Name, Args: gp.FunctionCall.Args}
		case gp.FunctionResponse != nil:
			p.FunctionResponse = &core.FunctionResponse{ID: gp.FunctionResponse.ID, Name: gp.FunctionResponse.Name, Response: gp.FunctionResponse.Response}
		}
		c.Parts = append(c.Parts, p)
	}
	return c
}

func fromResponse(resp *genai.GenerateContentResponse) *core.GenerateContentResponse {
	if resp == nil {
		return &core.GenerateContentResponse{}
	}
	out := &core.GenerateContentResponse{
		Candidates:   make([]core.Candidate, 0, len(resp.Candidates)),
		ResponseID:   resp.ResponseID,
		ModelVersion: resp.ModelVersion,
	}
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		out.Candidates = append(out.Candidates, core.Candidate{
			Content:      fromContent(cand.Content),
			FinishReason: core.FinishReason(cand.FinishReason),
			Index:        cand.Index,
		})
	}
	if u := resp.UsageMetadata; u != nil {
		out.UsageMetadata = &core.UsageMetadata{
			PromptTokenCount:     u.PromptTokenCount,
			CandidatesTokenCount: u.CandidatesTokenCount,
			TotalTokenCount:      u.TotalTokenCount,
		}
	}
	return out
}
