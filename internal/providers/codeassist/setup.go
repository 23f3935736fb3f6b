package codeassist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	moderr "github.com/lizzyg/gemrouter/errors"
)

type loadRequest struct {
	CloudAICompanionProject string         `json:"cloudaicompanionProject,omitempty"`
	Metadata                clientMetadata `json:"metadata"`
}

type clientMetadata struct {
	IDEType    string `json:"ideType"`
	Platform   string `json:"platform"`
	PluginType string `json:"pluginType"`
}

type loadResponse struct {
	CloudAICompanionProject string `json:"cloudaicompanionProject"`
	CurrentTier             *struct {
		ID string `json:"id"`
	} `json:"currentTier"`
}

// projectID returns the configured project or, when none is set, discovers the
// user's Code Assist project through loadCodeAssist. Concurrent first calls
// share one in-flight discovery; a failed discovery is not cached. An empty
// result is valid for free-tier users.
func (c *Client) projectID(ctx context.Context) (string, error) {
	c.projectMu.Lock()
	if c.loaded {
		p := c.project
		c.projectMu.Unlock()
		return p, nil
	}
	c.projectMu.Unlock()

	ch := c.discovery.DoChan("loadCodeAssist", func() (any, error) {
		return c.loadProject(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return "", moderr.Cancelled(ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	}
}

func (c *Client) loadProject(ctx context.Context) (string, error) {
	body, err := json.Marshal(loadRequest{Metadata: clientMetadata{
		IDEType:    "IDE_UNSPECIFIED",
		Platform:   "PLATFORM_UNSPECIFIED",
		PluginType: "GEMINI",
	}})
	if err != nil {
		return "", fmt.Errorf("%s marshal load request: %w", ProviderName, err)
	}
	var out loadResponse
	if err := c.call(ctx, "loadCodeAssist", body, &out); err != nil {
		return "", fmt.Errorf("load code assist: %w", err)
	}

	c.projectMu.Lock()
	c.project, c.loaded = out.CloudAICompanionProject, true
	c.projectMu.Unlock()

	tier := ""
	if out.CurrentTier != nil {
		tier = out.CurrentTier.ID
	}
	c.logger.Debug("code assist project loaded", slog.String("project", out.CloudAICompanionProject), slog.String("tier", tier))
	return out.CloudAICompanionProject, nil
}
