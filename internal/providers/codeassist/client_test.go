package codeassist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	moderr "github.com/lizzyg/gemrouter/errors"
	"github.com/lizzyg/gemrouter/internal/config"
	"github.com/lizzyg/gemrouter/internal/core"
)

func newTestClient(t *testing.T, project string, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "ya29.test", TokenType: "Bearer"})
	return New(config.ProviderConfig{
		AuthType: config.AuthLoginWithGoogle,
		BaseURL:  srv.URL + "/",
		Project:  project,
		Model:    config.DefaultModel,
	}, srv.Client(), ts, nil)
}

func hello() []core.Content {
	return []core.Content{core.NewTextContent(core.RoleUser, "Hello")}
}

func TestGenerateContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1internal:generateContent", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ya29.test", r.Header.Get("Authorization"))
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "gemini-2.5-flash", in["model"])
		assert.Equal(t, "my-project", in["project"])
		_, err := uuid.Parse(in["user_prompt_id"].(string))
		assert.NoError(t, err)
		request := in["request"].(map[string]any)
		assert.Contains(t, request, "systemInstruction")
		assert.NotContains(t, request["generationConfig"], "systemInstruction")
		assert.Equal(t, float64(32), request["generationConfig"].(map[string]any)["maxOutputTokens"])
		_, _ = io.WriteString(w, `{"response":{"candidates":[{"content":{"parts":[{"text":"Hi"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":1,"totalTokenCount":2}}}`)
	})
	c := newTestClient(t, "my-project", mux)

	resp, err := c.GenerateContent(context.Background(), core.GenerateContentRequest{
		Model:    "models/gemini-2.5-flash",
		Contents: hello(),
		Config: core.GenerateConfig{
			MaxOutputTokens:   32,
			SystemInstruction: &core.Content{Parts: []core.Part{{Text: "terse"}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi", resp.Text())
	assert.Equal(t, core.RoleModel, resp.Candidates[0].Content.Role)
	assert.Equal(t, core.FinishReasonStop, resp.Candidates[0].FinishReason)
	assert.Equal(t, int32(2), resp.UsageMetadata.TotalTokenCount)
}

func TestProjectDiscovery(t *testing.T) {
	loads := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1internal:loadCodeAssist", func(w http.ResponseWriter, r *http.Request) {
		loads++
		_, _ = io.WriteString(w, `{"cloudaicompanionProject":"discovered-123","currentTier":{"id":"free-tier"}}`)
	})
	var projects []any
	mux.HandleFunc("POST /v1internal:generateContent", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		projects = append(projects, in["project"])
		_, _ = io.WriteString(w, `{"response":{"candidates":[]}}`)
	})
	c := newTestClient(t, "", mux)

	for range 2 {
		_, err := c.GenerateContent(context.Background(), core.GenerateContentRequest{Contents: hello()})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, loads)
	assert.Equal(t, []any{"discovered-123", "discovered-123"}, projects)
}

func TestProjectDiscoverySharedAcrossConcurrentCalls(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1internal:loadCodeAssist", func(w http.ResponseWriter, r *http.Request) {
		loads.Add(1)
		<-release
		_, _ = io.WriteString(w, `{"cloudaicompanionProject":"shared-1"}`)
	})
	c := newTestClient(t, "", mux)

	const callers = 4
	var wg sync.WaitGroup
	got := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i], errs[i] = c.projectID(context.Background())
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared-1", got[i])
	}
	assert.Equal(t, int32(1), loads.Load())
}

func TestProjectDiscoveryFailureNotCached(t *testing.T) {
	var loads atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1internal:loadCodeAssist", func(w http.ResponseWriter, r *http.Request) {
		if loads.Add(1) == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"cloudaicompanionProject":"p-2"}`)
	})
	c := newTestClient(t, "", mux)

	_, err := c.projectID(context.Background())
	var up *moderr.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, http.StatusServiceUnavailable, up.Status)

	p, err := c.projectID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p-2", p)
	assert.Equal(t, int32(2), loads.Load())
}

func TestGenerateContentUpstreamError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1internal:generateContent", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"permission denied"}}`, http.StatusForbidden)
	})
	c := newTestClient(t, "p", mux)
	_, err := c.GenerateContent(context.Background(), core.GenerateContentRequest{Contents: hello()})
	var up *moderr.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, http.StatusForbidden, up.Status)
	assert.Equal(t, ProviderName, up.Provider)
}

func TestGenerateContentStream(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1internal:streamGenerateContent", func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"response\":{\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"Hel\"}]}}]}}\n\n")
		fmt.Fprint(w, "data: {\"response\":{\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"lo\"}]},\"finishReason\":\"STOP\"}]}}\n\n")
	})
	c := newTestClient(t, "p", mux)

	stream := c.GenerateContentStream(context.Background(), core.GenerateContentRequest{Contents: hello()})
	assert.Equal(t, 0, calls)

	var text string
	for resp, err := range stream {
		require.NoError(t, err)
		text += resp.Text()
	}
	assert.Equal(t, "Hello", text)

	var second error
	for _, err := range stream {
		second = err
	}
	assert.ErrorIs(t, second, moderr.ErrStreamConsumed)
	assert.Equal(t, 1, calls)
}

func TestCountTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1internal:countTokens", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "models/gemini-2.5-pro", in["request"].(map[string]any)["model"])
		_, _ = io.WriteString(w, `{"totalTokens":12}`)
	})
	c := newTestClient(t, "p", mux)

	resp, err := c.CountTokens(context.Background(), core.CountTokensRequest{Contents: hello()})
	require.NoError(t, err)
	assert.Equal(t, int32(12), resp.TotalTokens)
	assert.False(t, resp.Estimated)
}

func TestEmbedContentUnsupported(t *testing.T) {
	c := newTestClient(t, "p", http.NewServeMux())
	_, err := c.EmbedContent(context.Background(), core.EmbedContentRequest{Contents: hello()})
	assert.ErrorIs(t, err, moderr.ErrUnsupportedOperation)
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newTestClient(t, "p", http.NewServeMux())
	_, err := c.GenerateContent(ctx, core.GenerateContentRequest{Contents: hello()})
	assert.ErrorIs(t, err, moderr.ErrCancelled)
}
