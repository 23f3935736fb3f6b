//go:build integration

package gemrouter_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizzyg/gemrouter"
	moderr "github.com/lizzyg/gemrouter/errors"
)

type greeting struct {
	Greeting string `json:"greeting"`
}

func liveClient(t *testing.T, env gemrouter.Environment) *gemrouter.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c, err := gemrouter.NewFromEnvironment(ctx,
		gemrouter.WithEnvironment(env),
		gemrouter.WithSettings(nullSettings{}),
	)
	require.NoError(t, err)
	return c
}

type nullSettings struct{}

func (nullSettings) GetMergedValue(string) any                  { return nil }
func (nullSettings) SetValue(gemrouter.Scope, string, any) error { return nil }

func TestOpenRouterLive(t *testing.T) {
	key := os.Getenv("OPENROUTER_API_KEY")
	if key == "" {
		t.Skip("OPENROUTER_API_KEY not set; skipping integration test")
	}
	c := liveClient(t, gemrouter.Environment{"OPENROUTER_API_KEY": key})
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	out, err := gemrouter.GenerateJSON[greeting](ctx, c, gemrouter.GenerateContentRequest{
		Model:    "gemini-2.5-flash",
		Contents: []gemrouter.Content{gemrouter.Text(gemrouter.RoleUser, `Reply with JSON {"greeting":"hello"}`)},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Greeting)

	var text string
	for resp, err := range c.GenerateContentStream(ctx, gemrouter.GenerateContentRequest{
		Model:    "gemini-2.5-flash",
		Contents: []gemrouter.Content{gemrouter.Text(gemrouter.RoleUser, "Count from 1 to 5.")},
	}) {
		require.NoError(t, err)
		text += resp.Text()
	}
	assert.Contains(t, text, "3")

	_, err = c.EmbedContent(ctx, gemrouter.EmbedContentRequest{Contents: []gemrouter.Content{gemrouter.Text(gemrouter.RoleUser, "x")}})
	assert.True(t, errors.Is(err, moderr.ErrUnsupportedOperation))
}

func TestGeminiAPIKeyLive(t *testing.T) {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		t.Skip("GEMINI_API_KEY not set; skipping integration test")
	}
	c := liveClient(t, gemrouter.Environment{"GEMINI_API_KEY": key})
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	resp, err := c.GenerateContent(ctx, gemrouter.GenerateContentRequest{
		Model:    "gemini-2.5-flash",
		Contents: []gemrouter.Content{gemrouter.Text(gemrouter.RoleUser, "Say hello in one word.")},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Text())

	count, err := c.CountTokens(ctx, gemrouter.CountTokensRequest{
		Model:    "gemini-2.5-flash",
		Contents: []gemrouter.Content{gemrouter.Text(gemrouter.RoleUser, "How many tokens is this?")},
	})
	require.NoError(t, err)
	assert.Positive(t, count.TotalTokens)
	assert.False(t, count.Estimated)

	emb, err := c.EmbedContent(ctx, gemrouter.EmbedContentRequest{
		Model:    "text-embedding-004",
		Contents: []gemrouter.Content{gemrouter.Text(gemrouter.RoleUser, "embed me")},
	})
	require.NoError(t, err)
	require.Len(t, emb.Embeddings, 1)
	assert.NotEmpty(t, emb.Embeddings[0])
}
