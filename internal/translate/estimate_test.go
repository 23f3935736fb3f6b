package translate

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizzyg/gemrouter/internal/core"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int32(0), EstimateTokens(nil))
	assert.Equal(t, int32(0), EstimateTokens([]core.Content{}))

	probe, err := json.Marshal([]core.Content{core.NewTextContent(core.RoleUser, "a")})
	require.NoError(t, err)
	overhead := len(probe) - 1

	contents := []core.Content{core.NewTextContent(core.RoleUser, strings.Repeat("a", 400-overhead))}
	b, err := json.Marshal(contents)
	require.NoError(t, err)
	require.Len(t, b, 400)
	assert.Equal(t, int32(100), EstimateTokens(contents))

	contents[0].Parts[0].Text += "a"
	assert.Equal(t, int32(101), EstimateTokens(contents))
}
