package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAuthType(t *testing.T) {
	for _, at := range AuthTypes() {
		got, err := ParseAuthType(" " + string(at) + " ")
		require.NoError(t, err)
		assert.Equal(t, at, got)
	}
	got, err := ParseAuthType("OpenRouter")
	require.NoError(t, err)
	assert.Equal(t, AuthOpenRouter, got)

	got, err = ParseAuthType("")
	require.NoError(t, err)
	assert.Equal(t, AuthType(""), got)

	_, err = ParseAuthType("api-key")
	assert.ErrorContains(t, err, "unknown auth type")
}
