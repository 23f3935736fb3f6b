package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func testPaths(t *testing.T) SettingsPaths {
	dir := t.TempDir()
	return SettingsPaths{
		System:    filepath.Join(dir, "system", "settings.yaml"),
		User:      filepath.Join(dir, "home", SettingsDirName, "settings.yaml"),
		Workspace: filepath.Join(dir, "ws", SettingsDirName, "settings.yaml"),
	}
}

func TestLoadSettings_MissingFilesAreEmpty(t *testing.T) {
	s, err := LoadSettings(testPaths(t), nil)
	require.NoError(t, err)
	assert.Nil(t, s.GetMergedValue(KeySelectedAuthType))
	assert.Equal(t, "", s.String(KeyProxy))
}

func TestLoadSettings_MergePrecedence(t *testing.T) {
	p := testPaths(t)
	writeFile(t, p.User, "security:\n  auth:\n    selected_type: gemini-api-key\nmodel:\n  name: gemini-2.5-flash\nproxy: http://user-proxy:8080\n")
	writeFile(t, p.Workspace, "model:\n  name: gemini-2.5-pro\n")
	writeFile(t, p.System, "proxy: http://corp-proxy:3128\n")

	s, err := LoadSettings(p, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini-api-key", s.String(KeySelectedAuthType))
	assert.Equal(t, "gemini-2.5-pro", s.String(KeyModelName))
	assert.Equal(t, "http://corp-proxy:3128", s.String(KeyProxy))
}

func TestLoadSettings_EnvOverridesAndReferences(t *testing.T) {
	p := testPaths(t)
	writeFile(t, p.User, "proxy: http://${PROXY_HOST}:8080\nmodel:\n  aliases:\n    fast: ${FAST_MODEL}\n")
	env := Environment{
		"PROXY_HOST": "squid.local",
		"FAST_MODEL": "openai/gpt-4o-mini",
		"GEMROUTER__SECURITY__AUTH__ENFORCED_TYPE": "openrouter",
	}
	s, err := LoadSettings(p, env)
	require.NoError(t, err)
	assert.Equal(t, "http://squid.local:8080", s.String(KeyProxy))
	assert.Equal(t, "openrouter", s.String(KeyEnforcedAuthType))
	assert.Equal(t, map[string]string{"fast": "openai/gpt-4o-mini"}, s.StringMap(KeyModelAliases))
}

func TestLoadSettings_OverridesReadOnlyTheSnapshot(t *testing.T) {
	t.Setenv("GEMROUTER__PROXY", "http://process:1")
	s, err := LoadSettings(testPaths(t), Environment{"GEMROUTER__MODEL__NAME": "gemini-2.5-flash"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", s.String(KeyModelName))
	assert.Empty(t, s.String(KeyProxy))
}

func TestLoadSettings_InvalidYAML(t *testing.T) {
	p := testPaths(t)
	writeFile(t, p.Workspace, "model: [unterminated\n")
	_, err := LoadSettings(p, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workspace")
}

func TestSetValue_PersistsToScopeFile(t *testing.T) {
	p := testPaths(t)
	writeFile(t, p.User, "model:\n  name: gemini-2.5-flash\n")
	s, err := LoadSettings(p, nil)
	require.NoError(t, err)

	require.NoError(t, s.SetValue(ScopeUser, KeySelectedAuthType, "openrouter"))
	assert.Equal(t, "openrouter", s.String(KeySelectedAuthType))

	reloaded, err := LoadSettings(p, nil)
	require.NoError(t, err)
	assert.Equal(t, "openrouter", reloaded.String(KeySelectedAuthType))
	assert.Equal(t, "gemini-2.5-flash", reloaded.String(KeyModelName))
}

func TestSetValue_UnwritableScope(t *testing.T) {
	s, err := LoadSettings(SettingsPaths{}, nil)
	require.NoError(t, err)
	assert.Error(t, s.SetValue(ScopeUser, KeySelectedAuthType, "openrouter"))
	assert.Error(t, s.SetValue(Scope("bogus"), KeySelectedAuthType, "openrouter"))
}

func TestResolveEnvString(t *testing.T) {
	env := Environment{"API_KEY": "test123", "HOST": "localhost", "EMPTY": ""}
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"replaces set variable", "api-${API_KEY}-suffix", "api-test123-suffix"},
		{"empty variable", "prefix-${EMPTY}-suffix", "prefix--suffix"},
		{"unset variable", "prefix-${UNSET}-suffix", "prefix--suffix"},
		{"multiple variables", "${HOST}:${PORT}", "localhost:"},
		{"no substitution", "no-vars-here", "no-vars-here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveEnvString(tt.input, env))
		})
	}
}

func TestDefaultSettingsPaths(t *testing.T) {
	p := DefaultSettingsPaths("/home/ada", "/src/project")
	assert.Equal(t, "/home/ada/.gemini/settings.yaml", p.User)
	assert.Equal(t, "/src/project/.gemini/settings.yaml", p.Workspace)
	assert.Equal(t, "/etc/gemini-cli/settings.yaml", p.System)

	assert.Empty(t, DefaultSettingsPaths("", "").User)
}
