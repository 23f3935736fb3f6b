package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

// Recognized environment variables.
const (
	EnvGeminiAPIKey      = "GEMINI_API_KEY"
	EnvGoogleAPIKey      = "GOOGLE_API_KEY"
	EnvCloudProject      = "GOOGLE_CLOUD_PROJECT"
	EnvCloudLocation     = "GOOGLE_CLOUD_LOCATION"
	EnvUseGCA            = "GOOGLE_GENAI_USE_GCA"
	EnvUseVertexAI       = "GOOGLE_GENAI_USE_VERTEXAI"
	EnvOpenRouterAPIKey  = "OPENROUTER_API_KEY"
	EnvOpenRouterBaseURL = "OPENROUTER_BASE_URL"

	EnvGeminiModel       = "GEMINI_MODEL"
	EnvGeminiBaseURL     = "GOOGLE_GEMINI_BASE_URL"
	EnvVertexBaseURL     = "GOOGLE_VERTEX_BASE_URL"
	EnvCodeAssistBaseURL = "CODE_ASSIST_ENDPOINT"
)

var proxyVars = []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"}

// Environment is an explicit snapshot of environment variables. The resolver
// reads only from this value, never from the process environment.
type Environment map[string]string

// EnvironmentFrom parses KEY=VALUE pairs as returned by os.Environ.
func EnvironmentFrom(environ []string) Environment {
	env := make(Environment, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

// Environ renders e as sorted KEY=VALUE pairs, the inverse of EnvironmentFrom.
func (e Environment) Environ() []string {
	out := make([]string, 0, len(e))
	for k, v := range e {
		out = append(out, k+"="+v)
	}
	slices.Sort(out)
	return out
}

// Get returns the trimmed value of key, or "".
func (e Environment) Get(key string) string {
	return strings.TrimSpace(e[key])
}

// IsTrue reports whether key is set to "true" (case-insensitive).
func (e Environment) IsTrue(key string) bool {
	return strings.EqualFold(e.Get(key), "true")
}

// FirstOf returns the first non-empty value among keys.
func (e Environment) FirstOf(keys ...string) string {
	for _, k := range keys {
		if v := e.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// LoadEnvironment returns the process environment overlaid on the nearest .env
// file found from dir upwards (".gemini/.env" is preferred over ".env" at each
// level, with the home directory as a final fallback). Process variables win.
func LoadEnvironment(dir string) (Environment, error) {
	env := Environment{}
	if path := FindEnvFile(dir); path != "" {
		vals, err := godotenv.Read(path)
		if err != nil {
			return nil, err
		}
		for k, v := range vals {
			env[k] = v
		}
	}
	for k, v := range EnvironmentFrom(os.Environ()) {
		env[k] = v
	}
	return env, nil
}

// FindEnvFile locates the .env file used by LoadEnvironment, or "".
func FindEnvFile(dir string) string {
	if dir == "" {
		return ""
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		for _, candidate := range []string{filepath.Join(dir, SettingsDirName, ".env"), filepath.Join(dir, ".env")} {
			if fileExists(candidate) {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if home, err := os.UserHomeDir(); err == nil {
		for _, candidate := range []string{filepath.Join(home, SettingsDirName, ".env"), filepath.Join(home, ".env")} {
			if fileExists(candidate) {
				return candidate
			}
		}
	}
	return ""
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
