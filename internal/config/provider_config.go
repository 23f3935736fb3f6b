package config

import "maps"

// Defaults applied by the resolver.
const (
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel             = "gemini-2.5-pro"
)

// ProviderConfig is the per-session provider selection. It is built once by the
// Resolver and passed by value; a change of auth mode requires a new value and
// a new client.
type ProviderConfig struct {
	AuthType AuthType `yaml:"auth_type"`
	APIKey   string   `yaml:"api_key,omitempty"`
	// BaseURL overrides the provider's default endpoint. Empty means default.
	BaseURL  string `yaml:"base_url,omitempty"`
	Vertex   bool   `yaml:"vertex"`
	Project  string `yaml:"project,omitempty"`
	Location string `yaml:"location,omitempty"`
	Proxy    string `yaml:"proxy,omitempty"`
	Model    string `yaml:"model"`

	modelAliases map[string]string
}

// ModelAliases returns a copy of the configured canonical->gateway model aliases.
func (c ProviderConfig) ModelAliases() map[string]string {
	return maps.Clone(c.modelAliases)
}

// WithModelAliases returns a copy of c carrying aliases.
func (c ProviderConfig) WithModelAliases(aliases map[string]string) ProviderConfig {
	c.modelAliases = maps.Clone(aliases)
	return c
}

// Redacted returns a copy safe for display.
func (c ProviderConfig) Redacted() ProviderConfig {
	c.APIKey = mask(c.APIKey)
	c.modelAliases = maps.Clone(c.modelAliases)
	return c
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "…" + s[len(s)-4:]
	}
}
