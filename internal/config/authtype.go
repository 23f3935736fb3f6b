package config

import (
	"fmt"
	"strings"
)

// AuthType is the closed set of authentication modes. Each value has exactly
// one client constructor registered in the provider factory.
type AuthType string

const (
	AuthLoginWithGoogle AuthType = "oauth-personal"
	AuthCloudShell      AuthType = "cloud-shell"
	AuthGeminiAPIKey    AuthType = "gemini-api-key"
	AuthVertexAI        AuthType = "vertex-ai"
	AuthOpenRouter      AuthType = "openrouter"
)

// AuthTypes lists every known auth type in display order.
func AuthTypes() []AuthType {
	return []AuthType{AuthLoginWithGoogle, AuthCloudShell, AuthGeminiAPIKey, AuthVertexAI, AuthOpenRouter}
}

func (t AuthType) Valid() bool {
	for _, k := range AuthTypes() {
		if t == k {
			return true
		}
	}
	return false
}

func (t AuthType) String() string { return string(t) }

// ParseAuthType accepts the canonical names case-insensitively. The empty string parses to "".
func ParseAuthType(s string) (AuthType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	t := AuthType(s)
	if !t.Valid() {
		names := make([]string, 0, len(AuthTypes()))
		for _, k := range AuthTypes() {
			names = append(names, string(k))
		}
		return "", fmt.Errorf("unknown auth type %q (want one of %s)", s, strings.Join(names, ", "))
	}
	return t, nil
}
