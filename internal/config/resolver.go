package config

import (
	"fmt"
	"log/slog"
	"strings"

	moderr "github.com/lizzyg/gemrouter/errors"
)

// Sources reported in Resolution.Source.
const (
	SourceEnforced    = "enforced"
	SourceEnvironment = "environment"
	SourceExplicit    = "explicit"
	SourceSettings    = "settings"
)

// Resolution is the outcome of Resolve.
type Resolution struct {
	Config ProviderConfig
	// Source names where the auth type came from.
	Source string
	// SelectedTypeUpdated is true when the detected auth type was written back
	// to the user settings.
	SelectedTypeUpdated bool
	// PersistErr is set when writing the detected auth type back to the user
	// settings failed. Resolution still succeeds.
	PersistErr error
}

// Resolver determines the auth mode and assembles the ProviderConfig.
// Settings may be nil.
type Resolver struct {
	Env      Environment
	Settings SettingsStore
	Logger   *slog.Logger
}

// detectionVars lists the variables checked by DetectAuthType, in priority order.
var detectionVars = []string{EnvUseGCA, EnvUseVertexAI, EnvOpenRouterAPIKey, EnvGeminiAPIKey}

// DetectAuthType inspects the environment in fixed priority order and returns
// "" when nothing is set.
func (r Resolver) DetectAuthType() AuthType {
	switch {
	case r.Env.IsTrue(EnvUseGCA):
		return AuthLoginWithGoogle
	case r.Env.IsTrue(EnvUseVertexAI):
		return AuthVertexAI
	case r.Env.Get(EnvOpenRouterAPIKey) != "":
		return AuthOpenRouter
	case r.Env.Get(EnvGeminiAPIKey) != "":
		return AuthGeminiAPIKey
	default:
		return ""
	}
}

// Resolve selects the auth type with precedence enforced setting > environment >
// explicit argument > previously selected setting, then builds its config.
func (r Resolver) Resolve(explicit AuthType) (Resolution, error) {
	logger := r.logger()
	enforced, err := r.settingAuthType(KeyEnforcedAuthType)
	if err != nil {
		return Resolution{}, err
	}
	selected, err := r.settingAuthType(KeySelectedAuthType)
	if err != nil {
		return Resolution{}, err
	}
	detected := r.DetectAuthType()

	var (
		authType AuthType
		source   string
	)
	switch {
	case enforced != "":
		if detected != "" && detected != enforced {
			return Resolution{}, &moderr.AuthMismatchError{Enforced: string(enforced), Detected: string(detected)}
		}
		authType, source = enforced, SourceEnforced
	case detected != "":
		authType, source = detected, SourceEnvironment
	case explicit != "":
		authType, source = explicit, SourceExplicit
	case selected != "":
		authType, source = selected, SourceSettings
	default:
		return Resolution{}, &moderr.ConfigurationError{
			Reason: "no auth method configured; set security.auth.selected_type in settings or export an auth environment variable",
			Vars:   append([]string(nil), detectionVars...),
		}
	}

	cfg, err := r.BuildConfig(authType)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{Config: cfg, Source: source}

	if detected != "" && detected != selected && r.Settings != nil {
		if err := r.Settings.SetValue(ScopeUser, KeySelectedAuthType, string(detected)); err != nil {
			res.PersistErr = fmt.Errorf("persist selected auth type: %w", err)
			logger.Warn("could not persist selected auth type",
				slog.String("auth_type", string(detected)),
				slog.Any("err", err),
			)
		} else {
			res.SelectedTypeUpdated = true
			logger.Info("selected auth type updated from environment",
				slog.String("previous", string(selected)),
				slog.String("auth_type", string(detected)),
			)
		}
	}

	logger.Debug("auth resolved",
		slog.String("auth_type", string(authType)),
		slog.String("source", source),
		slog.String("model", cfg.Model),
	)
	return res, nil
}

// BuildConfig assembles the configuration for authType from the environment
// and settings, failing when required values are missing.
func (r Resolver) BuildConfig(authType AuthType) (ProviderConfig, error) {
	cfg := ProviderConfig{
		AuthType: authType,
		Proxy:    r.proxy(),
		Model:    r.model(),
	}
	if aliases := r.modelAliases(); len(aliases) > 0 {
		cfg = cfg.WithModelAliases(aliases)
	}
	env := r.Env

	switch authType {
	case AuthLoginWithGoogle, AuthCloudShell:
		cfg.Project = env.Get(EnvCloudProject)
		cfg.BaseURL = env.Get(EnvCodeAssistBaseURL)
	case AuthGeminiAPIKey:
		cfg.APIKey = env.Get(EnvGeminiAPIKey)
		if cfg.APIKey == "" {
			return ProviderConfig{}, &moderr.ConfigurationError{
				Reason: "GEMINI_API_KEY environment variable not found",
				Vars:   []string{EnvGeminiAPIKey},
			}
		}
		cfg.BaseURL = env.Get(EnvGeminiBaseURL)
	case AuthVertexAI:
		cfg.Vertex = true
		cfg.APIKey = env.Get(EnvGoogleAPIKey)
		cfg.Project = env.Get(EnvCloudProject)
		cfg.Location = env.Get(EnvCloudLocation)
		if cfg.APIKey == "" && (cfg.Project == "" || cfg.Location == "") {
			return ProviderConfig{}, &moderr.ConfigurationError{
				Reason: "vertex-ai requires GOOGLE_API_KEY (express mode) or both GOOGLE_CLOUD_PROJECT and GOOGLE_CLOUD_LOCATION",
				Vars:   []string{EnvGoogleAPIKey, EnvCloudProject, EnvCloudLocation},
			}
		}
		cfg.BaseURL = env.Get(EnvVertexBaseURL)
	case AuthOpenRouter:
		cfg.APIKey = env.Get(EnvOpenRouterAPIKey)
		if cfg.APIKey == "" {
			return ProviderConfig{}, &moderr.ConfigurationError{
				Reason: "OPENROUTER_API_KEY environment variable not found",
				Vars:   []string{EnvOpenRouterAPIKey},
			}
		}
		cfg.BaseURL = strings.TrimSuffix(env.Get(EnvOpenRouterBaseURL), "/")
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultOpenRouterBaseURL
		}
	default:
		return ProviderConfig{}, &moderr.ConfigurationError{Reason: fmt.Sprintf("invalid auth type %q", authType)}
	}
	return cfg, nil
}

func (r Resolver) settingAuthType(key string) (AuthType, error) {
	if r.Settings == nil {
		return "", nil
	}
	s, _ := r.Settings.GetMergedValue(key).(string)
	t, err := ParseAuthType(s)
	if err != nil {
		return "", &moderr.ConfigurationError{Reason: fmt.Sprintf("settings %s: %v", key, err)}
	}
	return t, nil
}

func (r Resolver) proxy() string {
	if r.Settings != nil {
		if p, _ := r.Settings.GetMergedValue(KeyProxy).(string); strings.TrimSpace(p) != "" {
			return strings.TrimSpace(p)
		}
	}
	return r.Env.FirstOf(proxyVars...)
}

func (r Resolver) model() string {
	if m := r.Env.Get(EnvGeminiModel); m != "" {
		return m
	}
	if r.Settings != nil {
		if m, _ := r.Settings.GetMergedValue(KeyModelName).(string); strings.TrimSpace(m) != "" {
			return strings.TrimSpace(m)
		}
	}
	return DefaultModel
}

func (r Resolver) modelAliases() map[string]string {
	if r.Settings == nil {
		return nil
	}
	raw, ok := r.Settings.GetMergedValue(KeyModelAliases).(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func (r Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
