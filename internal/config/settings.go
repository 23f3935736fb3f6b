package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	kenv "github.com/knadh/koanf/providers/env/v2"
	kfile "github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// SettingsDirName is the per-user and per-workspace settings directory.
const SettingsDirName = ".gemini"

const (
	settingsFileName      = "settings.yaml"
	systemSettingsPath    = "/etc/gemini-cli/settings.yaml"
	settingsEnvPrefix     = "GEMROUTER__"
	settingsEnvLevelDelim = "__"
)

// Settings keys read or written by the resolver.
const (
	KeySelectedAuthType = "security.auth.selected_type"
	KeyEnforcedAuthType = "security.auth.enforced_type"
	KeyProxy            = "proxy"
	KeyModelName        = "model.name"
	KeyModelAliases     = "model.aliases"
)

// Scope selects which settings file a write goes to.
type Scope string

const (
	ScopeUser      Scope = "user"
	ScopeWorkspace Scope = "workspace"
	ScopeSystem    Scope = "system"
)

// mergeOrder lists scopes from lowest to highest precedence.
var mergeOrder = []Scope{ScopeUser, ScopeWorkspace, ScopeSystem}

// SettingsStore is the read/write contract the resolver needs.
type SettingsStore interface {
	GetMergedValue(path string) any
	SetValue(scope Scope, path string, value any) error
}

// SettingsPaths locates the YAML file for each scope. An empty path disables the scope.
type SettingsPaths struct {
	System    string
	User      string
	Workspace string
}

// DefaultSettingsPaths returns the standard locations for home and workspace.
func DefaultSettingsPaths(home, workspace string) SettingsPaths {
	p := SettingsPaths{System: systemSettingsPath}
	if home != "" {
		p.User = filepath.Join(home, SettingsDirName, settingsFileName)
	}
	if workspace != "" {
		p.Workspace = filepath.Join(workspace, SettingsDirName, settingsFileName)
	}
	return p
}

func (p SettingsPaths) of(s Scope) string {
	switch s {
	case ScopeSystem:
		return p.System
	case ScopeUser:
		return p.User
	case ScopeWorkspace:
		return p.Workspace
	default:
		return ""
	}
}

// Settings layers user, workspace and system YAML files (system wins) and
// GEMROUTER__a__b environment overrides on top. Safe for concurrent use.
type Settings struct {
	mu     sync.RWMutex
	paths  SettingsPaths
	env    Environment
	scopes map[Scope]*koanf.Koanf
	merged *koanf.Koanf
}

var _ SettingsStore = (*Settings)(nil)

// LoadSettings reads every configured scope. Missing files are treated as empty.
func LoadSettings(paths SettingsPaths, env Environment) (*Settings, error) {
	s := &Settings{paths: paths, env: env, scopes: make(map[Scope]*koanf.Koanf, len(mergeOrder))}
	for _, scope := range mergeOrder {
		k := koanf.New(".")
		if path := paths.of(scope); path != "" {
			if err := k.Load(kfile.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load %s settings %s: %w", scope, path, err)
			}
		}
		s.scopes[scope] = k
	}
	if err := s.remerge(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) remerge() error {
	merged := koanf.New(".")
	for _, scope := range mergeOrder {
		if err := merged.Merge(s.scopes[scope]); err != nil {
			return fmt.Errorf("merge %s settings: %w", scope, err)
		}
	}
	// Environment overrides: GEMROUTER__security__auth__selected_type=openrouter
	if err := merged.Load(kenv.Provider(".", kenv.Opt{
		Prefix:        settingsEnvPrefix,
		TransformFunc: settingsEnvKey,
		EnvironFunc:   s.env.Environ,
	}), nil); err != nil {
		return fmt.Errorf("load settings overrides: %w", err)
	}
	s.merged = merged
	return nil
}

// GetMergedValue returns the effective value at path, or nil. ${VAR}
// references inside string values are resolved against the environment.
func (s *Settings) GetMergedValue(path string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.merged.Get(path)
	if str, ok := v.(string); ok {
		return resolveEnvString(str, s.env)
	}
	return v
}

// String returns the effective string at path, or "".
func (s *Settings) String(path string) string {
	v, _ := s.GetMergedValue(path).(string)
	return strings.TrimSpace(v)
}

// StringMap returns the effective map at path with env references resolved.
func (s *Settings) StringMap(path string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.merged.StringMap(path)
	for k, v := range m {
		m[k] = resolveEnvString(v, s.env)
	}
	return m
}

// SetValue writes value at path into the scope's file and refreshes the merged view.
func (s *Settings) SetValue(scope Scope, path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.scopes[scope]
	file := s.paths.of(scope)
	if !ok || file == "" {
		return fmt.Errorf("settings scope %q is not writable", scope)
	}
	if err := k.Set(path, value); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	b, err := k.Marshal(yaml.Parser())
	if err != nil {
		return fmt.Errorf("marshal %s settings: %w", scope, err)
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(file, b, 0o600); err != nil {
		return fmt.Errorf("write %s settings: %w", scope, err)
	}
	return s.remerge()
}

// Path returns the file backing scope.
func (s *Settings) Path(scope Scope) string { return s.paths.of(scope) }

// settingsEnvKey maps GEMROUTER__MODEL__NAME to model.name.
func settingsEnvKey(k, v string) (string, any) {
	k = strings.ToLower(strings.TrimPrefix(k, settingsEnvPrefix))
	return strings.ReplaceAll(k, settingsEnvLevelDelim, "."), v
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// resolveEnvString replaces ${VAR} with values from env; unknown variables expand to "".
func resolveEnvString(s string, env Environment) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		return env[match[2:len(match)-1]]
	})
}
