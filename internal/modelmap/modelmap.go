// Package modelmap translates canonical Gemini model names into the
// identifiers expected by OpenAI-compatible gateways.
package modelmap

import "strings"

// DefaultNamespace prefixes identifiers missing from the table.
const DefaultNamespace = "google"

const modelsPrefix = "models/"

var defaultTable = map[string]string{
	"gemini-2.5-pro":        "google/gemini-2.5-pro",
	"gemini-2.5-flash":      "google/gemini-2.5-flash",
	"gemini-2.5-flash-lite": "google/gemini-2.5-flash-lite",
	"gemini-2.0-flash":      "google/gemini-2.0-flash-001",
	"gemini-2.0-flash-lite": "google/gemini-2.0-flash-lite-001",
	"gemini-1.5-pro":        "google/gemini-pro-1.5",
	"gemini-1.5-flash":      "google/gemini-flash-1.5",
}

// Mapper holds a lookup table and the namespace used for unknown identifiers.
// The zero value is not usable; build one with New.
type Mapper struct {
	table     map[string]string
	namespace string
}

// New returns a Mapper over the default table extended with extra entries.
// Entries in extra take precedence.
func New(extra map[string]string) Mapper {
	t := make(map[string]string, len(defaultTable)+len(extra))
	for k, v := range defaultTable {
		t[k] = v
	}
	for k, v := range extra {
		k = StripModelsPrefix(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		t[k] = v
	}
	return Mapper{table: t, namespace: DefaultNamespace}
}

// Map returns the gateway identifier for model.
func (m Mapper) Map(model string) string {
	model = StripModelsPrefix(model)
	if mapped, ok := m.table[model]; ok {
		return mapped
	}
	ns := m.namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return ns + "/" + model
}

// Map translates model using the default table.
func Map(model string) string {
	return defaultMapper.Map(model)
}

// Table returns a copy of the default table.
func Table() map[string]string {
	out := make(map[string]string, len(defaultTable))
	for k, v := range defaultTable {
		out[k] = v
	}
	return out
}

// StripModelsPrefix removes the "models/" resource prefix used by the Gemini API.
func StripModelsPrefix(model string) string {
	return strings.TrimPrefix(model, modelsPrefix)
}

var defaultMapper = New(nil)
