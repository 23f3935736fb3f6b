package util

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a JSON schema for the type of v as a generic map, ready
// to be placed in a request body. v should be a pointer to a struct.
func SchemaFor(v any) (map[string]any, error) {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	b, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// IsStringType reports whether T is string for generics handling.
func IsStringType[T any]() bool {
	var zero T
	return reflect.TypeOf(zero) == reflect.TypeOf("")
}
