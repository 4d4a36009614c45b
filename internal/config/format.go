package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	yaml "go.yaml.in/yaml/v3"
)

// Format is the on-disk syntax of a config file.
type Format string

const (
	FormatJSON Format = "json" // comments and trailing commas allowed
	FormatYAML Format = "yaml"
)

// DetectFormat picks the syntax from the file extension. Files without a
// known extension are sniffed: a leading '{' means JSON, anything else YAML.
func DetectFormat(name string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json", ".jsonc":
		return FormatJSON
	}
	if b := bytes.TrimSpace(jsonc.ToJSON(data)); len(b) > 0 && b[0] == '{' {
		return FormatJSON
	}
	return FormatYAML
}

// toJSON converts data to plain JSON so every format goes through the same
// strict decoder.
func toJSON(f Format, data []byte) ([]byte, error) {
	if f == FormatJSON {
		return jsonc.ToJSON(data), nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if v == nil {
		// An empty YAML document is an empty config.
		return []byte("{}"), nil
	}
	j, err := json.Marshal(stringKeys(v))
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// stringKeys rewrites YAML mappings with non-string keys (e.g. `1: x`) so
// the tree can be JSON-marshaled. Widget options are free-form, so this can
// happen anywhere below a cell.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return in
	}
}
