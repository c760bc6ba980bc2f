package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// modelAliasFile is the on-disk shape of the model-alias table: a flat
// mapping of alias -> canonical model identifier. Resolves spec.md §9's
// "model-name compatibility" open question as an explicit table rather
// than silent rewriting.
type modelAliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

func loadModelAliasFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}

	var parsed modelAliasFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse alias file: %w", err)
	}

	return parsed.Aliases, nil
}

// ResolveModelAlias looks up alias in table, falling back to alias itself
// (treated as already-canonical) when it isn't present. Unknown aliases are
// not silently rewritten to something else — they pass through.
func ResolveModelAlias(alias string, table map[string]string) string {
	if canonical, ok := table[alias]; ok {
		return canonical
	}
	return alias
}
