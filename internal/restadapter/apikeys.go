package restadapter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// apiKeyTableFile is the on-disk shape of the static API-key table:
// key -> principal, the same flat-mapping-file idiom as
// config.modelAliasFile.
type apiKeyTableFile struct {
	Keys map[string]apiKeyEntry `yaml:"keys"`
}

type apiKeyEntry struct {
	PrincipalID string `yaml:"principalId"`
	Admin       bool   `yaml:"admin"`
}

// LoadAPIKeyTable reads a YAML file mapping API keys to principals.
func LoadAPIKeyTable(path string) (map[string]Principal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read api key table: %w", err)
	}

	var parsed apiKeyTableFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse api key table: %w", err)
	}

	keys := make(map[string]Principal, len(parsed.Keys))
	for key, entry := range parsed.Keys {
		keys[key] = Principal{ID: entry.PrincipalID, Admin: entry.Admin}
	}
	return keys, nil
}
