package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/autobrr/litebase/internal/recordapi"
)

// LoadRecordAPIConfigs reads a YAML array of recordapi.Config from path.
// This is the on-disk form of record API configs; the admin surface instead
// writes directly to the `_record_apis` table (see
// internal/recordapi/store.go). This loader only parses the file: it does
// not write to that table, and serve does not call it at startup.
func LoadRecordAPIConfigs(path string) ([]recordapi.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read record api config %s: %w", path, err)
	}

	var configs []recordapi.Config
	if err := yaml.Unmarshal(raw, &configs); err != nil {
		return nil, fmt.Errorf("config: parse record api config %s: %w", path, err)
	}
	return configs, nil
}

// SaveRecordAPIConfigs writes configs back to path as a YAML array,
// mirroring whatever the `_record_apis` table currently holds so the
// on-disk file can be diffed and version-controlled alongside schema
// migrations.
func SaveRecordAPIConfigs(path string, configs []recordapi.Config) error {
	raw, err := yaml.Marshal(configs)
	if err != nil {
		return fmt.Errorf("config: marshal record api config: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}
