package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// mergeFile unmarshals the YAML (or JSON, which is a YAML subset) config
// file at path on top of cfg.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
