package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// InitConfig overlays the YAML file at path onto the defaults, so a config
// file only needs to name the settings it changes.
func InitConfig(path string) (*Config, error) {
	conf := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return conf, nil
}
