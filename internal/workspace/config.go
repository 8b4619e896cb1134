package workspace

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"worktrack/internal/item"
)

// Config models the workspace configuration stored in
// .worktrack/config.yml.
type Config struct {
	Version   int          `yaml:"version"`
	Workspace Settings     `yaml:"workspace"`
	Defaults  ItemDefaults `yaml:"defaults"`
}

// Settings holds workspace-level options.
type Settings struct {
	Name string `yaml:"name,omitempty"`
}

// ItemDefaults are applied to newly created items.
type ItemDefaults struct {
	State  string   `yaml:"state"`
	Labels []string `yaml:"labels,omitempty"`
}

// DefaultConfig returns the configuration written by Init.
func DefaultConfig() Config {
	return Config{
		Version: 1,
		Defaults: ItemDefaults{
			State: item.DefaultState,
		},
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Version < 1 {
		return fmt.Errorf("config version must be >= 1, got %d", c.Version)
	}
	if c.Defaults.State == "" {
		return fmt.Errorf("config defaults.state is required")
	}
	for _, l := range c.Defaults.Labels {
		if l == "" {
			return fmt.Errorf("config defaults.labels contains an empty label")
		}
	}
	return nil
}

func parseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse config: %v", ErrSerialization, err)
	}
	if cfg.Defaults.State == "" {
		cfg.Defaults.State = item.DefaultState
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func encodeConfig(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: encode config: %v", ErrSerialization, err)
	}
	return data, nil
}
