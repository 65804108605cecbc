package mock

import (
	"fmt"
	"os"

	"github.com/studiowebux/halcrud/internal/config"
)

// LoadConfig loads a mock configuration from a YAML or JSON file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := config.Unmarshal(path, data, &cfg); err != nil {
		return nil, err
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// validateConfig validates the mock configuration
func validateConfig(cfg *Config) error {
	if len(cfg.Collections) == 0 {
		return fmt.Errorf("no collections defined")
	}

	seen := make(map[string]bool)
	for i, c := range cfg.Collections {
		if c.Name == "" {
			return fmt.Errorf("collection %d: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("collection %d: duplicate name %q", i, c.Name)
		}
		seen[c.Name] = true
	}

	return nil
}
