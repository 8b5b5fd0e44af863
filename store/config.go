package store

import "fmt"

// DefaultBasePath is the default root directory for the account store.
const DefaultBasePath = "./data/accounts"

// Config holds account store configuration.
type Config struct {
	// BasePath is the root directory for the store.
	BasePath string `mapstructure:"base_path" json:"base_path" validate:"required"`
}

// ApplyDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
}

// Validate checks that the store configuration is valid.
func (c *Config) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("store: base_path is required")
	}
	return nil
}
