package unmark

import (
	"github.com/hazyhaar/unmark/internal/config"
)

// Config is the top-level unmark configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig defines a page to keep rewritten.
type PageConfig = config.PageConfig

// RewriteConfig overrides attribute names and host gating.
type RewriteConfig = config.RewriteConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// LoadEnv loads a .env file into the process environment. A missing file is
// not an error.
func LoadEnv(path string) error {
	return config.LoadEnv(path)
}
