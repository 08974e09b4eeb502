// Package config handles unmark configuration from a YAML file and the
// environment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/unmark/internal/match"
	"github.com/hazyhaar/unmark/rewrite"
)

// Config is the top-level unmark configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Pages   []PageConfig  `yaml:"pages"`
	Rewrite RewriteConfig `yaml:"rewrite"`
	Match   []string      `yaml:"match"` // userscript-style URL patterns
	Sinks   []SinkConfig  `yaml:"sinks"`
	Store   StoreConfig   `yaml:"store"`
	Server  ServerConfig  `yaml:"server"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"` // fonts | media | stylesheets
	Stealth          string        `yaml:"stealth"`           // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
}

// PageConfig defines a page to keep rewritten.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// RewriteConfig overrides the rewriter's attribute names and host gating.
type RewriteConfig struct {
	HostMarker    string `yaml:"host_marker"`
	TokenAttr     string `yaml:"token_attr"`
	SecondaryAttr string `yaml:"secondary_attr"`
	MarkerAttr    string `yaml:"marker_attr"`
	MarkerValue   string `yaml:"marker_value"`
	StrictHost    bool   `yaml:"strict_host"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// StoreConfig enables the SQLite rewrite ledger.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig enables the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks fields that defaults cannot repair.
func (c *Config) Validate() error {
	for i, p := range c.Pages {
		if p.URL == "" {
			return fmt.Errorf("config: pages[%d]: url is required", i)
		}
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook needs url", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	if _, err := match.Compile(c.Match); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.stealth: unknown mode %q", c.Browser.Stealth)
	}
	return nil
}

// RewriterConfig converts the rewrite section to rewrite.Config.
func (c *Config) RewriterConfig() rewrite.Config {
	return rewrite.Config{
		HostMarker:    c.Rewrite.HostMarker,
		TokenAttr:     c.Rewrite.TokenAttr,
		SecondaryAttr: c.Rewrite.SecondaryAttr,
		MarkerAttr:    c.Rewrite.MarkerAttr,
		MarkerValue:   c.Rewrite.MarkerValue,
		StrictHost:    c.Rewrite.StrictHost,
	}
}

func (c *Config) applyDefaults() {
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Match == nil {
		c.Match = append([]string(nil), match.DefaultPatterns...)
	}
	if c.Rewrite.HostMarker == "" {
		c.Rewrite.HostMarker = rewrite.DefaultHostMarker
	}
	if c.Rewrite.TokenAttr == "" {
		c.Rewrite.TokenAttr = rewrite.DefaultTokenAttr
	}
	if c.Rewrite.SecondaryAttr == "" {
		c.Rewrite.SecondaryAttr = rewrite.DefaultSecondaryAttr
	}
	if c.Rewrite.MarkerAttr == "" {
		c.Rewrite.MarkerAttr = rewrite.DefaultMarkerAttr
	}
	if c.Rewrite.MarkerValue == "" {
		c.Rewrite.MarkerValue = rewrite.DefaultMarkerValue
	}
}
