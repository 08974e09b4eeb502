package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override the file configuration.
const (
	EnvRemote   = "UNMARK_REMOTE"
	EnvDB       = "UNMARK_DB"
	EnvAddr     = "UNMARK_ADDR"
	EnvLogLevel = "UNMARK_LOG_LEVEL"
)

// LoadEnv loads a dotenv file into the process environment without
// overriding variables already set. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ApplyEnv overrides cfg with UNMARK_* variables that are set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvRemote); v != "" {
		c.Browser.Remote = v
	}
	if v := os.Getenv(EnvDB); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
}
