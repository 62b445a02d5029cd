// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package config loads and validates the Grimoire configuration with the
// standard precedence: flags > environment > config file > defaults.
package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// Config is the top-level Grimoire configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Display   DisplayConfig   `mapstructure:"display"`
	Serve     ServeConfig     `mapstructure:"serve"`
}

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ChunkingConfig sets the token window geometry used during ingestion.
type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

// EmbeddingConfig selects and tunes the embedding backend.
type EmbeddingConfig struct {
	Provider      string        `mapstructure:"provider"`
	Model         string        `mapstructure:"model"`
	Dimensions    int           `mapstructure:"dimensions"`
	Endpoint      string        `mapstructure:"endpoint"`
	APIKeyEnv     string        `mapstructure:"api_key_env"`
	Device        string        `mapstructure:"device"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	MemoryLimitMB int           `mapstructure:"memory_limit_mb"`
}

// DisplayConfig controls CLI output rendering.
type DisplayConfig struct {
	DefaultFormat string `mapstructure:"default_format"`
	DefaultLimit  int    `mapstructure:"default_limit"`
}

// ServeConfig controls the MCP server transport.
type ServeConfig struct {
	// Listen is a host:port for the streamable HTTP transport. Empty means
	// stdio.
	Listen string `mapstructure:"listen"`
}

// SetDefaults installs every default value on v. Keeping this separate from
// Load lets the CLI bind flags onto the same viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "grimoire.db")

	v.SetDefault("chunking.size", 1024)
	v.SetDefault("chunking.overlap", 64)

	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("embedding.endpoint", "")
	v.SetDefault("embedding.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("embedding.device", "auto")
	v.SetDefault("embedding.idle_timeout", "5m")
	v.SetDefault("embedding.memory_limit_mb", 0)

	v.SetDefault("display.default_format", "table")
	v.SetDefault("display.default_limit", 5)

	v.SetDefault("serve.listen", "")
}

// SetupEnv binds environment variables with the GRIMOIRE_ prefix, so
// GRIMOIRE_DATABASE_PATH overrides database.path.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("GRIMOIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper unmarshals and validates the configuration accumulated on v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, grimerr.Errorf(grimerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Load reads configuration from the given path (or defaults when empty) with
// environment variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, grimerr.Errorf(grimerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// Validate checks the configuration for logical errors. It returns every
// problem found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateDatabase()...)
	errs = append(errs, c.validateChunking()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateDisplay()...)
	errs = append(errs, c.validateServe()...)

	return errs
}

func (c *Config) validateDatabase() []error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, grimerr.New(grimerr.CodeConfigValidateInvalidValue,
			"config: database.path must not be empty"))
	}

	return errs
}

func (c *Config) validateChunking() []error {
	var errs []error

	if c.Chunking.Size <= 0 {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: chunking.size must be greater than 0, got %d", c.Chunking.Size))
	}
	if c.Chunking.Overlap < 0 {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: chunking.overlap must not be negative, got %d", c.Chunking.Overlap))
	}
	if c.Chunking.Size > 0 && c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: chunking.overlap (%d) must be smaller than chunking.size (%d)",
			c.Chunking.Overlap, c.Chunking.Size))
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	validProviders := map[string]bool{"ollama": true, "openai": true}
	if !validProviders[c.Embedding.Provider] {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: embedding.provider must be one of [ollama, openai], got %q",
			c.Embedding.Provider))
	}

	if c.Embedding.Model == "" {
		errs = append(errs, grimerr.New(grimerr.CodeConfigValidateInvalidValue,
			"config: embedding.model must not be empty"))
	}

	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: embedding.dimensions must be greater than 0, got %d",
			c.Embedding.Dimensions))
	}

	validDevices := map[string]bool{"auto": true, "gpu": true, "cpu": true}
	if !validDevices[c.Embedding.Device] {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: embedding.device must be one of [auto, gpu, cpu], got %q",
			c.Embedding.Device))
	}

	if c.Embedding.IdleTimeout < 0 {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: embedding.idle_timeout must not be negative, got %s",
			c.Embedding.IdleTimeout))
	}

	if c.Embedding.MemoryLimitMB < 0 {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: embedding.memory_limit_mb must not be negative, got %d",
			c.Embedding.MemoryLimitMB))
	}

	return errs
}

func (c *Config) validateDisplay() []error {
	var errs []error

	validFormats := map[string]bool{"table": true, "json": true, "yaml": true}
	if !validFormats[c.Display.DefaultFormat] {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: display.default_format must be one of [table, json, yaml], got %q",
			c.Display.DefaultFormat))
	}

	if c.Display.DefaultLimit <= 0 {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: display.default_limit must be greater than 0, got %d",
			c.Display.DefaultLimit))
	}

	return errs
}

func (c *Config) validateServe() []error {
	var errs []error

	// Empty means stdio transport; anything else must be a host:port.
	if c.Serve.Listen == "" {
		return nil
	}

	_, portStr, err := net.SplitHostPort(c.Serve.Listen)
	if err != nil {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: serve.listen must be a valid host:port address, got %q: %w",
			c.Serve.Listen, err))
		return errs
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: serve.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, grimerr.Errorf(grimerr.CodeConfigValidateInvalidValue,
			"config: serve.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}
