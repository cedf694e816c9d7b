// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for duet.
//
// Configuration lives in a single TOML file with sensible defaults,
// environment variable overrides, and validation. The file holds only
// preferences; credentials and conversation state live in the encrypted
// state database, never here.
//
// Configuration precedence (highest wins):
//   - Environment variables (DUET_*)
//   - ~/.config/duet/config.toml
//   - Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/duetlabs/duet/internal/model"
	"github.com/duetlabs/duet/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete duet configuration.
type Config struct {
	// Version is the config schema version.
	Version string `toml:"version"`

	// Provider is the active provider: "openai" or "gemini"
	Provider string `toml:"provider"`

	// OpenAI configuration
	OpenAI ProviderConfig `toml:"openai"`

	// Gemini configuration
	Gemini ProviderConfig `toml:"gemini"`

	// UI configuration
	UI UIConfig `toml:"ui"`
}

// ProviderConfig contains per-provider preferences. Credentials are NOT
// stored here; they live sealed in the state database.
type ProviderConfig struct {
	// Model is the preferred model identifier for this provider
	Model string `toml:"model"`
	// BaseURL overrides the provider endpoint (empty = provider default)
	BaseURL string `toml:"base_url"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// Plain forces the line-oriented REPL instead of the full-screen TUI
	Plain bool `toml:"plain"`
	// CompactMode uses a more compact layout in the TUI
	CompactMode bool `toml:"compact_mode"`
	// Markdown enables rendered Markdown for finalized assistant messages
	Markdown bool `toml:"markdown"`
	// Debug enables the on-disk debug log
	Debug bool `toml:"debug"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version:  "1.0.0",
		Provider: model.ProviderOpenAI.String(),

		OpenAI: ProviderConfig{
			Model: model.DefaultModel(model.ProviderOpenAI).ID,
		},

		Gemini: ProviderConfig{
			Model: model.DefaultModel(model.ProviderGemini).ID,
		},

		UI: UIConfig{
			Theme:       "dark",
			Plain:       false,
			CompactMode: false,
			Markdown:    true,
			Debug:       false,
		},
	}
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// Dir returns the duet configuration directory path.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not determine config directory: %w", err)
	}
	return filepath.Join(base, "duet"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions checks and fixes permissions on the config file.
// SECURITY: Config files should be 0600 (owner read/write only).
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// =============================================================================
// LOAD
// =============================================================================

// Load loads configuration from the config file, falling back to defaults
// when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path with full
// validation. A missing file is not an error; defaults are used.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		// SECURITY: Check and fix file permissions if needed
		if err := ensureSecurePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
		}

		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		fillDefaults(cfg)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.Provider == "" {
		cfg.Provider = defaults.Provider
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = defaults.OpenAI.Model
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = defaults.Gemini.Model
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// SAVE
// =============================================================================

// Save writes configuration to the default config file path.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes configuration to a specific file path.
func SaveToPath(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# duet configuration file\n")
	sb.WriteString("# Generated by duet - edit with care\n")
	sb.WriteString("#\n")
	sb.WriteString("# API keys are NOT stored here; use /key inside duet.\n\n")

	encoder := toml.NewEncoder(&sb)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	// SECURITY: Write with restrictive permissions (0600 = owner read/write only)
	if err := util.AtomicWriteFile(path, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if !model.ProviderID(c.Provider).Valid() {
		return fmt.Errorf("invalid provider %q (valid: openai, gemini)", c.Provider)
	}

	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		return fmt.Errorf("invalid theme %q (valid: dark, light, auto)", c.UI.Theme)
	}

	for _, pc := range []struct {
		name string
		url  string
	}{
		{"openai", c.OpenAI.BaseURL},
		{"gemini", c.Gemini.BaseURL},
	} {
		if pc.url == "" {
			continue
		}
		if !strings.HasPrefix(pc.url, "http://") && !strings.HasPrefix(pc.url, "https://") {
			return fmt.Errorf("invalid %s base_url %q: must start with http:// or https://", pc.name, pc.url)
		}
	}

	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies DUET_* environment variables over the loaded
// configuration. Environment variables always win over file values.
func (c *Config) ApplyEnvOverrides() {
	// DUET_PROVIDER
	if p := os.Getenv("DUET_PROVIDER"); p != "" {
		if id, err := model.ParseProviderID(p); err == nil {
			c.Provider = id.String()
		}
	}

	// DUET_OPENAI_MODEL / DUET_GEMINI_MODEL
	if m := os.Getenv("DUET_OPENAI_MODEL"); m != "" {
		c.OpenAI.Model = m
	}
	if m := os.Getenv("DUET_GEMINI_MODEL"); m != "" {
		c.Gemini.Model = m
	}

	// DUET_OPENAI_URL / DUET_GEMINI_URL
	if u := os.Getenv("DUET_OPENAI_URL"); u != "" {
		c.OpenAI.BaseURL = u
	}
	if u := os.Getenv("DUET_GEMINI_URL"); u != "" {
		c.Gemini.BaseURL = u
	}

	// DUET_PLAIN
	if plain := os.Getenv("DUET_PLAIN"); plain != "" {
		c.UI.Plain = envBool(plain)
	}

	// DUET_DEBUG
	if debug := os.Getenv("DUET_DEBUG"); debug != "" {
		c.UI.Debug = envBool(debug)
	}
}

func envBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

// =============================================================================
// ACCESSORS
// =============================================================================

// ProviderSection returns the per-provider config for the given provider.
func (c *Config) ProviderSection(id model.ProviderID) ProviderConfig {
	if id == model.ProviderGemini {
		return c.Gemini
	}
	return c.OpenAI
}

// SetModel records the preferred model for a provider.
func (c *Config) SetModel(id model.ProviderID, m string) {
	if id == model.ProviderGemini {
		c.Gemini.Model = m
		return
	}
	c.OpenAI.Model = m
}
