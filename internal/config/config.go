// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for deepterm.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.deepterm/config.toml
//   - ~/.deepterm/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/awalker/deepterm/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete deepterm configuration.
type Config struct {
	// APIKey authenticates against the DeepSeek API. Usually supplied via
	// the DEEPSEEK_API_KEY environment variable rather than the file.
	APIKey string `toml:"api_key" json:"api_key"`

	// Model is the chat model requested for completions.
	Model string `toml:"model" json:"model"`

	// BaseURL is the API endpoint, overridable for proxies and tests.
	BaseURL string `toml:"base_url" json:"base_url"`

	// Temperature is the sampling temperature for completions.
	Temperature float64 `toml:"temperature" json:"temperature"`

	// MaxTokens caps the completion length.
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`

	// TimeoutSecs bounds a single completion request, in seconds.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`

	// ChatDir is where session files live. Empty means ~/.deepterm/chats.
	ChatDir string `toml:"chat_dir" json:"chat_dir"`

	// UI holds presentation settings.
	UI UIConfig `toml:"ui" json:"ui"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	// Plain forces the line-oriented REPL instead of the full-screen TUI.
	Plain bool `toml:"plain" json:"plain"`

	// Markdown enables glamour rendering of assistant replies.
	Markdown bool `toml:"markdown" json:"markdown"`

	// ShowTimestamps prints a timestamp next to each message.
	ShowTimestamps bool `toml:"show_timestamps" json:"show_timestamps"`
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Model:       "deepseek-chat",
		BaseURL:     "https://api.deepseek.com/v1",
		Temperature: 0.7,
		MaxTokens:   2000,
		TimeoutSecs: 30,
		UI: UIConfig{
			Markdown: true,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the deepterm configuration directory (~/.deepterm).
func ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".deepterm"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultChatDir returns the chat directory for a config, falling back to
// ~/.deepterm/chats when none is set.
func (c *Config) DefaultChatDir() (string, error) {
	if c.ChatDir != "" {
		return c.ChatDir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chats"), nil
}

// ensureSecurePermissions tightens a config file to 0600. The file holds an
// API key, so group and world access is never acceptable.
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
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config files. It tries TOML first, then
// JSON, and falls back to defaults. Environment overrides are applied last,
// so DEEPSEEK_API_KEY always wins over the file.
func Load() (*Config, error) {
	cfg := Default()

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				return nil, fmt.Errorf("failed to load TOML config: %w", err)
			}
			return finishLoad(cfg)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				return nil, fmt.Errorf("failed to load JSON config: %w", err)
			}
			return finishLoad(cfg)
		}
	}

	return finishLoad(cfg)
}

func finishLoad(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// fillDefaults replaces zero values with the built-in defaults so a sparse
// config file still yields a usable configuration.
func (c *Config) fillDefaults() {
	def := Default()
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.Temperature == 0 {
		c.Temperature = def.Temperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = def.TimeoutSecs
	}
}

// ApplyEnvOverrides applies environment variable overrides to the config.
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" {
		c.APIKey = key
	}
	if model := os.Getenv("DEEPTERM_MODEL"); model != "" {
		c.Model = model
	}
	if url := os.Getenv("DEEPTERM_BASE_URL"); url != "" {
		c.BaseURL = url
	}
	if dir := os.Getenv("DEEPTERM_CHAT_DIR"); dir != "" {
		c.ChatDir = dir
	}
	if plain := os.Getenv("DEEPTERM_PLAIN"); plain != "" {
		c.UI.Plain = plain == "1" || strings.ToLower(plain) == "true"
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default TOML path.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// The file may have existed with looser permissions.
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# deepterm configuration file")
	fmt.Fprintln(file, "# Generated by deepterm - edit with care")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
