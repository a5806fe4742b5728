// Package config loads the optional ecco config file. Every field has a flag
// equivalent; flags win over the file, the file wins over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Viewer spawn modes.
const (
	ViewerAuto     = "auto"
	ViewerTmux     = "tmux"
	ViewerTerminal = "terminal"
	ViewerNone     = "none"
)

// DefaultLinger is how long the viewer keeps the completed log on screen
// before closing itself.
const DefaultLinger = 5 * time.Second

// Config models the yaml file at DefaultConfigPath.
type Config struct {
	// LogDir is the default directory for auto-named log files. Empty means
	// the current directory.
	LogDir string `yaml:"logDir"`
	// Shell interprets raw command strings; empty defers to $SHELL.
	Shell string `yaml:"shell"`
	// PollMs is the tail poll interval in milliseconds.
	PollMs int `yaml:"pollMs"`
	// Viewer selects how the live viewer is spawned: auto, tmux, terminal
	// or none.
	Viewer string `yaml:"viewer"`
	// Terminal is the terminal emulator used for Viewer=terminal; empty
	// defers to $TERMINAL, then x-terminal-emulator.
	Terminal string `yaml:"terminal"`
	// LingerSeconds is the auto-close countdown after completion.
	LingerSeconds int `yaml:"lingerSeconds"`
	// Compress archives the finished artifact to <log>.zst.
	Compress bool `yaml:"compress"`
}

// PollInterval returns the configured tail poll interval, or zero when the
// package default should apply.
func (c *Config) PollInterval() time.Duration {
	if c == nil || c.PollMs <= 0 {
		return 0
	}
	return time.Duration(c.PollMs) * time.Millisecond
}

// Linger returns the auto-close countdown.
func (c *Config) Linger() time.Duration {
	if c == nil || c.LingerSeconds < 0 {
		return DefaultLinger
	}
	if c.LingerSeconds == 0 {
		return DefaultLinger
	}
	return time.Duration(c.LingerSeconds) * time.Second
}

// ViewerMode returns the configured viewer mode, defaulting to auto.
func (c *Config) ViewerMode() string {
	if c == nil || strings.TrimSpace(c.Viewer) == "" {
		return ViewerAuto
	}
	return c.Viewer
}

// ValidViewerMode reports whether mode is one of the recognized spawn modes.
func ValidViewerMode(mode string) bool {
	switch mode {
	case ViewerAuto, ViewerTmux, ViewerTerminal, ViewerNone:
		return true
	}
	return false
}

// Load decodes the config file. Missing files return (nil, nil).
func Load(path string) (*Config, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	expanded, err := ExpandPath(trimmed)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Viewer != "" && !ValidViewerMode(cfg.Viewer) {
		return nil, fmt.Errorf("parse config: unknown viewer mode %q", cfg.Viewer)
	}
	return &cfg, nil
}

// Save writes the config to disk, creating parent directories if needed.
func (c *Config) Save(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path is required")
	}
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return err
	}
	return os.WriteFile(expanded, data, 0o600)
}

// ExpandPath resolves ~ and relative paths against the home and working
// directories.
func ExpandPath(path string) (string, error) {
	switch {
	case strings.HasPrefix(path, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	case path == "~":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return home, nil
	case filepath.IsAbs(path):
		return path, nil
	default:
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(cwd, path), nil
	}
}
