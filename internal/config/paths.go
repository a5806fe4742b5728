package config

import (
	"os"
	"path/filepath"
)

// DefaultConfigDir honors ECCO_HOME, falling back to ~/.ecco.
func DefaultConfigDir() string {
	if v := os.Getenv("ECCO_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".ecco")
}

// DefaultConfigPath is the default location of the yaml config file.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
