// ABOUTME: XDG-based data and config directory resolution for flowgraph.
// ABOUTME: Checks XDG_DATA_HOME / XDG_CONFIG_HOME, falls back to ~/.local/share/flowgraph and ~/.config/flowgraph.

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDataDir returns the directory holding the tree database.
func DefaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "flowgraph"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "flowgraph"), nil
}

// DefaultConfigDir returns the directory holding config.yaml.
func DefaultConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "flowgraph"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "flowgraph"), nil
}

// DefaultConfigPath is config.yaml inside DefaultConfigDir, or "" when the home
// directory cannot be resolved.
func DefaultConfigPath() string {
	dir, err := DefaultConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}
