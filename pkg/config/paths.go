package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigDir returns the path to the daemon config directory (~/.nsd).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".nsd"), nil
}

// DefaultPath returns the path to the named config file.
// An absolute name is returned as-is. /etc/nsd is checked before ~/.nsd.
func DefaultPath(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}

	systemPath := filepath.Join("/etc/nsd", name)
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath, nil
	}

	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
