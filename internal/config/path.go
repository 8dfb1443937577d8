package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the fallback Pebble directory under the user's
// home, or a relative directory when home cannot be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "dueue-data"
	}
	return filepath.Join(home, ".dueue", "data")
}
