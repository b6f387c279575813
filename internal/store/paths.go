package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DBFile is the run-history database file name inside the episim directory.
const DBFile = "episim.db"

// GlobalEpisimPath returns the path to the global .episim directory.
// On Unix: ~/.episim
// On Windows: %USERPROFILE%\.episim
func GlobalEpisimPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".episim"), nil
}

// DefaultDBPath returns dir/episim.db, or ~/.episim/episim.db when dir is
// empty.
func DefaultDBPath(dir string) (string, error) {
	if dir == "" {
		global, err := GlobalEpisimPath()
		if err != nil {
			return "", err
		}
		dir = global
	}
	return filepath.Join(dir, DBFile), nil
}

// EnsureGlobalEpisimDir creates the global .episim directory if it doesn't exist.
func EnsureGlobalEpisimDir() error {
	globalPath, err := GlobalEpisimPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(globalPath, 0755); err != nil {
		return fmt.Errorf("failed to create global .episim directory: %w", err)
	}
	return nil
}
