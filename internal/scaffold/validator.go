package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckExisting checks if burrow.yml already exists in dir
// Returns an error if it does, nil otherwise
func CheckExisting(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, ConfigFile)); err == nil {
		return fmt.Errorf("project already initialized\n\nFound existing: %s\n"+
			"\nUse 'burrow init --force' to reinitialize (this will overwrite existing configuration)", ConfigFile)
	}

	return nil
}
