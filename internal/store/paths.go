package store

import (
	"path/filepath"

	"github.com/nvandessel/tracesim/internal/constants"
)

// LocalPath returns the path to the .tracesim directory for the given
// project root.
func LocalPath(projectRoot string) string {
	return filepath.Join(projectRoot, constants.DirName)
}

// DatabasePath returns the SQLite database path for the given project root.
func DatabasePath(projectRoot string) string {
	return filepath.Join(LocalPath(projectRoot), constants.DatabaseFile)
}

// ConfigPath returns the config file path for the given project root.
func ConfigPath(projectRoot string) string {
	return filepath.Join(LocalPath(projectRoot), constants.ConfigFile)
}
