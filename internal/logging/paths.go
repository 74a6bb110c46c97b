package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.hybridrag/logs, or a temp-dir equivalent
// when the home directory is unknown.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".hybridrag", "logs")
	}
	return filepath.Join(home, ".hybridrag", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// EnsureLogDir creates the default log directory.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
