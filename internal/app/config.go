package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/hivehook/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "hivehook"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# hivehook configuration
# Run: hivehook --help

# Optional: override the local history database location.
# Can also be set via HIVEHOOK_DB_PATH or --db-path.
# db_path: ~/.config/hivehook/hivehook.db

# Optional: orchestrator CLI command (default: claude-flow).
# Can also be set via HIVEHOOK_ORCHESTRATOR.
# orchestrator: claude-flow

# Optional: shared store directory (default: ~/.claude-flow).
# store_dir: ~/.claude-flow
`
