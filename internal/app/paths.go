package app

import (
	"os"
	"path/filepath"
)

// StoreDir resolves the shared store directory holding store.json and
// claims.json. The external orchestrator reads the same files, so the
// default location must stay ~/.claude-flow.
// Order: HIVEHOOK_STORE_DIR env, config.yaml store_dir, ~/.claude-flow.
func StoreDir() (string, error) {
	if v := os.Getenv("HIVEHOOK_STORE_DIR"); v != "" {
		return ensureDir(v)
	}
	if s, err := LoadSettings(); err == nil && s.StoreDir != "" {
		return ensureDir(s.StoreDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(home, ".claude-flow"))
}

// ScratchDir resolves the per-host scratch directory for session-local
// state and hook logs. METRICS_DIR is the host-provided override.
// Order: METRICS_DIR env, config.yaml scratch_dir, /tmp/claude-metrics.
func ScratchDir() string {
	if v := os.Getenv("METRICS_DIR"); v != "" {
		dir, _ := ensureDir(v)
		return dir
	}
	if s, err := LoadSettings(); err == nil && s.ScratchDir != "" {
		dir, _ := ensureDir(s.ScratchDir)
		return dir
	}
	dir, _ := ensureDir(filepath.Join(os.TempDir(), "claude-metrics"))
	return dir
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return dir, err
	}
	return dir, nil
}
