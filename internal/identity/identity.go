// Package identity resolves the project name and session id a hook runs
// under. Both resolutions are idempotent for the lifetime of a session.
package identity

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dotcommander/hivehook/internal/models"
	"github.com/dotcommander/hivehook/internal/scratch"
)

// gitTopLevelBudget bounds the git subprocess so identity resolution can
// never eat a meaningful share of a hook's wall-clock budget.
const gitTopLevelBudget = 2 * time.Second

// Project resolves the project name for cwd.
// Order: CLAUDE_PROJECT_NAME env, basename of the git toplevel, basename(cwd).
func Project(cwd string) string {
	if v := os.Getenv("CLAUDE_PROJECT_NAME"); v != "" {
		return v
	}
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	if top := gitTopLevel(cwd); top != "" {
		return filepath.Base(top)
	}
	if cwd == "" {
		return "unknown"
	}
	return filepath.Base(cwd)
}

func gitTopLevel(cwd string) string {
	ctx, cancel := context.WithTimeout(context.Background(), gitTopLevelBudget)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = cwd
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// SessionID resolves the current session id.
// Order: CLAUDE_SESSION_ID env, the scratch cache, a freshly generated
// "session-<8 hex>" value which is then cached.
func SessionID(dir scratch.Dir) string {
	if v := os.Getenv("CLAUDE_SESSION_ID"); v != "" {
		return v
	}
	if cached := dir.CachedSessionID(); cached != "" {
		return cached
	}
	id := "session-" + uuid.NewString()[:8]
	_ = dir.CacheSessionID(id, models.Timestamp(time.Now()))
	return id
}

// Claimant builds the claim owner string for this session and role.
// Roles in use: "editor" for file claims, "task" for task claims.
func Claimant(sessionID, role string) string {
	return "agent:" + sessionID + ":" + role
}
