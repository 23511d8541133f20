package commands

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/hivehook/internal/app"
	"github.com/dotcommander/hivehook/internal/claims"
	"github.com/dotcommander/hivehook/internal/gateway"
	"github.com/dotcommander/hivehook/internal/identity"
	"github.com/dotcommander/hivehook/internal/learning"
	"github.com/dotcommander/hivehook/internal/metrics"
	"github.com/dotcommander/hivehook/internal/models"
	"github.com/dotcommander/hivehook/internal/scratch"
	"github.com/dotcommander/hivehook/internal/session"
	"github.com/dotcommander/hivehook/internal/store"
	"github.com/dotcommander/hivehook/internal/trajectory"
)

const (
	// maxHookStdinBytes caps stdin reads. Hook payloads are small JSON objects;
	// 1 MB is generous headroom that prevents unbounded allocation.
	maxHookStdinBytes = 1 << 20

	// hookLogFile is the append-only log in the scratch dir. Hook stdout is
	// reserved for the host protocol, so diagnostics go here.
	hookLogFile = "hivehook.log"
)

// NewHookCmd creates the hook parent command.
func NewHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Hook handlers and installers for the agent runtime",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newHookInstallCmd())
	cmd.AddCommand(newHookUninstallCmd())

	// Hook handler subcommands — called by the agent runtime, not users.
	// Hidden from help output to reduce command surface noise.
	for _, sub := range []*cobra.Command{
		newHookRestoreCheckCmd(),
		newHookLessonInjectCmd(),
		newHookFileClaimCmd(),
		newHookTaskClaimCmd(),
		newHookPostToolCmd(),
		newHookFileReleaseCmd(),
		newHookTrajectoryCmd(),
		newHookTaskReleaseCmd(),
		newHookCheckpointCmd(),
		newHookPatternExtractCmd(),
		newHookStuckDetectorCmd(),
	} {
		sub.Hidden = true
		sub.SilenceUsage = true
		sub.SilenceErrors = true
		cmd.AddCommand(sub)
	}

	return cmd
}

// hookInput is the JSON the agent runtime sends on stdin to hooks.
type hookInput struct {
	CWD           string          `json:"cwd"`
	SessionID     string          `json:"session_id"`
	HookEventName string          `json:"hook_event_name"`
	Prompt        string          `json:"prompt"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input"`
	ToolResponse  json.RawMessage `json:"tool_response"`
	Source        string          `json:"source"`
	Raw           map[string]any  `json:"-"`
}

func readHookStdin() hookInput {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, maxHookStdinBytes))
	if err != nil {
		return hookInput{}
	}
	var input hookInput
	if err := json.Unmarshal(data, &input); err != nil {
		slog.Warn("hook stdin unmarshal failed", "error", err, "bytes", len(data))
	}
	// Intentional double-unmarshal: struct tags handle known fields while
	// the Raw map preserves unknown fields for diagnostics.
	// Hook payloads are <1 KB so the cost is negligible.
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	input.Raw = raw
	return input
}

// hookEnv holds the resolved common state shared by all hook handlers.
type hookEnv struct {
	Input     hookInput
	Store     *store.FileStore
	Scratch   scratch.Dir
	Project   string
	SessionID string
	// Gateway is nil when the orchestrator CLI is disabled or not installed.
	Gateway *gateway.Runner
	Metrics *metrics.Emitter
}

// resolveHookEnv reads stdin and wires the store, scratch dir, identity and
// gateway a handler needs. Never fails: a broken environment yields partial
// state and the handler degrades to a no-op.
func resolveHookEnv() hookEnv {
	input := readHookStdin()

	sc := scratch.At(app.ScratchDir())
	slog.SetDefault(slog.New(slog.NewJSONHandler(hookLogWriter(sc), nil)))

	env := hookEnv{Input: input, Scratch: sc}

	if dir, err := app.StoreDir(); err == nil {
		env.Store = store.New(dir)
	} else {
		slog.Error("store dir unavailable", "error", err)
	}

	env.Project = identity.Project(input.CWD)
	env.SessionID = input.SessionID
	if env.SessionID == "" {
		env.SessionID = identity.SessionID(sc)
	} else if sc.CachedSessionID() != env.SessionID {
		_ = sc.CacheSessionID(env.SessionID, models.Timestamp(time.Now()))
	}

	if gw, err := gateway.New(app.OrchestratorCommand()); err == nil {
		env.Gateway = gw
	} else {
		slog.Debug("gateway unavailable", "kind", gateway.Classify(err), "error", err)
	}

	if s, err := app.LoadSettings(); err == nil {
		env.Metrics = metrics.FromSettings(&s)
	} else {
		env.Metrics = metrics.FromSettings(nil)
	}
	return env
}

// hookLogWriter opens the scratch hook log for appending; a failure falls
// back to stderr so diagnostics are never lost entirely.
func hookLogWriter(sc scratch.Dir) io.Writer {
	f, err := os.OpenFile(sc.File(hookLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // scratch log
	if err != nil {
		return os.Stderr
	}
	return f
}

func (h hookEnv) ready() bool { return h.Store != nil }

func (h hookEnv) sessionDeps() session.Deps {
	return session.Deps{Store: h.Store, Scratch: h.Scratch, Project: h.Project, SessionID: h.SessionID}
}

func (h hookEnv) trajectoryDeps() trajectory.Deps {
	return trajectory.Deps(h.sessionDeps())
}

func (h hookEnv) learningDeps() learning.Deps {
	return learning.Deps(h.sessionDeps())
}

func (h hookEnv) claimDeps() claims.Deps {
	return claims.Deps(h.sessionDeps())
}

// --- tool payload helpers ---

// toolFilePath extracts the file path from a tool_input payload. NotebookEdit
// uses notebook_path; everything else file_path.
func toolFilePath(input hookInput) string {
	var payload struct {
		FilePath     string `json:"file_path"`
		NotebookPath string `json:"notebook_path"`
	}
	if err := json.Unmarshal(input.ToolInput, &payload); err != nil {
		return ""
	}
	if payload.FilePath != "" {
		return payload.FilePath
	}
	return payload.NotebookPath
}

// toolTaskDescription extracts the delegated task description from a Task
// tool invocation.
func toolTaskDescription(input hookInput) string {
	var payload struct {
		Description string `json:"description"`
		Prompt      string `json:"prompt"`
	}
	if err := json.Unmarshal(input.ToolInput, &payload); err != nil {
		return ""
	}
	if payload.Description != "" {
		return payload.Description
	}
	return payload.Prompt
}

// toolFailed reports whether a tool_response payload signals an error.
func toolFailed(response json.RawMessage) bool {
	if len(response) == 0 {
		return false
	}
	var payload struct {
		IsError *bool  `json:"is_error"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(response, &payload); err != nil {
		return false
	}
	if payload.IsError != nil {
		return *payload.IsError
	}
	return payload.Error != ""
}

func truncateString(raw string, max int) string {
	if max <= 0 {
		return raw
	}
	runes := []rune(raw)
	if len(runes) <= max {
		return raw
	}
	return string(runes[:max])
}
