package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/hivehook/internal/claims"
	"github.com/dotcommander/hivehook/internal/history"
	"github.com/dotcommander/hivehook/internal/learning"
	"github.com/dotcommander/hivehook/internal/models"
	"github.com/dotcommander/hivehook/internal/output"
	"github.com/dotcommander/hivehook/internal/session"
	"github.com/dotcommander/hivehook/internal/trajectory"
)

// Hook handlers never fail closed: every error path degrades to a log line
// plus {} and exit 0. The single deliberate exception is the file-claim
// conflict, which emits decision:block on purpose.

// emit writes the hook response to stdout, falling back to {} on encode
// failure so the host always sees valid JSON.
func emit(resp output.HookResponse) error {
	if err := output.EmitHook(os.Stdout, resp); err != nil {
		return output.EmitNoOp(os.Stdout)
	}
	return nil
}

func noOp() error { return output.EmitNoOp(os.Stdout) }

// newHookRestoreCheckCmd handles UserPromptSubmit: detect an interrupted
// predecessor session and register the current one.
func newHookRestoreCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore-check",
		Short: "UserPromptSubmit hook — interrupted session detection",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := resolveHookEnv()
			if !env.ready() {
				return noOp()
			}

			notice := session.RestoreCheck(env.sessionDeps())
			if notice == "" {
				return noOp()
			}
			slog.Info("interrupted session detected", "project", env.Project)
			return emit(output.Context(notice))
		},
	}
}

// newHookCheckpointCmd handles Stop: finalize the session record and flush
// any unclosed trajectory as failed.
func newHookCheckpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Stop hook — session checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := resolveHookEnv()
			if !env.ready() {
				return noOp()
			}

			rec, flushed := session.Checkpoint(env.sessionDeps(), "")
			withHistorySilent(func(db *DB) error {
				if err := history.SaveSession(db, rec); err != nil {
					return err
				}
				if flushed != nil {
					return history.SaveTrajectory(db, *flushed)
				}
				return nil
			})

			if err := noOp(); err != nil {
				return err
			}

			// Telemetry after the host has its response.
			analysis := env.Scratch.Analysis()
			env.Metrics.EmitSession(env.Project, env.SessionID,
				analysis.ToolCalls, analysis.Errors, analysis.ErrorRate)
			if flushed != nil {
				env.Metrics.EmitTrajectory(env.Project, *flushed)
			}
			return nil
		},
	}
}

// newHookTrajectoryCmd handles the three trajectory events behind one
// executable, differentiated by --event.
func newHookTrajectoryCmd() *cobra.Command {
	var event string
	cmd := &cobra.Command{
		Use:   "trajectory",
		Short: "Task lifecycle hook — trajectory start/step/end",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := resolveHookEnv()
			if !env.ready() {
				return noOp()
			}

			switch event {
			case "start":
				task := toolTaskDescription(env.Input)
				if task == "" {
					task = truncateString(env.Input.Prompt, 200)
				}
				_, created := trajectory.Start(env.trajectoryDeps(), task)
				slog.Debug("trajectory start", "created", created)
			case "step":
				success := !toolFailed(env.Input.ToolResponse)
				quality := 1.0
				if !success {
					quality = 0.5
				}
				action := env.Input.ToolName
				if action == "" {
					action = "unknown"
				}
				trajectory.Step(env.trajectoryDeps(), action, success, quality)
			case "end":
				if t, ok := trajectory.End(env.trajectoryDeps()); ok {
					withHistorySilent(func(db *DB) error {
						return history.SaveTrajectory(db, t)
					})
					if err := noOp(); err != nil {
						return err
					}
					env.Metrics.EmitTrajectory(env.Project, t)
					return nil
				}
			default:
				slog.Warn("unknown trajectory event", "event", event)
			}
			return noOp()
		},
	}
	cmd.Flags().StringVar(&event, "event", "", "Trajectory event: start, step or end")
	return cmd
}

// newHookLessonInjectCmd handles UserPromptSubmit: surface up to three
// confidence-ranked lessons for the prompt.
func newHookLessonInjectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lesson-inject",
		Short: "UserPromptSubmit hook — lesson injection",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := resolveHookEnv()
			if !env.ready() || env.Input.Prompt == "" {
				return noOp()
			}

			db, err := history.Open()
			if err != nil {
				db = nil
			} else {
				defer func() { _ = db.Close() }()
			}

			lessons := learning.Search(env.learningDeps(), env.Gateway, db, env.Input.Prompt)
			text := learning.FormatLessons(lessons)
			if text == "" {
				return noOp()
			}
			slog.Info("lessons injected", "count", len(lessons))
			return emit(output.Context(text))
		},
	}
}

// newHookPatternExtractCmd handles Stop: mine patterns from the session's
// statistics and persist them everywhere they are searched from.
func newHookPatternExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pattern-extract",
		Short: "Stop hook — pattern extraction",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := resolveHookEnv()
			if !env.ready() {
				return noOp()
			}

			d := env.learningDeps()
			patterns := learning.Extract(env.Project, learning.CollectInputs(d))
			if len(patterns) == 0 {
				return noOp()
			}

			fingerprints := learning.StorePatterns(d, patterns)
			withHistorySilent(func(db *DB) error {
				for i, p := range patterns {
					if err := history.SavePattern(db, fingerprints[i], p); err != nil {
						return err
					}
				}
				return nil
			})

			// Fire-and-forget push so other hosts can search them too.
			if env.Gateway != nil {
				for _, p := range patterns {
					_ = env.Gateway.Detach([]string{
						"pattern", "store",
						"--project", env.Project,
						"--type", string(p.Type),
						"--confidence", fmt.Sprintf("%.2f", p.Confidence),
						p.Text,
					})
				}
			}

			slog.Info("patterns extracted", "count", len(patterns))
			return noOp()
		},
	}
}

// newHookFileClaimCmd handles PreToolUse for write-class tools. The only
// handler that may block.
func newHookFileClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file-claim",
		Short: "PreToolUse hook — exclusive file claim",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := resolveHookEnv()
			if !env.ready() || !models.IsWriteTool(env.Input.ToolName) {
				return noOp()
			}
			path := toolFilePath(env.Input)
			if path == "" {
				return noOp()
			}

			out, err := claims.ClaimFile(env.claimDeps(), path)
			if err != nil {
				slog.Error("file claim failed", "path", path, "error", err)
				return noOp()
			}
			if !out.Granted {
				return emit(output.Block("File claimed by " + out.Holder))
			}
			if out.Stolen && out.StealContext != "" {
				return emit(output.Context("Took over abandoned claim on " + path + ". Prior context: " + out.StealContext))
			}
			return noOp()
		},
	}
}

// newHookFileReleaseCmd handles PostToolUse for write-class tools: release
// the claim and broadcast so waiters can proceed.
func newHookFileReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file-release",
		Short: "PostToolUse hook — file claim release",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := resolveHookEnv()
			if !env.ready() || !models.IsWriteTool(env.Input.ToolName) {
				return noOp()
			}
			path := toolFilePath(env.Input)
			if path == "" {
				return noOp()
			}

			if _, err := claims.ReleaseFile(env.claimDeps(), path); err != nil {
				slog.Debug("file release skipped", "path", path, "error", err)
				return noOp()
			}
			if env.Gateway != nil {
				_ = env.Gateway.Detach([]string{"hooks", "notify", "--message", "file released: " + path})
			}
			return noOp()
		},
	}
}

// newHookTaskClaimCmd handles PreToolUse for the Task tool. Informational
// only: conflicts never block.
func newHookTaskClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task-claim",
		Short: "PreToolUse hook — informational task claim",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := resolveHookEnv()
			if !env.ready() || env.Input.ToolName != models.ToolTask {
				return noOp()
			}
			desc := toolTaskDescription(env.Input)
			if desc == "" {
				return noOp()
			}

			if _, granted, err := claims.ClaimTask(env.claimDeps(), desc); err != nil {
				slog.Debug("task claim failed", "error", err)
			} else if !granted {
				slog.Debug("task already claimed elsewhere")
			}
			return noOp()
		},
	}
}

// newHookTaskReleaseCmd handles SubagentStop: release every task claim this
// session holds and broadcast the completions.
func newHookTaskReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task-release",
		Short: "SubagentStop hook — task claim release",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := resolveHookEnv()
			if !env.ready() {
				return noOp()
			}

			released := claims.ReleaseTasks(env.claimDeps())
			if env.Gateway != nil {
				for _, tc := range released {
					_ = env.Gateway.Detach([]string{"hooks", "notify", "--message", "Task completed: " + tc.Description})
				}
			}

			if err := noOp(); err != nil {
				return err
			}
			if len(released) > 0 {
				env.Metrics.EmitTask(env.Project, "released", len(released))
			}
			return nil
		},
	}
}

// newHookPostToolCmd handles PostToolUse for every tool: maintain the
// learning inputs (edit counts and error-rate analysis).
func newHookPostToolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "post-tool",
		Short: "PostToolUse hook — session statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := resolveHookEnv()
			if env.Input.ToolName == "" {
				return noOp()
			}

			failed := toolFailed(env.Input.ToolResponse)
			if _, err := env.Scratch.RecordToolCall(failed); err != nil {
				slog.Debug("analysis update failed", "error", err)
			}
			if models.IsWriteTool(env.Input.ToolName) {
				if path := toolFilePath(env.Input); path != "" {
					_, _ = env.Scratch.BumpEditCount(path)
				}
			}
			return noOp()
		},
	}
}

// newHookStuckDetectorCmd handles Stop: mark this session's claims
// stealable so the next session can take them over.
func newHookStuckDetectorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stuck-detector",
		Short: "Stop hook — abandoned claim detection",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := resolveHookEnv()
			if !env.ready() {
				return noOp()
			}

			moved := claims.DetectStuck(env.claimDeps())
			if len(moved) > 0 {
				slog.Info("claims marked stealable", "count", len(moved), "session", env.SessionID)
			}

			// Last hook on the Stop chain: drop the per-session learning
			// inputs so the next session's extraction starts clean.
			env.Scratch.ClearSessionFiles()

			if err := noOp(); err != nil {
				return err
			}
			dash := claims.BuildDashboard(env.Store)
			env.Metrics.EmitClaims(env.Project, len(dash.Active), len(dash.Stealable))
			return nil
		},
	}
}
