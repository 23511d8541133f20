package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dotcommander/hivehook/internal/output"
)

const hivehookCommandFallback = "hivehook"

// writeToolMatcher selects the write-class tools for claim hooks.
const writeToolMatcher = "Write|Edit|MultiEdit|NotebookEdit"

var (
	hivehookHooksOnce  sync.Once
	hivehookHooksCache map[string][]hookEntry
)

type hookHandler struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

type hookEntry struct {
	Matcher string        `json:"matcher"`
	Hooks   []hookHandler `json:"hooks"`
}

func claudeSettingsPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude", "settings.json")
}

func projectClaudeSettingsPath() string {
	wd, err := os.Getwd()
	if err != nil {
		return filepath.Join(".", ".claude", "settings.json")
	}
	return filepath.Join(wd, ".claude", "settings.json")
}

func resolveClaudeSettingsPath(projectScoped bool) string {
	if projectScoped {
		return projectClaudeSettingsPath()
	}
	return claudeSettingsPath()
}

func hivehookExecutable() string {
	exe, err := os.Executable()
	if err != nil || strings.TrimSpace(exe) == "" {
		return hivehookCommandFallback
	}
	return exe
}

// buildHookCommand constructs the hook command string for settings.json.
// Subcommands are hardcoded string literals (not user input) so concatenation is safe.
func buildHookCommand(subcommand string) string {
	exe := hivehookExecutable()
	if exe == hivehookCommandFallback {
		return fmt.Sprintf("hivehook hook %s", subcommand)
	}
	// Quote the executable path so hook commands are robust with spaces.
	return fmt.Sprintf("%q hook %s", exe, subcommand)
}

func hookCommand(subcommand string, timeoutMS int) hookHandler {
	return hookHandler{Type: "command", Command: buildHookCommand(subcommand), Timeout: timeoutMS}
}

// hivehookHooks returns the hook registrations for settings.json.
// Cached via sync.Once since buildHookCommand resolves the executable path.
func hivehookHooks() map[string][]hookEntry {
	hivehookHooksOnce.Do(func() {
		hivehookHooksCache = buildHivehookHooks()
	})
	return hivehookHooksCache
}

func buildHivehookHooks() map[string][]hookEntry {
	return map[string][]hookEntry{
		"UserPromptSubmit": {{
			Matcher: "",
			Hooks: []hookHandler{
				hookCommand("restore-check", 3000),
				hookCommand("lesson-inject", 3000),
			},
		}},
		"PreToolUse": {
			{
				Matcher: writeToolMatcher,
				Hooks:   []hookHandler{hookCommand("file-claim", 3000)},
			},
			{
				Matcher: "Task",
				Hooks: []hookHandler{
					hookCommand("task-claim", 2000),
					hookCommand("trajectory --event start", 2000),
				},
			},
		},
		"PostToolUse": {
			{
				Matcher: "",
				Hooks:   []hookHandler{hookCommand("post-tool", 2000)},
			},
			{
				Matcher: writeToolMatcher,
				Hooks:   []hookHandler{hookCommand("file-release", 2000)},
			},
			{
				Matcher: "Task",
				Hooks:   []hookHandler{hookCommand("trajectory --event step", 2000)},
			},
		},
		"SubagentStop": {{
			Matcher: "",
			Hooks:   []hookHandler{hookCommand("task-release", 3000)},
		}},
		"Stop": {{
			Matcher: "",
			Hooks: []hookHandler{
				hookCommand("trajectory --event end", 3000),
				hookCommand("checkpoint", 5000),
				hookCommand("pattern-extract", 5000),
				hookCommand("stuck-detector", 3000),
			},
		}},
	}
}

func hivehookHookEventNames() []string {
	events := make([]string, 0, len(hivehookHooks()))
	for name := range hivehookHooks() {
		events = append(events, name)
	}
	sort.Strings(events)
	return events
}

// readSettings reads and parses a settings.json.
// Returns empty map if file doesn't exist.
func readSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path from known home dir or cwd
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return settings, nil
}

// writeSettings writes settings back with 2-space indent.
func writeSettings(path string, settings map[string]any) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func isHivehookHookCommand(command string) bool {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return false
	}
	parts := strings.Fields(cmd)
	if len(parts) < 3 {
		return false
	}

	execToken := strings.Trim(parts[0], "\"'")
	return filepath.Base(execToken) == "hivehook" && parts[1] == "hook"
}

func entryIsHivehook(entry map[string]any) bool {
	hooks, ok := entry["hooks"].([]any)
	if !ok {
		return false
	}
	for _, h := range hooks {
		hMap, ok := h.(map[string]any)
		if !ok {
			continue
		}
		cmd, _ := hMap["command"].(string)
		if isHivehookHookCommand(cmd) {
			return true
		}
	}
	return false
}

// installOutcome indicates what happened when upserting an event's entries.
type installOutcome int

const (
	hookInstalled installOutcome = iota
	hookUpdated
	hookSkipped
)

// upsertHookEntries replaces any existing hivehook entries for one event with
// the fresh set. Entries belonging to other tools are preserved.
func upsertHookEntries(existing []any, fresh []map[string]any) ([]any, installOutcome) {
	var kept []any
	var old []map[string]any

	for _, currentEntry := range existing {
		entryObj, ok := currentEntry.(map[string]any)
		if ok && entryIsHivehook(entryObj) {
			old = append(old, entryObj)
			continue // strip old hivehook entry; re-appended below
		}
		kept = append(kept, currentEntry)
	}

	for _, e := range fresh {
		kept = append(kept, e)
	}

	switch {
	case len(old) == 0:
		return kept, hookInstalled
	case entriesEqual(old, fresh):
		return kept, hookSkipped
	default:
		return kept, hookUpdated
	}
}

// entriesEqual compares parsed entry slices by JSON representation.
// Sufficient since both sides originate from JSON.
func entriesEqual(a, b []map[string]any) bool {
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	return string(aj) == string(bj)
}

func newHookInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install hivehook hooks into settings.json",
		Long: `Registers the hivehook hook handlers in ~/.claude/settings.json.
Idempotent — safe to run multiple times. Existing non-hivehook hooks are preserved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectScoped, _ := cmd.Flags().GetBool("project")
			path := resolveClaudeSettingsPath(projectScoped)

			settings, err := readSettings(path)
			if err != nil {
				return cmdErr(err)
			}

			hooksObj, _ := settings["hooks"].(map[string]any)
			if hooksObj == nil {
				hooksObj = map[string]any{}
			}

			var installed, updated, skipped []string
			for eventName, entries := range hivehookHooks() {
				existing, _ := hooksObj[eventName].([]any)

				fresh := make([]map[string]any, 0, len(entries))
				for _, entry := range entries {
					entryJSON, _ := json.Marshal(entry)
					var entryMap map[string]any
					_ = json.Unmarshal(entryJSON, &entryMap)
					fresh = append(fresh, entryMap)
				}

				merged, outcome := upsertHookEntries(existing, fresh)
				hooksObj[eventName] = merged

				switch outcome {
				case hookInstalled:
					installed = append(installed, eventName)
				case hookUpdated:
					updated = append(updated, eventName)
				case hookSkipped:
					skipped = append(skipped, eventName)
				}
			}

			settings["hooks"] = hooksObj
			if err := writeSettings(path, settings); err != nil {
				return cmdErr(err)
			}

			sort.Strings(installed)
			sort.Strings(updated)
			sort.Strings(skipped)

			type resp struct {
				Message   string   `json:"message"`
				Path      string   `json:"path"`
				Installed []string `json:"installed"`
				Updated   []string `json:"updated,omitempty"`
				Skipped   []string `json:"skipped"`
			}
			msg := "hivehook hooks already installed"
			if len(installed) > 0 || len(updated) > 0 {
				msg = fmt.Sprintf("hivehook hooks registered in %s", path)
			}
			return output.PrintSuccess(resp{
				Message:   msg,
				Path:      path,
				Installed: installed,
				Updated:   updated,
				Skipped:   skipped,
			})
		},
	}

	cmd.Flags().Bool("project", false, "Install into ./.claude/settings.json instead of ~/.claude/settings.json")
	return cmd
}

func newHookUninstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove hivehook hooks from settings.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectScoped, _ := cmd.Flags().GetBool("project")
			path := resolveClaudeSettingsPath(projectScoped)

			settings, err := readSettings(path)
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				Path    string   `json:"path"`
				Removed []string `json:"removed"`
			}

			hooksObj, _ := settings["hooks"].(map[string]any)
			if hooksObj == nil {
				return output.PrintSuccess(resp{Path: path, Removed: []string{}})
			}

			var removed []string
			for _, eventName := range hivehookHookEventNames() {
				entries, ok := hooksObj[eventName].([]any)
				if !ok {
					continue
				}

				var kept []any
				for _, entry := range entries {
					entryMap, ok := entry.(map[string]any)
					if ok && entryIsHivehook(entryMap) {
						continue
					}
					kept = append(kept, entry)
				}

				if len(kept) != len(entries) {
					removed = append(removed, eventName)
				}
				if len(kept) == 0 {
					delete(hooksObj, eventName)
				} else {
					hooksObj[eventName] = kept
				}
			}

			settings["hooks"] = hooksObj
			if err := writeSettings(path, settings); err != nil {
				return cmdErr(err)
			}

			sort.Strings(removed)
			return output.PrintSuccess(resp{Path: path, Removed: removed})
		},
	}

	cmd.Flags().Bool("project", false, "Uninstall from ./.claude/settings.json instead of ~/.claude/settings.json")
	return cmd
}
