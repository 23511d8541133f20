package commands

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsHivehookHookCommand(t *testing.T) {
	require.True(t, isHivehookHookCommand("hivehook hook checkpoint"))
	require.True(t, isHivehookHookCommand("/usr/local/bin/hivehook hook file-claim"))
	require.True(t, isHivehookHookCommand(`"/Users/someone/go/bin/hivehook" hook restore-check`))
	require.True(t, isHivehookHookCommand("hivehook hook trajectory --event start"))

	require.False(t, isHivehookHookCommand(""))
	require.False(t, isHivehookHookCommand("hivehook status"))
	require.False(t, isHivehookHookCommand("echo hivehook hook checkpoint"))
	require.False(t, isHivehookHookCommand("/usr/local/bin/not-hivehook hook checkpoint"))
}

func TestEntryIsHivehook(t *testing.T) {
	require.False(t, entryIsHivehook(map[string]any{"hooks": "not-a-slice"}))
	require.False(t, entryIsHivehook(map[string]any{}))

	require.True(t, entryIsHivehook(map[string]any{
		"hooks": []any{
			map[string]any{"type": "command", "command": "hivehook hook checkpoint"},
		},
	}))
	require.False(t, entryIsHivehook(map[string]any{
		"hooks": []any{
			map[string]any{"type": "command", "command": "other-tool do-thing"},
		},
	}))
}

func TestHivehookHookEventNames_ContainsAllEvents(t *testing.T) {
	events := hivehookHookEventNames()
	expected := []string{
		"UserPromptSubmit",
		"PreToolUse",
		"PostToolUse",
		"SubagentStop",
		"Stop",
	}
	for _, e := range expected {
		require.Contains(t, events, e, "missing hook event: %s", e)
	}
	require.Len(t, events, len(expected), "unexpected number of hook events")
}

func TestBuildHivehookHooks_RegistersClaimAndTrajectoryHandlers(t *testing.T) {
	hooks := buildHivehookHooks()

	pre := hooks["PreToolUse"]
	require.Len(t, pre, 2)
	require.Equal(t, writeToolMatcher, pre[0].Matcher)
	require.Contains(t, pre[0].Hooks[0].Command, "hook file-claim")
	require.Equal(t, "Task", pre[1].Matcher)

	stop := hooks["Stop"]
	require.Len(t, stop, 1)
	var cmds []string
	for _, h := range stop[0].Hooks {
		cmds = append(cmds, h.Command)
	}
	require.Len(t, cmds, 4)
	require.Contains(t, cmds[0], "trajectory --event end")
	require.Contains(t, cmds[1], "hook checkpoint")
}

func entryFixture(command string, timeout float64) map[string]any {
	return map[string]any{
		"matcher": "",
		"hooks": []any{
			map[string]any{"type": "command", "command": command, "timeout": timeout},
		},
	}
}

func TestUpsertHookEntries(t *testing.T) {
	fresh := []map[string]any{entryFixture("hivehook hook checkpoint", 5000)}

	// Fresh install (nil existing)
	entries, outcome := upsertHookEntries(nil, fresh)
	require.Equal(t, hookInstalled, outcome)
	require.Len(t, entries, 1)

	// Skip (identical entries already present)
	entries, outcome = upsertHookEntries(entries, fresh)
	require.Equal(t, hookSkipped, outcome)
	require.Len(t, entries, 1)

	// Update (different timeout)
	updated := []map[string]any{entryFixture("hivehook hook checkpoint", 8000)}
	entries, outcome = upsertHookEntries(entries, updated)
	require.Equal(t, hookUpdated, outcome)
	require.Len(t, entries, 1)

	// Entries belonging to other tools are preserved.
	other := map[string]any{
		"hooks": []any{
			map[string]any{"type": "command", "command": "other-tool do-thing"},
		},
	}
	mixed := append([]any{other}, entries...)
	entries, outcome = upsertHookEntries(mixed, updated)
	require.Equal(t, hookSkipped, outcome)
	require.Len(t, entries, 2)
	require.Equal(t, other, entries[0])
}

func TestReadSettings_AndWriteSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	settings, err := readSettings(path)
	require.NoError(t, err)
	require.Empty(t, settings)

	input := map[string]any{"hooks": map[string]any{"Stop": []any{}}}
	require.NoError(t, writeSettings(path, input))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, b)
	require.Equal(t, byte('\n'), b[len(b)-1])

	loaded, err := readSettings(path)
	require.NoError(t, err)
	require.Contains(t, loaded, "hooks")
}

func TestReadSettings_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	settings, err := readSettings(path)
	require.Error(t, err)
	require.Nil(t, settings)
}

func TestUpsertHookEntries_FreshSurvivesJSONRoundTrip(t *testing.T) {
	// Install marshals hookEntry structs to generic maps before upserting;
	// the result must compare equal to what readSettings later parses.
	entry := hookEntry{
		Matcher: "",
		Hooks:   []hookHandler{{Type: "command", Command: "hivehook hook task-release", Timeout: 3000}},
	}
	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	fresh := []map[string]any{m}

	merged, outcome := upsertHookEntries(nil, fresh)
	require.Equal(t, hookInstalled, outcome)

	_, outcome = upsertHookEntries(merged, fresh)
	require.Equal(t, hookSkipped, outcome)
}
