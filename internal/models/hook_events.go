package models

// Hook event names delivered in the "hook_event_name" stdin field.
// These match the agent runtime's lifecycle events; the constants exist
// only to avoid typos at call sites.
const (
	HookEventSessionStart     = "SessionStart"
	HookEventUserPromptSubmit = "UserPromptSubmit"
	HookEventPreToolUse       = "PreToolUse"
	HookEventPostToolUse      = "PostToolUse"
	HookEventStop             = "Stop"
	HookEventSubagentStop     = "SubagentStop"
	HookEventPreCompact       = "PreCompact"
)

// Write-class tools mutate files and therefore participate in file claims
// and rework counting. Task is the delegation tool that opens a trajectory.
const (
	ToolWrite        = "Write"
	ToolEdit         = "Edit"
	ToolMultiEdit    = "MultiEdit"
	ToolNotebookEdit = "NotebookEdit"
	ToolTask         = "Task"
)

// IsWriteTool reports whether a tool name belongs to the write class.
func IsWriteTool(name string) bool {
	switch name {
	case ToolWrite, ToolEdit, ToolMultiEdit, ToolNotebookEdit:
		return true
	}
	return false
}
