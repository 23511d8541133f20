package output

import (
	"encoding/json"
	"io"
	"os"
)

// Response represents a standard JSON response for CLI commands.
type Response struct {
	SchemaVersion string      `json:"schema_version"`
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// Success wraps a successful response with data
func Success(data interface{}) Response {
	return Response{
		SchemaVersion: "v1",
		Success:       true,
		Data:          data,
	}
}

// Error wraps an error in a response
func Error(err error) Response {
	return Response{
		SchemaVersion: "v1",
		Success:       false,
		Error:         err.Error(),
	}
}

// Print prints a value as JSON to stdout
func Print(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	// Default to compact JSON to minimize token/output size for agent consumption.
	// Enable pretty JSON for humans via env var: HIVEHOOK_PRETTY_JSON=1.
	if os.Getenv("HIVEHOOK_PRETTY_JSON") == "1" || os.Getenv("HIVEHOOK_PRETTY_JSON") == "true" {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// PrintSuccess prints a success response
func PrintSuccess(data interface{}) error {
	return Print(Success(data))
}

// PrintError prints an error response
func PrintError(err error) error {
	return Print(Error(err))
}

// HookResponse is the JSON object a hook writes to stdout for the host.
// The zero value serializes as {} — the universal no-op.
type HookResponse struct {
	Decision           string         `json:"decision,omitempty"`
	Reason             string         `json:"reason,omitempty"`
	Message            string         `json:"message,omitempty"`
	AdditionalContext  string         `json:"additionalContext,omitempty"`
	HookSpecificOutput map[string]any `json:"hookSpecificOutput,omitempty"`
}

// Block builds the deliberate refusal response for the file-claim gate.
func Block(reason string) HookResponse {
	return HookResponse{Decision: "block", Reason: reason}
}

// Context builds an additionalContext-only response.
func Context(text string) HookResponse {
	return HookResponse{AdditionalContext: text}
}

// EmitHook writes a hook response to w as a single compact JSON object.
// The hook protocol reserves stdout, so nothing else may write there.
func EmitHook(w io.Writer, resp HookResponse) error {
	return json.NewEncoder(w).Encode(resp)
}

// EmitNoOp writes the empty object, the fail-open default.
func EmitNoOp(w io.Writer) error {
	return EmitHook(w, HookResponse{})
}
