// Package gateway is the only module that knows subprocess semantics for the
// external orchestrator CLI. Everything else programs against its Result
// type; callers decide whether a failure falls back to the file store.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dotcommander/hivehook/internal/models"
)

const disableGatewayEnv = "HIVEHOOK_DISABLE_GATEWAY"

// Timeouts for gateway invocations. DefaultTimeout applies when the caller
// passes zero; MaxTimeout is the hard ceiling regardless of caller intent.
const (
	DefaultTimeout = 10 * time.Second
	MaxTimeout     = 30 * time.Second
)

// stderrCap bounds captured stderr so a noisy CLI cannot balloon hook memory.
const stderrCap = 4096

// FailureKind classifies why a gateway call produced no usable result.
type FailureKind string

// Failure kinds.
const (
	FailureNone         FailureKind = ""
	FailureNotInstalled FailureKind = "not_installed"
	FailureTimeout      FailureKind = "timeout"
	FailureNonzeroExit  FailureKind = "nonzero_exit"
	FailureInvalidJSON  FailureKind = "invalid_json"
	FailureDisabled     FailureKind = "disabled"
)

// Result is the outcome of one orchestrator invocation. Parsed is nil when
// stdout was not a JSON object; callers fall back to the raw strings.
type Result struct {
	Success bool            `json:"success"`
	Stdout  string          `json:"stdout"`
	Stderr  string          `json:"stderr"`
	Parsed  json.RawMessage `json:"parsed,omitempty"`
	Failure FailureKind     `json:"failure,omitempty"`
}

// Runner invokes the orchestrator CLI.
type Runner struct {
	command string
}

// New returns a Runner for the given command. Returns models.ErrGatewayDisabled
// when the kill switch is set, or a wrapped lookup error when the binary is
// absent from PATH.
func New(command string) (*Runner, error) {
	if strings.TrimSpace(os.Getenv(disableGatewayEnv)) != "" {
		return nil, fmt.Errorf("orchestrator gateway disabled by %s: %w", disableGatewayEnv, models.ErrGatewayDisabled)
	}
	if _, err := exec.LookPath(command); err != nil {
		return nil, fmt.Errorf("orchestrator %q not found in PATH: %w", command, err)
	}
	return &Runner{command: command}, nil
}

// Command returns the CLI command name for this runner.
func (r *Runner) Command() string { return r.command }

// limitedWriter caps writes at maxBytes, silently discarding overflow.
// This prevents OOM from buggy CLIs emitting unbounded stderr.
type limitedWriter struct {
	buf      bytes.Buffer
	maxBytes int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	originalLen := len(p)
	remaining := w.maxBytes - w.buf.Len()
	if remaining <= 0 {
		return originalLen, nil // discard but report success
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	w.buf.Write(p)
	return originalLen, nil // always report original len to avoid short write errors
}

// Run invokes the orchestrator with args and optional stdin payload, bounded
// by timeout (clamped to [0, MaxTimeout], defaulting to DefaultTimeout).
// Failures are reported in the Result, never as an error: the error return
// covers only programmer mistakes before exec.
func (r *Runner) Run(ctx context.Context, args []string, stdin []byte, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.command, args...) //nolint:gosec // G204: command resolved from trusted settings
	cmd.Env = os.Environ()
	if len(stdin) > 0 {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout bytes.Buffer
	stderrW := &limitedWriter{maxBytes: stderrCap}
	cmd.Stdout = &stdout
	cmd.Stderr = stderrW
	// Orchestrator CLIs spawn children that inherit the output pipes. Without
	// a wait delay, Run would block past the deadline until every grandchild
	// closes its copy of the descriptors.
	cmd.WaitDelay = 100 * time.Millisecond

	err := cmd.Run()

	res := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderrW.buf.String()),
	}
	if stderrW.buf.Len() >= stderrCap {
		res.Stderr += " (truncated)"
	}

	switch {
	case err == nil:
		res.Success = true
	case errors.Is(err, exec.ErrWaitDelay):
		// The process itself exited cleanly; only a lingering pipe holder
		// (a detached grandchild) was abandoned.
		res.Success = true
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Failure = FailureTimeout
	default:
		res.Failure = FailureNonzeroExit
	}

	// Parse best-effort; raw strings remain available either way.
	if trimmed := res.Stdout; trimmed != "" && (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) {
		if json.Valid([]byte(trimmed)) {
			res.Parsed = json.RawMessage(trimmed)
		} else if res.Success {
			res.Failure = FailureInvalidJSON
		}
	}
	return res
}

// Detach starts the orchestrator released from the hook process for
// fire-and-forget notifications that may outlive the hook. Output is
// discarded; start errors are returned for logging only.
func (r *Runner) Detach(args []string) error {
	cmd := exec.Command(r.command, args...) //nolint:gosec // G204: command resolved from trusted settings
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("detach %s: %w", r.command, err)
	}
	// Reap in the background so the child never zombies while the hook lives.
	go func() { _ = cmd.Wait() }()
	return nil
}

// Classify maps a construction error from New to its failure kind.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, models.ErrGatewayDisabled):
		return FailureDisabled
	default:
		return FailureNotInstalled
	}
}
