// Package scratch manages per-session hot state under the metrics scratch
// directory. Scratch files belong to one session and are touched by one hook
// at a time, so no locking is needed; the shared store is the durable mirror.
package scratch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dotcommander/hivehook/internal/models"
)

// Well-known scratch file names.
const (
	trajectoryFile      = "active_trajectory.json"
	fileClaimsFile      = "active_file_claims.json"
	taskClaimsFile      = "active_task_claims.json"
	sessionStateFile    = "session_state.json"
	sessionIDFile       = "session_id"
	restoreNotifyFile   = "session_restore_notified.json"
	editCountsFile      = "file_edit_counts.json"
	sessionAnalysisFile = "session_analysis.json"
)

// restoreNotifyCap bounds the notified-session list so the file cannot grow
// without bound across long-lived hosts.
const restoreNotifyCap = 10

// Dir is a scratch directory handle.
type Dir struct {
	path string
}

// At returns a handle for path, creating the directory if needed.
func At(path string) Dir {
	_ = os.MkdirAll(path, 0o755)
	return Dir{path: path}
}

// Path returns the scratch directory path.
func (d Dir) Path() string { return d.path }

// File returns the absolute path of a named scratch file.
func (d Dir) File(name string) string { return filepath.Join(d.path, name) }

func (d Dir) readInto(name string, v any) bool {
	b, err := os.ReadFile(d.File(name)) //nolint:gosec // G304: name is a package constant
	if err != nil {
		return false
	}
	return json.Unmarshal(b, v) == nil
}

func (d Dir) write(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.WriteFile(d.File(name), b, 0o644); err != nil { //nolint:gosec // scratch files are non-sensitive
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (d Dir) remove(name string) {
	_ = os.Remove(d.File(name))
}

// --- active trajectory ---

// ActiveTrajectory returns the in-flight trajectory, if any.
func (d Dir) ActiveTrajectory() (models.Trajectory, bool) {
	var t models.Trajectory
	if !d.readInto(trajectoryFile, &t) || t.ID == "" {
		return models.Trajectory{}, false
	}
	return t, true
}

// SaveActiveTrajectory persists the in-flight trajectory.
func (d Dir) SaveActiveTrajectory(t models.Trajectory) error {
	return d.write(trajectoryFile, t)
}

// ClearActiveTrajectory removes the scratch trajectory.
func (d Dir) ClearActiveTrajectory() {
	d.remove(trajectoryFile)
}

// --- file claims ---

// FileClaim records one claim held by this session, keyed by path so the
// post-tool hook can release it even when the response omits file_path.
type FileClaim struct {
	IssueID   string `json:"issue_id"`
	Claimant  string `json:"claimant"`
	ClaimedAt string `json:"claimed_at"`
}

type fileClaimsDoc struct {
	Claims map[string]FileClaim `json:"claims"`
}

// FileClaims returns the session's active file claims keyed by absolute path.
func (d Dir) FileClaims() map[string]FileClaim {
	var doc fileClaimsDoc
	d.readInto(fileClaimsFile, &doc)
	if doc.Claims == nil {
		doc.Claims = map[string]FileClaim{}
	}
	return doc.Claims
}

// PutFileClaim records a granted file claim.
func (d Dir) PutFileClaim(path string, c FileClaim) error {
	claims := d.FileClaims()
	claims[path] = c
	return d.write(fileClaimsFile, fileClaimsDoc{Claims: claims})
}

// DropFileClaim removes a released file claim. No-op when absent.
func (d Dir) DropFileClaim(path string) error {
	claims := d.FileClaims()
	if _, ok := claims[path]; !ok {
		return nil
	}
	delete(claims, path)
	return d.write(fileClaimsFile, fileClaimsDoc{Claims: claims})
}

// --- task claims ---

// TaskClaim records one informational task claim held by this session.
type TaskClaim struct {
	IssueID     string `json:"issue_id"`
	Claimant    string `json:"claimant"`
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
	ClaimedAt   string `json:"claimed_at"`
}

type taskClaimsDoc struct {
	Claims []TaskClaim `json:"claims"`
}

// TaskClaims returns the session's active task claims.
func (d Dir) TaskClaims() []TaskClaim {
	var doc taskClaimsDoc
	d.readInto(taskClaimsFile, &doc)
	return doc.Claims
}

// AppendTaskClaim records a granted task claim.
func (d Dir) AppendTaskClaim(c TaskClaim) error {
	doc := taskClaimsDoc{Claims: append(d.TaskClaims(), c)}
	return d.write(taskClaimsFile, doc)
}

// ClearTaskClaims empties the task-claim list after release.
func (d Dir) ClearTaskClaims() error {
	return d.write(taskClaimsFile, taskClaimsDoc{Claims: []TaskClaim{}})
}

// --- session identity cache ---

type sessionState struct {
	SessionID string `json:"session_id"`
	CreatedAt string `json:"created_at"`
}

// CachedSessionID returns the session id cached for this scratch dir.
// Falls back to the bare session_id file other tooling writes.
func (d Dir) CachedSessionID() string {
	var st sessionState
	if d.readInto(sessionStateFile, &st) && st.SessionID != "" {
		return st.SessionID
	}
	if b, err := os.ReadFile(d.File(sessionIDFile)); err == nil {
		return strings.TrimSpace(string(b))
	}
	return ""
}

// CacheSessionID persists the session id in both formats.
func (d Dir) CacheSessionID(id, createdAt string) error {
	if err := d.write(sessionStateFile, sessionState{SessionID: id, CreatedAt: createdAt}); err != nil {
		return err
	}
	return os.WriteFile(d.File(sessionIDFile), []byte(id+"\n"), 0o644) //nolint:gosec // non-sensitive
}

// ClearSessionID removes the cached identity, used by the stuck detector at
// session stop so the next session derives a fresh id.
func (d Dir) ClearSessionID() {
	d.remove(sessionStateFile)
	d.remove(sessionIDFile)
}

// --- restore notifications ---

type restoreNotifyDoc struct {
	Notified []string `json:"notified"`
}

// RestoreNotified reports whether an interrupted-session notice was already
// emitted for sessionID.
func (d Dir) RestoreNotified(sessionID string) bool {
	var doc restoreNotifyDoc
	d.readInto(restoreNotifyFile, &doc)
	for _, id := range doc.Notified {
		if id == sessionID {
			return true
		}
	}
	return false
}

// MarkRestoreNotified records that the notice for sessionID was emitted,
// keeping only the most recent entries.
func (d Dir) MarkRestoreNotified(sessionID string) error {
	var doc restoreNotifyDoc
	d.readInto(restoreNotifyFile, &doc)
	doc.Notified = append(doc.Notified, sessionID)
	if len(doc.Notified) > restoreNotifyCap {
		doc.Notified = doc.Notified[len(doc.Notified)-restoreNotifyCap:]
	}
	return d.write(restoreNotifyFile, doc)
}

// --- learning inputs ---

// EditCounts returns per-file write-tool invocation counts for this session.
func (d Dir) EditCounts() map[string]int {
	counts := map[string]int{}
	d.readInto(editCountsFile, &counts)
	return counts
}

// BumpEditCount increments the edit counter for path and returns the new count.
func (d Dir) BumpEditCount(path string) (int, error) {
	counts := d.EditCounts()
	counts[path]++
	return counts[path], d.write(editCountsFile, counts)
}

// SessionAnalysis aggregates per-session tool statistics for the pattern
// extractor.
type SessionAnalysis struct {
	ToolCalls int     `json:"tool_calls"`
	Errors    int     `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

// Analysis returns the running session analysis.
func (d Dir) Analysis() SessionAnalysis {
	var a SessionAnalysis
	d.readInto(sessionAnalysisFile, &a)
	return a
}

// RecordToolCall updates the running analysis with one tool outcome.
func (d Dir) RecordToolCall(isError bool) (SessionAnalysis, error) {
	a := d.Analysis()
	a.ToolCalls++
	if isError {
		a.Errors++
	}
	a.ErrorRate = float64(a.Errors) / float64(a.ToolCalls)
	return a, d.write(sessionAnalysisFile, a)
}

// ClearSessionFiles removes the per-session learning and claim scratch after
// checkpoint, leaving cross-session files (restore notifications) alone.
func (d Dir) ClearSessionFiles() {
	d.remove(trajectoryFile)
	d.remove(fileClaimsFile)
	d.remove(taskClaimsFile)
	d.remove(editCountsFile)
	d.remove(sessionAnalysisFile)
}

// AppendLog appends one line to a named log file. Failures are ignored;
// logging never blocks a hook.
func (d Dir) AppendLog(name, line string) {
	f, err := os.OpenFile(d.File(name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // scratch log
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = f.WriteString(line + "\n")
}
