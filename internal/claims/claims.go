// Package claims coordinates file-level mutual exclusion and informational
// task locks across concurrent sessions. File claims operate directly on the
// shared claims store; the orchestrator gateway is only touched off the
// synchronous path (release broadcasts).
package claims

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dotcommander/hivehook/internal/identity"
	"github.com/dotcommander/hivehook/internal/models"
	"github.com/dotcommander/hivehook/internal/scratch"
	"github.com/dotcommander/hivehook/internal/store"
)

// StealReasonTimeout marks claims abandoned by a stopped session.
const StealReasonTimeout = "blocked-timeout"

// Deps carries the resolved environment a claim operation runs in.
type Deps struct {
	Store     *store.FileStore
	Scratch   scratch.Dir
	Project   string
	SessionID string
	Now       func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// FileIssueID builds the claim id for a file path, normalized to absolute
// form so two spellings of the same path contend for the same claim.
func FileIssueID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file:" + filepath.Clean(abs)
}

// TaskIssueID builds the claim id for a task id.
func TaskIssueID(taskID string) string {
	return "task:" + taskID
}

// NewTaskID derives a task id from its description and claim time.
func NewTaskID(description string, now time.Time) string {
	sum := sha256.Sum256([]byte(description))
	return fmt.Sprintf("task-%s-%s", hex.EncodeToString(sum[:])[:8], now.UTC().Format("150405"))
}

// FileClaimOutcome reports a file claim attempt for the pre-tool hook.
type FileClaimOutcome struct {
	Granted bool
	Stolen  bool
	// Holder is the blocking claimant on conflict.
	Holder string
	// StealContext is the prior holder's context when the claim was stolen.
	StealContext string
}

// ClaimFile attempts the exclusive file claim for this session's editor role
// and mirrors a grant into the session scratch so release can find it later.
func ClaimFile(d Deps, path string) (FileClaimOutcome, error) {
	issueID := FileIssueID(path)
	claimant := identity.Claimant(d.SessionID, "editor")

	res, err := d.Store.Claim(issueID, claimant, "editing "+filepath.Base(path))
	if err != nil {
		return FileClaimOutcome{}, err
	}
	if !res.Granted {
		return FileClaimOutcome{Holder: res.Holder.Claimant}, nil
	}

	out := FileClaimOutcome{Granted: true, Stolen: res.Stolen}
	if res.Stolen && res.Holder != nil {
		out.StealContext = res.Holder.StealContext
	}
	_ = d.Scratch.PutFileClaim(path, scratch.FileClaim{
		IssueID:   issueID,
		Claimant:  claimant,
		ClaimedAt: models.Timestamp(d.now()),
	})
	return out, nil
}

// ReleaseFile releases this session's claim on path and drops the scratch
// mirror. Returns the released issue id, or "" when nothing was held.
func ReleaseFile(d Deps, path string) (string, error) {
	issueID := FileIssueID(path)
	claimant := identity.Claimant(d.SessionID, "editor")

	_, err := d.Store.Release(issueID, claimant)
	_ = d.Scratch.DropFileClaim(path)
	if err != nil {
		return "", err
	}
	return issueID, nil
}

// ClaimTask takes the informational task claim for description. Conflicts
// never block: the outcome is recorded and the hook stays silent either way.
func ClaimTask(d Deps, description string) (scratch.TaskClaim, bool, error) {
	now := d.now()
	taskID := NewTaskID(description, now)
	issueID := TaskIssueID(taskID)
	claimant := identity.Claimant(d.SessionID, "task")

	res, err := d.Store.Claim(issueID, claimant, truncate(description, 200))
	if err != nil {
		return scratch.TaskClaim{}, false, err
	}
	if !res.Granted {
		return scratch.TaskClaim{}, false, nil
	}

	tc := scratch.TaskClaim{
		IssueID:     issueID,
		Claimant:    claimant,
		TaskID:      taskID,
		Description: truncate(description, 200),
		ClaimedAt:   models.Timestamp(now),
	}
	_ = d.Scratch.AppendTaskClaim(tc)
	return tc, true, nil
}

// ReleaseTasks releases every task claim this session holds and clears the
// scratch list. Returns the released claims for broadcast.
func ReleaseTasks(d Deps) []scratch.TaskClaim {
	held := d.Scratch.TaskClaims()
	released := make([]scratch.TaskClaim, 0, len(held))
	for _, tc := range held {
		if tc.IssueID == "" || tc.Claimant == "" {
			continue
		}
		if _, err := d.Store.Release(tc.IssueID, tc.Claimant); err != nil {
			continue
		}
		released = append(released, tc)
	}
	_ = d.Scratch.ClearTaskClaims()
	return released
}

// DetectStuck moves every claim held by this session to stealable with
// StealReasonTimeout and clears the session's claim scratch and cached
// identity. Returns the moved issue ids.
func DetectStuck(d Deps) []string {
	moved, err := d.Store.MarkSessionStealable(d.SessionID, StealReasonTimeout)
	if err != nil {
		return nil
	}
	_ = d.Scratch.ClearTaskClaims()
	for path := range d.Scratch.FileClaims() {
		_ = d.Scratch.DropFileClaim(path)
	}
	d.Scratch.ClearSessionID()
	return moved
}

func truncate(raw string, max int) string {
	runes := []rune(raw)
	if len(runes) <= max {
		return raw
	}
	return string(runes[:max])
}
