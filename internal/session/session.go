// Package session implements the checkpoint writer and the interrupted
// session detector.
package session

import (
	"fmt"
	"time"

	"github.com/dotcommander/hivehook/internal/models"
	"github.com/dotcommander/hivehook/internal/scratch"
	"github.com/dotcommander/hivehook/internal/store"
	"github.com/dotcommander/hivehook/internal/trajectory"
)

// GraceWindow is the minimum age a non-completed session must have before
// restore-check treats it as interrupted. Chosen to avoid false positives
// during rapid restart loops.
const GraceWindow = 5 * time.Minute

// Deps carries the resolved environment a session operation runs in.
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

func sessionKey(project, id string) string {
	return fmt.Sprintf("session:%s:%s", project, id)
}

func lastKey(project string) string {
	return fmt.Sprintf("session:%s:last", project)
}

// Checkpoint finalizes the current session: any unclosed trajectory is
// flushed as failed with its partial success rate, then the session record
// is written under both its own key and the :last alias with completed=true.
// Returns the final record and the flushed trajectory, if there was one.
func Checkpoint(d Deps, task string) (models.SessionRecord, *models.Trajectory) {
	var flushed *models.Trajectory
	if t, ok := trajectory.Abort(trajectory.Deps(d)); ok {
		flushed = &t
	}

	now := models.Timestamp(d.now())
	rec := models.SessionRecord{
		SessionID:    d.SessionID,
		Project:      d.Project,
		LastActivity: now,
		EndedAt:      now,
		Completed:    true,
		Task:         task,
	}

	// Preserve the start time registered at the first prompt.
	var prior models.SessionRecord
	if err := d.Store.GetJSON(sessionKey(d.Project, d.SessionID), &prior); err == nil {
		rec.StartedAt = prior.StartedAt
		if rec.Task == "" {
			rec.Task = prior.Task
		}
	}
	if rec.StartedAt == "" {
		rec.StartedAt = now
	}

	_ = d.Store.Put(sessionKey(d.Project, d.SessionID), rec, nil)
	_ = d.Store.Put(lastKey(d.Project), rec, nil)
	return rec, flushed
}

// RestoreCheck inspects the :last alias for an interrupted predecessor and
// registers the current session so a later crash is detectable.
// Returns the recovery notice to inject, or "" for the no-op case.
// The notice for a given session is emitted exactly once: after emission the
// alias is rewritten with completed=true and the session id is recorded in
// the notified list.
func RestoreCheck(d Deps) string {
	notice := ""

	var last models.SessionRecord
	err := d.Store.GetJSON(lastKey(d.Project), &last)
	if err == nil && interrupted(d, last) {
		notice = formatNotice(last)
		_ = d.Scratch.MarkRestoreNotified(notifyID(last))

		// Alias reset so a second consecutive prompt does not re-inject.
		last.Completed = true
		_ = d.Store.Put(lastKey(d.Project), last, nil)
	}

	registerCurrent(d)
	return notice
}

func interrupted(d Deps, last models.SessionRecord) bool {
	// Records written by other store consumers may lack a session_id; an
	// incomplete record is still an interruption.
	if last.Completed || (last.SessionID != "" && last.SessionID == d.SessionID) {
		return false
	}
	started := models.ParseTimestamp(last.StartedAt)
	if started.IsZero() || d.now().Sub(started) < GraceWindow {
		return false
	}
	return !d.Scratch.RestoreNotified(notifyID(last))
}

// notifyID keys the notified-once ledger; id-less records share a placeholder.
func notifyID(last models.SessionRecord) string {
	if last.SessionID == "" {
		return "unknown-session"
	}
	return last.SessionID
}

func formatNotice(last models.SessionRecord) string {
	task := last.Task
	if task == "" {
		task = "unknown task"
	}
	return fmt.Sprintf(
		"[Interrupted session detected: %s] The previous session (%s) did not complete. "+
			"Consider reviewing recent changes and resuming where it left off.",
		task, notifyID(last))
}

// registerCurrent upserts the in-progress record for this session so the
// next restore-check can tell a crash from a clean stop.
func registerCurrent(d Deps) {
	now := models.Timestamp(d.now())

	var rec models.SessionRecord
	if err := d.Store.GetJSON(sessionKey(d.Project, d.SessionID), &rec); err != nil || rec.SessionID == "" {
		rec = models.SessionRecord{
			SessionID: d.SessionID,
			Project:   d.Project,
			StartedAt: now,
		}
	}
	rec.Completed = false
	rec.EndedAt = ""
	rec.LastActivity = now

	_ = d.Store.Put(sessionKey(d.Project, d.SessionID), rec, nil)
	_ = d.Store.Put(lastKey(d.Project), rec, nil)
}
