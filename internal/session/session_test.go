package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/hivehook/internal/models"
	"github.com/dotcommander/hivehook/internal/scratch"
	"github.com/dotcommander/hivehook/internal/store"
	"github.com/dotcommander/hivehook/internal/trajectory"
)

func newDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		Store:     store.New(t.TempDir()),
		Scratch:   scratch.At(t.TempDir()),
		Project:   "demo",
		SessionID: "session-bbbb2222",
	}
}

func TestRestoreCheck_InterruptedSessionNotifiedExactlyOnce(t *testing.T) {
	d := newDeps(t)

	// A predecessor that died 10 minutes ago without checkpointing.
	stale := models.SessionRecord{
		SessionID: "session-aaaa1111",
		Project:   "demo",
		StartedAt: models.Timestamp(time.Now().Add(-10 * time.Minute)),
		Completed: false,
		Task:      "migrate the schema",
	}
	require.NoError(t, d.Store.Put("session:demo:last", stale, nil))

	notice := RestoreCheck(d)
	require.NotEmpty(t, notice)
	assert.Contains(t, notice, "Interrupted session detected")
	assert.Contains(t, notice, "migrate the schema")

	// Second consecutive prompt: alias was reset, nothing re-injected.
	assert.Empty(t, RestoreCheck(d))
}

func TestRestoreCheck_RecordWithoutSessionIDStillReported(t *testing.T) {
	d := newDeps(t)

	// Other store consumers write last-session records without a session_id;
	// an incomplete record is an interruption all the same.
	stale := models.SessionRecord{
		Project:   "demo",
		StartedAt: models.Timestamp(time.Now().Add(-10 * time.Minute)),
		Completed: false,
	}
	require.NoError(t, d.Store.Put("session:demo:last", stale, nil))

	notice := RestoreCheck(d)
	require.NotEmpty(t, notice)
	assert.Contains(t, notice, "Interrupted session detected")
	assert.Contains(t, notice, "unknown-session")

	// Still notified exactly once.
	assert.Empty(t, RestoreCheck(d))
}

func TestRestoreCheck_CompletedPredecessorIsQuiet(t *testing.T) {
	d := newDeps(t)
	done := models.SessionRecord{
		SessionID: "session-aaaa1111",
		Project:   "demo",
		StartedAt: models.Timestamp(time.Now().Add(-time.Hour)),
		Completed: true,
	}
	require.NoError(t, d.Store.Put("session:demo:last", done, nil))

	assert.Empty(t, RestoreCheck(d))
}

func TestRestoreCheck_YoungSessionWithinGraceWindow(t *testing.T) {
	d := newDeps(t)
	recent := models.SessionRecord{
		SessionID: "session-aaaa1111",
		Project:   "demo",
		StartedAt: models.Timestamp(time.Now().Add(-time.Minute)),
		Completed: false,
	}
	require.NoError(t, d.Store.Put("session:demo:last", recent, nil))

	assert.Empty(t, RestoreCheck(d))
}

func TestRestoreCheck_RegistersCurrentSession(t *testing.T) {
	d := newDeps(t)
	RestoreCheck(d)

	var rec models.SessionRecord
	require.NoError(t, d.Store.GetJSON("session:demo:session-bbbb2222", &rec))
	assert.False(t, rec.Completed)
	assert.NotEmpty(t, rec.StartedAt)

	var last models.SessionRecord
	require.NoError(t, d.Store.GetJSON("session:demo:last", &last))
	assert.Equal(t, "session-bbbb2222", last.SessionID)
}

func TestRestoreCheck_OwnSessionNeverReported(t *testing.T) {
	d := newDeps(t)
	own := models.SessionRecord{
		SessionID: d.SessionID,
		Project:   "demo",
		StartedAt: models.Timestamp(time.Now().Add(-time.Hour)),
		Completed: false,
	}
	require.NoError(t, d.Store.Put("session:demo:last", own, nil))

	assert.Empty(t, RestoreCheck(d))
}

func TestCheckpoint_WritesCompletedRecordAndAlias(t *testing.T) {
	d := newDeps(t)
	RestoreCheck(d) // register start

	rec, flushed := Checkpoint(d, "ship the feature")
	assert.Nil(t, flushed)
	assert.True(t, rec.Completed)
	assert.NotEmpty(t, rec.EndedAt)
	assert.NotEmpty(t, rec.StartedAt)

	var last models.SessionRecord
	require.NoError(t, d.Store.GetJSON("session:demo:last", &last))
	assert.True(t, last.Completed)
	assert.Equal(t, "ship the feature", last.Task)

	// Checkpointed session never reported as interrupted.
	assert.Empty(t, RestoreCheck(Deps{
		Store:     d.Store,
		Scratch:   d.Scratch,
		Project:   "demo",
		SessionID: "session-cccc3333",
	}))
}

func TestCheckpoint_FlushesUnclosedTrajectoryAsFailed(t *testing.T) {
	d := newDeps(t)

	td := trajectory.Deps(d)
	_, created := trajectory.Start(td, "half-done work")
	require.True(t, created)
	_, ok := trajectory.Step(td, "Edit", true, 1.0)
	require.True(t, ok)

	_, flushed := Checkpoint(d, "")
	require.NotNil(t, flushed)
	assert.Equal(t, models.TrajectoryFailed, flushed.Status)
	assert.InDelta(t, 1.0, flushed.SuccessRate, 1e-9)

	var stored models.Trajectory
	require.NoError(t, d.Store.GetJSON("trajectory:demo:"+flushed.ID, &stored))
	assert.Equal(t, models.TrajectoryFailed, stored.Status)
}
