package scratch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/hivehook/internal/models"
)

func TestActiveTrajectory_RoundTripAndClear(t *testing.T) {
	d := At(t.TempDir())

	_, ok := d.ActiveTrajectory()
	assert.False(t, ok)

	traj := models.Trajectory{
		ID:     "traj-abcd1234",
		Task:   "demo",
		Status: models.TrajectoryInProgress,
		Steps:  []models.TrajectoryStep{{Action: "Edit", Success: true, Quality: 1.0}},
	}
	require.NoError(t, d.SaveActiveTrajectory(traj))

	got, ok := d.ActiveTrajectory()
	require.True(t, ok)
	assert.Equal(t, "traj-abcd1234", got.ID)
	assert.Len(t, got.Steps, 1)

	d.ClearActiveTrajectory()
	_, ok = d.ActiveTrajectory()
	assert.False(t, ok)
}

func TestFileClaims_PutAndDrop(t *testing.T) {
	d := At(t.TempDir())

	require.NoError(t, d.PutFileClaim("/tmp/x.py", FileClaim{
		IssueID:  "file:/tmp/x.py",
		Claimant: "agent:session-aaaa1111:editor",
	}))

	claims := d.FileClaims()
	require.Contains(t, claims, "/tmp/x.py")
	assert.Equal(t, "file:/tmp/x.py", claims["/tmp/x.py"].IssueID)

	require.NoError(t, d.DropFileClaim("/tmp/x.py"))
	assert.Empty(t, d.FileClaims())

	// Dropping again is a no-op.
	require.NoError(t, d.DropFileClaim("/tmp/x.py"))
}

func TestTaskClaims_AppendAndClear(t *testing.T) {
	d := At(t.TempDir())

	require.NoError(t, d.AppendTaskClaim(TaskClaim{IssueID: "task:t1", TaskID: "t1"}))
	require.NoError(t, d.AppendTaskClaim(TaskClaim{IssueID: "task:t2", TaskID: "t2"}))
	assert.Len(t, d.TaskClaims(), 2)

	require.NoError(t, d.ClearTaskClaims())
	assert.Empty(t, d.TaskClaims())
}

func TestSessionIDCache(t *testing.T) {
	d := At(t.TempDir())
	assert.Empty(t, d.CachedSessionID())

	require.NoError(t, d.CacheSessionID("session-deadbeef", "2026-03-01T12:00:00Z"))
	assert.Equal(t, "session-deadbeef", d.CachedSessionID())

	d.ClearSessionID()
	assert.Empty(t, d.CachedSessionID())
}

func TestRestoreNotified_CapsHistory(t *testing.T) {
	d := At(t.TempDir())

	assert.False(t, d.RestoreNotified("session-0"))
	for i := 0; i < 15; i++ {
		require.NoError(t, d.MarkRestoreNotified(fmt.Sprintf("session-%d", i)))
	}

	// Oldest entries evicted, newest retained.
	assert.False(t, d.RestoreNotified("session-0"))
	assert.True(t, d.RestoreNotified("session-14"))
	assert.True(t, d.RestoreNotified("session-5"))
	assert.False(t, d.RestoreNotified("session-4"))
}

func TestEditCountsAndAnalysis(t *testing.T) {
	d := At(t.TempDir())

	n, err := d.BumpEditCount("/src/a.go")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = d.BumpEditCount("/src/a.go")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	a, err := d.RecordToolCall(false)
	require.NoError(t, err)
	a, err = d.RecordToolCall(true)
	require.NoError(t, err)
	assert.Equal(t, 2, a.ToolCalls)
	assert.Equal(t, 1, a.Errors)
	assert.InDelta(t, 0.5, a.ErrorRate, 1e-9)

	d.ClearSessionFiles()
	assert.Empty(t, d.EditCounts())
	assert.Zero(t, d.Analysis().ToolCalls)
}
