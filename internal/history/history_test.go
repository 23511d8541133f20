package history

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/hivehook/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenPath(filepath.Join(t.TempDir(), "archive", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenPath_CreatesParentAndMigrates(t *testing.T) {
	db := openTestDB(t)

	// Migrations must have created all four tables.
	for _, table := range []string{"sessions", "trajectories", "trajectory_steps", "patterns"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}
}

func TestSaveSession_UpsertPreservesStartAndTask(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, SaveSession(db, models.SessionRecord{
		SessionID: "sess-1",
		Project:   "demo",
		StartedAt: "2026-08-24T10:00:00Z",
		Task:      "wire the parser",
	}))

	// A later checkpoint carries no start time or task; the original
	// values must survive the upsert.
	require.NoError(t, SaveSession(db, models.SessionRecord{
		SessionID:    "sess-1",
		Project:      "demo",
		LastActivity: "2026-08-24T10:05:00Z",
		EndedAt:      "2026-08-24T10:05:00Z",
		Completed:    true,
	}))

	var startedAt, task, endedAt string
	var completed int
	err := db.QueryRow(`SELECT started_at, task, ended_at, completed FROM sessions WHERE session_id = 'sess-1'`).
		Scan(&startedAt, &task, &endedAt, &completed)
	require.NoError(t, err)
	require.Equal(t, "2026-08-24T10:00:00Z", startedAt)
	require.Equal(t, "wire the parser", task)
	require.Equal(t, "2026-08-24T10:05:00Z", endedAt)
	require.Equal(t, 1, completed)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestSaveTrajectory_ResaveReplacesSteps(t *testing.T) {
	db := openTestDB(t)

	traj := models.Trajectory{
		ID:        "task-abcd1234-100000",
		Project:   "demo",
		SessionID: "sess-1",
		Task:      "refactor store",
		Status:    models.TrajectoryInProgress,
		StartedAt: "2026-08-24T10:00:00Z",
		Steps: []models.TrajectoryStep{
			{Action: "Edit", Success: true, Quality: 1.0, Timestamp: "2026-08-24T10:01:00Z"},
		},
	}
	require.NoError(t, SaveTrajectory(db, traj))

	traj.Status = models.TrajectoryCompleted
	traj.EndedAt = "2026-08-24T10:10:00Z"
	traj.Steps = append(traj.Steps,
		models.TrajectoryStep{Action: "Bash", Success: false, Quality: 0.5, Timestamp: "2026-08-24T10:02:00Z"},
		models.TrajectoryStep{Action: "Edit", Success: true, Quality: 1.0, Timestamp: "2026-08-24T10:03:00Z"},
	)
	traj.SuccessRate = traj.ComputeSuccessRate()
	require.NoError(t, SaveTrajectory(db, traj))

	var status string
	var totalSteps int
	var successRate float64
	err := db.QueryRow(`SELECT status, total_steps, success_rate FROM trajectories WHERE id = ?`, traj.ID).
		Scan(&status, &totalSteps, &successRate)
	require.NoError(t, err)
	require.Equal(t, "completed", status)
	require.Equal(t, 3, totalSteps)
	require.InDelta(t, 2.0/3.0, successRate, 0.001)

	// Steps are replaced wholesale, not appended.
	var stepRows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM trajectory_steps WHERE trajectory_id = ?`, traj.ID).Scan(&stepRows))
	require.Equal(t, 3, stepRows)

	var seq int
	var action string
	err = db.QueryRow(`SELECT seq, action FROM trajectory_steps WHERE trajectory_id = ? ORDER BY seq LIMIT 1`, traj.ID).
		Scan(&seq, &action)
	require.NoError(t, err)
	require.Equal(t, 0, seq)
	require.Equal(t, "Edit", action)
}

func TestSavePattern_KeepsHighestConfidence(t *testing.T) {
	db := openTestDB(t)

	p := models.Pattern{
		Text:       "High rework on parser files; read before editing",
		Type:       models.PatternHighRework,
		Confidence: 0.9,
		Project:    "demo",
		StoredAt:   "2026-08-24T10:00:00Z",
	}
	require.NoError(t, SavePattern(db, "fp-1", p))

	p.Confidence = 0.6
	p.StoredAt = "2026-08-24T11:00:00Z"
	require.NoError(t, SavePattern(db, "fp-1", p))

	var confidence float64
	var storedAt string
	err := db.QueryRow(`SELECT confidence, stored_at FROM patterns WHERE fingerprint = 'fp-1'`).
		Scan(&confidence, &storedAt)
	require.NoError(t, err)
	require.Equal(t, 0.9, confidence)
	require.Equal(t, "2026-08-24T11:00:00Z", storedAt)
}

func TestSearchPatterns_TokensFloorAndOrder(t *testing.T) {
	db := openTestDB(t)

	seed := []struct {
		fp string
		p  models.Pattern
	}{
		{"fp-a", models.Pattern{Text: "parser errors cluster in lexer.go", Type: models.PatternHighError, Confidence: 0.9, Project: "demo"}},
		{"fp-b", models.Pattern{Text: "parser rework is high after large edits", Type: models.PatternHighRework, Confidence: 0.7, Project: "demo"}},
		{"fp-c", models.Pattern{Text: "database writes slow under load", Type: models.PatternWorkflow, Confidence: 0.8, Project: "demo"}},
		{"fp-d", models.Pattern{Text: "parser confidence too low to inject", Type: models.PatternHighError, Confidence: 0.2, Project: "demo"}},
		{"fp-e", models.Pattern{Text: "parser pattern from another project", Type: models.PatternHighError, Confidence: 0.9, Project: "other"}},
		{"fp-f", models.Pattern{Text: "global parser lesson without a project", Type: models.PatternWorkflow, Confidence: 0.6}},
	}
	for _, s := range seed {
		require.NoError(t, SavePattern(db, s.fp, s.p))
	}

	got, err := SearchPatterns(db, "demo", "fix the parser", 0.5, 10)
	require.NoError(t, err)

	// Project-scoped plus project-less entries above the floor,
	// ordered by confidence descending.
	require.Len(t, got, 3)
	require.Equal(t, 0.9, got[0].Confidence)
	require.Equal(t, "parser rework is high after large edits", got[1].Text)
	require.Equal(t, "global parser lesson without a project", got[2].Text)
}

func TestSearchPatterns_EmptyQueryMatchesAll(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, SavePattern(db, "fp-1", models.Pattern{Text: "anything", Type: models.PatternWorkflow, Confidence: 0.9, Project: "demo"}))
	require.NoError(t, SavePattern(db, "fp-2", models.Pattern{Text: "below floor", Type: models.PatternWorkflow, Confidence: 0.3, Project: "demo"}))

	got, err := SearchPatterns(db, "demo", "", 0.5, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "anything", got[0].Text)
}

func TestSummarize_CountsAndRecentSessions(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, SaveSession(db, models.SessionRecord{
		SessionID: "sess-1", Project: "demo",
		StartedAt: "2026-08-24T09:00:00Z", EndedAt: "2026-08-24T09:30:00Z",
		Completed: true, Task: "first task",
	}))
	require.NoError(t, SaveSession(db, models.SessionRecord{
		SessionID: "sess-2", Project: "demo",
		StartedAt: "2026-08-24T10:00:00Z", EndedAt: "2026-08-24T10:30:00Z",
	}))
	require.NoError(t, SaveSession(db, models.SessionRecord{
		SessionID: "sess-3", Project: "other",
		StartedAt: "2026-08-24T11:00:00Z",
	}))

	require.NoError(t, SaveTrajectory(db, models.Trajectory{
		ID: "task-1111aaaa-090000", Project: "demo", Task: "a",
		Status: models.TrajectoryCompleted, SuccessRate: 1.0, StartedAt: "2026-08-24T09:00:00Z",
	}))
	require.NoError(t, SaveTrajectory(db, models.Trajectory{
		ID: "task-2222bbbb-100000", Project: "demo", Task: "b",
		Status: models.TrajectoryCompleted, SuccessRate: 0.5, StartedAt: "2026-08-24T10:00:00Z",
	}))

	require.NoError(t, SavePattern(db, "fp-1", models.Pattern{Text: "lesson", Type: models.PatternWorkflow, Confidence: 0.8, Project: "demo"}))

	s, err := Summarize(db, "demo")
	require.NoError(t, err)
	require.Equal(t, 2, s.Sessions)
	require.Equal(t, 2, s.Trajectories)
	require.InDelta(t, 0.75, s.AvgSuccessRate, 0.001)
	require.Equal(t, 1, s.Patterns)

	require.Len(t, s.RecentSessions, 2)
	require.Equal(t, "sess-2", s.RecentSessions[0].SessionID)
	require.Equal(t, "sess-1", s.RecentSessions[1].SessionID)
	require.True(t, s.RecentSessions[1].Completed)
	require.Equal(t, "first task", s.RecentSessions[1].Task)

	all, err := Summarize(db, "")
	require.NoError(t, err)
	require.Equal(t, 3, all.Sessions)
}
