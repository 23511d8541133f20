package history

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dotcommander/hivehook/internal/models"
)

// The history archive is a best-effort local mirror of the shared JSON
// store. Coordination state never depends on it; losing a write here loses
// nothing but query convenience.

// SaveSession upserts a session row.
func SaveSession(db *sql.DB, rec models.SessionRecord) error {
	return RetryWithBackoff(func() error {
		_, err := db.Exec(`
			INSERT INTO sessions (session_id, project, started_at, last_activity, ended_at, completed, task)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				project = excluded.project,
				started_at = COALESCE(NULLIF(excluded.started_at, ''), sessions.started_at),
				last_activity = excluded.last_activity,
				ended_at = excluded.ended_at,
				completed = excluded.completed,
				task = COALESCE(NULLIF(excluded.task, ''), sessions.task)
		`, rec.SessionID, rec.Project, rec.StartedAt, rec.LastActivity, rec.EndedAt, boolToInt(rec.Completed), rec.Task)
		return err
	})
}

// SaveTrajectory upserts a trajectory row and replaces its steps.
func SaveTrajectory(db *sql.DB, t models.Trajectory) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO trajectories (id, project, session_id, task, status, success_rate, total_steps, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				success_rate = excluded.success_rate,
				total_steps = excluded.total_steps,
				ended_at = excluded.ended_at
		`, t.ID, t.Project, t.SessionID, t.Task, string(t.Status), t.SuccessRate, len(t.Steps), t.StartedAt, t.EndedAt)
		if err != nil {
			return fmt.Errorf("upsert trajectory %s: %w", t.ID, err)
		}

		if _, err := tx.Exec(`DELETE FROM trajectory_steps WHERE trajectory_id = ?`, t.ID); err != nil {
			return fmt.Errorf("clear steps for %s: %w", t.ID, err)
		}
		for i, s := range t.Steps {
			_, err := tx.Exec(`
				INSERT INTO trajectory_steps (trajectory_id, seq, action, success, quality, ts)
				VALUES (?, ?, ?, ?, ?, ?)
			`, t.ID, i, s.Action, boolToInt(s.Success), s.Quality, s.Timestamp)
			if err != nil {
				return fmt.Errorf("insert step %d for %s: %w", i, t.ID, err)
			}
		}
		return nil
	})
}

// SavePattern upserts an extracted pattern keyed by fingerprint.
func SavePattern(db *sql.DB, fingerprint string, p models.Pattern) error {
	return RetryWithBackoff(func() error {
		_, err := db.Exec(`
			INSERT INTO patterns (fingerprint, project, type, pattern, confidence, stored_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(fingerprint) DO UPDATE SET
				confidence = MAX(patterns.confidence, excluded.confidence),
				stored_at = excluded.stored_at
		`, fingerprint, p.Project, string(p.Type), p.Text, p.Confidence, p.StoredAt)
		return err
	})
}

// SearchPatterns returns patterns for project whose text matches any query
// token, confidence >= minConfidence, ordered by confidence descending.
// An empty query matches everything above the floor.
func SearchPatterns(db *sql.DB, project, query string, minConfidence float64, limit int) ([]models.Pattern, error) {
	clauses := []string{"confidence >= ?", "(project = ? OR project = '' OR project IS NULL)"}
	args := []any{minConfidence, project}

	tokens := searchTokens(query)
	if len(tokens) > 0 {
		likes := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			likes = append(likes, "pattern LIKE ?")
			args = append(args, "%"+tok+"%")
		}
		clauses = append(clauses, "("+strings.Join(likes, " OR ")+")")
	}

	args = append(args, limit)
	rows, err := db.Query(`
		SELECT pattern, type, confidence, COALESCE(project, ''), COALESCE(stored_at, '')
		FROM patterns
		WHERE `+strings.Join(clauses, " AND ")+`
		ORDER BY confidence DESC, stored_at DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("search patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Pattern
	for rows.Next() {
		var p models.Pattern
		var typ string
		if err := rows.Scan(&p.Text, &typ, &p.Confidence, &p.Project, &p.StoredAt); err != nil {
			return nil, err
		}
		p.Type = models.PatternType(typ)
		out = append(out, p)
	}
	return out, rows.Err()
}

// searchTokens splits a free-text query into lowercase match tokens,
// dropping anything shorter than 3 runes.
func searchTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if len([]rune(f)) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

// Summary aggregates archive contents for the status command.
type Summary struct {
	Sessions       int              `json:"sessions"`
	Trajectories   int              `json:"trajectories"`
	AvgSuccessRate float64          `json:"avg_success_rate"`
	Patterns       int              `json:"patterns"`
	RecentSessions []SessionSummary `json:"recent_sessions"`
}

// SessionSummary is one row of the status command's recent-session list.
type SessionSummary struct {
	SessionID string `json:"session_id"`
	Project   string `json:"project"`
	EndedAt   string `json:"ended_at"`
	Completed bool   `json:"completed"`
	Task      string `json:"task,omitempty"`
}

// Summarize reads the archive aggregates.
func Summarize(db *sql.DB, project string) (Summary, error) {
	var s Summary
	projectClause := ""
	var args []any
	if project != "" {
		projectClause = " WHERE project = ?"
		args = append(args, project)
	}

	if err := db.QueryRow(`SELECT COUNT(*) FROM sessions`+projectClause, args...).Scan(&s.Sessions); err != nil {
		return s, err
	}
	if err := db.QueryRow(`SELECT COUNT(*), COALESCE(AVG(success_rate), 0) FROM trajectories`+projectClause, args...).Scan(&s.Trajectories, &s.AvgSuccessRate); err != nil {
		return s, err
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM patterns`+projectClause, args...).Scan(&s.Patterns); err != nil {
		return s, err
	}

	rows, err := db.Query(`
		SELECT session_id, project, COALESCE(ended_at, ''), completed, COALESCE(task, '')
		FROM sessions`+projectClause+`
		ORDER BY COALESCE(ended_at, started_at) DESC
		LIMIT 5
	`, args...)
	if err != nil {
		return s, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var row SessionSummary
		var completed int
		if err := rows.Scan(&row.SessionID, &row.Project, &row.EndedAt, &completed, &row.Task); err != nil {
			return s, err
		}
		row.Completed = completed != 0
		s.RecentSessions = append(s.RecentSessions, row)
	}
	return s, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
