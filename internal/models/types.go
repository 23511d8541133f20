package models

import (
	"encoding/json"
	"time"
)

// ID Strategy:
// - KV entries are keyed by namespaced strings ("session:{project}:{id}").
// - Trajectory and task ids embed a short hash + time component so
//   independent sessions can generate them without coordination.
// - Session ids come from the host when available; otherwise a cached
//   "session-<8 hex>" value generated once per session.

// KVEntry is one record in the shared memory store. Field names match the
// wire format the orchestrator reads and writes.
type KVEntry struct {
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	StoredAt     string          `json:"storedAt"`
	AccessCount  int             `json:"accessCount"`
	LastAccessed string          `json:"lastAccessed"`
}

// ClaimStatus represents the lifecycle state of a claim.
type ClaimStatus string

// Claim status constants.
const (
	ClaimStatusActive    ClaimStatus = "active"
	ClaimStatusStealable ClaimStatus = "stealable"
	ClaimStatusCompleted ClaimStatus = "completed"
)

// Claim is an exclusive lock over a resource, keyed by issue id
// ("file:{abs_path}" or "task:{task_id}") in the shared claims store.
type Claim struct {
	Claimant          string      `json:"claimant"`
	Status            ClaimStatus `json:"status"`
	ClaimedAt         string      `json:"claimedAt"`
	Context           string      `json:"context,omitempty"`
	Progress          int         `json:"progress"`
	StealReason       string      `json:"stealReason,omitempty"`
	StealContext      string      `json:"stealContext,omitempty"`
	MarkedStealableAt string      `json:"markedStealableAt,omitempty"`
	AvailableFor      string      `json:"availableFor,omitempty"`
}

// SessionRecord is the value stored under session:{project}:{id} and the
// session:{project}:last alias.
type SessionRecord struct {
	SessionID    string          `json:"session_id"`
	Project      string          `json:"project"`
	CWD          string          `json:"cwd,omitempty"`
	StartedAt    string          `json:"started_at,omitempty"`
	LastActivity string          `json:"last_activity,omitempty"`
	EndedAt      string          `json:"ended_at,omitempty"`
	Completed    bool            `json:"completed"`
	Task         string          `json:"task,omitempty"`
	State        json.RawMessage `json:"state,omitempty"`
}

// TrajectoryStatus represents the lifecycle state of a trajectory.
type TrajectoryStatus string

// Trajectory status constants.
const (
	TrajectoryInProgress TrajectoryStatus = "in_progress"
	TrajectoryCompleted  TrajectoryStatus = "completed"
	TrajectoryFailed     TrajectoryStatus = "failed"
)

// TrajectoryStep is one recorded tool action within a trajectory.
type TrajectoryStep struct {
	Action    string  `json:"action"`
	Success   bool    `json:"success"`
	Quality   float64 `json:"quality"`
	Timestamp string  `json:"timestamp"`
}

// Trajectory is the ordered record of tool actions for one delegated task.
type Trajectory struct {
	ID          string           `json:"id"`
	Project     string           `json:"project"`
	SessionID   string           `json:"session_id,omitempty"`
	Task        string           `json:"task"`
	Status      TrajectoryStatus `json:"status"`
	Steps       []TrajectoryStep `json:"steps"`
	StartedAt   string           `json:"started_at"`
	EndedAt     string           `json:"ended_at,omitempty"`
	Success     bool             `json:"success"`
	SuccessRate float64          `json:"success_rate"`
	TotalSteps  int              `json:"total_steps"`
}

// ComputeSuccessRate returns successful steps / total steps.
// A trajectory with no steps counts as fully successful.
func (t *Trajectory) ComputeSuccessRate() float64 {
	if len(t.Steps) == 0 {
		return 1.0
	}
	ok := 0
	for _, s := range t.Steps {
		if s.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(t.Steps))
}

// TrajectoryIndexEntry is the compact summary kept in trajectory:{project}:index.
type TrajectoryIndexEntry struct {
	ID          string  `json:"id"`
	Task        string  `json:"task"`
	Success     bool    `json:"success"`
	Steps       int     `json:"steps"`
	SuccessRate float64 `json:"success_rate"`
	Timestamp   string  `json:"timestamp"`
}

// PatternType classifies an extracted lesson.
type PatternType string

// Pattern type constants.
const (
	PatternHighRework  PatternType = "high_rework"
	PatternHighError   PatternType = "high_error"
	PatternQualityDrop PatternType = "quality_drop"
	PatternWorkflow    PatternType = "workflow"
)

// Pattern is a lesson mined from session statistics, stored under
// pattern:{fingerprint} and retrievable by project + free-text query.
type Pattern struct {
	Text       string         `json:"pattern"`
	Type       PatternType    `json:"type"`
	Confidence float64        `json:"confidence"`
	Project    string         `json:"project,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	StoredAt   string         `json:"stored_at,omitempty"`
}

// Confidence bands for lesson injection.
const (
	ConfidenceHigh   = 0.8
	ConfidenceMedium = 0.5
)

// Band returns "high", "medium", or "low" for injection formatting.
func (p Pattern) Band() string {
	switch {
	case p.Confidence >= ConfidenceHigh:
		return "high"
	case p.Confidence >= ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// ClampConfidence bounds a confidence value to [0, 1].
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Timestamp returns the canonical wall-clock string used across the stores.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp parses a store timestamp, tolerating the second-precision
// variants other writers produce. Returns the zero time on failure.
func ParseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
