// Package trajectory records the ordered tool actions of one delegated task.
// The scratch file is the source of truth while the trajectory is open; the
// shared store receives it on finalization.
package trajectory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dotcommander/hivehook/internal/models"
	"github.com/dotcommander/hivehook/internal/scratch"
	"github.com/dotcommander/hivehook/internal/store"
)

// indexCap bounds trajectory:{project}:index; oldest entries fall off.
const indexCap = 100

// taskPreviewLen bounds the task text stored in trajectory records.
const taskPreviewLen = 200

// indexTaskLen bounds the task text kept in index summaries.
const indexTaskLen = 100

// Deps carries the resolved environment a trajectory operation runs in.
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

func activeKey(project string) string {
	return fmt.Sprintf("trajectory:%s:active", project)
}

func indexKey(project string) string {
	return fmt.Sprintf("trajectory:%s:index", project)
}

func trajectoryKey(project, id string) string {
	return fmt.Sprintf("trajectory:%s:%s", project, id)
}

// NewID derives a trajectory id from the task text and start time, matching
// the hash-plus-timestamp wire format other store consumers parse.
func NewID(task string, now time.Time) string {
	sum := sha256.Sum256([]byte(task))
	return fmt.Sprintf("traj-%s-%s", hex.EncodeToString(sum[:])[:8], now.UTC().Format("150405"))
}

// Start opens a trajectory for task unless one is already active for this
// session. Returns the trajectory and whether a new one was created.
func Start(d Deps, task string) (models.Trajectory, bool) {
	if existing, ok := d.Scratch.ActiveTrajectory(); ok {
		return existing, false
	}

	t := models.Trajectory{
		ID:        NewID(task, d.now()),
		Project:   d.Project,
		SessionID: d.SessionID,
		Task:      truncate(task, taskPreviewLen),
		Status:    models.TrajectoryInProgress,
		Steps:     []models.TrajectoryStep{},
		StartedAt: models.Timestamp(d.now()),
	}
	if err := d.Scratch.SaveActiveTrajectory(t); err != nil {
		return models.Trajectory{}, false
	}
	_ = d.Store.Put(activeKey(d.Project), t, nil)
	return t, true
}

// Step appends one tool action to the active trajectory.
// Returns false when no trajectory is open.
func Step(d Deps, action string, success bool, quality float64) (models.Trajectory, bool) {
	t, ok := d.Scratch.ActiveTrajectory()
	if !ok {
		return models.Trajectory{}, false
	}
	if quality < 0 {
		quality = 0
	}
	if quality > 1 {
		quality = 1
	}
	t.Steps = append(t.Steps, models.TrajectoryStep{
		Action:    action,
		Success:   success,
		Quality:   quality,
		Timestamp: models.Timestamp(d.now()),
	})
	if err := d.Scratch.SaveActiveTrajectory(t); err != nil {
		return models.Trajectory{}, false
	}
	return t, true
}

// End finalizes the active trajectory as completed: success rate recomputed
// from the steps, record stored, index summary prepended, scratch cleared.
func End(d Deps) (models.Trajectory, bool) {
	return finalize(d, models.TrajectoryCompleted)
}

// Abort finalizes an unclosed trajectory as failed with its partial success
// rate. Used by the checkpoint when a session stops mid-task.
func Abort(d Deps) (models.Trajectory, bool) {
	return finalize(d, models.TrajectoryFailed)
}

func finalize(d Deps, status models.TrajectoryStatus) (models.Trajectory, bool) {
	t, ok := d.Scratch.ActiveTrajectory()
	if !ok {
		return models.Trajectory{}, false
	}

	t.Status = status
	t.EndedAt = models.Timestamp(d.now())
	t.SuccessRate = t.ComputeSuccessRate()
	t.TotalSteps = len(t.Steps)
	t.Success = t.SuccessRate >= 0.5

	_ = d.Store.Put(trajectoryKey(d.Project, t.ID), t, nil)
	prependIndexEntry(d, t)
	_ = d.Store.Delete(activeKey(d.Project))
	d.Scratch.ClearActiveTrajectory()
	return t, true
}

func prependIndexEntry(d Deps, t models.Trajectory) {
	entry := models.TrajectoryIndexEntry{
		ID:          t.ID,
		Task:        truncate(t.Task, indexTaskLen),
		Success:     t.SuccessRate >= 0.5,
		Steps:       len(t.Steps),
		SuccessRate: t.SuccessRate,
		Timestamp:   t.EndedAt,
	}

	var index []models.TrajectoryIndexEntry
	_ = d.Store.GetJSON(indexKey(d.Project), &index)

	index = append([]models.TrajectoryIndexEntry{entry}, index...)
	if len(index) > indexCap {
		index = index[:indexCap]
	}
	_ = d.Store.Put(indexKey(d.Project), index, nil)
}

// Index returns the project's trajectory summaries, newest first.
func Index(d Deps) []models.TrajectoryIndexEntry {
	var index []models.TrajectoryIndexEntry
	_ = d.Store.GetJSON(indexKey(d.Project), &index)
	return index
}

// Load fetches a stored trajectory by id.
func Load(d Deps, id string) (models.Trajectory, error) {
	var t models.Trajectory
	if err := d.Store.GetJSON(trajectoryKey(d.Project, id), &t); err != nil {
		return models.Trajectory{}, err
	}
	return t, nil
}

func truncate(raw string, max int) string {
	runes := []rune(raw)
	if len(runes) <= max {
		return raw
	}
	return string(runes[:max])
}
