// Package metrics emits best-effort measurements to a time-series database.
// Emission happens after the hook response is already flushed; every failure
// here is swallowed so telemetry can never affect hook behavior.
package metrics

import (
	"context"
	"os"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/dotcommander/hivehook/internal/app"
	"github.com/dotcommander/hivehook/internal/models"
)

// tsdbURLEnv overrides the configured TSDB endpoint; empty disables emission.
const tsdbURLEnv = "HIVEHOOK_TSDB_URL"

// writeDeadline bounds one emission. Hooks are short-lived; a slow TSDB
// loses the point.
const writeDeadline = time.Second

// Measurement names, shared with the dashboards that read them.
const (
	MeasurementTrajectories = "claude_trajectories"
	MeasurementStrategy     = "claude_strategy_metrics"
	MeasurementAgents       = "claude_mcp_agents"
	MeasurementTasks        = "claude_mcp_tasks"
	MeasurementSystem       = "claude_mcp_system"
)

// Emitter writes points to one TSDB endpoint.
type Emitter struct {
	url    string
	token  string
	org    string
	bucket string
}

// FromSettings builds an Emitter from the environment and settings, or nil
// when no endpoint is configured. A nil Emitter is safe to call.
func FromSettings(s *app.Settings) *Emitter {
	url := strings.TrimSpace(os.Getenv(tsdbURLEnv))
	token, org, bucket := "", "", ""
	if s != nil {
		if url == "" {
			url = s.TSDBURL
		}
		token, org, bucket = s.TSDBToken, s.TSDBOrg, s.TSDBBucket
	}
	if url == "" {
		return nil
	}
	return &Emitter{url: url, token: token, org: org, bucket: bucket}
}

// Emit writes one point. Nil receiver and every write error are no-ops.
func (e *Emitter) Emit(measurement string, tags map[string]string, fields map[string]any) {
	if e == nil || len(fields) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeDeadline)
	defer cancel()

	client := influxdb2.NewClient(e.url, e.token)
	defer client.Close()

	p := influxdb2.NewPoint(measurement, tags, fields, time.Now())
	_ = client.WriteAPIBlocking(e.org, e.bucket).WritePoint(ctx, p)
}

// EmitTrajectory records a finalized trajectory.
func (e *Emitter) EmitTrajectory(project string, t models.Trajectory) {
	e.Emit(MeasurementTrajectories,
		map[string]string{"project": project, "status": string(t.Status)},
		map[string]any{
			"steps":        len(t.Steps),
			"success_rate": t.SuccessRate,
			"success":      t.Success,
		})
}

// EmitSession records end-of-session statistics: raw counters on the system
// measurement, the error-rate aggregate on the strategy measurement.
func (e *Emitter) EmitSession(project, sessionID string, toolCalls, errors int, errorRate float64) {
	tags := map[string]string{"project": project, "session": sessionID}
	e.Emit(MeasurementSystem, tags, map[string]any{
		"tool_calls": toolCalls,
		"errors":     errors,
	})
	e.Emit(MeasurementStrategy, tags, map[string]any{
		"error_rate": errorRate,
	})
}

// EmitSwarm records swarm lifecycle changes.
func (e *Emitter) EmitSwarm(project, swarmID, event string, workers int) {
	e.Emit(MeasurementAgents,
		map[string]string{"project": project, "swarm": swarmID, "event": event},
		map[string]any{"workers": workers})
}

// EmitTask records task claim activity.
func (e *Emitter) EmitTask(project, event string, count int) {
	e.Emit(MeasurementTasks,
		map[string]string{"project": project, "event": event},
		map[string]any{"count": count})
}

// EmitClaims records a claim store snapshot.
func (e *Emitter) EmitClaims(project string, active, stealable int) {
	e.Emit(MeasurementSystem,
		map[string]string{"project": project},
		map[string]any{
			"active_claims":    active,
			"stealable_claims": stealable,
		})
}
