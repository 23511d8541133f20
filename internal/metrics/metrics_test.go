package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/hivehook/internal/app"
	"github.com/dotcommander/hivehook/internal/models"
)

func TestFromSettings_DisabledWithoutURL(t *testing.T) {
	t.Setenv("HIVEHOOK_TSDB_URL", "")
	assert.Nil(t, FromSettings(&app.Settings{}))
	assert.Nil(t, FromSettings(nil))
}

func TestFromSettings_EnvOverridesSettings(t *testing.T) {
	t.Setenv("HIVEHOOK_TSDB_URL", "http://env:8086")
	e := FromSettings(&app.Settings{TSDBURL: "http://conf:8086", TSDBBucket: "hooks"})
	require.NotNil(t, e)
	assert.Equal(t, "http://env:8086", e.url)
	assert.Equal(t, "hooks", e.bucket)
}

func TestNilEmitterIsSafe(t *testing.T) {
	var e *Emitter
	e.Emit(MeasurementSystem, nil, map[string]any{"x": 1})
	e.EmitTrajectory("demo", models.Trajectory{})
}

func TestEmit_WritesLineProtocol(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	e := &Emitter{url: srv.URL, bucket: "hooks"}
	e.EmitTrajectory("demo", models.Trajectory{
		Status:      models.TrajectoryCompleted,
		SuccessRate: 0.75,
		Success:     true,
		Steps:       []models.TrajectoryStep{{}, {}},
	})

	require.NotEmpty(t, body)
	assert.True(t, strings.HasPrefix(body, MeasurementTrajectories+","))
	assert.Contains(t, body, "project=demo")
	assert.Contains(t, body, "success_rate=0.75")
	assert.Contains(t, body, "steps=2i")
}

func TestEmit_FailuresAreSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"nope"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := &Emitter{url: srv.URL, bucket: "hooks"}
	assert.NotPanics(t, func() {
		e.EmitClaims("demo", 1, 2)
	})
}

func TestEmit_UnreachableEndpoint(t *testing.T) {
	e := &Emitter{url: "http://127.0.0.1:1", bucket: "hooks"}
	assert.NotPanics(t, func() {
		e.EmitSession("demo", "session-aaaa1111", 10, 2, 0.2)
	})
}

func TestEmit_SkipsEmptyFields(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	e := &Emitter{url: srv.URL, bucket: "hooks"}
	e.Emit(MeasurementSystem, nil, nil)
	assert.False(t, called)
}

// Guard against measurement names drifting apart from the dashboard contract.
func TestMeasurementNames(t *testing.T) {
	assert.Equal(t, "claude_trajectories", MeasurementTrajectories)
	assert.Equal(t, "claude_strategy_metrics", MeasurementStrategy)
	assert.Equal(t, "claude_mcp_agents", MeasurementAgents)
	assert.Equal(t, "claude_mcp_tasks", MeasurementTasks)
	assert.Equal(t, "claude_mcp_system", MeasurementSystem)
}
