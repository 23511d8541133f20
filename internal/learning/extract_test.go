package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/hivehook/internal/models"
	"github.com/dotcommander/hivehook/internal/scratch"
	"github.com/dotcommander/hivehook/internal/store"
)

func newDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		Store:     store.New(t.TempDir()),
		Scratch:   scratch.At(t.TempDir()),
		Project:   "demo",
		SessionID: "session-aaaa1111",
	}
}

func TestExtract_HighRework(t *testing.T) {
	in := Inputs{EditCounts: map[string]int{
		"/src/parser.go": 6,
		"/src/lexer.go":  2, // below threshold
	}}

	ps := Extract("demo", in)
	require.Len(t, ps, 1)
	assert.Equal(t, models.PatternHighRework, ps[0].Type)
	assert.Contains(t, ps[0].Text, "parser.go")
	assert.Contains(t, ps[0].Text, "6 edits")
	// min(1.0, 0.5 + 0.1*(6-3)) = 0.8
	assert.InDelta(t, 0.8, ps[0].Confidence, 1e-9)
}

func TestExtract_HighReworkConfidenceCapped(t *testing.T) {
	ps := Extract("demo", Inputs{EditCounts: map[string]int{"/a": 20}})
	require.Len(t, ps, 1)
	assert.InDelta(t, 1.0, ps[0].Confidence, 1e-9)
}

func TestExtract_HighErrorRate(t *testing.T) {
	in := Inputs{Analysis: scratch.SessionAnalysis{ToolCalls: 10, Errors: 5, ErrorRate: 0.5}}

	ps := Extract("demo", in)
	require.Len(t, ps, 1)
	assert.Equal(t, models.PatternHighError, ps[0].Type)
	// min(1.0, 0.4 + (0.5-0.25)*2) = 0.9
	assert.InDelta(t, 0.9, ps[0].Confidence, 1e-9)
}

func TestExtract_ErrorRateAtThresholdIsQuiet(t *testing.T) {
	in := Inputs{Analysis: scratch.SessionAnalysis{ToolCalls: 4, Errors: 1, ErrorRate: 0.25}}
	assert.Empty(t, Extract("demo", in))
}

func TestExtract_QualityDrop(t *testing.T) {
	in := Inputs{StepQualities: []float64{1.0, 0.8, 0.6, 0.4}}

	ps := Extract("demo", in)
	require.Len(t, ps, 1)
	assert.Equal(t, models.PatternQualityDrop, ps[0].Type)
	// Perfect line with slope -0.2 over 3 intervals: drop = 0.6.
	assert.InDelta(t, 0.6+0.4, ps[0].Confidence, 1e-9)
}

func TestQualityDrop_EdgeCases(t *testing.T) {
	assert.Zero(t, QualityDrop(nil))
	assert.Zero(t, QualityDrop([]float64{1.0, 0.5})) // too few samples
	assert.Zero(t, QualityDrop([]float64{0.5, 0.5, 0.5}))
	assert.Zero(t, QualityDrop([]float64{0.2, 0.5, 0.9})) // improving
	assert.InDelta(t, 0.6, QualityDrop([]float64{1.0, 0.8, 0.6, 0.4}), 1e-9)
}

func TestExtract_CleanSessionProducesNothing(t *testing.T) {
	in := Inputs{
		EditCounts:    map[string]int{"/src/a.go": 1},
		Analysis:      scratch.SessionAnalysis{ToolCalls: 20, Errors: 1, ErrorRate: 0.05},
		StepQualities: []float64{0.9, 0.95, 1.0},
	}
	assert.Empty(t, Extract("demo", in))
}

func TestFingerprint_StableAndShort(t *testing.T) {
	a := Fingerprint("demo", models.PatternHighError, "text")
	b := Fingerprint("demo", models.PatternHighError, "text")
	c := Fingerprint("demo", models.PatternHighRework, "text")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 12)
}

func TestStorePatterns_WritesUnderFingerprint(t *testing.T) {
	d := newDeps(t)
	ps := []models.Pattern{{Text: "use checkpoints", Type: models.PatternWorkflow, Confidence: 0.9, Project: "demo"}}

	fps := StorePatterns(d, ps)
	require.Len(t, fps, 1)

	var stored models.Pattern
	require.NoError(t, d.Store.GetJSON("pattern:"+fps[0], &stored))
	assert.Equal(t, "use checkpoints", stored.Text)
	assert.NotEmpty(t, stored.StoredAt)
}

func TestCollectInputs_ReadsScratch(t *testing.T) {
	d := newDeps(t)
	_, err := d.Scratch.BumpEditCount("/src/a.go")
	require.NoError(t, err)
	_, err = d.Scratch.RecordToolCall(true)
	require.NoError(t, err)

	in := CollectInputs(d)
	assert.Equal(t, 1, in.EditCounts["/src/a.go"])
	assert.Equal(t, 1, in.Analysis.Errors)
}

func TestCollectInputs_SessionResetDropsStaleStatistics(t *testing.T) {
	d := newDeps(t)

	// Session 1 reworks one file heavily.
	for i := 0; i < 5; i++ {
		_, err := d.Scratch.BumpEditCount("/tmp/a.go")
		require.NoError(t, err)
	}
	require.NotEmpty(t, Extract("demo", CollectInputs(d)))

	// The session-end cleanup runs; a fresh session with zero edits must not
	// re-mine the previous session's rework.
	d.Scratch.ClearSessionFiles()

	in := CollectInputs(d)
	assert.Empty(t, in.EditCounts)
	assert.Zero(t, in.Analysis.ToolCalls)
	assert.Empty(t, Extract("demo", in))
}
