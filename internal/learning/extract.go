// Package learning mines reusable lessons from session statistics and
// injects them into later sessions.
package learning

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/dotcommander/hivehook/internal/models"
	"github.com/dotcommander/hivehook/internal/scratch"
	"github.com/dotcommander/hivehook/internal/store"
	"github.com/dotcommander/hivehook/internal/trajectory"
)

// Detector thresholds. Compile-time constants by contract.
const (
	// reworkThreshold is the per-file edit count above which the session
	// shows churn worth a lesson.
	reworkThreshold = 3

	// errorRateThreshold is the tool error rate above which the session is
	// considered error-heavy.
	errorRateThreshold = 0.25

	// qualityDropThreshold is the fitted per-step quality fall across the
	// session that triggers the quality_drop detector.
	qualityDropThreshold = 0.15

	// minQualitySamples gates the quality trend; fewer samples fit noise.
	minQualitySamples = 3
)

// Deps carries the resolved environment a learning operation runs in.
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

// Inputs are the raw session statistics the detectors read.
type Inputs struct {
	EditCounts    map[string]int
	Analysis      scratch.SessionAnalysis
	StepQualities []float64
}

// CollectInputs gathers detector inputs from the scratch dir and the most
// recently finalized trajectory.
func CollectInputs(d Deps) Inputs {
	in := Inputs{
		EditCounts: d.Scratch.EditCounts(),
		Analysis:   d.Scratch.Analysis(),
	}

	index := trajectory.Index(trajectory.Deps(d))
	if len(index) > 0 {
		if t, err := trajectory.Load(trajectory.Deps(d), index[0].ID); err == nil {
			for _, s := range t.Steps {
				in.StepQualities = append(in.StepQualities, s.Quality)
			}
		}
	}
	return in
}

// Extract runs the detectors over in and returns zero or more patterns.
func Extract(project string, in Inputs) []models.Pattern {
	var out []models.Pattern

	// high_rework: any file edited more than reworkThreshold times.
	files := make([]string, 0, len(in.EditCounts))
	for f := range in.EditCounts {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		edits := in.EditCounts[f]
		if edits <= reworkThreshold {
			continue
		}
		conf := models.ClampConfidence(0.5 + 0.1*float64(edits-reworkThreshold))
		out = append(out, models.Pattern{
			Text: fmt.Sprintf("File %s needed %d edits in one session; plan the change before writing to reduce rework.",
				filepath.Base(f), edits),
			Type:       models.PatternHighRework,
			Confidence: conf,
			Project:    project,
			Metadata:   map[string]any{"file": f, "edits": edits},
		})
	}

	// high_error: session error rate above threshold.
	if in.Analysis.ToolCalls > 0 && in.Analysis.ErrorRate > errorRateThreshold {
		conf := models.ClampConfidence(0.4 + (in.Analysis.ErrorRate-errorRateThreshold)*2)
		out = append(out, models.Pattern{
			Text: fmt.Sprintf("Tool error rate was %.0f%% across %d calls; verify commands and paths before executing.",
				in.Analysis.ErrorRate*100, in.Analysis.ToolCalls),
			Type:       models.PatternHighError,
			Confidence: conf,
			Project:    project,
			Metadata:   map[string]any{"error_rate": in.Analysis.ErrorRate, "tool_calls": in.Analysis.ToolCalls},
		})
	}

	// quality_drop: fitted step quality falls across the session.
	if drop := QualityDrop(in.StepQualities); drop > qualityDropThreshold {
		conf := models.ClampConfidence(0.6 + minFloat(0.4, drop))
		out = append(out, models.Pattern{
			Text: fmt.Sprintf("Step quality fell by %.0f%% over the session; consider smaller steps or an earlier checkpoint.",
				drop*100),
			Type:       models.PatternQualityDrop,
			Confidence: conf,
			Project:    project,
			Metadata:   map[string]any{"drop": drop},
		})
	}

	return out
}

// QualityDrop fits a least-squares line through the step qualities and
// returns the total fall across the session (positive = declining).
// Returns 0 with fewer than minQualitySamples samples.
func QualityDrop(qualities []float64) float64 {
	n := len(qualities)
	if n < minQualitySamples {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, q := range qualities {
		x := float64(i)
		sumX += x
		sumY += q
		sumXY += x * q
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (fn*sumXY - sumX*sumY) / denom

	drop := -slope * float64(n-1)
	if drop < 0 {
		return 0
	}
	return drop
}

// Fingerprint identifies a pattern by project, type and text.
func Fingerprint(project string, typ models.PatternType, text string) string {
	sum := sha256.Sum256([]byte(project + "|" + string(typ) + "|" + text))
	return hex.EncodeToString(sum[:])[:12]
}

// StorePatterns writes each pattern under pattern:{fingerprint}. Returns the
// fingerprints in pattern order.
func StorePatterns(d Deps, patterns []models.Pattern) []string {
	fps := make([]string, 0, len(patterns))
	for i := range patterns {
		patterns[i].StoredAt = models.Timestamp(d.now())
		fp := Fingerprint(patterns[i].Project, patterns[i].Type, patterns[i].Text)
		_ = d.Store.Put("pattern:"+fp, patterns[i], nil)
		fps = append(fps, fp)
	}
	return fps
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
