package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/dotcommander/hivehook/internal/gateway"
	"github.com/dotcommander/hivehook/internal/history"
	"github.com/dotcommander/hivehook/internal/models"
)

// Injection bounds.
const (
	// MinConfidence is the search floor; LOW-band patterns never surface.
	MinConfidence = 0.5

	// MaxLessons bounds how many lessons one prompt event may receive.
	MaxLessons = 3

	// searchTimeout bounds the orchestrator pattern search. The prompt hook
	// budget is small; a slow orchestrator loses to the local fallback.
	searchTimeout = 2 * time.Second
)

// lessonHeader introduces injected lessons in the model context.
const lessonHeader = "[Lessons from past sessions]"

// Search retrieves lessons for prompt, best source first: the orchestrator's
// pattern search, then the local history archive, then a KV scan with token
// overlap scoring. Results are confidence-descending, floored at
// MinConfidence, capped at MaxLessons.
func Search(d Deps, gw *gateway.Runner, db *sql.DB, prompt string) []models.Pattern {
	if ps := gatewaySearch(d, gw, prompt); len(ps) > 0 {
		return rank(ps)
	}
	if db != nil {
		if ps, err := history.SearchPatterns(db, d.Project, prompt, MinConfidence, MaxLessons); err == nil && len(ps) > 0 {
			return rank(ps)
		}
	}
	return rank(storeScan(d, prompt))
}

func gatewaySearch(d Deps, gw *gateway.Runner, prompt string) []models.Pattern {
	if gw == nil {
		return nil
	}
	res := gw.Run(context.Background(), []string{
		"pattern", "search",
		"--project", d.Project,
		"--query", prompt,
		"--min-confidence", "0.5",
	}, nil, searchTimeout)
	if !res.Success || res.Parsed == nil {
		return nil
	}

	// Accept either a bare array or {"patterns": [...]}.
	var ps []models.Pattern
	if err := json.Unmarshal(res.Parsed, &ps); err == nil && len(ps) > 0 {
		return ps
	}
	var wrapped struct {
		Patterns []models.Pattern `json:"patterns"`
	}
	if err := json.Unmarshal(res.Parsed, &wrapped); err == nil {
		return wrapped.Patterns
	}
	return nil
}

// storeScan is the last-resort linear scan over pattern:* entries, scored by
// token overlap with the prompt. Patterns for other projects are skipped.
func storeScan(d Deps, prompt string) []models.Pattern {
	promptTokens := tokenSet(prompt)

	type scored struct {
		p     models.Pattern
		score int
	}
	var matches []scored
	for _, e := range d.Store.List("pattern:") {
		var p models.Pattern
		if err := json.Unmarshal(e.Value, &p); err != nil {
			continue
		}
		if p.Project != "" && p.Project != d.Project {
			continue
		}
		if p.Confidence < MinConfidence {
			continue
		}
		// Zero overlap still qualifies; overlap only improves ranking.
		score := 0
		for tok := range tokenSet(p.Text) {
			if _, ok := promptTokens[tok]; ok {
				score++
			}
		}
		matches = append(matches, scored{p: p, score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].p.Confidence > matches[j].p.Confidence
	})

	out := make([]models.Pattern, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.p)
	}
	return out
}

// rank enforces the injection contract: floor, confidence-descending, cap.
func rank(ps []models.Pattern) []models.Pattern {
	filtered := ps[:0:0]
	for _, p := range ps {
		if p.Confidence >= MinConfidence {
			filtered = append(filtered, p)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Confidence > filtered[j].Confidence
	})
	if len(filtered) > MaxLessons {
		filtered = filtered[:MaxLessons]
	}
	return filtered
}

// FormatLessons renders ranked lessons for additionalContext. HIGH-band
// lessons appear bare; MEDIUM-band lessons get the "Consider: " hedge.
// Returns "" when nothing qualifies.
func FormatLessons(ps []models.Pattern) string {
	if len(ps) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(lessonHeader)
	for _, p := range ps {
		b.WriteString("\n- ")
		if p.Band() == "medium" {
			b.WriteString("Consider: ")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func tokenSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if len([]rune(f)) >= 3 {
			out[f] = struct{}{}
		}
	}
	return out
}
