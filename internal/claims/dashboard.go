package claims

import (
	"fmt"
	"strings"
	"time"

	"github.com/dotcommander/hivehook/internal/models"
	"github.com/dotcommander/hivehook/internal/store"
)

// Dashboard is a point-in-time view of the claim store for display.
type Dashboard struct {
	Active    []store.ClaimInfo `json:"active"`
	Stealable []store.ClaimInfo `json:"stealable"`
	Completed int               `json:"completed"`

	// AsOf anchors the rendered claim ages.
	AsOf time.Time `json:"-"`
}

// BuildDashboard snapshots the claim store into a render-ready view.
// Completed claims stay in the claims map until swept, so they are counted
// but not listed in the active box.
func BuildDashboard(s *store.FileStore) Dashboard {
	d := Dashboard{
		Stealable: s.ListClaims(store.ClaimFilter{Status: models.ClaimStatusStealable}),
		AsOf:      time.Now(),
	}
	for _, c := range s.ListClaims(store.ClaimFilter{}) {
		if c.Claim.Status == models.ClaimStatusCompleted {
			d.Completed++
			continue
		}
		d.Active = append(d.Active, c)
	}
	return d
}

// Render formats the dashboard for a terminal.
func (d Dashboard) Render() string {
	var b strings.Builder

	b.WriteString(renderBox("ACTIVE CLAIMS", d.Active, func(c store.ClaimInfo) string {
		line := fmt.Sprintf("%s  %s", c.ID, c.Claim.Claimant)
		if a := age(d.AsOf, c.Claim.ClaimedAt); a != "" {
			line += "  " + a
		}
		if c.Claim.Progress > 0 {
			line += fmt.Sprintf("  %d%%", c.Claim.Progress)
		}
		if c.Claim.Context != "" {
			line += "  " + c.Claim.Context
		}
		return line
	}))
	b.WriteString("\n")
	b.WriteString(renderBox("STEALABLE", d.Stealable, func(c store.ClaimInfo) string {
		line := fmt.Sprintf("%s  was %s  (%s)", c.ID, c.Claim.Claimant, c.Claim.StealReason)
		if a := age(d.AsOf, c.Claim.MarkedStealableAt); a != "" {
			line += "  " + a
		}
		if c.Claim.StealContext != "" {
			line += "  " + c.Claim.StealContext
		}
		return line
	}))
	b.WriteString("\n")
	b.WriteString(d.Summary())
	b.WriteString("\n")
	return b.String()
}

// Summary is the one-line claim count footer.
func (d Dashboard) Summary() string {
	return fmt.Sprintf("%d active, %d stealable, %d completed",
		len(d.Active), len(d.Stealable), d.Completed)
}

// age renders how long ago ts was, in the largest whole unit.
func age(now time.Time, ts string) string {
	at := models.ParseTimestamp(ts)
	if at.IsZero() || now.Before(at) {
		return ""
	}
	elapsed := now.Sub(at)
	switch {
	case elapsed < time.Minute:
		return fmt.Sprintf("%ds", int(elapsed.Seconds()))
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm", int(elapsed.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(elapsed.Hours()))
	}
}

func renderBox(title string, claims []store.ClaimInfo, line func(store.ClaimInfo) string) string {
	width := len(title)
	lines := make([]string, 0, len(claims))
	if len(claims) == 0 {
		lines = append(lines, "(none)")
	}
	for _, c := range claims {
		lines = append(lines, line(c))
	}
	for _, l := range lines {
		if len(l) > width {
			width = len(l)
		}
	}

	var b strings.Builder
	b.WriteString("+" + strings.Repeat("-", width+2) + "+\n")
	fmt.Fprintf(&b, "| %-*s |\n", width, title)
	b.WriteString("+" + strings.Repeat("-", width+2) + "+\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "| %-*s |\n", width, l)
	}
	b.WriteString("+" + strings.Repeat("-", width+2) + "+\n")
	return b.String()
}
