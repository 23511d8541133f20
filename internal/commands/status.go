package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/hivehook/internal/claims"
	"github.com/dotcommander/hivehook/internal/history"
	"github.com/dotcommander/hivehook/internal/identity"
	"github.com/dotcommander/hivehook/internal/output"
)

// NewStatusCmd creates the status command: archive aggregates plus a live
// claim snapshot.
func NewStatusCmd() *cobra.Command {
	var project string
	var allProjects bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent sessions, trajectory success rate, patterns and claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			if project == "" && !allProjects {
				project = identity.Project("")
			}
			if allProjects {
				project = ""
			}

			var summary history.Summary
			if err := withHistory(func(db *DB) error {
				s, err := history.Summarize(db, project)
				if err != nil {
					return err
				}
				summary = s
				return nil
			}); err != nil {
				return err
			}

			st, err := openStore()
			if err != nil {
				return cmdErr(err)
			}
			dash := claims.BuildDashboard(st)

			type claimCounts struct {
				Active    int `json:"active"`
				Stealable int `json:"stealable"`
				Completed int `json:"completed"`
			}
			type resp struct {
				Project string          `json:"project,omitempty"`
				History history.Summary `json:"history"`
				Claims  claimCounts     `json:"claims"`
			}
			return output.PrintSuccess(resp{
				Project: project,
				History: summary,
				Claims: claimCounts{
					Active:    len(dash.Active),
					Stealable: len(dash.Stealable),
					Completed: dash.Completed,
				},
			})
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project to summarize (default: current)")
	cmd.Flags().BoolVar(&allProjects, "all", false, "Summarize across all projects")
	return cmd
}
