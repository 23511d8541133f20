package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/hivehook/internal/app"
	"github.com/dotcommander/hivehook/internal/claims"
	"github.com/dotcommander/hivehook/internal/output"
	"github.com/dotcommander/hivehook/internal/store"
)

// NewClaimsCmd creates the read-only claims dashboard command.
func NewClaimsCmd() *cobra.Command {
	var (
		asJSON   bool
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "claims",
		Short: "Show the claim dashboard (active and stealable claims)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := app.StoreDir()
			if err != nil {
				return cmdErr(err)
			}
			st := store.New(dir)

			render := func() error {
				dash := claims.BuildDashboard(st)
				if asJSON {
					return output.PrintSuccess(dash)
				}
				fmt.Fprint(os.Stdout, dash.Render())
				return nil
			}

			if !watch {
				return render()
			}
			if interval <= 0 {
				interval = 2 * time.Second
			}
			for {
				// Clear screen between refreshes so the boxes repaint in place.
				fmt.Fprint(os.Stdout, "\033[2J\033[H")
				if err := render(); err != nil {
					return err
				}
				time.Sleep(interval)
			}
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the dashboard as JSON")
	cmd.Flags().BoolVar(&watch, "watch", false, "Refresh continuously")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Refresh interval for --watch")
	return cmd
}
