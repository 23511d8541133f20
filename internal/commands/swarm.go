package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/hivehook/internal/app"
	"github.com/dotcommander/hivehook/internal/gateway"
	"github.com/dotcommander/hivehook/internal/identity"
	"github.com/dotcommander/hivehook/internal/metrics"
	"github.com/dotcommander/hivehook/internal/output"
	"github.com/dotcommander/hivehook/internal/store"
	"github.com/dotcommander/hivehook/internal/swarm"
)

// NewSwarmCmd creates the swarm lifecycle command tree.
func NewSwarmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swarm",
		Short: "Control the agent swarm through the orchestrator",
	}

	cmd.AddCommand(newSwarmInitCmd())
	cmd.AddCommand(newSwarmSpawnCmd())
	cmd.AddCommand(newSwarmTaskCmd())
	cmd.AddCommand(newSwarmStatusCmd())
	cmd.AddCommand(newSwarmConsensusCmd())
	cmd.AddCommand(newSwarmBroadcastCmd())
	cmd.AddCommand(newSwarmShutdownCmd())

	cmd.PersistentFlags().Bool("json", false, "Emit full JSON instead of a one-line confirmation")
	return cmd
}

func swarmController() (*swarm.Controller, error) {
	gw, err := gateway.New(app.OrchestratorCommand())
	if err != nil {
		return nil, fmt.Errorf("orchestrator unavailable (%s): %w", gateway.Classify(err), err)
	}
	dir, err := app.StoreDir()
	if err != nil {
		return nil, err
	}
	return swarm.New(gw, store.New(dir)), nil
}

// swarmEmitter builds the TSDB emitter for swarm lifecycle events. Nil when
// no endpoint is configured; nil is safe to call.
func swarmEmitter() *metrics.Emitter {
	s, err := app.LoadSettings()
	if err != nil {
		return metrics.FromSettings(nil)
	}
	return metrics.FromSettings(&s)
}

// confirm prints either the JSON payload or the one-line confirmation,
// depending on --json.
func confirm(cmd *cobra.Command, payload any, line string) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return output.PrintSuccess(payload)
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
	return nil
}

func newSwarmInitCmd() *cobra.Command {
	var topology string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a swarm",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := swarmController()
			if err != nil {
				return cmdErr(err)
			}
			st, err := c.Init(cmd.Context(), topology)
			if err != nil {
				return cmdErr(err)
			}
			err = confirm(cmd, st, fmt.Sprintf("Swarm %s created (topology %s).", st.SwarmID, st.Topology))
			swarmEmitter().EmitSwarm(identity.Project(""), st.SwarmID, "init", st.Workers)
			return err
		},
	}
	cmd.Flags().StringVar(&topology, "topology", swarm.DefaultTopology,
		"Topology: hierarchical-mesh, mesh, star or ring")
	return cmd
}

func newSwarmSpawnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "spawn [count]",
		Short: "Spawn workers into the active swarm",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return cmdErr(fmt.Errorf("invalid count %q: %w", args[0], err))
				}
				count = n
			}

			c, err := swarmController()
			if err != nil {
				return cmdErr(err)
			}
			st, err := c.Spawn(cmd.Context(), count)
			if err != nil {
				return cmdErr(err)
			}
			err = confirm(cmd, st, fmt.Sprintf("Spawned %d worker(s); swarm %s now has %d.", count, st.SwarmID, st.Workers))
			swarmEmitter().EmitSwarm(identity.Project(""), st.SwarmID, "spawn", st.Workers)
			return err
		},
	}
}

func newSwarmTaskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task <description>",
		Short: "Submit a task to the swarm",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc := strings.Join(args, " ")

			c, err := swarmController()
			if err != nil {
				return cmdErr(err)
			}
			taskID, err := c.Task(cmd.Context(), desc)
			if errors.Is(err, swarm.ErrNotSupported) {
				// Known limitation when the companion server is down, not a bug.
				type resp struct {
					Success bool   `json:"success"`
					Reason  string `json:"reason"`
				}
				if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
					return output.Print(resp{Success: false, Reason: "not_supported"})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Task orchestration unavailable: companion server not running.")
				return nil
			}
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				TaskID string `json:"task_id"`
			}
			err = confirm(cmd, resp{TaskID: taskID}, fmt.Sprintf("Task %s submitted.", taskID))
			swarmEmitter().EmitTask(identity.Project(""), "submitted", 1)
			return err
		},
	}
}

func newSwarmStatusCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show swarm status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := swarmController()
			if err != nil {
				return cmdErr(err)
			}
			res, err := c.Status(cmd.Context(), verbose)
			if err != nil {
				return cmdErr(err)
			}

			var out error
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON && res.Parsed != nil {
				out = output.Print(res.Parsed)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), res.Stdout)
			}

			if st, ok := c.Active(); ok {
				em := swarmEmitter()
				em.EmitSwarm(identity.Project(""), st.SwarmID, "status", st.Workers)
				em.EmitTask(identity.Project(""), "tracked", len(st.TaskIDs))
			}
			return out
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Request verbose status")
	return cmd
}

func newSwarmConsensusCmd() *cobra.Command {
	var options []string
	cmd := &cobra.Command{
		Use:   "consensus <topic>",
		Short: "Start a consensus vote across the swarm",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := strings.Join(args, " ")

			c, err := swarmController()
			if err != nil {
				return cmdErr(err)
			}
			res, err := c.Consensus(cmd.Context(), topic, options)
			if err != nil {
				return cmdErr(err)
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON && res.Parsed != nil {
				return output.Print(res.Parsed)
			}
			return confirm(cmd, res, fmt.Sprintf("Consensus on %q started with %d option(s).", topic, len(options)))
		},
	}
	cmd.Flags().StringArrayVar(&options, "option", nil, "Vote option (repeatable)")
	return cmd
}

func newSwarmBroadcastCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "broadcast <message>",
		Short: "Broadcast a message to all swarm agents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := strings.Join(args, " ")

			c, err := swarmController()
			if err != nil {
				return cmdErr(err)
			}
			if err := c.Broadcast(msg); err != nil {
				return cmdErr(err)
			}
			type resp struct {
				Message string `json:"message"`
			}
			return confirm(cmd, resp{Message: msg}, "Broadcast sent.")
		},
	}
}

func newSwarmShutdownCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Shut down the active swarm",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := swarmController()
			if err != nil {
				return cmdErr(err)
			}
			active, hadSwarm := c.Active()
			if err := c.Shutdown(cmd.Context(), force); err != nil {
				return cmdErr(err)
			}
			type resp struct {
				Shutdown bool `json:"shutdown"`
			}
			err = confirm(cmd, resp{Shutdown: true}, "Swarm shut down.")
			if hadSwarm {
				swarmEmitter().EmitSwarm(identity.Project(""), active.SwarmID, "shutdown", 0)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Clear local state even when the orchestrator call fails")
	return cmd
}
