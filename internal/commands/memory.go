package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotcommander/hivehook/internal/app"
	"github.com/dotcommander/hivehook/internal/models"
	"github.com/dotcommander/hivehook/internal/output"
	"github.com/dotcommander/hivehook/internal/store"
)

// NewMemoryCmd creates the memory command. Operator escape hatch over the
// shared KV store; the same code path the hooks use.
func NewMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and edit the shared key-value store",
	}

	cmd.AddCommand(newMemoryStoreCmd())
	cmd.AddCommand(newMemoryRetrieveCmd())
	cmd.AddCommand(newMemoryListCmd())

	return cmd
}

func openStore() (*store.FileStore, error) {
	dir, err := app.StoreDir()
	if err != nil {
		return nil, err
	}
	return store.New(dir), nil
}

func newMemoryStoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "store <key> <value>",
		Short: "Store a value under a key (value parsed as JSON, else stored as a string)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return cmdErr(err)
			}

			key, raw := args[0], args[1]
			var value any = raw
			if json.Valid([]byte(raw)) {
				value = json.RawMessage(raw)
			}

			if err := st.Put(key, value, nil); err != nil {
				return cmdErr(err)
			}

			type resp struct {
				Key string `json:"key"`
			}
			return output.PrintSuccess(resp{Key: key})
		},
	}
}

func newMemoryRetrieveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retrieve <key>",
		Short: "Retrieve a value by key (bumps its access count)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return cmdErr(err)
			}

			entry, err := st.Get(args[0])
			if err != nil {
				return cmdErr(fmt.Errorf("retrieve %s: %w", args[0], err))
			}
			return output.PrintSuccess(entry)
		},
	}
}

func newMemoryListCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries, optionally filtered by key prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return cmdErr(err)
			}

			entries := st.List(prefix)

			type resp struct {
				Prefix  string           `json:"prefix,omitempty"`
				Count   int              `json:"count"`
				Entries []models.KVEntry `json:"entries"`
			}
			return output.PrintSuccess(resp{Prefix: prefix, Count: len(entries), Entries: entries})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix filter (e.g. session:, pattern:)")
	return cmd
}
