// Package cli implements the replicantd command tree: the server
// process plus offline operations against the replicant database.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/replicant/internal/api"
	"github.com/roach88/replicant/internal/engine"
	"github.com/roach88/replicant/internal/pubsub"
	"github.com/roach88/replicant/internal/schema"
	"github.com/roach88/replicant/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DBPath  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for replicantd.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "replicantd",
		Short: "Replicant synchronization server",
		Long:  "Server-authoritative store of namespaced, schema-validated JSON values with revision history and WebSocket fan-out.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "replicant.db", "path to the replicant database")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewPruneCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openAPI opens the database and wires the full offline stack behind
// the façade. The registry has no subscribers in a CLI process; it is
// wired anyway so notification semantics match the server exactly.
func openAPI(opts *RootOptions) (*api.API, *store.Store, error) {
	st, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", opts.DBPath), err)
	}
	registry := pubsub.NewRegistry()
	eng := engine.New(st, schema.NewValidator(), registry, engine.Options{})
	return api.New(eng, registry, st), st, nil
}
