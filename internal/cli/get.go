package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/replicant/internal/replicant"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <namespace> <name>",
		Short: "Show a replicant's record",
		Long: `Show a replicant's current value, revision, schema, and timestamps.

Example:
  replicantd get my-bundle scoreboard --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runGet(opts *RootOptions, namespace, name string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	a, st, err := openAPI(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := a.Get(cmd.Context(), namespace, name)
	if err != nil {
		formatter.Error(string(replicant.CodeOf(err)), err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}
	return renderReplicant(formatter, rec)
}
