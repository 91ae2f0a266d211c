package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/replicant/internal/replicant"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <namespace> <name>",
		Short: "Show a replicant's change history",
		Long: `Show a replicant's audit log, oldest first. Each entry records the
value and revision as they were immediately before an update.

Example:
  replicantd history my-bundle scoreboard --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runHistory(opts *RootOptions, namespace, name string, cmd *cobra.Command) error {
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

	entries, err := a.History(cmd.Context(), namespace, name)
	if err != nil {
		formatter.Error(string(replicant.CodeOf(err)), err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}
	return renderHistory(formatter, entries)
}
