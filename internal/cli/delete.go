package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/replicant/internal/replicant"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <namespace> <name>",
		Short: "Destroy a replicant and its history",
		Long: `Destroy a replicant. All of its history rows are cascade-deleted.

Example:
  replicantd delete my-bundle scoreboard`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runDelete(opts *RootOptions, namespace, name string, cmd *cobra.Command) error {
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

	ok, err := a.Delete(cmd.Context(), namespace, name)
	if err != nil {
		formatter.Error(string(replicant.CodeOf(err)), err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}
	if !ok {
		msg := fmt.Sprintf("replicant %s:%s not found", namespace, name)
		formatter.Error(string(replicant.ErrCodeNotFound), msg, nil)
		return NewExitError(ExitFailure, msg)
	}
	return formatter.Success(fmt.Sprintf("deleted %s:%s", namespace, name))
}
