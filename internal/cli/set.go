package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/replicant/internal/replicant"
)

// SetOptions holds flags for the set command.
type SetOptions struct {
	*RootOptions
	Actor string
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set <namespace> <name> <value>",
		Short: "Commit a new value for a replicant",
		Long: `Commit a new value for a persistent replicant. The value is validated
against the replicant's schema; the previous state is appended to history.

Example:
  replicantd set my-bundle scoreboard '{"score":1}' --actor ops`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Actor, "actor", "", "audit identity recorded in history")

	return cmd
}

func runSet(opts *SetOptions, namespace, name, raw string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	value, err := replicant.ParseValue([]byte(raw))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid value JSON", err)
	}

	a, st, err := openAPI(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := a.Set(cmd.Context(), namespace, name, value, opts.Actor)
	if err != nil {
		var details interface{}
		var verr *replicant.SchemaValidationError
		if errors.As(err, &verr) {
			details = verr.Violations
		}
		formatter.Error(string(replicant.CodeOf(err)), err.Error(), details)
		return NewExitError(ExitFailure, err.Error())
	}
	return renderReplicant(formatter, rec)
}
