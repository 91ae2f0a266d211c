package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/replicant/internal/replicant"
)

// PruneOptions holds flags for the prune command.
type PruneOptions struct {
	*RootOptions
	Keep int
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PruneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Trim history retention",
		Long: `Delete, for every replicant, all but the --keep most recent history
rows. Reports how many rows were removed.

Example:
  replicantd prune --keep 50`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Keep, "keep", 50, "history rows to retain per replicant")

	return cmd
}

func runPrune(opts *PruneOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Keep < 0 {
		return NewExitError(ExitCommandError, "--keep must be non-negative")
	}

	a, st, err := openAPI(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	removed, err := a.PruneHistory(cmd.Context(), opts.Keep)
	if err != nil {
		formatter.Error(string(replicant.CodeOf(err)), err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]int64{"removed": removed})
	}
	return formatter.Success(fmt.Sprintf("removed %d history rows", removed))
}
