package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/replicant/internal/replicant"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [namespace]",
		Short: "List replicants",
		Long: `List replicant keys, either across all namespaces or within one.

Example:
  replicantd list
  replicantd list my-bundle`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace := ""
			if len(args) == 1 {
				namespace = args[0]
			}
			return runList(rootOpts, namespace, cmd)
		},
	}
	return cmd
}

func runList(opts *RootOptions, namespace string, cmd *cobra.Command) error {
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

	records, err := a.List(cmd.Context(), namespace)
	if err != nil {
		formatter.Error(string(replicant.CodeOf(err)), err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}

	keys := make([]string, 0, len(records))
	for _, rec := range records {
		keys = append(keys, fmt.Sprintf("%s:%s", rec.Namespace, rec.Name))
	}

	if opts.Format == "json" {
		return formatter.Success(keys)
	}
	if len(keys) == 0 {
		return formatter.Success("no replicants")
	}
	return formatter.Success(strings.Join(keys, "\n"))
}
