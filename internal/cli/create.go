package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/replicant/internal/replicant"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Default    string
	SchemaPath string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <namespace> <name>",
		Short: "Create a persistent replicant",
		Long: `Create a persistent replicant with a default value and an optional
JSON Schema. The default must validate against the schema.

Example:
  replicantd create my-bundle scoreboard --default '{"score":0}' --schema schema.json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Default, "default", "null", "default value as JSON")
	cmd.Flags().StringVar(&opts.SchemaPath, "schema", "", "path to a JSON Schema file")

	return cmd
}

func runCreate(opts *CreateOptions, namespace, name string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	defaultValue, err := replicant.ParseValue([]byte(opts.Default))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --default JSON", err)
	}

	var schemaDoc replicant.Value
	if opts.SchemaPath != "" {
		raw, err := os.ReadFile(opts.SchemaPath)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read schema %s", opts.SchemaPath), err)
		}
		schemaDoc, err = replicant.ParseValue(raw)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid schema JSON", err)
		}
	}

	a, st, err := openAPI(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := a.Create(cmd.Context(), namespace, name, defaultValue, schemaDoc)
	if err != nil {
		formatter.Error(string(replicant.CodeOf(err)), err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}

	formatter.VerboseLog("created %s:%s as %s", namespace, name, rec.ID)
	return renderReplicant(formatter, rec)
}
