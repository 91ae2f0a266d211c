package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/roach88/replicant/internal/config"
	"github.com/roach88/replicant/internal/engine"
	"github.com/roach88/replicant/internal/pubsub"
	"github.com/roach88/replicant/internal/schema"
	"github.com/roach88/replicant/internal/server"
	"github.com/roach88/replicant/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
	Listen     string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the replicant synchronization server",
		Long: `Run the replicant synchronization server.

Opens the database, starts the WebSocket endpoint, and fans committed
changes out to subscribers until interrupted.

Example:
  replicantd serve --config replicantd.yaml
  replicantd serve --listen 127.0.0.1:9090 --db state.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config (flags override)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	if cmd.Flags().Changed("db") || opts.ConfigPath == "" {
		cfg.DatabasePath = opts.DBPath
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", cfg.DatabasePath), err)
	}
	defer st.Close()

	registry := pubsub.NewRegistry()
	eng := engine.New(st, schema.NewValidator(), registry, engine.Options{
		PersistTimeout: cfg.PersistTimeout.Std(),
	})
	srv := server.New(eng, registry, server.Options{
		WriteTimeout: cfg.Transport.WriteTimeout.Std(),
		PingInterval: cfg.Transport.PingInterval.Std(),
		SendBuffer:   cfg.Transport.SendBuffer,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	glog.Infof("serving replicants from %s", cfg.DatabasePath)
	if err := srv.Run(ctx, cfg.Listen); err != nil {
		return WrapExitError(ExitCommandError, "server failed", err)
	}
	return nil
}
