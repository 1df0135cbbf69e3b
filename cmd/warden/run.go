package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd(rootFlags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the plugin host until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd, rootFlags)
		},
	}

	return cmd
}

func runHost(cmd *cobra.Command, rootFlags *rootFlags) error {
	app, err := newAppContext(rootFlags, true)
	if err != nil {
		return newCommandError("run", "preparing runtime", err, "Check the configuration file and try again.")
	}

	result, err := app.bootstrap()
	if err != nil {
		return newCommandError("run", "bootstrapping plugins", err, "Check the plugin directory permissions and try again.")
	}
	for _, entry := range result.Failed() {
		app.Log.WithPlugin(entry.Name).Error(entry.Err, "plugin failed to load at startup")
	}

	stats := app.Controller.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "warden is running: %d of %d plugins loaded, %d commands attached\n",
		stats.Loaded, stats.Total, len(app.Tables.Commands()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Fprintln(cmd.OutOrStdout(), "shutting down")
	return app.Controller.Shutdown(context.Background())
}
