package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type rescanOptions struct {
	prune bool
}

func newRescanCmd(rootFlags *rootFlags) *cobra.Command {
	opts := &rescanOptions{}

	cmd := &cobra.Command{
		Use:   "rescan",
		Short: "Re-discover plugin sources without touching loaded plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRescan(cmd, rootFlags, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.prune, "prune", false, "Drop registered plugins whose source file disappeared")

	return cmd
}

func runRescan(cmd *cobra.Command, rootFlags *rootFlags, opts *rescanOptions) error {
	app, err := newAppContext(rootFlags, false)
	if err != nil {
		return newCommandError("rescan", "preparing runtime", err, "Check the configuration file and try again.")
	}
	if _, err := app.bootstrap(); err != nil {
		return newCommandError("rescan", "discovering plugins", err, "Check the plugin directory permissions and try again.")
	}

	ctx, cancel := app.operationContext()
	defer cancel()

	scanned, err := app.Controller.Rescan(ctx)
	if err != nil {
		return newCommandError("rescan", "scanning the plugin directory", err, "Check the plugin directory permissions and try again.")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanned %s: %d plugin(s) found.\n", app.Config.PluginsDir, len(scanned))

	if opts.prune {
		if removed := app.Controller.Prune(); len(removed) > 0 {
			fmt.Fprintf(out, "Pruned: %s\n", strings.Join(removed, ", "))
		}
	}

	return nil
}
