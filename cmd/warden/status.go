package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCmd(rootFlags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show aggregate plugin statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, rootFlags)
		},
	}

	return cmd
}

func runStatus(cmd *cobra.Command, rootFlags *rootFlags) error {
	app, err := newAppContext(rootFlags, false)
	if err != nil {
		return newCommandError("status", "preparing runtime", err, "Check the configuration file and try again.")
	}
	if _, err := app.bootstrap(); err != nil {
		return newCommandError("status", "discovering plugins", err, "Check the plugin directory permissions and try again.")
	}

	stats := app.Controller.Stats()

	successRate := 100.0
	if stats.Total > 0 {
		successRate = float64(stats.Total-stats.Errored) / float64(stats.Total) * 100
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Plugins:\t%d\n", stats.Total)
	fmt.Fprintf(writer, "Loaded:\t%d\n", stats.Loaded)
	fmt.Fprintf(writer, "Errored:\t%d\n", stats.Errored)
	fmt.Fprintf(writer, "Healthy:\t%.0f%%\n", successRate)
	fmt.Fprintf(writer, "Commands:\t%d\n", len(app.Tables.Commands()))
	return writer.Flush()
}
