package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wardenbot/warden/internal/plugin"
)

func newInfoCmd(rootFlags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <plugin>",
		Short: "Show one plugin's metadata and lifecycle state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, rootFlags, args[0])
		},
	}

	return cmd
}

func runInfo(cmd *cobra.Command, rootFlags *rootFlags, name string) error {
	app, err := newAppContext(rootFlags, false)
	if err != nil {
		return newCommandError("info", "preparing runtime", err, "Check the configuration file and try again.")
	}
	if _, err := app.bootstrap(); err != nil {
		return newCommandError("info", "discovering plugins", err, "Check the plugin directory permissions and try again.")
	}

	desc, ok := app.Registry.Get(name)
	if !ok {
		return newCommandError("info", fmt.Sprintf("looking up plugin %q", name),
			plugin.ErrPluginNotFound{Name: name},
			"Run 'warden plugins list' to see what is registered.")
	}

	out := cmd.OutOrStdout()
	useUnicode := supportsUnicode(out)

	title := lipgloss.NewStyle().Bold(true).Foreground(desc.State.Color())
	fmt.Fprintln(out, title.Render(desc.Name))

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "State:\t%s\n", formatState(desc.State, useUnicode))
	fmt.Fprintf(writer, "Version:\t%s\n", valueOrFallback(desc.Version, "-"))
	fmt.Fprintf(writer, "Author:\t%s\n", valueOrFallback(desc.Author, "-"))
	fmt.Fprintf(writer, "Description:\t%s\n", valueOrFallback(desc.Description, "-"))
	fmt.Fprintf(writer, "Permission:\t%s\n", desc.Permission)
	fmt.Fprintf(writer, "Dependencies:\t%s\n", valueOrFallback(strings.Join(desc.Dependencies, ", "), "none"))
	fmt.Fprintf(writer, "Source:\t%s\n", desc.Source)
	fmt.Fprintf(writer, "Loaded:\t%s\n", formatRelativeTime(desc.LoadedAt))

	if desc.State == plugin.StateLoaded {
		fmt.Fprintf(writer, "Commands:\t%s\n", valueOrFallback(strings.Join(app.Tables.CommandsOf(name), ", "), "none"))
		fmt.Fprintf(writer, "Listeners:\t%s\n", valueOrFallback(strings.Join(app.Tables.ListenersOf(name), ", "), "none"))
	}
	if desc.Missing {
		fmt.Fprintf(writer, "Missing:\tsource file is gone, run 'warden plugins rescan --prune' to drop it\n")
	}
	if desc.LastError != "" {
		fmt.Fprintf(writer, "Last error:\t%s\n", strings.ReplaceAll(desc.LastError, "\n", " "))
	}

	return writer.Flush()
}
