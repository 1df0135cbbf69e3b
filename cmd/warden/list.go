package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wardenbot/warden/internal/plugin"
)

type listOptions struct {
	jsonOutput bool
}

func newListCmd(rootFlags *rootFlags) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered plugins and their states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, rootFlags, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func runList(cmd *cobra.Command, rootFlags *rootFlags, opts *listOptions) error {
	app, err := newAppContext(rootFlags, false)
	if err != nil {
		return newCommandError("list", "preparing runtime", err, "Check the configuration file and try again.")
	}

	if _, err := app.bootstrap(); err != nil {
		return newCommandError("list", "discovering plugins", err, "Check the plugin directory permissions and try again.")
	}

	descriptors := app.Registry.All()
	if len(descriptors) == 0 {
		return renderEmptyList(cmd, app)
	}

	if opts.jsonOutput {
		return renderListJSON(cmd, descriptors)
	}

	return renderListTable(cmd, descriptors)
}

func renderEmptyList(cmd *cobra.Command, app *AppContext) error {
	fmt.Fprintln(cmd.OutOrStdout(), "No plugins registered yet.")
	fmt.Fprintf(cmd.OutOrStdout(), "\nDrop .lua plugin files into %s and run 'warden plugins rescan'.\n", app.Config.PluginsDir)
	return nil
}

func renderListTable(cmd *cobra.Command, descriptors []*plugin.Descriptor) error {
	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	fmt.Fprintln(writer, "NAME\tVERSION\tSTATE\tDEPENDENCIES\tLOADED")

	useUnicode := supportsUnicode(cmd.OutOrStdout())

	for _, desc := range descriptors {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			flaggedName(desc),
			valueOrFallback(desc.Version, "-"),
			formatState(desc.State, useUnicode),
			valueOrFallback(strings.Join(desc.Dependencies, ", "), "-"),
			formatRelativeTime(desc.LoadedAt),
		)
	}

	return writer.Flush()
}

type listJSONPlugin struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	State        string    `json:"state"`
	Dependencies []string  `json:"dependencies,omitempty"`
	Permission   string    `json:"permission"`
	Source       string    `json:"source"`
	LoadedAt     time.Time `json:"loaded_at"`
	Missing      bool      `json:"missing,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

type listJSONPayload struct {
	Version string           `json:"version"`
	Count   int              `json:"count"`
	Plugins []listJSONPlugin `json:"plugins"`
}

func renderListJSON(cmd *cobra.Command, descriptors []*plugin.Descriptor) error {
	payload := listJSONPayload{
		Version: "1.0",
		Count:   len(descriptors),
		Plugins: make([]listJSONPlugin, len(descriptors)),
	}

	for i, desc := range descriptors {
		payload.Plugins[i] = listJSONPlugin{
			Name:         desc.Name,
			Version:      desc.Version,
			State:        desc.State.String(),
			Dependencies: desc.Dependencies,
			Permission:   desc.Permission.String(),
			Source:       desc.Source,
			LoadedAt:     desc.LoadedAt,
			Missing:      desc.Missing,
			LastError:    desc.LastError,
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func flaggedName(desc *plugin.Descriptor) string {
	if desc.Missing {
		return desc.Name + " (missing)"
	}
	return desc.Name
}

func supportsUnicode(writer any) bool {
	if file, ok := writer.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}

func formatState(state plugin.State, useUnicode bool) string {
	if useUnicode {
		return fmt.Sprintf("%s %s", state.Icon(), state.String())
	}

	return fmt.Sprintf("%s %s", state.IconFallback(), state.String())
}

func formatRelativeTime(ts time.Time) string {
	if ts.IsZero() {
		return "never"
	}

	delta := time.Since(ts)
	if delta < time.Minute {
		return "just now"
	}
	if delta < time.Hour {
		return fmt.Sprintf("%d minutes ago", int(delta.Minutes()))
	}
	if delta < 24*time.Hour {
		return fmt.Sprintf("%d hours ago", int(delta.Hours()))
	}

	return fmt.Sprintf("%d days ago", int(delta.Hours()/24))
}

func valueOrFallback(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
