package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wardenbot/warden/internal/plugin"
)

func newLoadCmd(rootFlags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <plugin>",
		Short: "Load a plugin, pulling in its dependencies first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, rootFlags, args[0])
		},
	}

	return cmd
}

func runLoad(cmd *cobra.Command, rootFlags *rootFlags, name string) error {
	app, err := newAppContext(rootFlags, false)
	if err != nil {
		return newCommandError("load", "preparing runtime", err, "Check the configuration file and try again.")
	}
	if _, err := app.bootstrap(); err != nil {
		return newCommandError("load", "discovering plugins", err, "Check the plugin directory permissions and try again.")
	}

	ctx, cancel := app.operationContext()
	defer cancel()

	if err := app.Controller.Load(ctx, name); err != nil {
		var already plugin.ErrAlreadyLoaded
		if errors.As(err, &already) {
			fmt.Fprintf(cmd.OutOrStdout(), "Plugin %s is already loaded.\n", name)
			return nil
		}
		return newCommandError("load", fmt.Sprintf("loading plugin %q", name), err, "Run 'warden plugins info "+name+"' for details.")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %s.\n", name)
	if commands := app.Tables.CommandsOf(name); len(commands) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Commands: %s\n", strings.Join(commands, ", "))
	}
	return nil
}

type unloadOptions struct {
	cascade bool
}

func newUnloadCmd(rootFlags *rootFlags) *cobra.Command {
	opts := &unloadOptions{}

	cmd := &cobra.Command{
		Use:   "unload <plugin>",
		Short: "Unload a plugin and detach its commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnload(cmd, rootFlags, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.cascade, "cascade", false, "Also unload plugins that depend on it")

	return cmd
}

func runUnload(cmd *cobra.Command, rootFlags *rootFlags, opts *unloadOptions, name string) error {
	app, err := newAppContext(rootFlags, false)
	if err != nil {
		return newCommandError("unload", "preparing runtime", err, "Check the configuration file and try again.")
	}
	if _, err := app.bootstrap(); err != nil {
		return newCommandError("unload", "discovering plugins", err, "Check the plugin directory permissions and try again.")
	}

	ctx, cancel := app.operationContext()
	defer cancel()

	if err := app.Controller.Unload(ctx, name, opts.cascade); err != nil {
		var blocked plugin.ErrDependentsStillLoaded
		if errors.As(err, &blocked) {
			return newCommandError("unload", fmt.Sprintf("unloading plugin %q", name), err,
				"Pass --cascade to unload its dependents too.")
		}
		return newCommandError("unload", fmt.Sprintf("unloading plugin %q", name), err, "Run 'warden plugins list' to inspect plugin states.")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Unloaded %s.\n", name)
	return nil
}

func newReloadCmd(rootFlags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reload <plugin>",
		Short: "Reload a plugin from its source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReload(cmd, rootFlags, args[0])
		},
	}

	return cmd
}

func runReload(cmd *cobra.Command, rootFlags *rootFlags, name string) error {
	app, err := newAppContext(rootFlags, false)
	if err != nil {
		return newCommandError("reload", "preparing runtime", err, "Check the configuration file and try again.")
	}
	if _, err := app.bootstrap(); err != nil {
		return newCommandError("reload", "discovering plugins", err, "Check the plugin directory permissions and try again.")
	}

	ctx, cancel := app.operationContext()
	defer cancel()

	if err := app.Controller.Reload(ctx, name); err != nil {
		return newCommandError("reload", fmt.Sprintf("reloading plugin %q", name), err,
			"Fix the plugin source and run 'warden plugins load "+name+"' to retry.")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Reloaded %s.\n", name)
	return nil
}

func newReloadAllCmd(rootFlags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reload-all",
		Short: "Reload every loaded plugin from disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReloadAll(cmd, rootFlags)
		},
	}

	return cmd
}

func runReloadAll(cmd *cobra.Command, rootFlags *rootFlags) error {
	app, err := newAppContext(rootFlags, true)
	if err != nil {
		return newCommandError("reload-all", "preparing runtime", err, "Check the configuration file and try again.")
	}
	if _, err := app.bootstrap(); err != nil {
		return newCommandError("reload-all", "discovering plugins", err, "Check the plugin directory permissions and try again.")
	}

	ctx, cancel := app.operationContext()
	defer cancel()

	result, err := app.Controller.ReloadAll(ctx)
	if err != nil {
		return newCommandError("reload-all", "reloading plugins", err, "Run 'warden plugins list' to inspect plugin states.")
	}

	printBatchResult(cmd, result)
	return nil
}

func printBatchResult(cmd *cobra.Command, result *plugin.BatchResult) {
	out := cmd.OutOrStdout()

	loaded := 0
	for _, entry := range result.Entries {
		if entry.Err == nil {
			loaded++
		}
	}
	fmt.Fprintf(out, "Reloaded %d of %d plugins.\n", loaded, len(result.Entries))

	for _, entry := range result.Failed() {
		fmt.Fprintf(out, "  %s: %v\n", entry.Name, entry.Err)
	}
}
