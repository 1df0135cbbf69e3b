package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPluginsCmd(rootFlags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Manage the plugin registry and lifecycle",
	}

	cmd.AddCommand(newListCmd(rootFlags))
	cmd.AddCommand(newLoadCmd(rootFlags))
	cmd.AddCommand(newUnloadCmd(rootFlags))
	cmd.AddCommand(newReloadCmd(rootFlags))
	cmd.AddCommand(newReloadAllCmd(rootFlags))
	cmd.AddCommand(newInfoCmd(rootFlags))
	cmd.AddCommand(newRescanCmd(rootFlags))
	cmd.AddCommand(newStatusCmd(rootFlags))

	return cmd
}

func newCommandError(operation, context string, cause error, suggestion string) error {
	return &commandError{operation: operation, context: context, cause: cause, suggestion: suggestion}
}

type commandError struct {
	operation  string
	context    string
	cause      error
	suggestion string
}

func (e *commandError) Error() string {
	return fmt.Sprintf("Failed to %s: %s\n\nError: %v\n\nSuggestion: %s", e.operation, e.context, e.cause, e.suggestion)
}

func (e *commandError) Unwrap() error {
	return e.cause
}
