package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RequireVariableName validates that exactly one variable name argument is provided.
// Returns a helpful error message with usage and examples if missing or too many.
func RequireVariableName(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf(`missing required argument: <name>

Usage: %s

Example:
  %s transaction_isolation

Use 'txretry vars list --all' to see known variables.`, cmd.UseLine(), cmd.CommandPath())
	}
	if len(args) > 1 {
		return fmt.Errorf("accepts 1 arg(s), received %d", len(args))
	}
	return nil
}
