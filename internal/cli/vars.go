package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vvka-141/txretry/internal/tui"
	"github.com/vvka-141/txretry/internal/txattr"
	"github.com/vvka-141/txretry/pkg/txretry"
)

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "Inspect the session variables transactions may set",
}

var varsFlags struct {
	all       bool
	immutable bool
}

var varsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known session variables",
	Long: `Lists the session variables the transaction configurator knows about.

By default only documented, settable variables are shown.
  --all        include undocumented variables
  --immutable  include variables that can be shown but not set`,
	Args: cobra.NoArgs,
	RunE: runVarsList,
}

var varsShowCmd = &cobra.Command{
	Use:               "show <name>",
	Short:             "Describe one session variable",
	Args:              RequireVariableName,
	ValidArgsFunction: completeVariableNames,
	RunE:              runVarsShow,
}

func init() {
	rootCmd.AddCommand(varsCmd)
	varsCmd.AddCommand(varsListCmd, varsShowCmd)

	varsListCmd.Flags().BoolVar(&varsFlags.all, "all", false, "Include undocumented variables")
	varsListCmd.Flags().BoolVar(&varsFlags.immutable, "immutable", false, "Include immutable variables")
}

// filterVariables applies the --all and --immutable switches.
func filterVariables(vars []txattr.Variable, all, immutable bool) []txattr.Variable {
	var out []txattr.Variable
	for _, v := range vars {
		if !all && !v.Official() {
			continue
		}
		if !immutable && !v.Mutable() {
			continue
		}
		out = append(out, v)
	}
	return out
}

func runVarsList(cmd *cobra.Command, args []string) error {
	vars := filterVariables(txattr.Variables(), varsFlags.all, varsFlags.immutable)
	fmt.Fprintln(cmd.OutOrStdout(), tui.VariablesTable(vars))
	fmt.Fprintln(cmd.ErrOrStderr(), tui.MutedCellStyle.Render(fmt.Sprintf("%d variables", len(vars))))
	return nil
}

func runVarsShow(cmd *cobra.Command, args []string) error {
	v, ok := txattr.LookupVariable(args[0])
	if !ok {
		return fmt.Errorf("variable %q: %w", args[0], txretry.ErrUnknownVariable)
	}
	fmt.Fprintln(cmd.OutOrStdout(), tui.VariablesTable([]txattr.Variable{v}))
	return nil
}
