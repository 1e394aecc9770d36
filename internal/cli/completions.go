package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/vvka-141/txretry/internal/bank"
	"github.com/vvka-141/txretry/internal/txattr"
)

var (
	logFormats = []string{logFormatConsole, logFormatJSON}
	strategies = []string{string(bank.StrategyTransaction), string(bank.StrategySavepoint)}
)

func filterPrefix(values []string, toComplete string) []string {
	var matches []string
	for _, v := range values {
		if strings.HasPrefix(v, toComplete) {
			matches = append(matches, v)
		}
	}
	return matches
}

// completeLogFormats provides shell completion for --log-format.
func completeLogFormats(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return filterPrefix(logFormats, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeStrategies provides shell completion for --strategy.
func completeStrategies(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return filterPrefix(strategies, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeVariableNames provides shell completion for session variable names.
func completeVariableNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var names []string
	for _, v := range txattr.Variables() {
		names = append(names, v.Name)
	}
	return filterPrefix(names, toComplete), cobra.ShellCompDirectiveNoFileComp
}
