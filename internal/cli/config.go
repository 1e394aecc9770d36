package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vvka-141/txretry/internal/config"
	"github.com/vvka-141/txretry/internal/tui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage txretry.yaml",
}

var configInitFlags struct {
	overwrite bool
}

var configInitCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write an example txretry.yaml",
	Long: `Writes a txretry.yaml with every section filled in with defaults.

Examples:
  # Create config in current directory
  txretry config init

  # Create config in a specific directory
  txretry config init ./deploy`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().BoolVar(&configInitFlags.overwrite, "overwrite", false, "Replace an existing txretry.yaml")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", targetDir, err)
	}

	path := filepath.Join(targetDir, config.ConfigFileName)
	if _, err := os.Stat(path); err == nil && !configInitFlags.overwrite {
		return fmt.Errorf("%s already exists; use --overwrite to replace it", path)
	}

	if err := config.Save(path, config.Example()); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), tui.SuccessStyle.Render(fmt.Sprintf("%s Wrote %s", tui.SymbolCheck, path)))
	return nil
}
