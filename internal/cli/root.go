package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "txretry",
	Short: "Serializable transaction retries for CockroachDB and PostgreSQL",
	Long: banner + `

txretry runs business transactions under SERIALIZABLE isolation and retries
them when the database reports a serialization failure (SQLSTATE 40001).
Retries happen either around the whole transaction or inside a savepoint.

The bank commands drive a sample ledger that exercises both strategies
under contention and verifies that money is conserved.

Exit Codes:
  0  - Success
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration, retry policy or transaction options
  11 - Database connection failed
  12 - Retries exhausted`,
	SilenceUsage: true,
}

// Global flags shared by every command.
var globalFlags struct {
	configPath   string
	connection   string
	logFormat    string
	metricsAddr  string
	otlpEndpoint string
}

// Execute runs the root command
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo()
		return nil
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.Bool("help", false, "Help for txretry")
	flags.BoolP("verbose", "v", false, "Enable verbose output for all commands")
	flags.StringVar(&globalFlags.configPath, "config", "",
		"Path to the config file (default: ./txretry.yaml when present)")
	flags.StringVarP(&globalFlags.connection, "connection", "c", "",
		"Connection string (overrides TXRETRY_DATABASE_URL, DATABASE_URL and the config file)")
	flags.StringVar(&globalFlags.logFormat, "log-format", "",
		"Log format: console or json (default: console)")
	flags.StringVar(&globalFlags.metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address, e.g. :9090")
	flags.StringVar(&globalFlags.otlpEndpoint, "otlp-endpoint", "",
		"Export OpenTelemetry metrics to this OTLP/gRPC collector, e.g. http://localhost:4317")

	_ = rootCmd.RegisterFlagCompletionFunc("log-format", completeLogFormats)
}

// getVerboseFlag safely retrieves the verbose flag value
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to get verbose flag: %v\n", err)
		return false
	}
	return verbose
}
