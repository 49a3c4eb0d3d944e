// Package main implements the medlex CLI: batch scanning of note tables and
// the HTTP scanning service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gcbaptista/medlex-spotter/internal/logging"
)

var (
	// version information, set at build time with -ldflags
	version = "dev"
	commit  = "none"

	logLevel  string
	logFormat string

	// logger is built by the root command before any subcommand runs
	logger = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "medlex:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "medlex",
	Short: "Spot medication mentions in clinical notes",
	Long: `medlex scans free-text clinical notes for configured medication terms.
Each note gets one has_<canonical> flag per target, set when the medication
is mentioned outside a negated context, plus the list of matched spans.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(logLevel, logFormat)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(versionCmd)
}

// versionCmd prints build information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "medlex %s (commit %s)\n", version, commit)
	},
}
