// Command osintd runs OSINT investigations against a target using external
// tools and web sources, then consolidates what they find into one report.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stake-plus/osintops/src/config"
	"github.com/stake-plus/osintops/src/logging"
)

type globalFlags struct {
	envFile  string
	logLevel string
	dev      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	var logger *zap.Logger

	root := &cobra.Command{
		Use:           "osintd",
		Short:         "OSINT investigation orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnvFile(flags.envFile, cmd.Flags().Changed("env-file")); err != nil {
				return fmt.Errorf("env file: %w", err)
			}
			level := flags.logLevel
			if level == "" {
				level = os.Getenv("LOG_LEVEL")
			}
			l, err := logging.New(logging.Options{Level: level, Development: flags.dev})
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file to load before reading settings")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flags.dev, "dev", false, "human-readable console logging")

	getLogger := func() *zap.Logger { return logging.OrNop(logger) }
	root.AddCommand(
		newServeCmd(getLogger),
		newInvestigateCmd(getLogger),
		newDemoCmd(getLogger),
		newAgentsCmd(getLogger),
	)
	return root
}
