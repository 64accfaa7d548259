package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/uwb-telemetry/internal/config"
	"github.com/oshokin/uwb-telemetry/internal/logger"
	"github.com/oshokin/uwb-telemetry/internal/service/client"
	"github.com/oshokin/uwb-telemetry/internal/version"
)

var (
	// cfgPath stores the configuration file path.
	cfgPath string
	// serverAddress overrides the daemon address from the configuration.
	serverAddress string
	// timeout overrides the configured call timeout.
	timeout time.Duration
	// logLevel sets the verbosity of uwb-ctl itself.
	logLevel string

	// rootCmd represents the base command for controlling the daemon.
	rootCmd = &cobra.Command{
		Use:   "uwb-ctl",
		Short: "Control a running uwb-ingest daemon.",
		Long: `Starts and stops ingestion slots of a uwb-ingest daemon, resets its aggregate,
prints the current snapshot and follows the event stream.

The daemon address is read from the configuration file or given with --server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return errUnknownLogLevel
			}

			logger.SetLevel(level)

			return nil
		},
	}
)

var errUnknownLogLevel = errors.New("unknown log level")

// Execute runs the uwb-ctl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// options builds the client options from the persistent flags.
func options(cmd *cobra.Command) *client.Options {
	return &client.Options{
		ConfigPath:    cfgPath,
		ServerAddress: serverAddress,
		Timeout:       timeout,
		Out:           cmd.OutOrStdout(),
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&serverAddress, "server", "s", "", "daemon address, overrides the configuration")
	flags.DurationVarP(&timeout, "timeout", "t", 0, "call timeout, overrides the configuration")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(liveCmd, replayCmd, resetCmd, snapshotCmd, workersCmd, watchCmd, portsCmd)
}
