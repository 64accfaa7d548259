package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/uwb-telemetry/internal/config"
	"github.com/oshokin/uwb-telemetry/internal/service/server"
	"github.com/oshokin/uwb-telemetry/internal/version"
)

var (
	// options collects the flag values passed to the daemon.
	options = new(server.Options)
	// capture enables capture files for the slots given by --live.
	capture bool

	// rootCmd represents the base command for running the ingestion daemon.
	rootCmd = &cobra.Command{
		Use:   "uwb-ingest [listen-address]",
		Short: "Ingest UWB tag telemetry from serial devices and recorded logs.",
		Long: `Starts the ingestion daemon that reads positioning telemetry from UWB tags.

Live slots read tags attached over serial ports, replay slots play recorded CSV
captures back at a fixed pace. Every accepted record updates the aggregate view
of anchors and tag positions, which is served over gRPC to uwb-ctl.

Slots listed in the configuration file start with the daemon. --live and
--replay add slots or replace configured ones with the same index:

  uwb-ingest --live 1=COM4 --live 2=/dev/ttyACM0@115200 --replay 1=logs/walk-3.csv

Only the port from server_addr is used for listening (e.g., :7070); a listen
address argument overrides it. Known anchors are saved to the snapshot file on
shutdown and restored at start-up.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			if len(args) > 0 {
				options.ListenAddress = args[0]
			}

			for i := range options.Live {
				options.Live[i].Logging = capture
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the uwb-ingest CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()

	// Setup command flags with consistent naming and descriptions.
	flags.StringVarP(&options.ConfigPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&options.SnapshotFile, "snapshot-file", "s", "", "path to persist known anchors")
	flags.StringVar(&options.MetricsAddress, "metrics-addr", "", "listen address of the Prometheus endpoint")
	flags.StringVar(&options.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.VarP(liveSlotsValue{slots: &options.Live}, "live", "l", "start a live slot, repeatable")
	flags.VarP(replaySlotsValue{slots: &options.Replay}, "replay", "r", "start a replay slot, repeatable")
	flags.BoolVar(&capture, "capture", false, "write capture files for the --live slots")
}
