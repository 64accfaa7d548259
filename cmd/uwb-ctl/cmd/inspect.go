package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/uwb-telemetry/internal/service/client"
)

var (
	// anchorsOnly limits the snapshot output to the anchor document.
	anchorsOnly bool
	// watchJSON prints events as JSON documents.
	watchJSON bool

	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Stop every slot and clear anchors and tag positions.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			return client.Reset(ctx, options(cmd))
		},
	}

	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Print the known anchors and the latest fix of every source as JSON.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			return client.Snapshot(ctx, options(cmd), anchorsOnly)
		},
	}

	workersCmd = &cobra.Command{
		Use:   "workers",
		Short: "List the claimed slots.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			return client.Workers(ctx, options(cmd))
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Follow measurements and replay ends until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			return client.Watch(ctx, options(cmd), watchJSON)
		},
	}

	portsCmd = &cobra.Command{
		Use:   "ports",
		Short: "List the serial ports of this host.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client.Ports(options(cmd))
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	snapshotCmd.Flags().BoolVar(&anchorsOnly, "anchors", false, "print only the anchor document")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print events as JSON")
}
