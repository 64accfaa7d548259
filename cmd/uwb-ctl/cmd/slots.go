package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oshokin/uwb-telemetry/internal/config"
	"github.com/oshokin/uwb-telemetry/internal/service/client"
	"github.com/oshokin/uwb-telemetry/internal/service/ingest"
)

var (
	// liveRequest collects the flags of "live start".
	liveRequest ingest.LiveRequest
	// replayRequest collects the flags of "replay start".
	replayRequest ingest.ReplayRequest

	liveCmd = &cobra.Command{
		Use:   "live",
		Short: "Manage serial slots.",
	}

	liveStartCmd = &cobra.Command{
		Use:   "start <slot> <port>",
		Short: "Open a serial port, activate the tag and start reading it.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseSlot(args[0])
			if err != nil {
				return err
			}

			req := liveRequest
			req.Slot, req.Port = slot, args[1]

			ctx, stop := signalContext()
			defer stop()

			return client.StartLive(ctx, options(cmd), req)
		},
	}

	liveStopCmd = &cobra.Command{
		Use:   "stop <slot>",
		Short: "Stop a serial slot and close its port.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseSlot(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			return client.StopLive(ctx, options(cmd), slot)
		},
	}

	replayCmd = &cobra.Command{
		Use:   "replay",
		Short: "Manage replay slots.",
	}

	replayStartCmd = &cobra.Command{
		Use:   "start <slot> <file>",
		Short: "Replay a recorded capture file.",
		Long: `Replays a recorded capture file at the configured pace.

The source id is taken from --source-id or from the digits at the end of the
file name: "20261018T090000Z-4.csv" replays as "csv-4".`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseSlot(args[0])
			if err != nil {
				return err
			}

			req := replayRequest
			req.Slot, req.Path = slot, args[1]

			ctx, stop := signalContext()
			defer stop()

			return client.StartReplay(ctx, options(cmd), req)
		},
	}

	replayStopCmd = &cobra.Command{
		Use:   "stop <slot>",
		Short: "Stop a replay slot.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseSlot(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			return client.StopReplay(ctx, options(cmd), slot)
		},
	}
)

func parseSlot(s string) (int, error) {
	slot, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("slot must be a number, got %q", s)
	}

	return slot, nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	liveFlags := liveStartCmd.Flags()
	liveFlags.IntVarP(&liveRequest.BaudRate, "baud", "b", config.DefaultBaudRate, "baud rate")
	liveFlags.BoolVar(&liveRequest.EnableLogging, "capture", false, "write a capture file")
	liveFlags.StringVar(&liveRequest.Color, "color", "", "display color, next palette color when empty")

	replayFlags := replayStartCmd.Flags()
	replayFlags.StringVar(&replayRequest.SourceID, "source-id", "", "source id, derived from the file name when empty")
	replayFlags.StringVar(&replayRequest.Color, "color", "", "display color, next palette color when empty")

	liveCmd.AddCommand(liveStartCmd, liveStopCmd)
	replayCmd.AddCommand(replayStartCmd, replayStopCmd)
}
