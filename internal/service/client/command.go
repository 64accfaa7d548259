package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/oshokin/uwb-telemetry/internal/config"
	"github.com/oshokin/uwb-telemetry/internal/events"
	"github.com/oshokin/uwb-telemetry/internal/logger"
	"github.com/oshokin/uwb-telemetry/internal/service/common"
	"github.com/oshokin/uwb-telemetry/internal/service/ingest"
	"github.com/oshokin/uwb-telemetry/internal/version"
	"github.com/oshokin/uwb-telemetry/internal/wire"
	"github.com/oshokin/uwb-telemetry/internal/worker"
)

// Options configures how uwb-ctl reaches the daemon.
type Options struct {
	// ConfigPath to the settings file, defaults to the standard filename if empty.
	ConfigPath string
	// ServerAddress overrides the server address from config when specified.
	// With an address the settings file may be missing.
	ServerAddress string
	// Timeout overrides the configured call timeout.
	Timeout time.Duration
	// Out receives command output, os.Stdout when nil.
	Out io.Writer
}

// StartLive asks the daemon to start a serial slot.
func StartLive(ctx context.Context, opts *Options, req ingest.LiveRequest) error {
	return withClient(ctx, opts, func(ctx context.Context, c *common.Client) error {
		if err := c.StartLive(ctx, req); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Live slot started", "slot", worker.LiveSlot(req.Slot), "port", req.Port)

		return nil
	})
}

// StopLive asks the daemon to stop a serial slot.
func StopLive(ctx context.Context, opts *Options, slot int) error {
	return withClient(ctx, opts, func(ctx context.Context, c *common.Client) error {
		if err := c.StopLive(ctx, slot); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Live slot stopped", "slot", worker.LiveSlot(slot))

		return nil
	})
}

// StartReplay asks the daemon to replay a file. A relative path is resolved
// against the working directory of uwb-ctl.
func StartReplay(ctx context.Context, opts *Options, req ingest.ReplayRequest) error {
	if req.Path != "" && !filepath.IsAbs(req.Path) {
		abs, err := filepath.Abs(req.Path)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", req.Path, err)
		}

		req.Path = abs
	}

	return withClient(ctx, opts, func(ctx context.Context, c *common.Client) error {
		if err := c.StartReplay(ctx, req); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Replay slot started", "slot", worker.ReplaySlot(req.Slot), "file", req.Path)

		return nil
	})
}

// StopReplay asks the daemon to stop a replay slot.
func StopReplay(ctx context.Context, opts *Options, slot int) error {
	return withClient(ctx, opts, func(ctx context.Context, c *common.Client) error {
		if err := c.StopReplay(ctx, slot); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Replay slot stopped", "slot", worker.ReplaySlot(slot))

		return nil
	})
}

// Reset stops every worker and clears the aggregate.
func Reset(ctx context.Context, opts *Options) error {
	return withClient(ctx, opts, func(ctx context.Context, c *common.Client) error {
		if err := c.Reset(ctx); err != nil {
			return err
		}

		logger.Info(ctx, "Aggregate reset")

		return nil
	})
}

// Snapshot prints the aggregate as JSON. With anchorsOnly it prints the
// anchor document also used by the daemon snapshot file.
func Snapshot(ctx context.Context, opts *Options, anchorsOnly bool) error {
	return withClient(ctx, opts, func(ctx context.Context, c *common.Client) error {
		snap, err := c.Snapshot(ctx)
		if err != nil {
			return err
		}

		var doc proto.Message = wire.SnapshotToStruct(snap)
		if anchorsOnly {
			doc = wire.AnchorsDocument(snap.Anchors)
		}

		data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}

		_, err = fmt.Fprintln(output(opts), string(data))

		return err
	})
}

// Workers prints one line per claimed slot.
func Workers(ctx context.Context, opts *Options) error {
	return withClient(ctx, opts, func(ctx context.Context, c *common.Client) error {
		statuses, err := c.Workers(ctx)
		if err != nil {
			return err
		}

		return printWorkers(output(opts), statuses)
	})
}

// Watch prints events until ctx is canceled or the daemon goes away.
func Watch(ctx context.Context, opts *Options, asJSON bool) error {
	return withClient(ctx, opts, func(ctx context.Context, c *common.Client) error {
		out := output(opts)

		return c.Watch(ctx, func(e events.Event) error {
			if asJSON {
				data, err := protojson.Marshal(wire.EventToStruct(e))
				if err != nil {
					return fmt.Errorf("marshal event: %w", err)
				}

				_, err = fmt.Fprintln(out, string(data))

				return err
			}

			_, err := fmt.Fprintln(out, formatEvent(e))

			return err
		})
	})
}

// Ports prints the serial ports of this host.
func Ports(opts *Options) error {
	ports, err := worker.ListPorts()
	if err != nil {
		return err
	}

	out := output(opts)

	if len(ports) == 0 {
		_, err = fmt.Fprintln(out, "no serial ports found")

		return err
	}

	for _, port := range ports {
		if _, err = fmt.Fprintln(out, port); err != nil {
			return err
		}
	}

	return nil
}

// withClient loads the settings, connects and runs fn.
func withClient(ctx context.Context, opts *Options, fn func(ctx context.Context, c *common.Client) error) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "uwb-ctl")

	serverAddress, timeout, err := resolveTarget(opts)
	if err != nil {
		return err
	}

	clientOptions := []common.Option{
		common.WithCallTimeout(timeout),
		common.WithDialOptions(grpc.WithUserAgent(version.UserAgent("uwb-ctl"))),
	}

	// Identify current user and hostname for the daemon audit log.
	if caller, err := common.DetectCaller(); err == nil {
		clientOptions = append(clientOptions, common.WithCaller(caller))
	} else {
		logger.DebugKV(ctx, "Unable to detect caller", "error", err)
	}

	client, err := common.Dial(ctx, serverAddress, clientOptions...)
	if err != nil {
		return err
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	return fn(ctx, client)
}

// resolveTarget picks the server address and call timeout from the options and settings.
func resolveTarget(opts *Options) (string, time.Duration, error) {
	serverAddress := opts.ServerAddress
	timeout := config.DefaultTimeout

	cfg, err := config.Load(opts.ConfigPath)

	switch {
	case err == nil:
		timeout = cfg.Timeout.Std()

		if serverAddress == "" {
			serverAddress = cfg.ServerAddress
		}
	case serverAddress != "" && errors.Is(err, os.ErrNotExist):
		// The address is enough without a settings file.
	default:
		return "", 0, err
	}

	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	return serverAddress, timeout, nil
}

func output(opts *Options) io.Writer {
	if opts.Out != nil {
		return opts.Out
	}

	return os.Stdout
}

func printWorkers(w io.Writer, statuses []worker.Status) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "SLOT\tSOURCE\tSTATE\tSTARTED\tRUN\tERROR")

	for _, st := range statuses {
		state := "finished"
		if st.Running {
			state = "running"
		}

		errText := "-"
		if st.Err != nil {
			errText = st.Err.Error()
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			st.Slot, st.SourceID, state, st.StartedAt.Local().Format(time.DateTime), st.RunID, errText)
	}

	return tw.Flush()
}

// formatEvent renders an event as one human readable line.
func formatEvent(e events.Event) string {
	at := e.At.Local().Format("15:04:05.000")

	switch e.Kind {
	case events.KindReplayEnded:
		return fmt.Sprintf("%s %s replay ended (%s)", at, e.SourceID, e.Slot)
	case events.KindMeasurement:
		if m := e.Measurement; m != nil {
			anchors := make([]string, 0, len(m.Anchors))
			for _, a := range m.Anchors {
				anchors = append(anchors, fmt.Sprintf("%s=%.2f", a.AnchorID, a.DistanceToTag))
			}

			return fmt.Sprintf("%s %s ts=%s pos=%.2f,%.2f,%.2f qf=%d ranges[%s]",
				at, e.SourceID, m.Timestamp, m.Fix.X, m.Fix.Y, m.Fix.Z, m.Fix.QualityFactor, strings.Join(anchors, " "))
		}
	}

	return fmt.Sprintf("%s %s %s", at, e.SourceID, e.Kind)
}
