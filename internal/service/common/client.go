//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/oshokin/uwb-telemetry/internal/aggregate"
	api "github.com/oshokin/uwb-telemetry/internal/api/grpc/ingest"
	"github.com/oshokin/uwb-telemetry/internal/config"
	"github.com/oshokin/uwb-telemetry/internal/events"
	"github.com/oshokin/uwb-telemetry/internal/service/ingest"
	"github.com/oshokin/uwb-telemetry/internal/wire"
	"github.com/oshokin/uwb-telemetry/internal/worker"
)

// Client wraps the gRPC IngestService client with typed helpers.
type Client struct {
	// conn is the underlying gRPC connection to the daemon.
	conn *grpc.ClientConn
	// api is the IngestService client stub.
	api api.IngestServiceClient

	// callTimeout is the default timeout for individual unary calls.
	callTimeout time.Duration
	// caller is sent as metadata with every call when set.
	caller string
	// dialOptions are appended to the default transport options.
	dialOptions []grpc.DialOption
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for unary calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithCaller attaches the caller identity to every call.
func WithCaller(caller Caller) Option {
	return func(c *Client) {
		c.caller = caller.String()
	}
}

// WithDialOptions adds gRPC dial options, e.g. a custom dialer.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Dial establishes a gRPC connection to the ingestion daemon.
// Note: this uses insecure transport credentials; the daemon is meant for a
// trusted local network.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	client := &Client{
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	dialOptions := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, client.dialOptions...)

	conn, err := grpc.NewClient(address, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial ingestion daemon: %w", err)
	}

	client.conn = conn
	client.api = api.NewIngestServiceClient(conn)

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// StartLive starts a serial worker on the daemon.
func (c *Client) StartLive(ctx context.Context, req ingest.LiveRequest) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if _, err := c.api.StartLive(callCtx, wire.LiveRequestToStruct(req)); err != nil {
		return fmt.Errorf("start live: %w", err)
	}

	return nil
}

// StopLive stops a serial worker.
func (c *Client) StopLive(ctx context.Context, slot int) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if _, err := c.api.StopLive(callCtx, wire.SlotToStruct(slot)); err != nil {
		return fmt.Errorf("stop live: %w", err)
	}

	return nil
}

// StartReplay starts a replay worker on the daemon. The path is resolved by the daemon.
func (c *Client) StartReplay(ctx context.Context, req ingest.ReplayRequest) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if _, err := c.api.StartReplay(callCtx, wire.ReplayRequestToStruct(req)); err != nil {
		return fmt.Errorf("start replay: %w", err)
	}

	return nil
}

// StopReplay stops a replay worker.
func (c *Client) StopReplay(ctx context.Context, slot int) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if _, err := c.api.StopReplay(callCtx, wire.SlotToStruct(slot)); err != nil {
		return fmt.Errorf("stop replay: %w", err)
	}

	return nil
}

// Reset stops every worker and clears the aggregate.
func (c *Client) Reset(ctx context.Context) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if _, err := c.api.Reset(callCtx, new(emptypb.Empty)); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	return nil
}

// Snapshot fetches the current aggregate.
func (c *Client) Snapshot(ctx context.Context) (aggregate.Snapshot, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	doc, err := c.api.GetSnapshot(callCtx, new(emptypb.Empty))
	if err != nil {
		return aggregate.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}

	return wire.SnapshotFromStruct(doc)
}

// Workers lists the claimed slots.
func (c *Client) Workers(ctx context.Context) ([]worker.Status, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	doc, err := c.api.ListWorkers(callCtx, new(emptypb.Empty))
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}

	return wire.WorkersFromStruct(doc)
}

// Watch calls fn for every event the daemon publishes until ctx is canceled,
// the daemon closes the stream or fn returns an error. The call timeout does
// not apply.
func (c *Client) Watch(ctx context.Context, fn func(events.Event) error) error {
	streamCtx, cancel := context.WithCancel(c.withCaller(ctx))
	defer cancel()

	stream, err := c.api.Watch(streamCtx, new(emptypb.Empty))
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	for {
		doc, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("watch: %w", err)
		}

		e, err := wire.EventFromStruct(doc)
		if err != nil {
			return err
		}

		if err = fn(e); err != nil {
			return err
		}
	}
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = c.withCaller(ctx)

	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

func (c *Client) withCaller(ctx context.Context) context.Context {
	if c.caller == "" {
		return ctx
	}

	return metadata.AppendToOutgoingContext(ctx, api.CallerMetadataKey, c.caller)
}
