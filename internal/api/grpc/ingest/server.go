package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/uwb-telemetry/internal/aggregate"
	"github.com/oshokin/uwb-telemetry/internal/domain/telemetry"
	"github.com/oshokin/uwb-telemetry/internal/events"
	"github.com/oshokin/uwb-telemetry/internal/logger"
	svc "github.com/oshokin/uwb-telemetry/internal/service/ingest"
	"github.com/oshokin/uwb-telemetry/internal/wire"
	"github.com/oshokin/uwb-telemetry/internal/worker"
)

// watchBuffer is the event backlog of one Watch stream. A slower client loses events.
const watchBuffer = 256

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	StartLive(ctx context.Context, req svc.LiveRequest) error
	StopLive(ctx context.Context, index int) error
	StartReplay(ctx context.Context, req svc.ReplayRequest) error
	StopReplay(ctx context.Context, index int) error
	Reset(ctx context.Context) error
	Snapshot() aggregate.Snapshot
	Workers() []worker.Status
	Subscribe(id string, ch chan<- events.Event) error
	Unsubscribe(id string) error
}

// Server implements IngestService.
type Server struct {
	// service provides the ingestion operations.
	service Service

	// closing ends open Watch streams so GracefulStop can finish.
	closing   chan struct{}
	closeOnce sync.Once
}

var _ IngestServiceServer = (*Server)(nil)

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
		closing: make(chan struct{}),
	}
}

// Close ends every Watch stream. Unary calls are not affected.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// StartLive starts a serial worker.
func (s *Server) StartLive(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	req, err := wire.LiveRequestFromStruct(in)
	if err != nil {
		return nil, toStatus(err)
	}

	if err = s.service.StartLive(ctx, req); err != nil {
		return nil, toStatus(err)
	}

	return new(emptypb.Empty), nil
}

// StopLive stops a serial worker.
func (s *Server) StopLive(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	index, err := wire.SlotFromStruct(in)
	if err != nil {
		return nil, toStatus(err)
	}

	if err = s.service.StopLive(ctx, index); err != nil {
		return nil, toStatus(err)
	}

	return new(emptypb.Empty), nil
}

// StartReplay starts a replay worker.
func (s *Server) StartReplay(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	req, err := wire.ReplayRequestFromStruct(in)
	if err != nil {
		return nil, toStatus(err)
	}

	if err = s.service.StartReplay(ctx, req); err != nil {
		return nil, toStatus(err)
	}

	return new(emptypb.Empty), nil
}

// StopReplay stops a replay worker.
func (s *Server) StopReplay(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	index, err := wire.SlotFromStruct(in)
	if err != nil {
		return nil, toStatus(err)
	}

	if err = s.service.StopReplay(ctx, index); err != nil {
		return nil, toStatus(err)
	}

	return new(emptypb.Empty), nil
}

// Reset stops every worker and clears the aggregate.
func (s *Server) Reset(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.service.Reset(ctx); err != nil {
		return nil, toStatus(err)
	}

	return new(emptypb.Empty), nil
}

// GetSnapshot returns the current aggregate.
func (s *Server) GetSnapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return wire.SnapshotToStruct(s.service.Snapshot()), nil
}

// ListWorkers returns the status of every claimed slot.
func (s *Server) ListWorkers(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return wire.WorkersToStruct(s.service.Workers()), nil
}

// Watch streams ingestion events until the client leaves or the server closes.
func (s *Server) Watch(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	id := uuid.NewString()
	ch := make(chan events.Event, watchBuffer)

	if err := s.service.Subscribe(id, ch); err != nil {
		return toStatus(err)
	}

	defer func() {
		if err := s.service.Unsubscribe(id); err != nil && !errors.Is(err, events.ErrBusClosed) {
			logger.WarnKV(ctx, "Failed to unsubscribe watcher", "watcher", id, "error", err)
		}
	}()

	logger.DebugKV(ctx, "Watcher connected", "watcher", id)

	for {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case <-s.closing:
			return nil
		case e := <-ch:
			if err := stream.Send(wire.EventToStruct(e)); err != nil {
				return err
			}
		}
	}
}

// toStatus maps service errors to gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code

	switch {
	case errors.Is(err, svc.ErrInvalidSlot),
		errors.Is(err, svc.ErrInvalidRequest),
		errors.Is(err, wire.ErrInvalidMessage),
		errors.Is(err, telemetry.ErrUnidentifiableSource):
		code = codes.InvalidArgument
	case errors.Is(err, svc.ErrSlotBusy):
		code = codes.FailedPrecondition
	case errors.Is(err, telemetry.ErrSourceNotFound):
		code = codes.NotFound
	case errors.Is(err, telemetry.ErrConnectionFault), errors.Is(err, events.ErrBusClosed):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}

	return status.Error(code, err.Error())
}
