package ingest

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "uwb.ingest.v1.IngestService"

// Full method names.
const (
	StartLiveMethod   = "/" + ServiceName + "/StartLive"
	StopLiveMethod    = "/" + ServiceName + "/StopLive"
	StartReplayMethod = "/" + ServiceName + "/StartReplay"
	StopReplayMethod  = "/" + ServiceName + "/StopReplay"
	ResetMethod       = "/" + ServiceName + "/Reset"
	GetSnapshotMethod = "/" + ServiceName + "/GetSnapshot"
	ListWorkersMethod = "/" + ServiceName + "/ListWorkers"
	WatchMethod       = "/" + ServiceName + "/Watch"
)

// IngestServiceServer is the server API of the ingestion service.
type IngestServiceServer interface {
	StartLive(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
	StopLive(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
	StartReplay(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
	StopReplay(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
	Reset(ctx context.Context, in *emptypb.Empty) (*emptypb.Empty, error)
	GetSnapshot(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	ListWorkers(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	Watch(in *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

// ServiceDesc describes IngestService for grpc.ServiceRegistrar.
//
//nolint:gochecknoglobals // Descriptors are package-level in generated code too.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IngestServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StartLive",
			Handler: unary(StartLiveMethod, func(s IngestServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.StartLive(ctx, in)
			}),
		},
		{
			MethodName: "StopLive",
			Handler: unary(StopLiveMethod, func(s IngestServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.StopLive(ctx, in)
			}),
		},
		{
			MethodName: "StartReplay",
			Handler: unary(StartReplayMethod, func(s IngestServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.StartReplay(ctx, in)
			}),
		},
		{
			MethodName: "StopReplay",
			Handler: unary(StopReplayMethod, func(s IngestServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.StopReplay(ctx, in)
			}),
		},
		{
			MethodName: "Reset",
			Handler: unary(ResetMethod, func(s IngestServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.Reset(ctx, in)
			}),
		},
		{
			MethodName: "GetSnapshot",
			Handler: unary(GetSnapshotMethod, func(s IngestServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.GetSnapshot(ctx, in)
			}),
		},
		{
			MethodName: "ListWorkers",
			Handler: unary(ListWorkersMethod, func(s IngestServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.ListWorkers(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
}

// RegisterIngestServiceServer registers srv on s.
func RegisterIngestServiceServer(s grpc.ServiceRegistrar, srv IngestServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary builds a method handler that decodes Req and routes it through the
// interceptor chain.
func unary[Req any](
	method string,
	call func(s IngestServiceServer, ctx context.Context, in *Req) (any, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}

		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(IngestServiceServer), ctx, req.(*Req)) //nolint:forcetypeassert // Guaranteed by HandlerType.
		}

		if interceptor == nil {
			return handler(ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: method,
		}

		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	return srv.(IngestServiceServer).Watch( //nolint:forcetypeassert // Guaranteed by HandlerType.
		in,
		&grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream},
	)
}

// IngestServiceClient is the client API of the ingestion service.
type IngestServiceClient interface {
	StartLive(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	StopLive(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	StartReplay(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	StopReplay(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Reset(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
	GetSnapshot(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListWorkers(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	Watch(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
}

type ingestServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewIngestServiceClient creates a client stub over cc.
func NewIngestServiceClient(cc grpc.ClientConnInterface) IngestServiceClient {
	return &ingestServiceClient{cc: cc}
}

func (c *ingestServiceClient) StartLive(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, StartLiveMethod, in, opts)
}

func (c *ingestServiceClient) StopLive(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, StopLiveMethod, in, opts)
}

func (c *ingestServiceClient) StartReplay(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, StartReplayMethod, in, opts)
}

func (c *ingestServiceClient) StopReplay(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, StopReplayMethod, in, opts)
}

func (c *ingestServiceClient) Reset(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, ResetMethod, in, opts)
}

func (c *ingestServiceClient) GetSnapshot(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, GetSnapshotMethod, in, opts)
}

func (c *ingestServiceClient) ListWorkers(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, ListWorkersMethod, in, opts)
}

func (c *ingestServiceClient) Watch(
	ctx context.Context,
	in *emptypb.Empty,
	opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], WatchMethod, opts...)
	if err != nil {
		return nil, err
	}

	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err = x.SendMsg(in); err != nil {
		return nil, err
	}

	if err = x.CloseSend(); err != nil {
		return nil, err
	}

	return x, nil
}

func invoke[Res any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Res, error) {
	out := new(Res)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
