package ingest

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/oshokin/uwb-telemetry/internal/logger"
)

// CallerMetadataKey carries the "user@host" of the control client.
const CallerMetadataKey = "x-uwb-caller"

// CallerFromContext returns the caller sent by the client, or "unknown".
func CallerFromContext(ctx context.Context) string {
	if values := metadata.ValueFromIncomingContext(ctx, CallerMetadataKey); len(values) > 0 && values[0] != "" {
		return values[0]
	}

	return "unknown"
}

// AuditUnaryServerInterceptor logs every control call with its caller and outcome.
func AuditUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		ctx = logger.WithFields(ctx, "method", info.FullMethod, "caller", CallerFromContext(ctx))

		resp, err := handler(ctx, req)

		kvs := []any{"code", status.Code(err).String(), "duration", time.Since(start)}
		if err != nil {
			logger.WarnKV(ctx, "Control call failed", append(kvs, "error", err)...)
		} else {
			logger.InfoKV(ctx, "Control call", kvs...)
		}

		return resp, err
	}
}
