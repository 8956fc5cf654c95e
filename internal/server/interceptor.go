package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

// RequestIDHeader is read from incoming metadata when the caller supplies one.
const RequestIDHeader = "x-request-id"

// LoggingInterceptor tags each call with a req_id and logs its outcome.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		reqID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(RequestIDHeader); len(v) > 0 {
				reqID = v[0]
			}
		}
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx = common.WithRequestID(ctx, reqID)

		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			logger.Error("grpc.call.failed",
				"req_id", reqID, "method", info.FullMethod,
				"code", status.Code(err).String(), "error", err, "elapsed_ms", elapsed)
			return resp, err
		}
		logger.Info("grpc.call.ok", "req_id", reqID, "method", info.FullMethod, "elapsed_ms", elapsed)
		return resp, nil
	}
}
