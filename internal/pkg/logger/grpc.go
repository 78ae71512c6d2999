package logger

import (
	"context"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// GRPCInterceptorOptions configures the gRPC interceptors
type GRPCInterceptorOptions struct {
	// SkipMethods is a list of methods to skip logging (e.g., "/grpc.health.v1.Health/Check")
	SkipMethods []string
}

func (o GRPCInterceptorOptions) skipSet() map[string]bool {
	skip := make(map[string]bool, len(o.SkipMethods))
	for _, m := range o.SkipMethods {
		skip[m] = true
	}
	return skip
}

// UnaryServerInterceptor returns a unary server interceptor for logging
func UnaryServerInterceptor(logger *Logger, opts ...GRPCInterceptorOptions) grpc.UnaryServerInterceptor {
	var o GRPCInterceptorOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	skip := o.skipSet()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if skip[info.FullMethod] {
			return handler(ctx, req)
		}

		requestID := requestIDFromMetadata(ctx)
		ctx = WithRequestID(ctx, requestID)

		start := time.Now()
		resp, err := handler(ctx, req)

		logCall(logger, "gRPC call", info.FullMethod, requestID, time.Since(start), err,
			zap.String("service", path.Dir(info.FullMethod)[1:]),
			zap.String("rpc", path.Base(info.FullMethod)))
		return resp, err
	}
}

// StreamServerInterceptor returns a stream server interceptor for logging
func StreamServerInterceptor(logger *Logger, opts ...GRPCInterceptorOptions) grpc.StreamServerInterceptor {
	var o GRPCInterceptorOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	skip := o.skipSet()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if skip[info.FullMethod] {
			return handler(srv, ss)
		}

		requestID := requestIDFromMetadata(ss.Context())
		wrapped := &wrappedServerStream{ServerStream: ss, ctx: WithRequestID(ss.Context(), requestID)}

		start := time.Now()
		err := handler(srv, wrapped)

		logCall(logger, "gRPC stream", info.FullMethod, requestID, time.Since(start), err,
			zap.Bool("is_client_stream", info.IsClientStream),
			zap.Bool("is_server_stream", info.IsServerStream))
		return err
	}
}

func logCall(logger *Logger, msg, method, requestID string, latency time.Duration, err error, extra ...zap.Field) {
	st, _ := status.FromError(err)
	fields := append([]zap.Field{
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.Duration("latency", latency),
		zap.String("code", st.Code().String()),
	}, extra...)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	switch st.Code() {
	case codes.OK:
		logger.Info(msg, fields...)
	case codes.Canceled, codes.DeadlineExceeded, codes.NotFound:
		logger.Warn(msg, fields...)
	default:
		logger.Error(msg, fields...)
	}
}

// requestIDFromMetadata returns the caller's x-request-id or a new one
func requestIDFromMetadata(ctx context.Context) string {
	if requestID := GetRequestID(ctx); requestID != "" {
		return requestID
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("x-request-id"); len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return uuid.New().String()
}

// wrappedServerStream wraps grpc.ServerStream with custom context
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

// RecoveryInterceptor returns a unary server interceptor for panic recovery
func RecoveryInterceptor(logger *Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("gRPC panic recovered",
					zap.String("request_id", GetRequestID(ctx)),
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.Stack("stacktrace"),
				)
				err = status.Errorf(codes.Internal, "internal server error: %v", r)
			}
		}()

		return handler(ctx, req)
	}
}

// RecoveryStreamInterceptor returns a stream server interceptor for panic recovery
func RecoveryStreamInterceptor(logger *Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("gRPC stream panic recovered",
					zap.String("request_id", GetRequestID(ss.Context())),
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.Stack("stacktrace"),
				)
				err = status.Errorf(codes.Internal, "internal server error: %v", r)
			}
		}()

		return handler(srv, ss)
	}
}
