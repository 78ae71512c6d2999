package logger

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context {
	return m.ctx
}

func TestUnaryServerInterceptor(t *testing.T) {
	interceptor := UnaryServerInterceptor(NewNop(), GRPCInterceptorOptions{
		SkipMethods: []string{"/grpc.health.v1.Health/Check"},
	})

	tests := []struct {
		name     string
		ctx      context.Context
		method   string
		handler  grpc.UnaryHandler
		wantCode codes.Code
	}{
		{
			name:   "success",
			ctx:    context.Background(),
			method: "/grpc.health.v1.Health/Watch",
			handler: func(ctx context.Context, req any) (any, error) {
				if GetRequestID(ctx) == "" {
					t.Error("expected generated request ID in context")
				}
				return "ok", nil
			},
			wantCode: codes.OK,
		},
		{
			name: "request ID from metadata",
			ctx: metadata.NewIncomingContext(context.Background(), metadata.MD{
				"x-request-id": []string{"req-42"},
			}),
			method: "/grpc.health.v1.Health/Watch",
			handler: func(ctx context.Context, req any) (any, error) {
				if got := GetRequestID(ctx); got != "req-42" {
					t.Errorf("request ID = %q, want req-42", got)
				}
				return "ok", nil
			},
			wantCode: codes.OK,
		},
		{
			name:   "skipped method",
			ctx:    context.Background(),
			method: "/grpc.health.v1.Health/Check",
			handler: func(ctx context.Context, req any) (any, error) {
				if GetRequestID(ctx) != "" {
					t.Error("skipped method should not get a request ID")
				}
				return "ok", nil
			},
			wantCode: codes.OK,
		},
		{
			name:   "error",
			ctx:    context.Background(),
			method: "/grpc.health.v1.Health/Watch",
			handler: func(ctx context.Context, req any) (any, error) {
				return nil, status.Error(codes.Unavailable, "not serving")
			},
			wantCode: codes.Unavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := interceptor(tt.ctx, nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, tt.handler)
			if got := status.Code(err); got != tt.wantCode {
				t.Errorf("code = %v, want %v", got, tt.wantCode)
			}
		})
	}
}

func TestStreamServerInterceptor(t *testing.T) {
	interceptor := StreamServerInterceptor(NewNop())
	ss := &mockServerStream{ctx: metadata.NewIncomingContext(context.Background(), metadata.MD{
		"x-request-id": []string{"stream-1"},
	})}

	err := interceptor(nil, ss, &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch", IsServerStream: true},
		func(srv any, stream grpc.ServerStream) error {
			if got := GetRequestID(stream.Context()); got != "stream-1" {
				t.Errorf("request ID = %q, want stream-1", got)
			}
			return nil
		})
	if err != nil {
		t.Errorf("interceptor() error = %v", err)
	}
}

func TestRecoveryInterceptors(t *testing.T) {
	unary := RecoveryInterceptor(NewNop())
	_, err := unary(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"},
		func(ctx context.Context, req any) (any, error) {
			panic("boom")
		})
	if status.Code(err) != codes.Internal {
		t.Errorf("unary recovery code = %v, want Internal", status.Code(err))
	}

	stream := RecoveryStreamInterceptor(NewNop())
	err = stream(nil, &mockServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/x/Z"},
		func(srv any, ss grpc.ServerStream) error {
			panic("boom")
		})
	if status.Code(err) != codes.Internal {
		t.Errorf("stream recovery code = %v, want Internal", status.Code(err))
	}
}
