package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"go.viam.com/sensorhub/logging"
)

// DefaultMethodTimeout is the default context timeout for all inbound gRPC methods, only used
// when no deadline is set on the context.
var DefaultMethodTimeout = 30 * time.Second

// EnsureTimeoutUnaryServerInterceptor sets a default timeout on the context if one is
// not already set. To be called as the first unary server interceptor.
func EnsureTimeoutUnaryServerInterceptor(ctx context.Context, req interface{},
	info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
) (interface{}, error) {
	if _, deadlineSet := ctx.Deadline(); !deadlineSet {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultMethodTimeout)
		defer cancel()
	}

	return handler(ctx, req)
}

// EnsureTimeoutUnaryClientInterceptor returns a client interceptor that bounds every outgoing
// call to timeout unless the caller already set a deadline. A stalled peer therefore never holds
// up its caller for longer than the call timeout.
func EnsureTimeoutUnaryClientInterceptor(timeout time.Duration) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string, req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		if _, deadlineSet := ctx.Deadline(); !deadlineSet {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// ErrorUnaryServerInterceptor converts classified errors returned by handlers into gRPC statuses.
func ErrorUnaryServerInterceptor(ctx context.Context, req interface{},
	info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
) (interface{}, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return resp, nil
}

// ErrorUnaryClientInterceptor converts statuses received from target back into classified
// errors. Transport failures become UnreachablePeer errors about target.
func ErrorUnaryClientInterceptor(target string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string, req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		if err := invoker(ctx, method, req, reply, cc, opts...); err != nil {
			return FromStatusError(target, err)
		}
		return nil
	}
}

// LoggingUnaryServerInterceptor logs failed calls at debug level.
func LoggingUnaryServerInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{},
		info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.CDebugw(ctx, "call failed", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		}
		return resp, err
	}
}
