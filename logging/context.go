package logging

import (
	"context"

	"go.viam.com/utils"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type debugKeyType int

const debugKeyID = debugKeyType(iota)

// debugMetadataKey carries the debug key of a call to the peer serving it.
const debugMetadataKey = "sensorhub-debug"

// EnableDebugMode marks ctx so that CDebugf and CDebugw log regardless of level, here and on every
// peer the context reaches through a sensorhub connection. An empty key is replaced by a random
// one, which is logged with each entry to tie the call chain together.
func EnableDebugMode(ctx context.Context, debugKey string) context.Context {
	if debugKey == "" {
		debugKey = utils.RandomAlphaString(6)
	}
	return context.WithValue(ctx, debugKeyID, debugKey)
}

// IsDebugMode reports whether ctx was marked by EnableDebugMode.
func IsDebugMode(ctx context.Context) bool {
	return GetName(ctx) != ""
}

// GetName returns the debug key of ctx, or "" if it has none.
func GetName(ctx context.Context) string {
	if key, ok := ctx.Value(debugKeyID).(string); ok {
		return key
	}
	return ""
}

// UnaryClientInterceptor forwards the debug key of ctx in the request metadata.
func UnaryClientInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if key := GetName(ctx); key != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, debugMetadataKey, key)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// UnaryServerInterceptor puts the debug key of an incoming request, if any, on the handler's
// context.
func UnaryServerInterceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	if meta, ok := metadata.FromIncomingContext(ctx); ok {
		if keys := meta.Get(debugMetadataKey); len(keys) == 1 && keys[0] != "" {
			ctx = EnableDebugMode(ctx, keys[0])
		}
	}
	return handler(ctx, req)
}
