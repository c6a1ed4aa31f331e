package grpc

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.viam.com/sensorhub/logging"
)

// Dial returns a client connection to a sensorhub peer at address. The connection is established
// lazily; every call on it is bounded by callTimeout unless the caller's context already carries
// a deadline, and failures come back as classified errors.
func Dial(address string, callTimeout time.Duration, logger logging.Logger, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	logger.Debugw("dialing peer", "address", address, "call_timeout", callTimeout)
	optsCopy := make([]grpc.DialOption, 0, len(opts)+3)
	optsCopy = append(optsCopy,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(JSONCodecName)),
		grpc.WithChainUnaryInterceptor(
			EnsureTimeoutUnaryClientInterceptor(callTimeout),
			logging.UnaryClientInterceptor,
			ErrorUnaryClientInterceptor(address),
		),
	)
	optsCopy = append(optsCopy, opts...)
	return grpc.NewClient(address, optsCopy...)
}
