package provider

import (
	"context"
	"time"

	shgrpc "go.viam.com/sensorhub/grpc"
	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/sensor"
	"go.viam.com/sensorhub/utils"
)

// A Resolver turns sensor handles into sensors that can be queried.
type Resolver interface {
	// ResolveSensor returns the sensor behind handle and a function to call once done with it.
	ResolveSensor(ctx context.Context, handle SensorHandle) (sensor.Sensor, func(), error)
	// Forget drops whatever is kept for reaching address.
	Forget(address string)
	Close() error
}

// GRPCResolver resolves handles to sensor clients over cached connections to their stations.
type GRPCResolver struct {
	conns  *shgrpc.ConnCache
	logger logging.Logger
}

// NewGRPCResolver returns a resolver keeping connections to up to cacheSize stations.
func NewGRPCResolver(cacheSize int, callTimeout time.Duration, logger logging.Logger) (*GRPCResolver, error) {
	conns, err := shgrpc.NewConnCache(cacheSize, callTimeout, logger)
	if err != nil {
		return nil, err
	}
	return &GRPCResolver{conns: conns, logger: logger}, nil
}

// ResolveSensor returns a client for the sensor behind handle. Its connection stays open until
// release is called.
func (r *GRPCResolver) ResolveSensor(ctx context.Context, handle SensorHandle) (sensor.Sensor, func(), error) {
	conn, release, err := r.conns.Get(handle.Address)
	if err != nil {
		return nil, nil, utils.NewUnreachablePeerError(handle.Address, err)
	}
	return sensor.NewClientFromConn(conn, handle.Address, handle.Sensor, r.logger), release, nil
}

// Forget drops the cached connection to address, for instance after its station went away.
func (r *GRPCResolver) Forget(address string) {
	r.conns.Forget(address)
}

// Close closes every cached connection.
func (r *GRPCResolver) Close() error {
	return r.conns.Close()
}
