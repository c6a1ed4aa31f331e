// Package sensor defines sensors hosted by stations: their lifecycle states, the drivers that
// implement a sensor model, the static model registry, and the gRPC API through which stations
// expose their sensors.
package sensor

import (
	"context"

	"go.viam.com/sensorhub/future"
)

// A Sensor is a named unit owned by exactly one station that can report its state. Names are
// unique within their station only.
type Sensor interface {
	Name() string
	// State returns the current lifecycle state. Local sensors never fail; remote sensors fail
	// with an UnreachablePeer error when their station cannot be reached.
	State(ctx context.Context) (State, error)
}

// Readable is a sensor that can produce readings of type T. Reads are only allowed while the
// sensor is running and a failed acquisition faults the sensor.
type Readable[T any] interface {
	Sensor
	Read(ctx context.Context) (T, error)
	// ReadAsync returns immediately with a result that completes with the same semantics as
	// Read. Precondition failures (faulted or not running) are returned directly.
	ReadAsync(ctx context.Context) (future.Result[T], error)
}

// Numeric is a readable sensor of scalar measurements, such as humidity or temperature. It is the
// reading type exposed over the wire.
type Numeric = Readable[float64]

// A Driver implements a sensor model: it knows how to bring the device up and down. Drivers do
// not track lifecycle state themselves; Managed does that for them.
type Driver interface {
	Setup(ctx context.Context) error
	Teardown(ctx context.Context) error
}

// An Acquirer is a driver that can acquire readings of type T.
type Acquirer[T any] interface {
	Driver
	Acquire(ctx context.Context) (T, error)
}
