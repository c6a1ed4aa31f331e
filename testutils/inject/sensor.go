package inject

import (
	"context"

	"go.viam.com/sensorhub/future"
	"go.viam.com/sensorhub/sensor"
)

// Sensor is an injected readable sensor.
type Sensor struct {
	sensor.Numeric
	name          string
	StateFunc     func(ctx context.Context) (sensor.State, error)
	ReadFunc      func(ctx context.Context) (float64, error)
	ReadAsyncFunc func(ctx context.Context) (future.Result[float64], error)
}

// NewSensor returns a new injected sensor.
func NewSensor(name string) *Sensor {
	return &Sensor{name: name}
}

// Name returns the name of the sensor.
func (s *Sensor) Name() string {
	return s.name
}

// State calls the injected State or the real version.
func (s *Sensor) State(ctx context.Context) (sensor.State, error) {
	if s.StateFunc == nil {
		return s.Numeric.State(ctx)
	}
	return s.StateFunc(ctx)
}

// Read calls the injected Read or the real version.
func (s *Sensor) Read(ctx context.Context) (float64, error) {
	if s.ReadFunc == nil {
		return s.Numeric.Read(ctx)
	}
	return s.ReadFunc(ctx)
}

// ReadAsync calls the injected ReadAsync or the real version.
func (s *Sensor) ReadAsync(ctx context.Context) (future.Result[float64], error) {
	if s.ReadAsyncFunc == nil {
		return s.Numeric.ReadAsync(ctx)
	}
	return s.ReadAsyncFunc(ctx)
}
