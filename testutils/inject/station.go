package inject

import (
	"context"

	"go.viam.com/sensorhub/sensor"
	"go.viam.com/sensorhub/station"
)

// Station is an injected station.
type Station struct {
	station.Service
	GetSensorStateFunc func(ctx context.Context, name string) (sensor.State, error)
	ListSensorsFunc    func(ctx context.Context, filter *sensor.State) ([]string, error)
	StartSensorFunc    func(ctx context.Context, name string) error
	StopSensorFunc     func(ctx context.Context, name string) error
	AddSensorFunc      func(ctx context.Context, conf sensor.Config) error
	ListModelsFunc     func(ctx context.Context) ([]station.ModelInfo, error)
}

// GetSensorState calls the injected GetSensorState or the real version.
func (s *Station) GetSensorState(ctx context.Context, name string) (sensor.State, error) {
	if s.GetSensorStateFunc == nil {
		return s.Service.GetSensorState(ctx, name)
	}
	return s.GetSensorStateFunc(ctx, name)
}

// ListSensors calls the injected ListSensors or the real version.
func (s *Station) ListSensors(ctx context.Context, filter *sensor.State) ([]string, error) {
	if s.ListSensorsFunc == nil {
		return s.Service.ListSensors(ctx, filter)
	}
	return s.ListSensorsFunc(ctx, filter)
}

// StartSensor calls the injected StartSensor or the real version.
func (s *Station) StartSensor(ctx context.Context, name string) error {
	if s.StartSensorFunc == nil {
		return s.Service.StartSensor(ctx, name)
	}
	return s.StartSensorFunc(ctx, name)
}

// StopSensor calls the injected StopSensor or the real version.
func (s *Station) StopSensor(ctx context.Context, name string) error {
	if s.StopSensorFunc == nil {
		return s.Service.StopSensor(ctx, name)
	}
	return s.StopSensorFunc(ctx, name)
}

// AddSensor calls the injected AddSensor or the real version.
func (s *Station) AddSensor(ctx context.Context, conf sensor.Config) error {
	if s.AddSensorFunc == nil {
		return s.Service.AddSensor(ctx, conf)
	}
	return s.AddSensorFunc(ctx, conf)
}

// ListModels calls the injected ListModels or the real version.
func (s *Station) ListModels(ctx context.Context) ([]station.ModelInfo, error) {
	if s.ListModelsFunc == nil {
		return s.Service.ListModels(ctx)
	}
	return s.ListModelsFunc(ctx)
}
