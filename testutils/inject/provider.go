package inject

import (
	"context"

	"go.viam.com/sensorhub/provider"
	"go.viam.com/sensorhub/sensor"
)

// Provider is an injected provider.
type Provider struct {
	provider.Service
	RegisterStationFunc   func(ctx context.Context, name string, handle provider.StationHandle) error
	UnregisterStationFunc func(ctx context.Context, name string) error
	RegisterFunc          func(ctx context.Context, station, name string, handle provider.SensorHandle) error
	UnregisterFunc        func(ctx context.Context, station, name string) error
	ListSensorsFunc       func(ctx context.Context, filter *sensor.State) ([]provider.ListedSensor, error)
	ListStationsFunc      func(ctx context.Context) ([]provider.StationHandle, error)
	LookupStationFunc     func(ctx context.Context, name string) (provider.StationHandle, error)
	LookupSensorFunc      func(ctx context.Context, station, name string) (provider.SensorHandle, error)
}

// RegisterStation calls the injected RegisterStation or the real version.
func (p *Provider) RegisterStation(ctx context.Context, name string, handle provider.StationHandle) error {
	if p.RegisterStationFunc == nil {
		return p.Service.RegisterStation(ctx, name, handle)
	}
	return p.RegisterStationFunc(ctx, name, handle)
}

// UnregisterStation calls the injected UnregisterStation or the real version.
func (p *Provider) UnregisterStation(ctx context.Context, name string) error {
	if p.UnregisterStationFunc == nil {
		return p.Service.UnregisterStation(ctx, name)
	}
	return p.UnregisterStationFunc(ctx, name)
}

// Register calls the injected Register or the real version.
func (p *Provider) Register(ctx context.Context, station, name string, handle provider.SensorHandle) error {
	if p.RegisterFunc == nil {
		return p.Service.Register(ctx, station, name, handle)
	}
	return p.RegisterFunc(ctx, station, name, handle)
}

// Unregister calls the injected Unregister or the real version.
func (p *Provider) Unregister(ctx context.Context, station, name string) error {
	if p.UnregisterFunc == nil {
		return p.Service.Unregister(ctx, station, name)
	}
	return p.UnregisterFunc(ctx, station, name)
}

// ListSensors calls the injected ListSensors or the real version.
func (p *Provider) ListSensors(ctx context.Context, filter *sensor.State) ([]provider.ListedSensor, error) {
	if p.ListSensorsFunc == nil {
		return p.Service.ListSensors(ctx, filter)
	}
	return p.ListSensorsFunc(ctx, filter)
}

// ListStations calls the injected ListStations or the real version.
func (p *Provider) ListStations(ctx context.Context) ([]provider.StationHandle, error) {
	if p.ListStationsFunc == nil {
		return p.Service.ListStations(ctx)
	}
	return p.ListStationsFunc(ctx)
}

// LookupStation calls the injected LookupStation or the real version.
func (p *Provider) LookupStation(ctx context.Context, name string) (provider.StationHandle, error) {
	if p.LookupStationFunc == nil {
		return p.Service.LookupStation(ctx, name)
	}
	return p.LookupStationFunc(ctx, name)
}

// LookupSensor calls the injected LookupSensor or the real version.
func (p *Provider) LookupSensor(ctx context.Context, station, name string) (provider.SensorHandle, error) {
	if p.LookupSensorFunc == nil {
		return p.Service.LookupSensor(ctx, station, name)
	}
	return p.LookupSensorFunc(ctx, station, name)
}
