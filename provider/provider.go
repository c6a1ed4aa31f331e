// Package provider implements the directory of a sensor fleet. Stations register themselves and
// their running sensors with the provider; callers ask it which sensors exist and in which state,
// then talk to the stations directly. The provider never proxies sensor traffic.
package provider

import (
	"context"

	"go.viam.com/sensorhub/sensor"
)

// StationHandle tells callers how to reach a station.
type StationHandle struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// SensorHandle tells callers how to reach a sensor: through the station serving it.
type SensorHandle struct {
	Station string `json:"station"`
	Sensor  string `json:"sensor"`
	Address string `json:"address"`
}

// ListedSensor is a registered sensor together with the state it reported during a listing.
type ListedSensor struct {
	SensorHandle
	State sensor.State `json:"state"`
}

// Service is the provider API, served by a Registry and consumed through a client.
type Service interface {
	// RegisterStation records how to reach a station, replacing any earlier registration.
	RegisterStation(ctx context.Context, name string, handle StationHandle) error
	// UnregisterStation forgets a station and every sensor registered under it.
	UnregisterStation(ctx context.Context, name string) error
	// Register records a sensor of a station, replacing any earlier registration.
	Register(ctx context.Context, station, name string, handle SensorHandle) error
	// Unregister forgets a sensor. Unknown sensors are ignored.
	Unregister(ctx context.Context, station, name string) error
	// ListSensors asks every registered sensor for its state and returns those matching filter,
	// or all of them if filter is nil. Sensors that cannot be asked in time are left out.
	ListSensors(ctx context.Context, filter *sensor.State) ([]ListedSensor, error)
	// ListStations returns every registered station sorted by name.
	ListStations(ctx context.Context) ([]StationHandle, error)
	// LookupStation returns the handle of a registered station or a NotFound error.
	LookupStation(ctx context.Context, name string) (StationHandle, error)
	// LookupSensor returns the handle of a registered sensor or a NotFound error.
	LookupSensor(ctx context.Context, station, name string) (SensorHandle, error)
}

// SensorPath names a sensor across the fleet for error messages.
func SensorPath(station, name string) string {
	return station + "/" + name
}
