package provider

import (
	"context"

	"google.golang.org/grpc"

	shgrpc "go.viam.com/sensorhub/grpc"
	"go.viam.com/sensorhub/sensor"
)

// client is a Service backed by a remote provider.
type client struct {
	target string
	conn   grpc.ClientConnInterface
}

// NewClientFromConn returns the provider served over conn. Target names the provider in errors.
func NewClientFromConn(conn grpc.ClientConnInterface, target string) Service {
	return &client{target: target, conn: conn}
}

func (c *client) invokeEmpty(ctx context.Context, method string, req interface{}) error {
	_, err := shgrpc.Invoke[shgrpc.Empty](ctx, c.conn, ServiceName, method, req)
	return shgrpc.FromStatusError(c.target, err)
}

func (c *client) RegisterStation(ctx context.Context, name string, handle StationHandle) error {
	return c.invokeEmpty(ctx, "RegisterStation", &RegisterStationRequest{Name: name, Handle: handle})
}

func (c *client) UnregisterStation(ctx context.Context, name string) error {
	return c.invokeEmpty(ctx, "UnregisterStation", &StationRequest{Name: name})
}

func (c *client) Register(ctx context.Context, station, name string, handle SensorHandle) error {
	return c.invokeEmpty(ctx, "Register", &RegisterRequest{Station: station, Name: name, Handle: handle})
}

func (c *client) Unregister(ctx context.Context, station, name string) error {
	return c.invokeEmpty(ctx, "Unregister", &SensorRequest{Station: station, Name: name})
}

func (c *client) ListSensors(ctx context.Context, filter *sensor.State) ([]ListedSensor, error) {
	resp, err := shgrpc.Invoke[ListSensorsResponse](ctx, c.conn, ServiceName, "ListSensors", &ListSensorsRequest{State: filter})
	if err != nil {
		return nil, shgrpc.FromStatusError(c.target, err)
	}
	return resp.Sensors, nil
}

func (c *client) ListStations(ctx context.Context) ([]StationHandle, error) {
	resp, err := shgrpc.Invoke[ListStationsResponse](ctx, c.conn, ServiceName, "ListStations", &shgrpc.Empty{})
	if err != nil {
		return nil, shgrpc.FromStatusError(c.target, err)
	}
	return resp.Stations, nil
}

func (c *client) LookupStation(ctx context.Context, name string) (StationHandle, error) {
	resp, err := shgrpc.Invoke[StationHandle](ctx, c.conn, ServiceName, "LookupStation", &StationRequest{Name: name})
	if err != nil {
		return StationHandle{}, shgrpc.FromStatusError(c.target, err)
	}
	return *resp, nil
}

func (c *client) LookupSensor(ctx context.Context, station, name string) (SensorHandle, error) {
	resp, err := shgrpc.Invoke[SensorHandle](ctx, c.conn, ServiceName, "LookupSensor", &SensorRequest{Station: station, Name: name})
	if err != nil {
		return SensorHandle{}, shgrpc.FromStatusError(c.target, err)
	}
	return *resp, nil
}
