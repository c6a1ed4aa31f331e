package station

import (
	"context"

	"google.golang.org/grpc"

	shgrpc "go.viam.com/sensorhub/grpc"
	"go.viam.com/sensorhub/sensor"
)

// client is a Service backed by a remote station.
type client struct {
	target string
	conn   grpc.ClientConnInterface
}

// NewClientFromConn returns the station served over conn. Target names the station in errors.
func NewClientFromConn(conn grpc.ClientConnInterface, target string) Service {
	return &client{target: target, conn: conn}
}

func (c *client) GetSensorState(ctx context.Context, name string) (sensor.State, error) {
	resp, err := shgrpc.Invoke[GetSensorStateResponse](ctx, c.conn, ServiceName, "GetSensorState", &SensorRequest{Name: name})
	if err != nil {
		return "", shgrpc.FromStatusError(c.target, err)
	}
	return resp.State, nil
}

func (c *client) ListSensors(ctx context.Context, filter *sensor.State) ([]string, error) {
	resp, err := shgrpc.Invoke[ListSensorsResponse](ctx, c.conn, ServiceName, "ListSensors", &ListSensorsRequest{State: filter})
	if err != nil {
		return nil, shgrpc.FromStatusError(c.target, err)
	}
	return resp.Names, nil
}

func (c *client) StartSensor(ctx context.Context, name string) error {
	_, err := shgrpc.Invoke[shgrpc.Empty](ctx, c.conn, ServiceName, "StartSensor", &SensorRequest{Name: name})
	return shgrpc.FromStatusError(c.target, err)
}

func (c *client) StopSensor(ctx context.Context, name string) error {
	_, err := shgrpc.Invoke[shgrpc.Empty](ctx, c.conn, ServiceName, "StopSensor", &SensorRequest{Name: name})
	return shgrpc.FromStatusError(c.target, err)
}

func (c *client) AddSensor(ctx context.Context, conf sensor.Config) error {
	_, err := shgrpc.Invoke[shgrpc.Empty](ctx, c.conn, ServiceName, "AddSensor", &AddSensorRequest{Config: conf})
	return shgrpc.FromStatusError(c.target, err)
}

func (c *client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := shgrpc.Invoke[ListModelsResponse](ctx, c.conn, ServiceName, "ListModels", &shgrpc.Empty{})
	if err != nil {
		return nil, shgrpc.FromStatusError(c.target, err)
	}
	return resp.Models, nil
}
