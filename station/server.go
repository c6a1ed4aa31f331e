package station

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	shgrpc "go.viam.com/sensorhub/grpc"
	"go.viam.com/sensorhub/sensor"
)

// ServiceName is the fully qualified name of the station service.
var ServiceName = shgrpc.ServiceName("StationService")

// SensorRequest names a sensor of the station.
type SensorRequest struct {
	Name string `json:"name"`
}

// GetSensorStateResponse carries a sensor state.
type GetSensorStateResponse struct {
	State sensor.State `json:"state"`
}

// ListSensorsRequest lists sensors, optionally only those in State.
type ListSensorsRequest struct {
	State *sensor.State `json:"state,omitempty"`
}

// ListSensorsResponse carries sensor names in the order they were added.
type ListSensorsResponse struct {
	Names []string `json:"names"`
}

// AddSensorRequest adds a sensor built from Config.
type AddSensorRequest struct {
	Config sensor.Config `json:"config"`
}

// ListModelsResponse carries the models a station can instantiate.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ServiceServer is the server side of the station service.
type ServiceServer interface {
	GetSensorState(ctx context.Context, req *SensorRequest) (*GetSensorStateResponse, error)
	ListSensors(ctx context.Context, req *ListSensorsRequest) (*ListSensorsResponse, error)
	StartSensor(ctx context.Context, req *SensorRequest) (*shgrpc.Empty, error)
	StopSensor(ctx context.Context, req *SensorRequest) (*shgrpc.Empty, error)
	AddSensor(ctx context.Context, req *AddSensorRequest) (*shgrpc.Empty, error)
	ListModels(ctx context.Context, req *shgrpc.Empty) (*ListModelsResponse, error)
}

// ServiceDesc describes the station service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		shgrpc.UnaryMethod(ServiceName, "GetSensorState", ServiceServer.GetSensorState),
		shgrpc.UnaryMethod(ServiceName, "ListSensors", ServiceServer.ListSensors),
		shgrpc.UnaryMethod(ServiceName, "StartSensor", ServiceServer.StartSensor),
		shgrpc.UnaryMethod(ServiceName, "StopSensor", ServiceServer.StopSensor),
		shgrpc.UnaryMethod(ServiceName, "AddSensor", ServiceServer.AddSensor),
		shgrpc.UnaryMethod(ServiceName, "ListModels", ServiceServer.ListModels),
	},
	Metadata: "sensorhub/v1/station",
}

// serviceServer implements the station service over a Service.
type serviceServer struct {
	svc Service
}

// NewRPCServiceServer returns a server exposing svc.
func NewRPCServiceServer(svc Service) ServiceServer {
	return &serviceServer{svc: svc}
}

func (s *serviceServer) GetSensorState(ctx context.Context, req *SensorRequest) (*GetSensorStateResponse, error) {
	state, err := s.svc.GetSensorState(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	return &GetSensorStateResponse{State: state}, nil
}

func (s *serviceServer) ListSensors(ctx context.Context, req *ListSensorsRequest) (*ListSensorsResponse, error) {
	if req.State != nil {
		state, err := sensor.ParseState(string(*req.State))
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		req.State = &state
	}
	names, err := s.svc.ListSensors(ctx, req.State)
	if err != nil {
		return nil, err
	}
	return &ListSensorsResponse{Names: names}, nil
}

func (s *serviceServer) StartSensor(ctx context.Context, req *SensorRequest) (*shgrpc.Empty, error) {
	return &shgrpc.Empty{}, s.svc.StartSensor(ctx, req.Name)
}

func (s *serviceServer) StopSensor(ctx context.Context, req *SensorRequest) (*shgrpc.Empty, error) {
	return &shgrpc.Empty{}, s.svc.StopSensor(ctx, req.Name)
}

func (s *serviceServer) AddSensor(ctx context.Context, req *AddSensorRequest) (*shgrpc.Empty, error) {
	if err := req.Config.Validate(req.Config.Name); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &shgrpc.Empty{}, s.svc.AddSensor(ctx, req.Config)
}

func (s *serviceServer) ListModels(ctx context.Context, req *shgrpc.Empty) (*ListModelsResponse, error) {
	models, err := s.svc.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	return &ListModelsResponse{Models: models}, nil
}
