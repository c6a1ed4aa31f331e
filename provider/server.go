package provider

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	shgrpc "go.viam.com/sensorhub/grpc"
	"go.viam.com/sensorhub/sensor"
)

// ServiceName is the fully qualified name of the provider service.
var ServiceName = shgrpc.ServiceName("ProviderService")

// RegisterStationRequest registers a station.
type RegisterStationRequest struct {
	Name   string        `json:"name"`
	Handle StationHandle `json:"handle"`
}

// StationRequest names a station.
type StationRequest struct {
	Name string `json:"name"`
}

// RegisterRequest registers a sensor.
type RegisterRequest struct {
	Station string       `json:"station"`
	Name    string       `json:"name"`
	Handle  SensorHandle `json:"handle"`
}

// SensorRequest names a sensor of a station.
type SensorRequest struct {
	Station string `json:"station"`
	Name    string `json:"name"`
}

// ListSensorsRequest lists sensors, optionally only those in State.
type ListSensorsRequest struct {
	State *sensor.State `json:"state,omitempty"`
}

// ListSensorsResponse carries a sensor listing.
type ListSensorsResponse struct {
	Sensors []ListedSensor `json:"sensors"`
}

// ListStationsResponse carries the registered stations.
type ListStationsResponse struct {
	Stations []StationHandle `json:"stations"`
}

// ServiceServer is the server side of the provider service.
type ServiceServer interface {
	RegisterStation(ctx context.Context, req *RegisterStationRequest) (*shgrpc.Empty, error)
	UnregisterStation(ctx context.Context, req *StationRequest) (*shgrpc.Empty, error)
	Register(ctx context.Context, req *RegisterRequest) (*shgrpc.Empty, error)
	Unregister(ctx context.Context, req *SensorRequest) (*shgrpc.Empty, error)
	ListSensors(ctx context.Context, req *ListSensorsRequest) (*ListSensorsResponse, error)
	ListStations(ctx context.Context, req *shgrpc.Empty) (*ListStationsResponse, error)
	LookupStation(ctx context.Context, req *StationRequest) (*StationHandle, error)
	LookupSensor(ctx context.Context, req *SensorRequest) (*SensorHandle, error)
}

// ServiceDesc describes the provider service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		shgrpc.UnaryMethod(ServiceName, "RegisterStation", ServiceServer.RegisterStation),
		shgrpc.UnaryMethod(ServiceName, "UnregisterStation", ServiceServer.UnregisterStation),
		shgrpc.UnaryMethod(ServiceName, "Register", ServiceServer.Register),
		shgrpc.UnaryMethod(ServiceName, "Unregister", ServiceServer.Unregister),
		shgrpc.UnaryMethod(ServiceName, "ListSensors", ServiceServer.ListSensors),
		shgrpc.UnaryMethod(ServiceName, "ListStations", ServiceServer.ListStations),
		shgrpc.UnaryMethod(ServiceName, "LookupStation", ServiceServer.LookupStation),
		shgrpc.UnaryMethod(ServiceName, "LookupSensor", ServiceServer.LookupSensor),
	},
	Metadata: "sensorhub/v1/provider",
}

// serviceServer implements the provider service over a Service.
type serviceServer struct {
	svc Service
}

// NewRPCServiceServer returns a server exposing svc.
func NewRPCServiceServer(svc Service) ServiceServer {
	return &serviceServer{svc: svc}
}

func (s *serviceServer) RegisterStation(ctx context.Context, req *RegisterStationRequest) (*shgrpc.Empty, error) {
	return &shgrpc.Empty{}, s.svc.RegisterStation(ctx, req.Name, req.Handle)
}

func (s *serviceServer) UnregisterStation(ctx context.Context, req *StationRequest) (*shgrpc.Empty, error) {
	return &shgrpc.Empty{}, s.svc.UnregisterStation(ctx, req.Name)
}

func (s *serviceServer) Register(ctx context.Context, req *RegisterRequest) (*shgrpc.Empty, error) {
	return &shgrpc.Empty{}, s.svc.Register(ctx, req.Station, req.Name, req.Handle)
}

func (s *serviceServer) Unregister(ctx context.Context, req *SensorRequest) (*shgrpc.Empty, error) {
	return &shgrpc.Empty{}, s.svc.Unregister(ctx, req.Station, req.Name)
}

func (s *serviceServer) ListSensors(ctx context.Context, req *ListSensorsRequest) (*ListSensorsResponse, error) {
	if req.State != nil {
		state, err := sensor.ParseState(string(*req.State))
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		req.State = &state
	}
	listed, err := s.svc.ListSensors(ctx, req.State)
	if err != nil {
		return nil, err
	}
	return &ListSensorsResponse{Sensors: listed}, nil
}

func (s *serviceServer) ListStations(ctx context.Context, req *shgrpc.Empty) (*ListStationsResponse, error) {
	stations, err := s.svc.ListStations(ctx)
	if err != nil {
		return nil, err
	}
	return &ListStationsResponse{Stations: stations}, nil
}

func (s *serviceServer) LookupStation(ctx context.Context, req *StationRequest) (*StationHandle, error) {
	handle, err := s.svc.LookupStation(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	return &handle, nil
}

func (s *serviceServer) LookupSensor(ctx context.Context, req *SensorRequest) (*SensorHandle, error) {
	handle, err := s.svc.LookupSensor(ctx, req.Station, req.Name)
	if err != nil {
		return nil, err
	}
	return &handle, nil
}
