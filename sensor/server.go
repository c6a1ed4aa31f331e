package sensor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.viam.com/sensorhub/future"
	shgrpc "go.viam.com/sensorhub/grpc"
	"go.viam.com/sensorhub/logging"
)

const (
	// DefaultFutureCapacity bounds how many asynchronous results a server remembers.
	DefaultFutureCapacity = 1024
	// DefaultFutureTTL is how long a server remembers an asynchronous result.
	DefaultFutureTTL = 5 * time.Minute
	// MaxFutureWait caps how long a single FutureResult call may wait.
	MaxFutureWait = 10 * time.Second
)

// ServiceName is the fully qualified name of the sensor service.
var ServiceName = shgrpc.ServiceName("SensorService")

// A Source resolves the sensors served by an RPC server.
type Source interface {
	// LookupSensor returns the named sensor or a NotFound error.
	LookupSensor(name string) (Sensor, error)
}

// ServiceServer is the server side of the sensor service.
type ServiceServer interface {
	GetState(ctx context.Context, req *GetStateRequest) (*GetStateResponse, error)
	Read(ctx context.Context, req *ReadRequest) (*ReadResponse, error)
	ReadAsync(ctx context.Context, req *ReadRequest) (*ReadAsyncResponse, error)
	FutureResult(ctx context.Context, req *FutureResultRequest) (*FutureResultResponse, error)
}

// ServiceDesc describes the sensor service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		shgrpc.UnaryMethod(ServiceName, "GetState", ServiceServer.GetState),
		shgrpc.UnaryMethod(ServiceName, "Read", ServiceServer.Read),
		shgrpc.UnaryMethod(ServiceName, "ReadAsync", ServiceServer.ReadAsync),
		shgrpc.UnaryMethod(ServiceName, "FutureResult", ServiceServer.FutureResult),
	},
	Metadata: "sensorhub/v1/sensor",
}

// ServerOption configures the sensor service server.
type ServerOption func(*serviceServer)

// WithFutureTable sets how many asynchronous results are remembered and for how long.
func WithFutureTable(capacity int, ttl time.Duration) ServerOption {
	return func(s *serviceServer) {
		s.futureCapacity = capacity
		s.futureTTL = ttl
	}
}

// serviceServer implements the sensor service over the sensors of a Source.
type serviceServer struct {
	source Source
	logger logging.Logger

	futureCapacity int
	futureTTL      time.Duration
	futures        *expirable.LRU[string, future.Result[float64]]
}

// NewRPCServiceServer returns a server exposing the sensors of source.
func NewRPCServiceServer(source Source, logger logging.Logger, opts ...ServerOption) ServiceServer {
	s := &serviceServer{
		source:         source,
		logger:         logger,
		futureCapacity: DefaultFutureCapacity,
		futureTTL:      DefaultFutureTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.futures = expirable.NewLRU[string, future.Result[float64]](s.futureCapacity, nil, s.futureTTL)
	return s
}

func (s *serviceServer) GetState(ctx context.Context, req *GetStateRequest) (*GetStateResponse, error) {
	sens, err := s.source.LookupSensor(req.Name)
	if err != nil {
		return nil, err
	}
	state, err := sens.State(ctx)
	if err != nil {
		return nil, err
	}
	return &GetStateResponse{State: state}, nil
}

func (s *serviceServer) numeric(name string) (Numeric, error) {
	sens, err := s.source.LookupSensor(name)
	if err != nil {
		return nil, err
	}
	readable, ok := sens.(Numeric)
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "sensor %q does not produce readings", name)
	}
	return readable, nil
}

func (s *serviceServer) Read(ctx context.Context, req *ReadRequest) (*ReadResponse, error) {
	readable, err := s.numeric(req.Name)
	if err != nil {
		return nil, err
	}
	value, err := readable.Read(ctx)
	if err != nil {
		return nil, err
	}
	return &ReadResponse{Value: value}, nil
}

func (s *serviceServer) ReadAsync(ctx context.Context, req *ReadRequest) (*ReadAsyncResponse, error) {
	readable, err := s.numeric(req.Name)
	if err != nil {
		return nil, err
	}
	result, err := readable.ReadAsync(ctx)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	if evicted := s.futures.Add(id, result); evicted {
		s.logger.CDebugw(ctx, "evicted oldest pending read result", "capacity", s.futureCapacity)
	}
	return &ReadAsyncResponse{FutureID: id}, nil
}

func (s *serviceServer) FutureResult(ctx context.Context, req *FutureResultRequest) (*FutureResultResponse, error) {
	result, ok := s.futures.Get(req.FutureID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no pending result with id %q", req.FutureID)
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait > MaxFutureWait {
		wait = MaxFutureWait
	}
	var (
		value float64
		err   error
	)
	if wait <= 0 {
		if !result.IsDone() {
			return &FutureResultResponse{}, nil
		}
		value, err = result.Get()
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		value, err = result.Wait(waitCtx)
		if errors.Is(err, future.ErrNotAvailable) {
			return &FutureResultResponse{}, nil
		}
	}
	if err != nil {
		return &FutureResultResponse{Done: true, Failure: FailureFromError(err)}, nil
	}
	return &FutureResultResponse{Done: true, Value: value}, nil
}
