package grpc

import (
	"context"
	"net"
	"sync"

	grpcrecovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.viam.com/sensorhub/logging"
)

// Server serves sensorhub services on a single listener.
type Server struct {
	grpcServer *grpc.Server
	logger     logging.Logger

	mu       sync.Mutex
	listener net.Listener

	activeBackgroundWorkers sync.WaitGroup
}

// NewServer returns a server with the standard sensorhub interceptors installed. Panics in
// handlers are turned into Internal errors rather than crashing the process.
func NewServer(logger logging.Logger, opts ...grpc.ServerOption) *Server {
	recoveryOpt := grpcrecovery.WithRecoveryHandler(func(p interface{}) error {
		logger.Errorw("panic in rpc handler", "panic", p)
		return status.Errorf(codes.Internal, "panic: %v", p)
	})
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			EnsureTimeoutUnaryServerInterceptor,
			logging.UnaryServerInterceptor,
			grpcrecovery.UnaryServerInterceptor(recoveryOpt),
			LoggingUnaryServerInterceptor(logger),
			ErrorUnaryServerInterceptor,
		),
	}
	serverOpts = append(serverOpts, opts...)
	return &Server{
		grpcServer: grpc.NewServer(serverOpts...),
		logger:     logger,
	}
}

// RegisterService registers a service implementation. It must be called before Start.
func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	s.grpcServer.RegisterService(desc, impl)
}

// Start listens on address and serves in the background. Use Addr to learn the bound address
// when listening on port 0.
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %q", address)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener in the background.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("server already started")
	}
	s.listener = listener
	s.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		if err := s.grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Errorw("grpc server stopped with error", "error", err)
		}
	}, s.activeBackgroundWorkers.Done)
	s.logger.Infow("serving", "address", listener.Addr().String())
	return nil
}

// Addr returns the address the server is listening on, or nil if it has not started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server, waiting for in flight calls until ctx is done.
func (s *Server) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-done
	}
	s.activeBackgroundWorkers.Wait()
}
