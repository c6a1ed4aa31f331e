package station

import (
	"context"
	"net"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"google.golang.org/grpc"

	"go.viam.com/sensorhub/config"
	"go.viam.com/sensorhub/discovery"
	shgrpc "go.viam.com/sensorhub/grpc"
	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/provider"
	"go.viam.com/sensorhub/sensor"
	"go.viam.com/sensorhub/utils"
)

// NodeOptions are the parts of a running station that do not come from its configuration.
type NodeOptions struct {
	Registerer prometheus.Registerer
	Clock      clock.Clock
	// SensorServerOptions configure the sensor service, e.g. its future table.
	SensorServerOptions []sensor.ServerOption
}

// Node is a station serving its API, with a connection to its provider.
type Node struct {
	*Station
	server       *shgrpc.Server
	providerConn *grpc.ClientConn
	providerAddr string
	logger       logging.Logger
}

// Start brings up a station from its configuration:
//
//  1. listen on the configured address;
//  2. find the provider, by discovery unless disabled, falling back to the configured address;
//  3. serve the station and sensor services and register the station with the provider;
//  4. add the configured sensors, starting those marked load_at_startup.
//
// Failing to find or register with the provider is fatal. A sensor that cannot be added or started
// is logged and skipped.
func Start(ctx context.Context, conf *config.Station, opts NodeOptions, logger logging.Logger) (*Node, error) {
	if err := conf.Ensure(); err != nil {
		return nil, err
	}
	callTimeout := utils.GetCallTimeout(logger)
	if conf.CallTimeout > 0 {
		callTimeout = time.Duration(conf.CallTimeout)
	}

	listener, err := net.Listen("tcp", conf.ListenAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %q", conf.ListenAddress)
	}
	listenerGuard := utils.NewGuard(func() { goutils.UncheckedError(listener.Close()) })
	defer listenerGuard.OnFail()

	providerAddr := conf.ProviderAddress
	if !conf.Discovery.Disabled {
		providerAddr, err = discovery.Resolve(ctx, conf.Discovery.Options(), conf.ProviderAddress, logger.Sublogger("discovery"))
		if err != nil {
			return nil, err
		}
	}
	logger.Infow("using provider", "address", providerAddr)

	advertised, err := advertisedAddress(conf, listener.Addr(), providerAddr)
	if err != nil {
		return nil, err
	}

	conn, err := shgrpc.Dial(providerAddr, callTimeout, logger.Sublogger("provider"))
	if err != nil {
		return nil, utils.NewUnreachablePeerError(providerAddr, err)
	}
	connGuard := utils.NewGuard(func() { goutils.UncheckedError(conn.Close()) })
	defer connGuard.OnFail()

	st, err := New(Options{
		Name:        conf.Name,
		Address:     advertised,
		Provider:    provider.NewClientFromConn(conn, providerAddr),
		CallTimeout: callTimeout,
		Clock:       opts.Clock,
		Registerer:  opts.Registerer,
	}, logger)
	if err != nil {
		return nil, err
	}

	server := shgrpc.NewServer(logger.Sublogger("rpc"))
	server.RegisterService(&ServiceDesc, NewRPCServiceServer(st))
	server.RegisterService(&sensor.ServiceDesc, sensor.NewRPCServiceServer(st, logger.Sublogger("sensors"), opts.SensorServerOptions...))
	if err := server.Serve(listener); err != nil {
		return nil, err
	}
	listenerGuard.Success()
	connGuard.Success()

	node := &Node{
		Station:      st,
		server:       server,
		providerConn: conn,
		providerAddr: providerAddr,
		logger:       logger,
	}
	if err := st.Register(ctx); err != nil {
		goutils.UncheckedError(node.Close(ctx))
		return nil, err
	}

	for _, sensorConf := range conf.Sensors {
		load := sensorConf.LoadAtStartup
		sensorConf.LoadAtStartup = false
		if err := st.AddSensor(ctx, sensorConf); err != nil {
			logger.Errorw("skipping sensor", "sensor", sensorConf.Name, "model", sensorConf.Model, "error", err)
			continue
		}
		if !load {
			continue
		}
		if err := st.StartSensor(ctx, sensorConf.Name); err != nil {
			logger.Errorw("sensor failed to start", "sensor", sensorConf.Name, "error", err)
		}
	}
	logger.Infow("station started", "address", advertised, "sensors", len(conf.Sensors))
	return node, nil
}

// advertisedAddress returns the address the provider should give out for this station. Without an
// explicit setting it is the listener's port on the listen host, or on the interface that routes
// to the provider when the listen host is unspecified.
func advertisedAddress(conf *config.Station, bound net.Addr, providerAddr string) (string, error) {
	if conf.AdvertisedAddress != "" {
		return conf.AdvertisedAddress, nil
	}
	host, _, err := net.SplitHostPort(conf.ListenAddress)
	if err != nil {
		return "", err
	}
	_, port, err := net.SplitHostPort(bound.String())
	if err != nil {
		return "", err
	}
	if ip := net.ParseIP(host); host != "" && (ip == nil || !ip.IsUnspecified()) {
		return net.JoinHostPort(host, port), nil
	}
	providerUDP, err := net.ResolveUDPAddr("udp", providerAddr)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve provider address %q", providerAddr)
	}
	ip, err := discovery.OutboundIP(providerUDP.IP)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(ip.String(), port), nil
}

// ProviderAddress returns the address of the provider the node registered with.
func (n *Node) ProviderAddress() string {
	return n.providerAddr
}

// Addr returns the address the node serves on.
func (n *Node) Addr() net.Addr {
	return n.server.Addr()
}

// Close shuts the station down, then stops serving and drops the provider connection.
func (n *Node) Close(ctx context.Context) error {
	err := n.Station.Close(ctx)
	n.server.Stop(ctx)
	return multierr.Combine(err, n.providerConn.Close())
}
