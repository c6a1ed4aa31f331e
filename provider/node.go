package provider

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/sensorhub/config"
	"go.viam.com/sensorhub/discovery"
	shgrpc "go.viam.com/sensorhub/grpc"
	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/utils"
)

// Node is a provider serving its registry, and answering discovery queries unless disabled.
type Node struct {
	*Registry
	server    *shgrpc.Server
	responder *discovery.Responder
	advertise string
}

// Start serves a registry as configured by conf. Metrics are registered with registerer if it is
// not nil.
func Start(ctx context.Context, conf *config.Provider, registerer prometheus.Registerer, logger logging.Logger) (*Node, error) {
	if err := conf.Ensure(); err != nil {
		return nil, err
	}
	registry, err := NewRegistry(Options{
		CallTimeout:     time.Duration(conf.CallTimeout),
		ListConcurrency: conf.ListConcurrency,
		ConnCacheSize:   conf.ConnCacheSize,
		Registerer:      registerer,
	}, logger)
	if err != nil {
		return nil, err
	}
	registryGuard := utils.NewGuard(func() { goutils.UncheckedError(registry.Close(ctx)) })
	defer registryGuard.OnFail()

	listener, err := net.Listen("tcp", conf.ListenAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %q", conf.ListenAddress)
	}
	listenerGuard := utils.NewGuard(func() { goutils.UncheckedError(listener.Close()) })
	defer listenerGuard.OnFail()

	advertise, err := boundAddress(conf.AdvertisedAddress, listener.Addr())
	if err != nil {
		return nil, err
	}

	server := shgrpc.NewServer(logger.Sublogger("rpc"))
	server.RegisterService(&ServiceDesc, NewRPCServiceServer(registry))
	if err := server.Serve(listener); err != nil {
		return nil, err
	}
	listenerGuard.Success()
	registryGuard.Success()
	node := &Node{Registry: registry, server: server, advertise: advertise}

	if !conf.Discovery.Disabled {
		group := conf.Discovery.GroupAddress
		if group == "" {
			group = discovery.DefaultGroupAddress
		}
		node.responder, err = discovery.NewResponder(group, advertise, logger.Sublogger("discovery"))
		if err != nil {
			goutils.UncheckedError(node.Close(ctx))
			return nil, err
		}
	}
	logger.Infow("provider started", "address", advertise)
	return node, nil
}

// boundAddress replaces a zero port in address with the port the listener was given.
func boundAddress(address string, bound net.Addr) (string, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return "", err
	}
	if port != "0" {
		return address, nil
	}
	_, boundPort, err := net.SplitHostPort(bound.String())
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, boundPort), nil
}

// Addr returns the address the node serves on.
func (n *Node) Addr() net.Addr {
	return n.server.Addr()
}

// AdvertisedAddress returns the address given to discovering stations.
func (n *Node) AdvertisedAddress() string {
	return n.advertise
}

// DiscoveryAddr returns where discovery queries are answered, or nil if discovery is disabled.
func (n *Node) DiscoveryAddr() net.Addr {
	if n.responder == nil {
		return nil
	}
	return n.responder.Addr()
}

// Close stops answering discovery queries and serving, then releases the registry.
func (n *Node) Close(ctx context.Context) error {
	var err error
	if n.responder != nil {
		err = n.responder.Close()
	}
	n.server.Stop(ctx)
	return multierr.Combine(err, n.Registry.Close(ctx))
}
