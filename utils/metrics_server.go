package utils

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goutils "go.viam.com/utils"

	"go.viam.com/sensorhub/logging"
)

// MetricsServer exposes a Prometheus registry over HTTP at /metrics.
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
	logger   logging.Logger
	done     chan struct{}
}

// ServeMetrics starts serving gatherer on address in the background.
func ServeMetrics(address string, gatherer prometheus.Gatherer, logger logging.Logger) (*MetricsServer, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen for metrics on %q", address)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	ms := &MetricsServer{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
		logger:   logger,
		done:     make(chan struct{}),
	}
	goutils.ManagedGo(func() {
		if err := ms.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("metrics server stopped with error", "error", err)
		}
	}, func() { close(ms.done) })
	logger.Infow("serving metrics", "address", listener.Addr().String())
	return ms, nil
}

// Addr returns the address metrics are served on.
func (ms *MetricsServer) Addr() net.Addr {
	return ms.listener.Addr()
}

// Close stops serving, waiting for in flight scrapes until ctx is done.
func (ms *MetricsServer) Close(ctx context.Context) error {
	err := ms.server.Shutdown(ctx)
	<-ms.done
	return err
}
