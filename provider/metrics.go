package provider

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	exclusionUnreachable = "unreachable"
	exclusionTimeout     = "timeout"
	exclusionError       = "error"
)

// metrics holds Prometheus metrics for the registry.
type metrics struct {
	stations   prometheus.Gauge
	sensors    prometheus.Gauge
	listings   prometheus.Counter
	exclusions *prometheus.CounterVec
	listing    prometheus.Histogram
}

// newMetrics creates registry metrics and registers them with registerer, if any.
func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		stations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensorhub",
			Subsystem: "provider",
			Name:      "registered_stations",
			Help:      "Number of registered stations",
		}),
		sensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensorhub",
			Subsystem: "provider",
			Name:      "registered_sensors",
			Help:      "Number of registered sensors",
		}),
		listings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorhub",
			Subsystem: "provider",
			Name:      "listings_total",
			Help:      "Total number of sensor listings served",
		}),
		exclusions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensorhub",
			Subsystem: "provider",
			Name:      "listing_exclusions_total",
			Help:      "Total number of sensors left out of listings because they could not be queried",
		}, []string{"reason"}), // reason: unreachable, timeout, error
		listing: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sensorhub",
			Subsystem: "provider",
			Name:      "listing_duration_seconds",
			Help:      "Sensor listing duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}),
	}
	if registerer == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.stations, m.sensors, m.listings, m.exclusions, m.listing} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
