package station

import (
	"github.com/prometheus/client_golang/prometheus"

	"go.viam.com/sensorhub/sensor"
)

// metrics holds Prometheus metrics for a station.
type metrics struct {
	sensors        *prometheus.GaugeVec
	transitions    *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
}

// newMetrics creates station metrics and registers them with registerer, if any.
func newMetrics(station string, registerer prometheus.Registerer) (*metrics, error) {
	labels := prometheus.Labels{"station": station}
	m := &metrics{
		sensors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "sensorhub",
			Subsystem:   "station",
			Name:        "sensors",
			Help:        "Number of sensors by lifecycle state",
			ConstLabels: labels,
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "sensorhub",
			Subsystem:   "station",
			Name:        "transitions_total",
			Help:        "Total number of sensor lifecycle transitions",
			ConstLabels: labels,
		}, []string{"from", "to"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "sensorhub",
			Subsystem:   "station",
			Name:        "provider_errors_total",
			Help:        "Total number of failed calls to the provider",
			ConstLabels: labels,
		}, []string{"operation"}), // operation: register, unregister, register_station, unregister_station
	}
	for _, state := range sensor.States {
		m.sensors.WithLabelValues(string(state))
	}
	if registerer == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.sensors, m.transitions, m.providerErrors} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) added() {
	m.sensors.WithLabelValues(string(sensor.StateShutdown)).Inc()
}

func (m *metrics) transition(from, to sensor.State) {
	m.sensors.WithLabelValues(string(from)).Dec()
	m.sensors.WithLabelValues(string(to)).Inc()
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}
