// Package fake implements simulated sensor models for trying out a station without hardware.
//
// Each model can be told to fail during setup or after a number of readings so that the
// fault handling of a deployment can be exercised end to end.
package fake

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/sensor"
)

const (
	// HumidityModel simulates a relative humidity sensor reporting percentages.
	HumidityModel = "fake_humidity"
	// TemperatureModel simulates a thermometer reporting degrees Celsius.
	TemperatureModel = "fake_temperature"
	// SwitchModel simulates a device that can be started and stopped but produces no readings.
	SwitchModel = "fake_switch"
)

var (
	errSetup   = errors.New("simulated setup failure")
	errAcquire = errors.New("simulated acquisition failure")
)

func init() {
	sensor.RegisterModel(HumidityModel, sensor.Registration[HumidityConfig]{
		Description: "simulated relative humidity sensor",
		Constructor: func(ctx context.Context, name string, conf *HumidityConfig, logger logging.Logger) (sensor.Driver, error) {
			return newSimulated(name, conf.SimulationConfig, 0, 100, logger), nil
		},
	})
	sensor.RegisterModel(TemperatureModel, sensor.Registration[TemperatureConfig]{
		Description: "simulated thermometer",
		Constructor: func(ctx context.Context, name string, conf *TemperatureConfig, logger logging.Logger) (sensor.Driver, error) {
			return newSimulated(name, conf.SimulationConfig, absoluteZero, conf.Max(), logger), nil
		},
	})
	sensor.RegisterModel(SwitchModel, sensor.Registration[SwitchConfig]{
		Description: "simulated switch without readings",
		Constructor: func(ctx context.Context, name string, conf *SwitchConfig, logger logging.Logger) (sensor.Driver, error) {
			return &Switch{name: name, failSetup: conf.FailSetup, logger: logger}, nil
		},
	})
}

// SimulationConfig controls what a simulated sensor reads and how it misbehaves.
type SimulationConfig struct {
	Value     float64       `json:"value"`
	Jitter    float64       `json:"jitter,omitempty"`
	Latency   time.Duration `json:"latency,omitempty"`
	FailSetup bool          `json:"fail_setup,omitempty"`
	// FailAfter makes every reading after the first FailAfter ones fail. Zero never fails.
	FailAfter int `json:"fail_after,omitempty"`
}

func (conf *SimulationConfig) validate(path string, lo, hi float64) error {
	if conf.Jitter < 0 {
		return errors.Errorf("%s: jitter must not be negative", path)
	}
	if conf.Latency < 0 {
		return errors.Errorf("%s: latency must not be negative", path)
	}
	if conf.FailAfter < 0 {
		return errors.Errorf("%s: fail_after must not be negative", path)
	}
	if conf.Value < lo || conf.Value > hi {
		return errors.Errorf("%s: value %v outside of [%v, %v]", path, conf.Value, lo, hi)
	}
	return nil
}

// HumidityConfig configures a simulated humidity sensor.
type HumidityConfig struct {
	SimulationConfig
}

// Validate ensures the base reading is a percentage.
func (conf *HumidityConfig) Validate(path string) error {
	return conf.validate(path, 0, 100)
}

const absoluteZero = -273.15

// TemperatureConfig configures a simulated thermometer.
type TemperatureConfig struct {
	SimulationConfig
	// MaxCelsius bounds readings from above. It defaults to 1000.
	MaxCelsius float64 `json:"max_celsius,omitempty"`
}

// Max returns the highest temperature the thermometer reports.
func (conf *TemperatureConfig) Max() float64 {
	if conf.MaxCelsius == 0 {
		return 1000
	}
	return conf.MaxCelsius
}

// Validate ensures the base reading is a physical temperature.
func (conf *TemperatureConfig) Validate(path string) error {
	return conf.validate(path, absoluteZero, conf.Max())
}

// SwitchConfig configures a simulated switch.
type SwitchConfig struct {
	FailSetup bool `json:"fail_setup,omitempty"`
}

// Simulated is a driver producing readings around a base value, clamped to the model's range.
type Simulated struct {
	name   string
	conf   SimulationConfig
	lo, hi float64
	logger logging.Logger

	mu    sync.Mutex
	reads int
}

func newSimulated(name string, conf SimulationConfig, lo, hi float64, logger logging.Logger) *Simulated {
	return &Simulated{name: name, conf: conf, lo: lo, hi: hi, logger: logger}
}

// Setup fails if the simulation is configured to.
func (s *Simulated) Setup(ctx context.Context) error {
	if s.conf.FailSetup {
		return errSetup
	}
	s.mu.Lock()
	s.reads = 0
	s.mu.Unlock()
	s.logger.Debugw("simulated sensor set up", "sensor", s.name)
	return nil
}

// Teardown always succeeds.
func (s *Simulated) Teardown(ctx context.Context) error {
	s.logger.Debugw("simulated sensor torn down", "sensor", s.name)
	return nil
}

// Acquire waits for the configured latency and returns a reading.
func (s *Simulated) Acquire(ctx context.Context) (float64, error) {
	if s.conf.Latency > 0 {
		timer := time.NewTimer(s.conf.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	s.reads++
	reads := s.reads
	s.mu.Unlock()
	if s.conf.FailAfter > 0 && reads > s.conf.FailAfter {
		return 0, errAcquire
	}

	value := s.conf.Value
	if s.conf.Jitter > 0 {
		value += (rand.Float64()*2 - 1) * s.conf.Jitter
	}
	return min(max(value, s.lo), s.hi), nil
}

// Switch is a driver without readings.
type Switch struct {
	name      string
	failSetup bool
	logger    logging.Logger

	mu sync.Mutex
	on bool
}

// Setup turns the switch on.
func (s *Switch) Setup(ctx context.Context) error {
	if s.failSetup {
		return errSetup
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = true
	return nil
}

// Teardown turns the switch off.
func (s *Switch) Teardown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = false
	return nil
}

// On reports whether the switch is on.
func (s *Switch) On() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}
