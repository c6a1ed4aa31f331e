// Package station implements a station: the host of a set of named sensors. A station controls
// the lifecycle of its sensors and keeps the provider informed of which of them are running.
package station

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/provider"
	"go.viam.com/sensorhub/sensor"
	"go.viam.com/sensorhub/utils"
)

// ErrClosed is returned by operations on a closed station.
var ErrClosed = errors.New("station is closed")

// Service is the station API, served by a Station and consumed through a client.
type Service interface {
	// GetSensorState returns the state of a sensor or a NotFound error.
	GetSensorState(ctx context.Context, name string) (sensor.State, error)
	// ListSensors returns the names of the sensors in filter state, or all of them if filter is
	// nil, in the order they were added.
	ListSensors(ctx context.Context, filter *sensor.State) ([]string, error)
	// StartSensor starts a sensor and registers it with the provider.
	StartSensor(ctx context.Context, name string) error
	// StopSensor stops a sensor and unregisters it from the provider.
	StopSensor(ctx context.Context, name string) error
	// AddSensor instantiates a sensor from conf, starting it if conf.LoadAtStartup is set.
	AddSensor(ctx context.Context, conf sensor.Config) error
	// ListModels returns the sensor models the station can instantiate.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ModelInfo describes a sensor model.
type ModelInfo struct {
	Model       string `json:"model"`
	Description string `json:"description,omitempty"`
}

// Options configures a Station.
type Options struct {
	// Name is the station name, unique across the fleet.
	Name string
	// Address is where the station serves its sensors. It is registered with the provider.
	Address string
	// Provider is the directory the station's running sensors are registered with.
	Provider provider.Service
	// CallTimeout bounds each call to the provider. It defaults to utils.GetCallTimeout.
	CallTimeout time.Duration
	// Clock is given to sensors for their asynchronous reads.
	Clock clock.Clock
	// Registerer receives the station's metrics when set.
	Registerer prometheus.Registerer
}

type entry struct {
	managed *sensor.Managed
	// conf is what the sensor was built from; nil for sensors added without a configuration.
	conf *sensor.Config
}

// Station owns a set of sensors.
//
// The sensor map and every lifecycle transition of its sensors are guarded by one lock, so a
// sensor's state and its provider registration change together. Reads do not take the lock.
type Station struct {
	name        string
	address     string
	provider    provider.Service
	callTimeout time.Duration
	clock       clock.Clock
	logger      logging.Logger
	metrics     *metrics
	workers     utils.StoppableWorkers

	mu      sync.Mutex
	order   []string
	sensors map[string]*entry
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

// New returns a station without sensors.
func New(opts Options, logger logging.Logger) (*Station, error) {
	if opts.Name == "" {
		return nil, errors.New("station name must not be empty")
	}
	if opts.Provider == nil {
		return nil, errors.New("station needs a provider")
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = utils.GetCallTimeout(logger)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	m, err := newMetrics(opts.Name, opts.Registerer)
	if err != nil {
		return nil, errors.Wrap(err, "failed to register station metrics")
	}
	return &Station{
		name:        opts.Name,
		address:     opts.Address,
		provider:    opts.Provider,
		callTimeout: opts.CallTimeout,
		clock:       opts.Clock,
		logger:      logger,
		metrics:     m,
		workers:     utils.NewStoppableWorkers(),
		sensors:     map[string]*entry{},
	}, nil
}

// Name returns the station name.
func (s *Station) Name() string {
	return s.name
}

// Handle returns how the provider should reach the station.
func (s *Station) Handle() provider.StationHandle {
	return provider.StationHandle{Name: s.name, Address: s.address}
}

func (s *Station) sensorHandle(name string) provider.SensorHandle {
	return provider.SensorHandle{Station: s.name, Sensor: name, Address: s.address}
}

// providerCtx bounds a call to the provider.
func (s *Station) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.callTimeout)
}

// Register registers the station itself with the provider.
func (s *Station) Register(ctx context.Context) error {
	callCtx, cancel := s.providerCtx(ctx)
	defer cancel()
	if err := s.provider.RegisterStation(callCtx, s.name, s.Handle()); err != nil {
		s.metrics.providerErrors.WithLabelValues("register_station").Inc()
		return err
	}
	s.logger.Infow("registered with provider", "address", s.address)
	return nil
}

// AddSensor instantiates a sensor from conf in the SHUTDOWN state. Names must be unique within
// the station. If conf.LoadAtStartup is set the sensor is started right away; a failure to start
// is returned but the sensor stays added.
func (s *Station) AddSensor(ctx context.Context, conf sensor.Config) error {
	if err := conf.Validate(conf.Name); err != nil {
		return err
	}
	m, err := sensor.New(ctx, conf, s.logger.Sublogger(conf.Name), sensor.WithClock(s.clock))
	if err != nil {
		return err
	}
	if err := s.add(m, &conf); err != nil {
		return err
	}
	if conf.LoadAtStartup {
		return s.StartSensor(ctx, conf.Name)
	}
	return nil
}

// AddManaged adds a sensor built elsewhere. Stopping it after a fault keeps its driver since
// there is no configuration to rebuild it from.
func (s *Station) AddManaged(m *sensor.Managed) error {
	return s.add(m, nil)
}

func (s *Station) add(m *sensor.Managed, conf *sensor.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.sensors[m.Name()]; ok {
		return errors.Errorf("station %q already has a sensor named %q", s.name, m.Name())
	}
	m.OnTransition(s.onTransition)
	s.sensors[m.Name()] = &entry{managed: m, conf: conf}
	s.order = append(s.order, m.Name())
	s.metrics.added()
	s.logger.Debugw("sensor added", "sensor", m.Name())
	return nil
}

// onTransition records metrics and retracts faulted sensors from the provider. It runs on the
// goroutine that caused the transition, which may hold the station lock, so the retraction
// happens on a worker.
func (s *Station) onTransition(name string, from, to sensor.State) {
	s.metrics.transition(from, to)
	if from == sensor.StateRunning && to == sensor.StateFault {
		s.workers.AddWorkers(func(ctx context.Context) {
			s.retract(ctx, name)
		})
	}
}

// retract unregisters a sensor that faulted while running, unless it left FAULT meanwhile.
func (s *Station) retract(ctx context.Context, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sensors[name]
	if s.closed || !ok || e.managed.CurrentState() != sensor.StateFault {
		return
	}
	s.unregister(ctx, name)
	s.logger.Infow("faulted sensor retracted from provider", "sensor", name)
}

// unregister removes a sensor from the provider, logging failures.
func (s *Station) unregister(ctx context.Context, name string) {
	callCtx, cancel := s.providerCtx(ctx)
	defer cancel()
	if err := s.provider.Unregister(callCtx, s.name, name); err != nil {
		s.metrics.providerErrors.WithLabelValues("unregister").Inc()
		s.logger.Warnw("failed to unregister sensor from provider", "sensor", name, "error", err)
	}
}

// lookup returns the entry of a sensor. The station lock must be held.
func (s *Station) lookup(name string) (*entry, error) {
	if s.closed {
		return nil, ErrClosed
	}
	e, ok := s.sensors[name]
	if !ok {
		return nil, utils.NewNotFoundError(name)
	}
	return e, nil
}

// GetSensorState returns the state of a sensor.
func (s *Station) GetSensorState(ctx context.Context, name string) (sensor.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(name)
	if err != nil {
		return "", err
	}
	return e.managed.CurrentState(), nil
}

// ListSensors returns the names of the sensors in filter state in the order they were added.
func (s *Station) ListSensors(ctx context.Context, filter *sensor.State) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	names := []string{}
	for _, name := range s.order {
		if s.sensors[name].managed.CurrentState().Matches(filter) {
			names = append(names, name)
		}
	}
	return names, nil
}

// StartSensor starts a sensor and registers it with the provider. Starting a running sensor
// does nothing. If the provider cannot be told, the sensor is stopped again and the provider's
// error is returned, so a sensor is only running while it is registered.
func (s *Station) StartSensor(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	if e.managed.CurrentState() == sensor.StateRunning {
		return nil
	}
	if err := e.managed.Start(ctx); err != nil {
		s.logger.Warnw("failed to start sensor", "sensor", name, "error", err)
		return err
	}

	callCtx, cancel := s.providerCtx(ctx)
	defer cancel()
	if err := s.provider.Register(callCtx, s.name, name, s.sensorHandle(name)); err != nil {
		s.metrics.providerErrors.WithLabelValues("register").Inc()
		if stopErr := e.managed.Stop(ctx); stopErr != nil {
			s.logger.Warnw("failed to stop sensor after failed registration", "sensor", name, "error", stopErr)
		}
		return err
	}
	s.logger.Infow("sensor started", "sensor", name)
	return nil
}

// StopSensor stops a sensor and unregisters it from the provider; unregistration failures are
// only logged. Stopping a sensor that is already SHUTDOWN still unregisters it, which clears an
// entry left behind by an earlier failed unregistration. A faulted sensor is rebuilt from its
// configuration so it can be started again.
func (s *Station) StopSensor(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	state := e.managed.CurrentState()
	if state == sensor.StateShutdown {
		s.unregister(ctx, name)
		return nil
	}
	if err := e.managed.Stop(ctx); err != nil {
		s.logger.Warnw("sensor did not tear down cleanly", "sensor", name, "error", err)
	}
	s.unregister(ctx, name)
	if state == sensor.StateFault {
		s.reload(ctx, e)
	}
	s.logger.Infow("sensor stopped", "sensor", name)
	return nil
}

// reload replaces the driver of a stopped sensor with one built from its configuration.
func (s *Station) reload(ctx context.Context, e *entry) {
	if e.conf == nil {
		return
	}
	driver, err := sensor.NewDriver(ctx, *e.conf, s.logger.Sublogger(e.conf.Name))
	if err != nil {
		s.logger.Errorw("failed to rebuild faulted sensor", "sensor", e.conf.Name, "error", err)
		return
	}
	if err := e.managed.Reset(driver); err != nil {
		s.logger.Errorw("failed to reset faulted sensor", "sensor", e.conf.Name, "error", err)
	}
}

// Sensor returns a sensor for local use.
func (s *Station) Sensor(name string) (*sensor.Managed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return e.managed, nil
}

// LookupSensor returns the public face of a sensor, readable if its model produces readings.
func (s *Station) LookupSensor(name string) (sensor.Sensor, error) {
	m, err := s.Sensor(name)
	if err != nil {
		return nil, err
	}
	return sensor.Expose(m), nil
}

// ListModels returns the registered sensor models.
func (s *Station) ListModels(ctx context.Context) ([]ModelInfo, error) {
	regs := sensor.RegisteredModels()
	models := make([]ModelInfo, 0, len(regs))
	for _, reg := range regs {
		models = append(models, ModelInfo{Model: reg.Model, Description: reg.Description})
	}
	return models, nil
}

// Close unregisters the station from the provider, then stops and unregisters every sensor.
// Failures are logged and returned together; they never cut the sequence short. Only the first
// call does anything.
func (s *Station) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.close(ctx)
	})
	return s.closeErr
}

func (s *Station) close(ctx context.Context) error {
	var errs error
	callCtx, cancel := s.providerCtx(ctx)
	if err := s.provider.UnregisterStation(callCtx, s.name); err != nil {
		s.metrics.providerErrors.WithLabelValues("unregister_station").Inc()
		s.logger.Warnw("failed to unregister station from provider", "error", err)
		errs = multierr.Append(errs, err)
	}
	cancel()

	s.mu.Lock()
	for _, name := range s.order {
		m := s.sensors[name].managed
		if err := m.Stop(ctx); err != nil {
			s.logger.Warnw("sensor did not tear down cleanly", "sensor", name, "error", err)
			errs = multierr.Append(errs, err)
		}
		callCtx, cancel := s.providerCtx(ctx)
		if err := s.provider.Unregister(callCtx, s.name, name); err != nil {
			s.metrics.providerErrors.WithLabelValues("unregister").Inc()
			s.logger.Warnw("failed to unregister sensor from provider", "sensor", name, "error", err)
			errs = multierr.Append(errs, err)
		}
		cancel()
	}
	s.closed = true
	s.mu.Unlock()

	s.workers.Stop()
	s.logger.Infow("station closed", "sensors", len(s.order))
	return errs
}
