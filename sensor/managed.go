package sensor

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/sensorhub/future"
	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/utils"
)

// TransitionFunc is called after a sensor moves from one state to another.
type TransitionFunc func(name string, from, to State)

// Managed owns the lifecycle of a single sensor and the driver that implements it.
//
// Lifecycle transitions (Start, Stop, Reset) are serialized with each other. Reads do not hold
// the transition lock while acquiring, so a slow acquisition never blocks Stop; a failure that
// completes after the sensor was restarted or stopped does not fault the newer incarnation.
type Managed struct {
	name   string
	logger logging.Logger
	clock  clock.Clock

	transitionMu sync.Mutex

	mu         sync.Mutex
	state      State
	driver     Driver
	setUp      bool
	generation uint64
	hooks      []TransitionFunc
}

// ManagedOption configures a Managed sensor.
type ManagedOption func(*Managed)

// WithClock sets the clock used by futures returned from ReadAsync and by slow setup warnings.
func WithClock(clk clock.Clock) ManagedOption {
	return func(m *Managed) {
		m.clock = clk
	}
}

// NewManaged returns a sensor named name in the SHUTDOWN state backed by driver.
func NewManaged(name string, driver Driver, logger logging.Logger, opts ...ManagedOption) *Managed {
	m := &Managed{
		name:   name,
		logger: logger,
		clock:  clock.New(),
		state:  StateShutdown,
		driver: driver,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the sensor's name.
func (m *Managed) Name() string {
	return m.name
}

// State returns the current lifecycle state. It never fails.
func (m *Managed) State(ctx context.Context) (State, error) {
	return m.CurrentState(), nil
}

// CurrentState returns the current lifecycle state.
func (m *Managed) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Driver returns the driver currently backing the sensor.
func (m *Managed) Driver() Driver {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.driver
}

// OnTransition registers fn to be called after every state change. Hooks run on the goroutine
// that caused the change and must not call back into lifecycle methods of the same sensor.
func (m *Managed) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Start brings the sensor from SHUTDOWN to RUNNING. Starting a running sensor is a no-op and
// starting a faulted sensor fails with a FaultedSensor error without changing its state. If the
// driver fails to set up, it is torn down and the sensor is faulted.
func (m *Managed) Start(ctx context.Context) error {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.mu.Lock()
	state, driver := m.state, m.driver
	m.mu.Unlock()

	switch state {
	case StateRunning:
		return nil
	case StateFault:
		return utils.NewFaultedSensorError(m.name)
	case StateShutdown:
	}

	stopSlowLogging := utils.SlowLogger(ctx, m.clock, "waiting for sensor to set up", "sensor", m.name, m.logger)
	err := driver.Setup(ctx)
	stopSlowLogging()
	if err != nil {
		if tdErr := driver.Teardown(ctx); tdErr != nil {
			m.logger.Warnw("teardown after failed setup also failed", "sensor", m.name, "error", tdErr)
		}
		m.transition(StateFault, false)
		return utils.NewStartupFailureError(m.name, err)
	}
	m.transition(StateRunning, true)
	return nil
}

// Stop tears the sensor down and moves it to SHUTDOWN from any state. Stopping a sensor that is
// already shut down is a no-op. The state changes even if the driver fails to tear down; that
// failure is returned.
func (m *Managed) Stop(ctx context.Context) error {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.mu.Lock()
	state, driver, setUp := m.state, m.driver, m.setUp
	m.mu.Unlock()

	if state == StateShutdown {
		return nil
	}
	var err error
	if setUp {
		err = driver.Teardown(ctx)
	}
	m.transition(StateShutdown, false)
	if err != nil {
		return errors.Wrapf(err, "failed to tear down sensor %q", m.name)
	}
	return nil
}

// Reset replaces the driver of a shut down sensor, for instance with one built from a freshly
// loaded configuration.
func (m *Managed) Reset(driver Driver) error {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateShutdown {
		return errors.Errorf("cannot reset sensor %q while %s", m.name, m.state)
	}
	m.driver = driver
	m.generation++
	return nil
}

// transition moves to the given state and runs hooks if the state changed.
func (m *Managed) transition(to State, setUp bool) {
	m.transitionIf(nil, to, setUp)
}

// transitionIf is transition guarded by allowed, which is evaluated under the state lock.
func (m *Managed) transitionIf(allowed func() bool, to State, setUp bool) bool {
	m.mu.Lock()
	if allowed != nil && !allowed() {
		m.mu.Unlock()
		return false
	}
	from := m.state
	m.state = to
	m.setUp = setUp
	m.generation++
	hooks := append([]TransitionFunc(nil), m.hooks...)
	m.mu.Unlock()

	if from == to {
		return true
	}
	m.logger.Debugw("sensor state changed", "sensor", m.name, "from", from, "to", to)
	for _, hook := range hooks {
		hook(m.name, from, to)
	}
	return true
}

// fault moves a running sensor to FAULT unless it has transitioned since generation was observed.
// The driver stays set up until the sensor is stopped.
func (m *Managed) fault(generation uint64, cause error) {
	faulted := m.transitionIf(func() bool {
		return m.generation == generation && m.state == StateRunning
	}, StateFault, true)
	if faulted {
		m.logger.Warnw("sensor faulted", "sensor", m.name, "error", cause)
	}
}

// snapshot returns what a read needs to check its preconditions.
func (m *Managed) snapshot() (State, Driver, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.driver, m.generation
}

func (m *Managed) checkReadable(state State) error {
	switch state {
	case StateFault:
		return utils.NewFaultedSensorError(m.name)
	case StateShutdown:
		return utils.NewNotRunningError(m.name)
	case StateRunning:
	}
	return nil
}

// Read acquires a reading of type T from m. The sensor must be running. If the driver fails to
// acquire, the sensor is faulted and an AcquisitionFailure error is returned. A read abandoned
// because ctx ended does not fault the sensor.
func Read[T any](ctx context.Context, m *Managed) (T, error) {
	var zero T
	state, driver, generation := m.snapshot()
	if err := m.checkReadable(state); err != nil {
		return zero, err
	}
	acquirer, err := utils.AssertType[Acquirer[T]](driver)
	if err != nil {
		return zero, err
	}
	value, err := acquirer.Acquire(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, errors.Wrapf(ctxErr, "read of sensor %q abandoned", m.name)
		}
		m.fault(generation, err)
		return zero, utils.NewAcquisitionFailureError(m.name, err)
	}
	return value, nil
}

// ReadAsync starts a read of m in the background and returns its pending result. Precondition
// failures are returned directly; acquisition failures fail the result and fault the sensor just
// like Read. The read is not bound to ctx's cancellation.
func ReadAsync[T any](ctx context.Context, m *Managed) (future.Result[T], error) {
	state, driver, _ := m.snapshot()
	if err := m.checkReadable(state); err != nil {
		return nil, err
	}
	if _, err := utils.AssertType[Acquirer[T]](driver); err != nil {
		return nil, err
	}
	readCtx := context.WithoutCancel(ctx)
	return future.GoWithClock(m.clock, func() (T, error) {
		return Read[T](readCtx, m)
	}), nil
}

// CanRead reports whether m's driver produces readings of type T.
func CanRead[T any](m *Managed) bool {
	_, ok := m.Driver().(Acquirer[T])
	return ok
}

type readable[T any] struct {
	*Managed
}

func (r readable[T]) Read(ctx context.Context) (T, error) {
	return Read[T](ctx, r.Managed)
}

func (r readable[T]) ReadAsync(ctx context.Context) (future.Result[T], error) {
	return ReadAsync[T](ctx, r.Managed)
}

// AsReadable returns m as a Readable of T, or an error if its driver does not produce readings
// of type T.
func AsReadable[T any](m *Managed) (Readable[T], error) {
	if !CanRead[T](m) {
		return nil, utils.NewUnexpectedTypeError[Acquirer[T]](m.Driver())
	}
	return readable[T]{m}, nil
}

// Expose returns the public face of m: a Numeric sensor if its driver produces numeric readings
// and a plain Sensor otherwise.
func Expose(m *Managed) Sensor {
	if r, err := AsReadable[float64](m); err == nil {
		return r
	}
	return m
}
