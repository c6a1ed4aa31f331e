package station_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/provider"
	"go.viam.com/sensorhub/sensor"
	"go.viam.com/sensorhub/sensor/fake"
	"go.viam.com/sensorhub/station"
	"go.viam.com/sensorhub/testutils/inject"
	"go.viam.com/sensorhub/utils"
)

const testAddress = "127.0.0.1:8081"

func newTestStation(t *testing.T) (*station.Station, *provider.Registry, *inject.Provider) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	registry, err := provider.NewRegistry(provider.Options{}, logger.Sublogger("provider"))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, registry.Close(context.Background()), test.ShouldBeNil)
	})
	injectProvider := &inject.Provider{Service: registry}
	st, err := station.New(station.Options{
		Name:     "alpha",
		Address:  testAddress,
		Provider: injectProvider,
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		st.Close(context.Background())
	})
	return st, registry, injectProvider
}

func temperatureConfig(name string) sensor.Config {
	return sensor.Config{
		Name:       name,
		Model:      fake.TemperatureModel,
		Attributes: map[string]interface{}{"value": 21.5},
	}
}

func failingDriver(acquired chan<- struct{}) *inject.Acquirer {
	return &inject.Acquirer{AcquireFunc: func(ctx context.Context) (float64, error) {
		if acquired != nil {
			close(acquired)
		}
		return 0, errors.New("bus error")
	}}
}

func TestNewValidation(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := station.New(station.Options{Provider: &inject.Provider{}}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = station.New(station.Options{Name: "alpha"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestStartStopSensor(t *testing.T) {
	ctx := context.Background()
	st, registry, injectProvider := newTestStation(t)
	test.That(t, st.AddSensor(ctx, temperatureConfig("tempA")), test.ShouldBeNil)

	state, err := st.GetSensorState(ctx, "tempA")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state, test.ShouldEqual, sensor.StateShutdown)
	_, err = registry.LookupSensor(ctx, "alpha", "tempA")
	test.That(t, utils.IsNotFoundError(err), test.ShouldBeTrue)

	var registrations atomic.Int32
	injectProvider.RegisterFunc = func(ctx context.Context, station, name string, handle provider.SensorHandle) error {
		registrations.Add(1)
		return registry.Register(ctx, station, name, handle)
	}

	test.That(t, st.StartSensor(ctx, "tempA"), test.ShouldBeNil)
	state, err = st.GetSensorState(ctx, "tempA")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state, test.ShouldEqual, sensor.StateRunning)
	handle, err := registry.LookupSensor(ctx, "alpha", "tempA")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, handle, test.ShouldResemble, provider.SensorHandle{Station: "alpha", Sensor: "tempA", Address: testAddress})

	readable, err := st.LookupSensor("tempA")
	test.That(t, err, test.ShouldBeNil)
	value, err := readable.(sensor.Numeric).Read(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, value, test.ShouldEqual, 21.5)

	// starting a running sensor does not touch the provider
	test.That(t, st.StartSensor(ctx, "tempA"), test.ShouldBeNil)
	test.That(t, registrations.Load(), test.ShouldEqual, 1)

	test.That(t, st.StopSensor(ctx, "tempA"), test.ShouldBeNil)
	state, err = st.GetSensorState(ctx, "tempA")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state, test.ShouldEqual, sensor.StateShutdown)
	_, err = registry.LookupSensor(ctx, "alpha", "tempA")
	test.That(t, utils.IsNotFoundError(err), test.ShouldBeTrue)

	test.That(t, st.StopSensor(ctx, "tempA"), test.ShouldBeNil)
}

func TestUnknownSensor(t *testing.T) {
	ctx := context.Background()
	st, _, _ := newTestStation(t)

	_, err := st.GetSensorState(ctx, "nope")
	test.That(t, utils.IsNotFoundError(err), test.ShouldBeTrue)
	test.That(t, utils.IsNotFoundError(st.StartSensor(ctx, "nope")), test.ShouldBeTrue)
	test.That(t, utils.IsNotFoundError(st.StopSensor(ctx, "nope")), test.ShouldBeTrue)
	_, err = st.LookupSensor("nope")
	test.That(t, utils.IsNotFoundError(err), test.ShouldBeTrue)
}

func TestAddSensor(t *testing.T) {
	ctx := context.Background()
	st, registry, _ := newTestStation(t)

	test.That(t, st.AddSensor(ctx, temperatureConfig("tempA")), test.ShouldBeNil)
	err := st.AddSensor(ctx, temperatureConfig("tempA"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "already has a sensor")

	err = st.AddSensor(ctx, sensor.Config{Name: "mystery", Model: "no_such_model"})
	test.That(t, err, test.ShouldNotBeNil)

	err = st.AddSensor(ctx, sensor.Config{Name: "damp", Model: fake.HumidityModel, Attributes: map[string]interface{}{"value": 140}})
	test.That(t, err, test.ShouldNotBeNil)

	conf := temperatureConfig("tempB")
	conf.LoadAtStartup = true
	test.That(t, st.AddSensor(ctx, conf), test.ShouldBeNil)
	state, err := st.GetSensorState(ctx, "tempB")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state, test.ShouldEqual, sensor.StateRunning)
	_, err = registry.LookupSensor(ctx, "alpha", "tempB")
	test.That(t, err, test.ShouldBeNil)

	// a sensor that fails to start stays added
	conf = sensor.Config{
		Name:          "broken",
		Model:         fake.SwitchModel,
		LoadAtStartup: true,
		Attributes:    map[string]interface{}{"fail_setup": true},
	}
	err = st.AddSensor(ctx, conf)
	test.That(t, utils.IsStartupFailureError(err), test.ShouldBeTrue)
	state, err = st.GetSensorState(ctx, "broken")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state, test.ShouldEqual, sensor.StateFault)

	names, err := st.ListSensors(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, names, test.ShouldResemble, []string{"tempA", "tempB", "broken"})
}

func TestListSensors(t *testing.T) {
	ctx := context.Background()
	st, _, _ := newTestStation(t)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		test.That(t, st.AddSensor(ctx, temperatureConfig(name)), test.ShouldBeNil)
	}
	test.That(t, st.AddManaged(sensor.NewManaged("faulty", failingDriver(nil), logging.NewTestLogger(t))), test.ShouldBeNil)
	test.That(t, st.StartSensor(ctx, "alpha"), test.ShouldBeNil)
	test.That(t, st.StartSensor(ctx, "faulty"), test.ShouldBeNil)
	faulty, err := st.Sensor("faulty")
	test.That(t, err, test.ShouldBeNil)
	_, err = sensor.Read[float64](ctx, faulty)
	test.That(t, utils.IsAcquisitionFailureError(err), test.ShouldBeTrue)

	names, err := st.ListSensors(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, names, test.ShouldResemble, []string{"zeta", "alpha", "mid", "faulty"})

	for _, tc := range []struct {
		state sensor.State
		names []string
	}{
		{sensor.StateShutdown, []string{"zeta", "mid"}},
		{sensor.StateRunning, []string{"alpha"}},
		{sensor.StateFault, []string{"faulty"}},
	} {
		t.Run(string(tc.state), func(t *testing.T) {
			filter := tc.state
			names, err := st.ListSensors(ctx, &filter)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, names, test.ShouldResemble, tc.names)
		})
	}
}

func TestStartRollsBackWhenProviderFails(t *testing.T) {
	ctx := context.Background()
	st, registry, injectProvider := newTestStation(t)
	driver := &inject.Acquirer{}
	test.That(t, st.AddManaged(sensor.NewManaged("tempA", driver, logging.NewTestLogger(t))), test.ShouldBeNil)

	injectProvider.RegisterFunc = func(ctx context.Context, station, name string, handle provider.SensorHandle) error {
		return utils.NewUnreachablePeerError("provider", errors.New("connection refused"))
	}
	err := st.StartSensor(ctx, "tempA")
	test.That(t, utils.IsUnreachablePeerError(err), test.ShouldBeTrue)

	state, err := st.GetSensorState(ctx, "tempA")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state, test.ShouldEqual, sensor.StateShutdown)
	test.That(t, driver.SetupCalls(), test.ShouldEqual, 1)
	test.That(t, driver.TeardownCalls(), test.ShouldEqual, 1)
	_, err = registry.LookupSensor(ctx, "alpha", "tempA")
	test.That(t, utils.IsNotFoundError(err), test.ShouldBeTrue)

	injectProvider.RegisterFunc = nil
	test.That(t, st.StartSensor(ctx, "tempA"), test.ShouldBeNil)
	_, err = registry.LookupSensor(ctx, "alpha", "tempA")
	test.That(t, err, test.ShouldBeNil)
}

func TestStartFaultedSensor(t *testing.T) {
	ctx := context.Background()
	st, registry, _ := newTestStation(t)
	driver := &inject.Acquirer{}
	driver.SetupFunc = func(ctx context.Context) error {
		return errors.New("no such device")
	}
	test.That(t, st.AddManaged(sensor.NewManaged("tempA", driver, logging.NewTestLogger(t))), test.ShouldBeNil)

	err := st.StartSensor(ctx, "tempA")
	test.That(t, utils.IsStartupFailureError(err), test.ShouldBeTrue)
	_, err = registry.LookupSensor(ctx, "alpha", "tempA")
	test.That(t, utils.IsNotFoundError(err), test.ShouldBeTrue)

	err = st.StartSensor(ctx, "tempA")
	test.That(t, utils.IsFaultedSensorError(err), test.ShouldBeTrue)
}

func TestFaultRetraction(t *testing.T) {
	ctx := context.Background()
	st, registry, _ := newTestStation(t)
	test.That(t, st.AddManaged(sensor.NewManaged("tempA", failingDriver(nil), logging.NewTestLogger(t))), test.ShouldBeNil)
	test.That(t, st.StartSensor(ctx, "tempA"), test.ShouldBeNil)
	_, err := registry.LookupSensor(ctx, "alpha", "tempA")
	test.That(t, err, test.ShouldBeNil)

	readable, err := st.LookupSensor("tempA")
	test.That(t, err, test.ShouldBeNil)
	_, err = readable.(sensor.Numeric).Read(ctx)
	test.That(t, utils.IsAcquisitionFailureError(err), test.ShouldBeTrue)

	state, err := st.GetSensorState(ctx, "tempA")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state, test.ShouldEqual, sensor.StateFault)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		_, err := registry.LookupSensor(ctx, "alpha", "tempA")
		test.That(tb, utils.IsNotFoundError(err), test.ShouldBeTrue)
	})

	_, err = readable.(sensor.Numeric).Read(ctx)
	test.That(t, utils.IsFaultedSensorError(err), test.ShouldBeTrue)
}

func TestAsyncReadFaultRetraction(t *testing.T) {
	ctx := context.Background()
	st, registry, _ := newTestStation(t)
	acquired := make(chan struct{})
	test.That(t, st.AddManaged(sensor.NewManaged("tempA", failingDriver(acquired), logging.NewTestLogger(t))), test.ShouldBeNil)
	test.That(t, st.StartSensor(ctx, "tempA"), test.ShouldBeNil)

	readable, err := st.LookupSensor("tempA")
	test.That(t, err, test.ShouldBeNil)
	result, err := readable.(sensor.Numeric).ReadAsync(ctx)
	test.That(t, err, test.ShouldBeNil)
	<-acquired
	_, err = result.Get()
	test.That(t, utils.IsAcquisitionFailureError(err), test.ShouldBeTrue)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		_, err := registry.LookupSensor(ctx, "alpha", "tempA")
		test.That(tb, utils.IsNotFoundError(err), test.ShouldBeTrue)
	})
}

func TestStopFaultedSensorReloads(t *testing.T) {
	ctx := context.Background()
	st, registry, _ := newTestStation(t)
	conf := temperatureConfig("tempA")
	conf.Attributes["fail_after"] = 1
	test.That(t, st.AddSensor(ctx, conf), test.ShouldBeNil)
	before, err := st.Sensor("tempA")
	test.That(t, err, test.ShouldBeNil)
	oldDriver := before.Driver()

	test.That(t, st.StartSensor(ctx, "tempA"), test.ShouldBeNil)
	readable, err := st.LookupSensor("tempA")
	test.That(t, err, test.ShouldBeNil)
	numeric := readable.(sensor.Numeric)
	_, err = numeric.Read(ctx)
	test.That(t, err, test.ShouldBeNil)
	_, err = numeric.Read(ctx)
	test.That(t, utils.IsAcquisitionFailureError(err), test.ShouldBeTrue)

	test.That(t, st.StopSensor(ctx, "tempA"), test.ShouldBeNil)
	state, err := st.GetSensorState(ctx, "tempA")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state, test.ShouldEqual, sensor.StateShutdown)
	test.That(t, before.Driver(), test.ShouldNotEqual, oldDriver)
	_, err = registry.LookupSensor(ctx, "alpha", "tempA")
	test.That(t, utils.IsNotFoundError(err), test.ShouldBeTrue)

	test.That(t, st.StartSensor(ctx, "tempA"), test.ShouldBeNil)
	value, err := numeric.Read(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, value, test.ShouldEqual, 21.5)
}

func TestStopUnregisterFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	st, _, injectProvider := newTestStation(t)
	test.That(t, st.AddSensor(ctx, temperatureConfig("tempA")), test.ShouldBeNil)
	test.That(t, st.StartSensor(ctx, "tempA"), test.ShouldBeNil)

	injectProvider.UnregisterFunc = func(ctx context.Context, station, name string) error {
		return utils.NewUnreachablePeerError("provider", errors.New("connection refused"))
	}
	test.That(t, st.StopSensor(ctx, "tempA"), test.ShouldBeNil)
	state, err := st.GetSensorState(ctx, "tempA")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state, test.ShouldEqual, sensor.StateShutdown)
}

func TestStopShutdownSensorRetriesUnregister(t *testing.T) {
	ctx := context.Background()
	st, registry, injectProvider := newTestStation(t)
	test.That(t, st.AddSensor(ctx, temperatureConfig("tempA")), test.ShouldBeNil)
	test.That(t, st.StartSensor(ctx, "tempA"), test.ShouldBeNil)

	var calls atomic.Int32
	var failing atomic.Bool
	failing.Store(true)
	injectProvider.UnregisterFunc = func(ctx context.Context, station, name string) error {
		calls.Add(1)
		if failing.Load() {
			return utils.NewUnreachablePeerError("provider", errors.New("connection refused"))
		}
		return registry.Unregister(ctx, station, name)
	}
	test.That(t, st.StopSensor(ctx, "tempA"), test.ShouldBeNil)
	test.That(t, calls.Load(), test.ShouldEqual, int32(1))
	_, err := registry.LookupSensor(ctx, "alpha", "tempA")
	test.That(t, err, test.ShouldBeNil)

	failing.Store(false)
	test.That(t, st.StopSensor(ctx, "tempA"), test.ShouldBeNil)
	test.That(t, calls.Load(), test.ShouldEqual, int32(2))
	_, err = registry.LookupSensor(ctx, "alpha", "tempA")
	test.That(t, utils.IsNotFoundError(err), test.ShouldBeTrue)
	state, err := st.GetSensorState(ctx, "tempA")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state, test.ShouldEqual, sensor.StateShutdown)
}

func TestListModels(t *testing.T) {
	st, _, _ := newTestStation(t)
	models, err := st.ListModels(context.Background())
	test.That(t, err, test.ShouldBeNil)
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.Model)
	}
	test.That(t, names, test.ShouldContain, fake.HumidityModel)
	test.That(t, names, test.ShouldContain, fake.TemperatureModel)
	test.That(t, names, test.ShouldContain, fake.SwitchModel)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	st, registry, injectProvider := newTestStation(t)
	test.That(t, st.Register(ctx), test.ShouldBeNil)
	for _, name := range []string{"tempA", "tempB", "tempC"} {
		test.That(t, st.AddSensor(ctx, temperatureConfig(name)), test.ShouldBeNil)
	}
	test.That(t, st.StartSensor(ctx, "tempA"), test.ShouldBeNil)
	test.That(t, st.StartSensor(ctx, "tempC"), test.ShouldBeNil)
	tempA, err := st.Sensor("tempA")
	test.That(t, err, test.ShouldBeNil)

	var mu sync.Mutex
	var unregistered []string
	unregisterErr := errors.New("provider went away")
	injectProvider.UnregisterStationFunc = func(ctx context.Context, name string) error {
		return unregisterErr
	}
	injectProvider.UnregisterFunc = func(ctx context.Context, station, name string) error {
		mu.Lock()
		unregistered = append(unregistered, name)
		mu.Unlock()
		return registry.Unregister(ctx, station, name)
	}

	err = st.Close(ctx)
	test.That(t, errors.Is(err, unregisterErr), test.ShouldBeTrue)
	test.That(t, unregistered, test.ShouldResemble, []string{"tempA", "tempB", "tempC"})
	test.That(t, tempA.CurrentState(), test.ShouldEqual, sensor.StateShutdown)
	listed, err := registry.ListSensors(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, listed, test.ShouldBeEmpty)

	// only the first close does anything
	test.That(t, errors.Is(st.Close(ctx), unregisterErr), test.ShouldBeTrue)
	test.That(t, unregistered, test.ShouldHaveLength, 3)

	_, err = st.ListSensors(ctx, nil)
	test.That(t, err, test.ShouldEqual, station.ErrClosed)
	test.That(t, st.StartSensor(ctx, "tempA"), test.ShouldEqual, station.ErrClosed)
	test.That(t, st.AddSensor(ctx, temperatureConfig("late")), test.ShouldEqual, station.ErrClosed)
}

func TestConcurrentLifecycle(t *testing.T) {
	ctx := context.Background()
	st, registry, _ := newTestStation(t)
	test.That(t, st.AddSensor(ctx, temperatureConfig("tempA")), test.ShouldBeNil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				test.That(t, st.StartSensor(ctx, "tempA"), test.ShouldBeNil)
			} else {
				test.That(t, st.StopSensor(ctx, "tempA"), test.ShouldBeNil)
			}
		}(i)
	}
	wg.Wait()

	state, err := st.GetSensorState(ctx, "tempA")
	test.That(t, err, test.ShouldBeNil)
	_, lookupErr := registry.LookupSensor(ctx, "alpha", "tempA")
	if state == sensor.StateRunning {
		test.That(t, lookupErr, test.ShouldBeNil)
	} else {
		test.That(t, utils.IsNotFoundError(lookupErr), test.ShouldBeTrue)
	}
}
