package sensor_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.viam.com/sensorhub/future"
	shgrpc "go.viam.com/sensorhub/grpc"
	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/sensor"
	"go.viam.com/sensorhub/testutils/inject"
	"go.viam.com/sensorhub/utils"
)

type sensorMap map[string]sensor.Sensor

func (sm sensorMap) LookupSensor(name string) (sensor.Sensor, error) {
	s, ok := sm[name]
	if !ok {
		return nil, utils.NewNotFoundError(name)
	}
	return s, nil
}

func serveSensors(t *testing.T, sensors sensorMap, opts ...sensor.ServerOption) string {
	t.Helper()
	logger := logging.NewTestLogger(t)
	server := shgrpc.NewServer(logger)
	server.RegisterService(&sensor.ServiceDesc, sensor.NewRPCServiceServer(sensors, logger, opts...))
	test.That(t, server.Start("127.0.0.1:0"), test.ShouldBeNil)
	t.Cleanup(func() {
		server.Stop(context.Background())
	})
	return server.Addr().String()
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	humidity := inject.NewSensor("humidity")
	humidity.StateFunc = func(ctx context.Context) (sensor.State, error) {
		return sensor.StateRunning, nil
	}
	humidity.ReadFunc = func(ctx context.Context) (float64, error) {
		return 43.5, nil
	}
	release := make(chan struct{})
	humidity.ReadAsyncFunc = func(ctx context.Context) (future.Result[float64], error) {
		return future.Go(func() (float64, error) {
			<-release
			return 44, nil
		}), nil
	}

	broken := inject.NewSensor("broken")
	broken.StateFunc = func(ctx context.Context) (sensor.State, error) {
		return sensor.StateFault, nil
	}
	broken.ReadFunc = func(ctx context.Context) (float64, error) {
		return 0, utils.NewFaultedSensorError("broken")
	}
	broken.ReadAsyncFunc = func(ctx context.Context) (future.Result[float64], error) {
		return future.Failed[float64](utils.NewAcquisitionFailureError("broken", errors.New("i2c timeout"))), nil
	}

	switchDriver := sensor.NewManaged("switch", &inject.Driver{}, logger)

	address := serveSensors(t, sensorMap{
		"humidity": humidity,
		"broken":   broken,
		"switch":   switchDriver,
	})
	conn, err := shgrpc.Dial(address, time.Second, logger)
	test.That(t, err, test.ShouldBeNil)
	defer conn.Close()

	t.Run("state and read", func(t *testing.T) {
		client := sensor.NewClientFromConn(conn, address, "humidity", logger)
		test.That(t, client.Name(), test.ShouldEqual, "humidity")
		state, err := client.State(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, state, test.ShouldEqual, sensor.StateRunning)

		value, err := client.Read(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, value, test.ShouldEqual, 43.5)
	})

	t.Run("async read", func(t *testing.T) {
		client := sensor.NewClientFromConn(conn, address, "humidity", logger)
		result, err := client.ReadAsync(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, result.IsDone(), test.ShouldBeFalse)

		_, err = result.GetTimeout(50 * time.Millisecond)
		test.That(t, err, test.ShouldEqual, future.ErrNotAvailable)

		close(release)
		value, err := result.Get()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, value, test.ShouldEqual, 44.0)
		test.That(t, result.IsDone(), test.ShouldBeTrue)
	})

	t.Run("failures", func(t *testing.T) {
		client := sensor.NewClientFromConn(conn, address, "broken", logger)
		state, err := client.State(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, state, test.ShouldEqual, sensor.StateFault)

		_, err = client.Read(ctx)
		test.That(t, utils.IsFaultedSensorError(err), test.ShouldBeTrue)

		result, err := client.ReadAsync(ctx)
		test.That(t, err, test.ShouldBeNil)
		_, err = result.Wait(ctx)
		test.That(t, utils.IsAcquisitionFailureError(err), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "i2c timeout")
		// failures are sticky
		_, err = result.Get()
		test.That(t, utils.IsAcquisitionFailureError(err), test.ShouldBeTrue)
	})

	t.Run("unknown sensor", func(t *testing.T) {
		client := sensor.NewClientFromConn(conn, address, "pressure", logger)
		_, err := client.State(ctx)
		test.That(t, utils.IsNotFoundError(err), test.ShouldBeTrue)
		_, err = client.Read(ctx)
		test.That(t, utils.IsNotFoundError(err), test.ShouldBeTrue)
	})

	t.Run("not readable", func(t *testing.T) {
		client := sensor.NewClientFromConn(conn, address, "switch", logger)
		state, err := client.State(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, state, test.ShouldEqual, sensor.StateShutdown)
		_, err = client.Read(ctx)
		test.That(t, status.Code(err), test.ShouldEqual, codes.Unimplemented)
		_, err = client.ReadAsync(ctx)
		test.That(t, status.Code(err), test.ShouldEqual, codes.Unimplemented)
	})
}

func TestClientUnreachable(t *testing.T) {
	logger := logging.NewTestLogger(t)
	conn, err := shgrpc.Dial("127.0.0.1:1", 200*time.Millisecond, logger)
	test.That(t, err, test.ShouldBeNil)
	defer conn.Close()

	client := sensor.NewClientFromConn(conn, "127.0.0.1:1", "humidity", logger)
	_, err = client.State(context.Background())
	test.That(t, utils.IsUnreachablePeerError(err), test.ShouldBeTrue)
	_, err = client.Read(context.Background())
	test.That(t, utils.IsUnreachablePeerError(err), test.ShouldBeTrue)
}

func TestFutureTable(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	humidity := inject.NewSensor("humidity")
	humidity.ReadAsyncFunc = func(ctx context.Context) (future.Result[float64], error) {
		return future.Resolved(1.0), nil
	}
	address := serveSensors(t, sensorMap{"humidity": humidity}, sensor.WithFutureTable(1, time.Minute))
	conn, err := shgrpc.Dial(address, time.Second, logger)
	test.That(t, err, test.ShouldBeNil)
	defer conn.Close()

	client := sensor.NewClientFromConn(conn, address, "humidity", logger)
	first, err := client.ReadAsync(ctx)
	test.That(t, err, test.ShouldBeNil)
	second, err := client.ReadAsync(ctx)
	test.That(t, err, test.ShouldBeNil)

	value, err := second.Get()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, value, test.ShouldEqual, 1.0)

	// the first result was evicted to make room for the second
	_, err = first.Get()
	test.That(t, status.Code(err), test.ShouldEqual, codes.NotFound)
}
