package utils

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/sensorhub/logging"
)

type reader interface {
	read() float64
}

type thermometer float64

func (th thermometer) read() float64 {
	return float64(th)
}

func TestAssertType(t *testing.T) {
	one := 1
	_, err := AssertType[string](one)
	test.That(t, err, test.ShouldBeError, NewUnexpectedTypeError[string](one))

	_, err = AssertType[reader](one)
	test.That(t, err, test.ShouldBeError, NewUnexpectedTypeError[reader](one))

	asserted, err := AssertType[reader](thermometer(21.5))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, asserted.read(), test.ShouldEqual, 21.5)
}

func TestGuard(t *testing.T) {
	cleaned := 0
	failing := func() {
		guard := NewGuard(func() { cleaned++ })
		defer guard.OnFail()
	}
	succeeding := func() {
		guard := NewGuard(func() { cleaned++ })
		defer guard.OnFail()
		guard.Success()
	}
	succeeding()
	test.That(t, cleaned, test.ShouldEqual, 0)
	failing()
	test.That(t, cleaned, test.ShouldEqual, 1)
}

func TestSlowLogger(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	mock := clock.NewMock()

	stop := SlowLogger(context.Background(), mock, "still waiting", "sensor", "tempA", logger)
	mock.Add(time.Second)
	test.That(t, logs.FilterMessage("still waiting").Len(), test.ShouldEqual, 0)

	mock.Add(time.Second)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, logs.FilterMessage("still waiting").Len(), test.ShouldEqual, 1)
	})
	stop()

	mock.Add(time.Minute)
	test.That(t, logs.FilterMessage("still waiting").Len(), test.ShouldEqual, 1)
}
