package utils

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("i2c bus timeout")
	for _, tc := range []struct {
		err      error
		kind     ErrorKind
		is       func(error) bool
		expected string
	}{
		{NewNotFoundError("tempA"), KindNotFound, IsNotFoundError, `"tempA" not found`},
		{NewFaultedSensorError("tempA"), KindFaultedSensor, IsFaultedSensorError, `sensor "tempA" is faulted`},
		{NewNotRunningError("tempA"), KindNotRunning, IsNotRunningError, `sensor "tempA" is not running`},
		{
			NewStartupFailureError("tempA", cause), KindStartupFailure, IsStartupFailureError,
			`sensor "tempA" failed to start: i2c bus timeout`,
		},
		{
			NewAcquisitionFailureError("tempA", cause), KindAcquisitionFailure, IsAcquisitionFailureError,
			`sensor "tempA" failed to acquire a reading: i2c bus timeout`,
		},
		{
			NewUnreachablePeerError("10.0.0.2:9100", cause), KindUnreachablePeer, IsUnreachablePeerError,
			`peer "10.0.0.2:9100" is unreachable: i2c bus timeout`,
		},
		{
			NewDiscoveryTimeoutError(nil), KindDiscoveryTimeout, IsDiscoveryTimeoutError,
			"no provider discovered and no fallback address configured",
		},
	} {
		t.Run(string(tc.kind), func(t *testing.T) {
			test.That(t, tc.err.Error(), test.ShouldEqual, tc.expected)
			kind, ok := KindOf(tc.err)
			test.That(t, ok, test.ShouldBeTrue)
			test.That(t, kind, test.ShouldEqual, tc.kind)
			test.That(t, tc.is(tc.err), test.ShouldBeTrue)

			wrapped := errors.Wrap(tc.err, "starting station")
			test.That(t, tc.is(wrapped), test.ShouldBeTrue)
		})
	}
}

func TestErrorKindMismatch(t *testing.T) {
	err := NewNotFoundError("humB")
	test.That(t, IsFaultedSensorError(err), test.ShouldBeFalse)
	test.That(t, IsNotFoundError(errors.New("plain")), test.ShouldBeFalse)

	_, ok := KindOf(errors.New("plain"))
	test.That(t, ok, test.ShouldBeFalse)
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disconnected")
	err := NewAcquisitionFailureError("humB", cause)
	test.That(t, errors.Is(err, cause), test.ShouldBeTrue)
}

type someIfc interface{}

func TestUnexpectedTypeError(t *testing.T) {
	err := NewUnexpectedTypeError[someIfc](5)
	test.That(t, err.Error(), test.ShouldEqual, "expected implementation of *utils.someIfc but got int")
}
