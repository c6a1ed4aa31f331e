package utils

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies the failures that sensorhub components surface to callers. The kind
// survives a trip over the wire so remote callers can apply the same propagation policy as
// local ones.
type ErrorKind string

// The error kinds known to sensorhub.
const (
	// KindNotFound is an unknown station or sensor name.
	KindNotFound = ErrorKind("NOT_FOUND")
	// KindFaultedSensor is an operation attempted on a sensor in the FAULT state.
	KindFaultedSensor = ErrorKind("FAULTED_SENSOR")
	// KindNotRunning is a read attempted on a sensor that is shut down.
	KindNotRunning = ErrorKind("NOT_RUNNING")
	// KindStartupFailure is a sensor setup error; the sensor is left in FAULT.
	KindStartupFailure = ErrorKind("STARTUP_FAILURE")
	// KindAcquisitionFailure is a read-time error; the sensor is left in FAULT.
	KindAcquisitionFailure = ErrorKind("ACQUISITION_FAILURE")
	// KindUnreachablePeer is a remote call that timed out or whose peer is gone.
	KindUnreachablePeer = ErrorKind("UNREACHABLE_PEER")
	// KindDiscoveryTimeout means no provider answered and no fallback address was configured.
	KindDiscoveryTimeout = ErrorKind("DISCOVERY_TIMEOUT")
)

// Error is a classified sensorhub error. Subject names the station, sensor or peer the error is
// about and Err, when set, is the underlying cause.
type Error struct {
	Kind    ErrorKind
	Subject string
	Err     error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindNotFound:
		msg = fmt.Sprintf("%q not found", e.Subject)
	case KindFaultedSensor:
		msg = fmt.Sprintf("sensor %q is faulted", e.Subject)
	case KindNotRunning:
		msg = fmt.Sprintf("sensor %q is not running", e.Subject)
	case KindStartupFailure:
		msg = fmt.Sprintf("sensor %q failed to start", e.Subject)
	case KindAcquisitionFailure:
		msg = fmt.Sprintf("sensor %q failed to acquire a reading", e.Subject)
	case KindUnreachablePeer:
		msg = fmt.Sprintf("peer %q is unreachable", e.Subject)
	case KindDiscoveryTimeout:
		msg = "no provider discovered and no fallback address configured"
	default:
		msg = fmt.Sprintf("%s: %s", e.Kind, e.Subject)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError returns an error of the given kind. It is mostly useful when rebuilding errors that
// arrived over the wire.
func NewError(kind ErrorKind, subject string, cause error) error {
	return &Error{Kind: kind, Subject: subject, Err: cause}
}

// NewNotFoundError is used when a station or sensor name is not known.
func NewNotFoundError(name string) error {
	return &Error{Kind: KindNotFound, Subject: name}
}

// NewFaultedSensorError is used when an operation is attempted on a faulted sensor.
func NewFaultedSensorError(name string) error {
	return &Error{Kind: KindFaultedSensor, Subject: name}
}

// NewNotRunningError is used when a sensor is read while shut down.
func NewNotRunningError(name string) error {
	return &Error{Kind: KindNotRunning, Subject: name}
}

// NewStartupFailureError wraps the setup error of a sensor.
func NewStartupFailureError(name string, cause error) error {
	return &Error{Kind: KindStartupFailure, Subject: name, Err: cause}
}

// NewAcquisitionFailureError wraps the read error of a sensor.
func NewAcquisitionFailureError(name string, cause error) error {
	return &Error{Kind: KindAcquisitionFailure, Subject: name, Err: cause}
}

// NewUnreachablePeerError wraps a failed or timed out remote call to peer.
func NewUnreachablePeerError(peer string, cause error) error {
	return &Error{Kind: KindUnreachablePeer, Subject: peer, Err: cause}
}

// NewDiscoveryTimeoutError is used when neither discovery nor configuration yields a provider.
func NewDiscoveryTimeoutError(cause error) error {
	return &Error{Kind: KindDiscoveryTimeout, Err: cause}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind, true
	}
	return "", false
}

// IsKind returns whether err's chain contains a classified error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsNotFoundError returns whether err is a NotFound error.
func IsNotFoundError(err error) bool {
	return IsKind(err, KindNotFound)
}

// IsFaultedSensorError returns whether err is a FaultedSensor error.
func IsFaultedSensorError(err error) bool {
	return IsKind(err, KindFaultedSensor)
}

// IsNotRunningError returns whether err is a NotRunning error.
func IsNotRunningError(err error) bool {
	return IsKind(err, KindNotRunning)
}

// IsStartupFailureError returns whether err is a StartupFailure error.
func IsStartupFailureError(err error) bool {
	return IsKind(err, KindStartupFailure)
}

// IsAcquisitionFailureError returns whether err is an AcquisitionFailure error.
func IsAcquisitionFailureError(err error) bool {
	return IsKind(err, KindAcquisitionFailure)
}

// IsUnreachablePeerError returns whether err is an UnreachablePeer error.
func IsUnreachablePeerError(err error) bool {
	return IsKind(err, KindUnreachablePeer)
}

// IsDiscoveryTimeoutError returns whether err is a DiscoveryTimeout error.
func IsDiscoveryTimeoutError(err error) bool {
	return IsKind(err, KindDiscoveryTimeout)
}

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError[ExpectedT any](actual interface{}) error {
	return errors.Errorf("expected implementation of %T but got %T", (*ExpectedT)(nil), actual)
}
