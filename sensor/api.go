package sensor

import (
	"github.com/pkg/errors"

	"go.viam.com/sensorhub/utils"
)

// GetStateRequest asks for the state of a sensor.
type GetStateRequest struct {
	Name string `json:"name"`
}

// GetStateResponse carries a sensor's state.
type GetStateResponse struct {
	State State `json:"state"`
}

// ReadRequest asks a sensor for a reading.
type ReadRequest struct {
	Name string `json:"name"`
}

// ReadResponse carries a reading.
type ReadResponse struct {
	Value float64 `json:"value"`
}

// ReadAsyncResponse identifies the pending result of an asynchronous read.
type ReadAsyncResponse struct {
	FutureID string `json:"future_id"`
}

// FutureResultRequest polls a pending result, waiting up to WaitMillis for it to complete.
type FutureResultRequest struct {
	FutureID   string `json:"future_id"`
	WaitMillis int64  `json:"wait_millis,omitempty"`
}

// FutureResultResponse reports a result. Value and Failure are only meaningful when Done.
type FutureResultResponse struct {
	Done    bool     `json:"done"`
	Value   float64  `json:"value,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// Failure is the wire form of an error that failed a result.
type Failure struct {
	Kind    utils.ErrorKind `json:"kind,omitempty"`
	Subject string          `json:"subject,omitempty"`
	Cause   string          `json:"cause,omitempty"`
	Message string          `json:"message"`
}

// FailureFromError converts err into its wire form.
func FailureFromError(err error) *Failure {
	if err == nil {
		return nil
	}
	failure := &Failure{Message: err.Error()}
	var classified *utils.Error
	if errors.As(err, &classified) {
		failure.Kind = classified.Kind
		failure.Subject = classified.Subject
		if classified.Err != nil {
			failure.Cause = classified.Err.Error()
		}
	}
	return failure
}

// Err rebuilds the error described by f.
func (f *Failure) Err() error {
	if f == nil {
		return nil
	}
	if f.Kind == "" {
		return errors.New(f.Message)
	}
	var cause error
	if f.Cause != "" {
		cause = errors.New(f.Cause)
	}
	return utils.NewError(f.Kind, f.Subject, cause)
}
