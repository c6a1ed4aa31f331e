package inject

import (
	"context"
	"sync/atomic"
)

// Driver is an injected sensor driver. Unset functions succeed.
type Driver struct {
	SetupFunc    func(ctx context.Context) error
	TeardownFunc func(ctx context.Context) error

	setupCalls    atomic.Int32
	teardownCalls atomic.Int32
}

// Setup calls the injected Setup.
func (d *Driver) Setup(ctx context.Context) error {
	d.setupCalls.Add(1)
	if d.SetupFunc == nil {
		return nil
	}
	return d.SetupFunc(ctx)
}

// Teardown calls the injected Teardown.
func (d *Driver) Teardown(ctx context.Context) error {
	d.teardownCalls.Add(1)
	if d.TeardownFunc == nil {
		return nil
	}
	return d.TeardownFunc(ctx)
}

// SetupCalls returns how many times Setup was called.
func (d *Driver) SetupCalls() int {
	return int(d.setupCalls.Load())
}

// TeardownCalls returns how many times Teardown was called.
func (d *Driver) TeardownCalls() int {
	return int(d.teardownCalls.Load())
}

// Acquirer is an injected driver of a readable sensor. An unset AcquireFunc returns zero.
type Acquirer struct {
	Driver
	AcquireFunc func(ctx context.Context) (float64, error)
}

// Acquire calls the injected Acquire.
func (a *Acquirer) Acquire(ctx context.Context) (float64, error) {
	if a.AcquireFunc == nil {
		return 0, nil
	}
	return a.AcquireFunc(ctx)
}
