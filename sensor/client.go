package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"

	"go.viam.com/sensorhub/future"
	shgrpc "go.viam.com/sensorhub/grpc"
	"go.viam.com/sensorhub/logging"
)

const (
	// pollWait is how long a remote result waits on the server per poll.
	pollWait = 2 * time.Second
	// pollSlack is added to the wait of a poll to bound the whole call.
	pollSlack = 2 * time.Second
)

// client is a sensor hosted by a remote station.
type client struct {
	name   string
	target string
	conn   grpc.ClientConnInterface
	logger logging.Logger
}

// NewClientFromConn returns the sensor named name served over conn by the station at target.
// Target only names the peer in errors. The returned sensor is readable; reading a sensor that
// does not produce readings fails with codes.Unimplemented.
func NewClientFromConn(conn grpc.ClientConnInterface, target, name string, logger logging.Logger) Numeric {
	return &client{
		name:   name,
		target: target,
		conn:   conn,
		logger: logger.Sublogger(name),
	}
}

func (c *client) Name() string {
	return c.name
}

func (c *client) State(ctx context.Context) (State, error) {
	resp, err := shgrpc.Invoke[GetStateResponse](ctx, c.conn, ServiceName, "GetState", &GetStateRequest{Name: c.name})
	if err != nil {
		return "", shgrpc.FromStatusError(c.target, err)
	}
	if !resp.State.Valid() {
		return "", errors.Errorf("peer %q reported invalid state %q for sensor %q", c.target, resp.State, c.name)
	}
	return resp.State, nil
}

func (c *client) Read(ctx context.Context) (float64, error) {
	resp, err := shgrpc.Invoke[ReadResponse](ctx, c.conn, ServiceName, "Read", &ReadRequest{Name: c.name})
	if err != nil {
		return 0, shgrpc.FromStatusError(c.target, err)
	}
	return resp.Value, nil
}

func (c *client) ReadAsync(ctx context.Context) (future.Result[float64], error) {
	resp, err := shgrpc.Invoke[ReadAsyncResponse](ctx, c.conn, ServiceName, "ReadAsync", &ReadRequest{Name: c.name})
	if err != nil {
		return nil, shgrpc.FromStatusError(c.target, err)
	}
	return &remoteResult{client: c, id: resp.FutureID}, nil
}

// remoteResult is a result pending on a remote station. Once complete, the outcome is cached and
// the station is not asked again.
type remoteResult struct {
	client *client
	id     string

	mu    sync.Mutex
	done  bool
	value float64
	err   error
}

// poll asks the station for the result, waiting up to wait for it to complete.
func (r *remoteResult) poll(ctx context.Context, wait time.Duration) (bool, error) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return true, nil
	}
	r.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, wait+pollSlack)
	defer cancel()
	resp, err := shgrpc.Invoke[FutureResultResponse](callCtx, r.client.conn, ServiceName, "FutureResult", &FutureResultRequest{
		FutureID:   r.id,
		WaitMillis: wait.Milliseconds(),
	})
	if err != nil {
		return false, shgrpc.FromStatusError(r.client.target, err)
	}
	if !resp.Done {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.done {
		r.done = true
		r.value = resp.Value
		r.err = resp.Failure.Err()
	}
	return true, nil
}

func (r *remoteResult) outcome() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.err
}

// IsDone reports whether the result is complete. An unreachable station counts as not done.
func (r *remoteResult) IsDone() bool {
	done, err := r.poll(context.Background(), 0)
	if err != nil {
		r.client.logger.Debugw("failed to poll pending read", "future_id", r.id, "error", err)
		return false
	}
	return done
}

func (r *remoteResult) Get() (float64, error) {
	return r.Wait(context.Background())
}

func (r *remoteResult) GetTimeout(timeout time.Duration) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	value, err := r.Wait(ctx)
	if errors.Is(err, future.ErrNotAvailable) {
		return 0, future.ErrNotAvailable
	}
	return value, err
}

// Wait polls the station until the result completes or ctx is done. Failing to reach the station
// ends the wait with an UnreachablePeer error; the result itself is not consumed.
func (r *remoteResult) Wait(ctx context.Context) (float64, error) {
	for {
		wait := pollWait
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < wait {
				wait = remaining
			}
		}
		if wait < 0 {
			wait = 0
		}
		done, err := r.poll(context.WithoutCancel(ctx), wait)
		if err != nil {
			return 0, err
		}
		if done {
			return r.outcome()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("%w: %w", future.ErrNotAvailable, ctxErr)
		}
	}
}
