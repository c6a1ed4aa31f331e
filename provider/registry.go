package provider

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/sensor"
	"go.viam.com/sensorhub/utils"
)

// DefaultListConcurrency bounds how many sensors a listing queries at once.
const DefaultListConcurrency = 16

// Options configures a Registry.
type Options struct {
	// Resolver reaches registered sensors during listings. It defaults to a GRPCResolver.
	Resolver Resolver
	// CallTimeout bounds each state query of a listing. It defaults to utils.GetCallTimeout.
	CallTimeout time.Duration
	// ListConcurrency bounds concurrent state queries of a listing.
	ListConcurrency int
	// ConnCacheSize bounds the connections kept by the default resolver.
	ConnCacheSize int
	// Registerer receives the registry's metrics when set.
	Registerer prometheus.Registerer
}

// stationEntry holds what is registered for one station. Its lock linearizes operations on the
// station; once removed from the registry it is dead and writers retry on a fresh entry.
type stationEntry struct {
	mu      sync.Mutex
	removed bool
	handle  *StationHandle
	sensors map[string]SensorHandle
}

// Registry is the in-memory directory of stations and their running sensors.
//
// Operations on different stations only contend on the brief lookup of their entry. Listings
// take a snapshot of the handles and query sensors without holding any lock.
type Registry struct {
	logger          logging.Logger
	resolver        Resolver
	callTimeout     time.Duration
	listConcurrency int
	metrics         *metrics

	mu       sync.RWMutex
	stations map[string]*stationEntry
}

// NewRegistry returns an empty registry.
func NewRegistry(opts Options, logger logging.Logger) (*Registry, error) {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = utils.GetCallTimeout(logger)
	}
	if opts.ListConcurrency <= 0 {
		opts.ListConcurrency = DefaultListConcurrency
	}
	if opts.Resolver == nil {
		resolver, err := NewGRPCResolver(opts.ConnCacheSize, opts.CallTimeout, logger.Sublogger("resolver"))
		if err != nil {
			return nil, err
		}
		opts.Resolver = resolver
	}
	m, err := newMetrics(opts.Registerer)
	if err != nil {
		return nil, errors.Wrap(err, "failed to register provider metrics")
	}
	return &Registry{
		logger:          logger,
		resolver:        opts.Resolver,
		callTimeout:     opts.CallTimeout,
		listConcurrency: opts.ListConcurrency,
		metrics:         m,
		stations:        map[string]*stationEntry{},
	}, nil
}

// entry returns the live entry of station, creating it if create is set.
func (r *Registry) entry(station string, create bool) *stationEntry {
	r.mu.RLock()
	e, ok := r.stations[station]
	r.mu.RUnlock()
	if ok || !create {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.stations[station]; ok {
		return e
	}
	e = &stationEntry{sensors: map[string]SensorHandle{}}
	r.stations[station] = e
	return e
}

// update runs fn on the live entry of station with the entry locked. When create is false and
// the station is unknown, fn is not run.
func (r *Registry) update(station string, create bool, fn func(e *stationEntry)) {
	for {
		e := r.entry(station, create)
		if e == nil {
			return
		}
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		fn(e)
		empty := e.handle == nil && len(e.sensors) == 0
		e.mu.Unlock()
		if empty {
			r.dropIfEmpty(station, e)
		}
		return
	}
}

// dropIfEmpty removes e from the registry if nothing is registered in it anymore.
func (r *Registry) dropIfEmpty(station string, e *stationEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.handle != nil || len(e.sensors) != 0 || r.stations[station] != e {
		return
	}
	e.removed = true
	delete(r.stations, station)
}

// RegisterStation records how to reach a station. A later registration under the same name
// replaces the earlier one.
func (r *Registry) RegisterStation(ctx context.Context, name string, handle StationHandle) error {
	if name == "" {
		return errors.New("station name must not be empty")
	}
	handle.Name = name
	r.update(name, true, func(e *stationEntry) {
		if e.handle == nil {
			r.metrics.stations.Inc()
		} else if *e.handle != handle {
			r.logger.Infow("station registration replaced", "station", name, "old", e.handle.Address, "new", handle.Address)
		}
		e.handle = &handle
	})
	r.logger.CDebugw(ctx, "station registered", "station", name, "address", handle.Address)
	return nil
}

// UnregisterStation forgets a station along with all of its sensors and drops the connections
// kept for reaching them.
func (r *Registry) UnregisterStation(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.stations[name]
	delete(r.stations, name)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	e.removed = true
	addresses := map[string]struct{}{}
	if e.handle != nil {
		r.metrics.stations.Dec()
		addresses[e.handle.Address] = struct{}{}
	}
	for _, handle := range e.sensors {
		addresses[handle.Address] = struct{}{}
	}
	r.metrics.sensors.Sub(float64(len(e.sensors)))
	r.logger.CDebugw(ctx, "station unregistered", "station", name, "sensors", len(e.sensors))
	e.mu.Unlock()

	for address := range addresses {
		r.resolver.Forget(address)
	}
	return nil
}

// Register records a sensor of a station. The station does not need to be registered itself.
func (r *Registry) Register(ctx context.Context, station, name string, handle SensorHandle) error {
	if station == "" || name == "" {
		return errors.New("station and sensor names must not be empty")
	}
	handle.Station = station
	handle.Sensor = name
	r.update(station, true, func(e *stationEntry) {
		if _, ok := e.sensors[name]; !ok {
			r.metrics.sensors.Inc()
		}
		e.sensors[name] = handle
	})
	r.logger.CDebugw(ctx, "sensor registered", "sensor", SensorPath(station, name), "address", handle.Address)
	return nil
}

// Unregister forgets a sensor. Unknown sensors are ignored.
func (r *Registry) Unregister(ctx context.Context, station, name string) error {
	r.update(station, false, func(e *stationEntry) {
		if _, ok := e.sensors[name]; ok {
			delete(e.sensors, name)
			r.metrics.sensors.Dec()
			r.logger.CDebugw(ctx, "sensor unregistered", "sensor", SensorPath(station, name))
		}
	})
	return nil
}

// snapshot copies every registered sensor handle.
func (r *Registry) snapshot() []SensorHandle {
	r.mu.RLock()
	entries := make([]*stationEntry, 0, len(r.stations))
	for _, e := range r.stations {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var handles []SensorHandle
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			for _, h := range e.sensors {
				handles = append(handles, h)
			}
		}
		e.mu.Unlock()
	}
	return handles
}

// ListSensors queries the state of every registered sensor and returns those matching filter,
// sorted by station and sensor name. Sensors whose state cannot be obtained within the call
// timeout are left out; that never fails the listing.
func (r *Registry) ListSensors(ctx context.Context, filter *sensor.State) ([]ListedSensor, error) {
	start := time.Now()
	defer func() {
		r.metrics.listings.Inc()
		r.metrics.listing.Observe(time.Since(start).Seconds())
	}()

	handles := r.snapshot()
	states := make([]sensor.State, len(handles))
	var g errgroup.Group
	g.SetLimit(r.listConcurrency)
	for i, handle := range handles {
		g.Go(func() error {
			state, err := r.queryState(ctx, handle)
			if err != nil {
				r.exclude(handle, err)
				return nil
			}
			states[i] = state
			return nil
		})
	}
	// every query reports its own failure
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	listed := make([]ListedSensor, 0, len(handles))
	for i, handle := range handles {
		if states[i] == "" || !states[i].Matches(filter) {
			continue
		}
		listed = append(listed, ListedSensor{SensorHandle: handle, State: states[i]})
	}
	sort.Slice(listed, func(i, j int) bool {
		if listed[i].Station != listed[j].Station {
			return listed[i].Station < listed[j].Station
		}
		return listed[i].Sensor < listed[j].Sensor
	})
	return listed, nil
}

func (r *Registry) queryState(ctx context.Context, handle SensorHandle) (sensor.State, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	s, release, err := r.resolver.ResolveSensor(callCtx, handle)
	if err != nil {
		return "", err
	}
	defer release()
	state, err := s.State(callCtx)
	if err != nil {
		return "", err
	}
	if !state.Valid() {
		return "", errors.Errorf("invalid state %q", state)
	}
	return state, nil
}

func (r *Registry) exclude(handle SensorHandle, err error) {
	reason := exclusionError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = exclusionTimeout
	case utils.IsUnreachablePeerError(err):
		reason = exclusionUnreachable
	}
	r.metrics.exclusions.WithLabelValues(reason).Inc()
	r.logger.Warnw("leaving sensor out of listing",
		"sensor", SensorPath(handle.Station, handle.Sensor), "address", handle.Address, "reason", reason, "error", err)
}

// ListStations returns every registered station sorted by name.
func (r *Registry) ListStations(ctx context.Context) ([]StationHandle, error) {
	r.mu.RLock()
	entries := make([]*stationEntry, 0, len(r.stations))
	for _, e := range r.stations {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	stations := make([]StationHandle, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed && e.handle != nil {
			stations = append(stations, *e.handle)
		}
		e.mu.Unlock()
	}
	sort.Slice(stations, func(i, j int) bool {
		return stations[i].Name < stations[j].Name
	})
	return stations, nil
}

// LookupStation returns the handle of a registered station.
func (r *Registry) LookupStation(ctx context.Context, name string) (StationHandle, error) {
	var (
		handle StationHandle
		found  bool
	)
	r.update(name, false, func(e *stationEntry) {
		if e.handle != nil {
			handle, found = *e.handle, true
		}
	})
	if !found {
		return StationHandle{}, utils.NewNotFoundError(name)
	}
	return handle, nil
}

// LookupSensor returns the handle of a registered sensor.
func (r *Registry) LookupSensor(ctx context.Context, station, name string) (SensorHandle, error) {
	var (
		handle SensorHandle
		found  bool
	)
	r.update(station, false, func(e *stationEntry) {
		handle, found = e.sensors[name]
	})
	if !found {
		return SensorHandle{}, utils.NewNotFoundError(SensorPath(station, name))
	}
	return handle, nil
}

// Close releases the connections used to query sensors.
func (r *Registry) Close(ctx context.Context) error {
	return r.resolver.Close()
}
