package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"google.golang.org/grpc"

	"go.viam.com/sensorhub/discovery"
	shgrpc "go.viam.com/sensorhub/grpc"
	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/provider"
	"go.viam.com/sensorhub/sensor"
	"go.viam.com/sensorhub/station"
	"go.viam.com/sensorhub/utils"
)

// fleetClient reaches the provider and, through it, stations and sensors.
type fleetClient struct {
	c           *cli.Context
	logger      logging.Logger
	callTimeout time.Duration
	conns       *shgrpc.ConnCache
	releases    []func()

	providerAddr string
	provider     provider.Service
}

func newFleetClient(c *cli.Context) (*fleetClient, error) {
	logger := logging.NewBlankLogger("sensorctl")
	if c.Bool(flagDebug) {
		logger = logging.NewDebugLogger("sensorctl")
		// stations and the provider log the calls of this invocation at debug level.
		c.Context = logging.EnableDebugMode(c.Context, "")
	}
	callTimeout := c.Duration(flagTimeout)
	if callTimeout <= 0 {
		callTimeout = utils.GetCallTimeout(logger)
	}
	conns, err := shgrpc.NewConnCache(shgrpc.DefaultConnCacheSize, callTimeout, logger)
	if err != nil {
		return nil, err
	}
	return &fleetClient{c: c, logger: logger, callTimeout: callTimeout, conns: conns}, nil
}

// withFleetClient runs action with a client and releases its connections afterwards.
func withFleetClient(c *cli.Context, action func(fc *fleetClient) error) (err error) {
	fc, err := newFleetClient(c)
	if err != nil {
		return err
	}
	defer func() {
		for _, release := range fc.releases {
			release()
		}
		err = multierr.Combine(err, fc.conns.Close())
	}()
	return action(fc)
}

func (fc *fleetClient) discoveryOptions() discovery.Options {
	return discovery.Options{
		GroupAddress: fc.c.String(flagDiscoveryGroup),
		Window:       fc.c.Duration(flagDiscoveryWindow),
	}
}

// dial returns a connection to address from the cache, held until the command finishes.
func (fc *fleetClient) dial(address string) (grpc.ClientConnInterface, error) {
	conn, release, err := fc.conns.Get(address)
	if err != nil {
		return nil, err
	}
	fc.releases = append(fc.releases, release)
	return conn, nil
}

// providerService connects to the configured provider, discovering it if no address was given.
func (fc *fleetClient) providerService() (provider.Service, error) {
	if fc.provider != nil {
		return fc.provider, nil
	}
	address := fc.c.String(flagProvider)
	if address == "" {
		var err error
		address, err = discovery.Resolve(fc.c.Context, fc.discoveryOptions(), "", fc.logger)
		if err != nil {
			return nil, errors.Wrap(err, "no provider address given and none discovered")
		}
	}
	conn, err := fc.dial(address)
	if err != nil {
		return nil, err
	}
	fc.providerAddr = address
	fc.provider = provider.NewClientFromConn(conn, address)
	return fc.provider, nil
}

// stationService looks up the station named by the station flag and connects to it.
func (fc *fleetClient) stationService() (station.Service, error) {
	prov, err := fc.providerService()
	if err != nil {
		return nil, err
	}
	handle, err := prov.LookupStation(fc.c.Context, fc.c.String(flagStation))
	if err != nil {
		return nil, err
	}
	conn, err := fc.dial(handle.Address)
	if err != nil {
		return nil, err
	}
	return station.NewClientFromConn(conn, handle.Address), nil
}

// sensorArg returns the first argument, which names a sensor.
func sensorArg(c *cli.Context) (string, error) {
	if c.Args().Len() != 1 {
		return "", errors.New("expected exactly one sensor name")
	}
	return c.Args().First(), nil
}

func parseStateFlag(c *cli.Context) (*sensor.State, error) {
	if !c.IsSet(flagState) {
		return nil, nil
	}
	state, err := sensor.ParseState(c.String(flagState))
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// DiscoverAction prints the provider address found on the network.
func DiscoverAction(c *cli.Context) error {
	return withFleetClient(c, func(fc *fleetClient) error {
		address, err := discovery.Find(c.Context, fc.discoveryOptions(), fc.logger)
		if err != nil {
			return err
		}
		printf(c.App.Writer, "provider found at %s", address)
		return nil
	})
}

// ListStationsAction prints the stations registered with the provider.
func ListStationsAction(c *cli.Context) error {
	return withFleetClient(c, func(fc *fleetClient) error {
		prov, err := fc.providerService()
		if err != nil {
			return err
		}
		stations, err := prov.ListStations(c.Context)
		if err != nil {
			return errors.Wrap(err, "could not list stations")
		}
		t := table.NewWriter()
		t.AppendHeader(table.Row{"Station", "Address"})
		for _, handle := range stations {
			t.AppendRow(table.Row{handle.Name, handle.Address})
		}
		printf(c.App.Writer, "%s", t.Render())
		return nil
	})
}

// ListSensorsAction prints the running sensors of the fleet with their current state.
func ListSensorsAction(c *cli.Context) error {
	filter, err := parseStateFlag(c)
	if err != nil {
		return err
	}
	return withFleetClient(c, func(fc *fleetClient) error {
		prov, err := fc.providerService()
		if err != nil {
			return err
		}
		listed, err := prov.ListSensors(c.Context, filter)
		if err != nil {
			return errors.Wrap(err, "could not list sensors")
		}
		t := table.NewWriter()
		t.AppendHeader(table.Row{"Station", "Sensor", "State", "Address"})
		for _, s := range listed {
			t.AppendRow(table.Row{s.Station, s.Sensor, s.State, s.Address})
		}
		printf(c.App.Writer, "%s", t.Render())
		return nil
	})
}

// StationListAction prints the sensors of one station.
func StationListAction(c *cli.Context) error {
	filter, err := parseStateFlag(c)
	if err != nil {
		return err
	}
	return withFleetClient(c, func(fc *fleetClient) error {
		st, err := fc.stationService()
		if err != nil {
			return err
		}
		names, err := st.ListSensors(c.Context, filter)
		if err != nil {
			return err
		}
		for _, name := range names {
			printf(c.App.Writer, "%s", name)
		}
		return nil
	})
}

// SensorStateAction prints the state of a sensor of a station.
func SensorStateAction(c *cli.Context) error {
	name, err := sensorArg(c)
	if err != nil {
		return err
	}
	return withFleetClient(c, func(fc *fleetClient) error {
		st, err := fc.stationService()
		if err != nil {
			return err
		}
		state, err := st.GetSensorState(c.Context, name)
		if err != nil {
			return err
		}
		printf(c.App.Writer, "%s", state)
		return nil
	})
}

// StartSensorAction starts a sensor of a station.
func StartSensorAction(c *cli.Context) error {
	name, err := sensorArg(c)
	if err != nil {
		return err
	}
	return withFleetClient(c, func(fc *fleetClient) error {
		st, err := fc.stationService()
		if err != nil {
			return err
		}
		if err := st.StartSensor(c.Context, name); err != nil {
			return err
		}
		printf(c.App.Writer, "started %s", name)
		return nil
	})
}

// StopSensorAction stops a sensor of a station.
func StopSensorAction(c *cli.Context) error {
	name, err := sensorArg(c)
	if err != nil {
		return err
	}
	return withFleetClient(c, func(fc *fleetClient) error {
		st, err := fc.stationService()
		if err != nil {
			return err
		}
		if err := st.StopSensor(c.Context, name); err != nil {
			return err
		}
		printf(c.App.Writer, "stopped %s", name)
		return nil
	})
}

// AddSensorAction adds a sensor to a station.
func AddSensorAction(c *cli.Context) error {
	name, err := sensorArg(c)
	if err != nil {
		return err
	}
	conf := sensor.Config{
		Name:          name,
		Model:         c.String(flagModel),
		LoadAtStartup: c.Bool(flagLoad),
	}
	if raw := c.String(flagAttributes); raw != "" {
		if err := json.Unmarshal([]byte(raw), &conf.Attributes); err != nil {
			return errors.Wrap(err, "attributes must be a JSON object")
		}
	}
	return withFleetClient(c, func(fc *fleetClient) error {
		st, err := fc.stationService()
		if err != nil {
			return err
		}
		if err := st.AddSensor(c.Context, conf); err != nil {
			return err
		}
		printf(c.App.Writer, "added %s", name)
		return nil
	})
}

// ListModelsAction prints the sensor models a station can instantiate.
func ListModelsAction(c *cli.Context) error {
	return withFleetClient(c, func(fc *fleetClient) error {
		st, err := fc.stationService()
		if err != nil {
			return err
		}
		models, err := st.ListModels(c.Context)
		if err != nil {
			return err
		}
		t := table.NewWriter()
		t.AppendHeader(table.Row{"Model", "Description"})
		for _, m := range models {
			t.AppendRow(table.Row{m.Model, m.Description})
		}
		printf(c.App.Writer, "%s", t.Render())
		return nil
	})
}

// ReadSensorAction finds a sensor through the provider and reads it from its station directly.
func ReadSensorAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("expected exactly one <station>/<sensor> argument")
	}
	stationName, sensorName, ok := strings.Cut(c.Args().First(), "/")
	if !ok || stationName == "" || sensorName == "" {
		return errors.Errorf("%q is not of the form <station>/<sensor>", c.Args().First())
	}
	return withFleetClient(c, func(fc *fleetClient) error {
		prov, err := fc.providerService()
		if err != nil {
			return err
		}
		handle, err := prov.LookupSensor(c.Context, stationName, sensorName)
		if err != nil {
			return err
		}
		conn, err := fc.dial(handle.Address)
		if err != nil {
			return err
		}
		remote := sensor.NewClientFromConn(conn, handle.Address, sensorName, fc.logger)

		var value float64
		if c.Bool(flagAsync) {
			result, err := remote.ReadAsync(c.Context)
			if err != nil {
				return err
			}
			value, err = result.Wait(c.Context)
			if err != nil {
				return err
			}
		} else {
			value, err = remote.Read(c.Context)
			if err != nil {
				return err
			}
		}
		printf(c.App.Writer, "%s", strconv.FormatFloat(value, 'f', -1, 64))
		return nil
	})
}
