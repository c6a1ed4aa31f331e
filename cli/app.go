// Package cli contains sensorctl, the operator command line for a sensor fleet.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	"go.viam.com/sensorhub/utils"
)

const (
	flagProvider        = "provider"
	flagDiscoveryGroup  = "discovery-group"
	flagDiscoveryWindow = "discovery-window"
	flagTimeout         = "timeout"
	flagDebug           = "debug"
	flagState           = "state"
	flagStation         = "station"
	flagModel           = "model"
	flagAttributes      = "attributes"
	flagLoad            = "load"
	flagAsync           = "async"
)

func stationFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     flagStation,
		Aliases:  []string{"s"},
		Required: true,
		Usage:    "name of the station as registered with the provider",
	}
}

var app = &cli.App{
	Name:            "sensorctl",
	Usage:           "inspect and control a sensor fleet",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagProvider,
			Aliases: []string{"p"},
			EnvVars: []string{utils.ProviderAddressEnvVar},
			Usage:   "provider `ADDRESS`; discovered when not set",
		},
		&cli.StringFlag{
			Name:  flagDiscoveryGroup,
			Usage: "discovery group `ADDRESS` to query for the provider",
		},
		&cli.DurationFlag{
			Name:  flagDiscoveryWindow,
			Usage: "how long to wait for the provider to answer each discovery query",
		},
		&cli.DurationFlag{
			Name:  flagTimeout,
			Usage: "timeout of each remote call",
		},
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:   "discover",
			Usage:  "find the provider on the local network",
			Action: DiscoverAction,
		},
		{
			Name:   "stations",
			Usage:  "list the stations registered with the provider",
			Action: ListStationsAction,
		},
		{
			Name:  "sensors",
			Usage: "list the running sensors of the fleet",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  flagState,
					Usage: "only list sensors in `STATE` (SHUTDOWN, RUNNING or FAULT)",
				},
			},
			Action: ListSensorsAction,
		},
		{
			Name:            "station",
			Usage:           "work with the sensors of one station",
			HideHelpCommand: true,
			Subcommands: []*cli.Command{
				{
					Name:  "list",
					Usage: "list the sensors of a station in the order they were added",
					Flags: []cli.Flag{
						stationFlag(),
						&cli.StringFlag{
							Name:  flagState,
							Usage: "only list sensors in `STATE`",
						},
					},
					Action: StationListAction,
				},
				{
					Name:      "state",
					Usage:     "print the state of a sensor",
					ArgsUsage: "<sensor>",
					Flags:     []cli.Flag{stationFlag()},
					Action:    SensorStateAction,
				},
				{
					Name:      "start",
					Usage:     "start a sensor",
					ArgsUsage: "<sensor>",
					Flags:     []cli.Flag{stationFlag()},
					Action:    StartSensorAction,
				},
				{
					Name:      "stop",
					Usage:     "stop a sensor",
					ArgsUsage: "<sensor>",
					Flags:     []cli.Flag{stationFlag()},
					Action:    StopSensorAction,
				},
				{
					Name:      "add",
					Usage:     "add a sensor to a station",
					ArgsUsage: "<sensor>",
					Flags: []cli.Flag{
						stationFlag(),
						&cli.StringFlag{
							Name:     flagModel,
							Required: true,
							Usage:    "sensor `MODEL`",
						},
						&cli.StringFlag{
							Name:  flagAttributes,
							Usage: "model attributes as a JSON object",
						},
						&cli.BoolFlag{
							Name:  flagLoad,
							Usage: "start the sensor once added",
						},
					},
					Action: AddSensorAction,
				},
				{
					Name:   "models",
					Usage:  "list the sensor models a station can instantiate",
					Flags:  []cli.Flag{stationFlag()},
					Action: ListModelsAction,
				},
			},
		},
		{
			Name:      "read",
			Usage:     "take a reading from a running sensor",
			ArgsUsage: "<station>/<sensor>",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  flagAsync,
					Usage: "request the reading asynchronously and wait for it",
				},
			},
			Action: ReadSensorAction,
		},
	},
}

// NewApp returns a new app with the sensorctl API, Writer set to out, and ErrWriter set to
// errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
