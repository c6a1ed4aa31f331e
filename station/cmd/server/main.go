// Package main runs a station: it loads its sensors from a config file, registers with the
// provider and serves the sensors until interrupted.
package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/sensorhub/config"
	"go.viam.com/sensorhub/logging"
	// registers the simulated sensor models.
	_ "go.viam.com/sensorhub/sensor/fake"
	"go.viam.com/sensorhub/station"
	"go.viam.com/sensorhub/utils"
)

var logger = logging.NewLogger("station")

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"0,required,usage=station config file"`
	Debug      bool   `flag:"debug,usage=log at debug level"`
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if err := config.LoadEnv(logger, config.DotEnvFile); err != nil {
		return err
	}

	conf, err := config.ReadStation(argsParsed.ConfigFile, logger)
	if err != nil {
		return err
	}
	if argsParsed.Debug || conf.Debug || utils.DebugEnabled() {
		logger.SetLevel(logging.DEBUG)
	}
	utils.LogEnvVariables("environment", logger)
	logger = logger.Sublogger(conf.Name)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	node, err := station.Start(ctx, conf, station.NodeOptions{Registerer: registry}, logger)
	if err != nil {
		return err
	}
	// the context is already cancelled when shutting down
	defer func() {
		err = multierr.Combine(err, node.Close(context.Background()))
	}()

	if conf.MetricsAddress != "" {
		metrics, err := utils.ServeMetrics(conf.MetricsAddress, registry, logger.Sublogger("metrics"))
		if err != nil {
			return err
		}
		defer goutils.UncheckedErrorFunc(func() error {
			return metrics.Close(context.Background())
		})
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
