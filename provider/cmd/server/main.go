// Package main runs a provider: the directory stations register their running sensors with.
package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/sensorhub/config"
	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/provider"
	"go.viam.com/sensorhub/utils"
)

var logger = logging.NewLogger("provider")

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"0,usage=provider config file"`
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

	conf := &config.Provider{}
	if argsParsed.ConfigFile != "" {
		conf, err = config.ReadProvider(argsParsed.ConfigFile, logger)
		if err != nil {
			return err
		}
	}
	if argsParsed.Debug || conf.Debug || utils.DebugEnabled() {
		logger.SetLevel(logging.DEBUG)
	}
	utils.LogEnvVariables("environment", logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	node, err := provider.Start(ctx, conf, registry, logger)
	if err != nil {
		return err
	}
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
