package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/a8m/envsubst"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/utils"
)

// DotEnvFile is loaded from the directory of a configuration file, if present, before the file
// is read. Variables already set in the environment are not overridden.
const DotEnvFile = ".env"

// LoadEnv loads the given .env files into the environment without overriding variables that are
// already set. Missing files are ignored.
func LoadEnv(logger logging.Logger, paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "failed to load %q", path)
		}
		logger.Debugw("loaded environment file", "path", path)
	}
	return nil
}

// readFile loads the .env file next to filePath and returns the contents of filePath with
// environment variables substituted.
func readFile(filePath string, logger logging.Logger) ([]byte, error) {
	if err := LoadEnv(logger, filepath.Join(filepath.Dir(filePath), DotEnvFile)); err != nil {
		return nil, err
	}
	return envsubst.ReadFile(filePath)
}

// ReadStation reads a station configuration from the given file.
func ReadStation(filePath string, logger logging.Logger) (*Station, error) {
	buf, err := readFile(filePath, logger)
	if err != nil {
		return nil, err
	}
	return StationFromReader(filePath, bytes.NewReader(buf), logger)
}

// StationFromReader reads a station configuration from r. originalPath, if set, names the file
// the reader originated from; relative parameter files are resolved against its directory.
func StationFromReader(originalPath string, r io.Reader, logger logging.Logger) (*Station, error) {
	cfg := Station{ConfigFilePath: originalPath}
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode station config from json")
	}
	if address := os.Getenv(utils.ProviderAddressEnvVar); address != "" {
		logger.Infow("provider address overridden by environment", "env", utils.ProviderAddressEnvVar, "address", address)
		cfg.ProviderAddress = address
	}
	for idx := range cfg.Sensors {
		if err := loadParameters(&cfg, idx, logger); err != nil {
			return nil, err
		}
	}
	if err := cfg.Ensure(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadParameters merges the parameters file of a sensor under its inline attributes.
func loadParameters(cfg *Station, idx int, logger logging.Logger) error {
	conf := &cfg.Sensors[idx]
	if conf.ParametersFile == "" {
		return nil
	}
	path := conf.ParametersFile
	if !filepath.IsAbs(path) && cfg.ConfigFilePath != "" {
		path = filepath.Join(filepath.Dir(cfg.ConfigFilePath), path)
	}
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "sensors.%d: failed to read parameters file", idx)
	}
	var params map[string]interface{}
	if err := json.Unmarshal(buf, &params); err != nil {
		return errors.Wrapf(err, "sensors.%d: failed to decode parameters file %q", idx, path)
	}
	if conf.Attributes == nil {
		conf.Attributes = map[string]interface{}{}
	}
	for key, value := range params {
		if _, ok := conf.Attributes[key]; !ok {
			conf.Attributes[key] = value
		}
	}
	logger.Debugw("loaded sensor parameters", "sensor", conf.Name, "path", path, "parameters", len(params))
	return nil
}

// ReadProvider reads a provider configuration from the given file.
func ReadProvider(filePath string, logger logging.Logger) (*Provider, error) {
	buf, err := readFile(filePath, logger)
	if err != nil {
		return nil, err
	}
	return ProviderFromReader(filePath, bytes.NewReader(buf))
}

// ProviderFromReader reads a provider configuration from r.
func ProviderFromReader(originalPath string, r io.Reader) (*Provider, error) {
	cfg := Provider{ConfigFilePath: originalPath}
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode provider config from json")
	}
	if err := cfg.Ensure(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
