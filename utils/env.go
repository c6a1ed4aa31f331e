package utils

import (
	"os"
	"slices"
	"strings"
	"time"

	"go.viam.com/sensorhub/logging"
)

const (
	// DefaultCallTimeout bounds every remote call between stations, the provider and callers when
	// the caller did not set a deadline.
	DefaultCallTimeout = 5 * time.Second

	// CallTimeoutEnvVar is the environment variable that can be set to override
	// DefaultCallTimeout.
	CallTimeoutEnvVar = "SENSORHUB_CALL_TIMEOUT"

	// DefaultDiscoveryWindow is how long a station waits for discovery replies per attempt.
	DefaultDiscoveryWindow = 2 * time.Second

	// DiscoveryWindowEnvVar is the environment variable that can be set to override
	// DefaultDiscoveryWindow.
	DiscoveryWindowEnvVar = "SENSORHUB_DISCOVERY_WINDOW"

	// EnvVarPrefix is the prefix for all sensorhub environment variables.
	EnvVarPrefix = "SENSORHUB_"

	// ProviderAddressEnvVar overrides the configured fallback provider address of a station.
	ProviderAddressEnvVar = "SENSORHUB_PROVIDER_ADDRESS"

	// DebugEnvVar turns on debug logging when set to one of EnvTrueValues.
	DebugEnvVar = "SENSORHUB_DEBUG"
)

// EnvTrueValues contains strings that we interpret as boolean true in env vars.
var EnvTrueValues = []string{"true", "yes", "1", "TRUE", "YES"}

// GetCallTimeout calculates the remote call timeout (env variable value if set,
// DefaultCallTimeout otherwise).
func GetCallTimeout(logger logging.Logger) time.Duration {
	return timeoutHelper(DefaultCallTimeout, CallTimeoutEnvVar, logger)
}

// GetDiscoveryWindow calculates the discovery response window (env variable value if set,
// DefaultDiscoveryWindow otherwise).
func GetDiscoveryWindow(logger logging.Logger) time.Duration {
	return timeoutHelper(DefaultDiscoveryWindow, DiscoveryWindowEnvVar, logger)
}

// DebugEnabled returns whether SENSORHUB_DEBUG is set to a true value.
func DebugEnabled() bool {
	return slices.Contains(EnvTrueValues, os.Getenv(DebugEnvVar))
}

func timeoutHelper(defaultTimeout time.Duration, timeoutEnvVar string, logger logging.Logger) time.Duration {
	if timeoutVal := os.Getenv(timeoutEnvVar); timeoutVal != "" {
		timeout, err := time.ParseDuration(timeoutVal)
		if err != nil || timeout <= 0 {
			logger.Warnf("Failed to parse %s env var, falling back to default %v timeout",
				timeoutEnvVar, defaultTimeout)
			return defaultTimeout
		}
		return timeout
	}
	return defaultTimeout
}

// LogEnvVariables logs the sensorhub environment variables found in [os.Environ].
func LogEnvVariables(msg string, logger logging.Logger) {
	var env []string
	for _, v := range os.Environ() {
		if !strings.HasPrefix(v, EnvVarPrefix) {
			continue
		}
		env = append(env, v)
	}
	if len(env) != 0 {
		logger.Infow(msg, "environment", env)
	}
}
