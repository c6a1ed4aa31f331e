// Package config defines the configuration files of stations and providers and how they are
// read.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/sensorhub/discovery"
	"go.viam.com/sensorhub/sensor"
)

const (
	// DefaultStationListenAddress is where stations serve unless configured otherwise.
	DefaultStationListenAddress = ":8081"
	// DefaultProviderListenAddress is where providers serve unless configured otherwise.
	DefaultProviderListenAddress = ":8080"
)

// Duration is a time.Duration written as a string such as "1.5s" in configuration files.
type Duration time.Duration

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration string. Plain numbers are taken as nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return errors.Errorf("invalid duration %s", string(data))
	}
	return nil
}

// Discovery configures how stations find the provider and how the provider answers them.
type Discovery struct {
	Disabled     bool     `json:"disabled,omitempty"`
	GroupAddress string   `json:"group_address,omitempty"`
	Attempts     int      `json:"attempts,omitempty"`
	Window       Duration `json:"window,omitempty"`
}

// Validate checks the discovery settings.
func (d *Discovery) Validate(path string) error {
	if d.GroupAddress != "" {
		if _, err := net.ResolveUDPAddr("udp4", d.GroupAddress); err != nil {
			return goutils.NewConfigValidationError(path, errors.Wrap(err, "invalid group_address"))
		}
	}
	if d.Attempts < 0 {
		return goutils.NewConfigValidationError(path, errors.New("attempts must not be negative"))
	}
	if d.Window < 0 {
		return goutils.NewConfigValidationError(path, errors.New("window must not be negative"))
	}
	return nil
}

// Options converts the settings into discovery options.
func (d *Discovery) Options() discovery.Options {
	return discovery.Options{
		GroupAddress: d.GroupAddress,
		Attempts:     d.Attempts,
		Window:       time.Duration(d.Window),
	}
}

// Station is the configuration of a station.
type Station struct {
	Name string `json:"name"`
	// ListenAddress is where the station serves its API.
	ListenAddress string `json:"listen_address,omitempty"`
	// AdvertisedAddress is the address registered with the provider. It defaults to the listen
	// address with an unspecified host replaced by the address used to reach the provider.
	AdvertisedAddress string `json:"advertised_address,omitempty"`
	// ProviderAddress is used when discovery finds no provider.
	ProviderAddress string    `json:"provider_address,omitempty"`
	CallTimeout     Duration  `json:"call_timeout,omitempty"`
	Discovery       Discovery `json:"discovery,omitempty"`
	MetricsAddress  string    `json:"metrics_address,omitempty"`
	Debug           bool      `json:"debug,omitempty"`

	Sensors []sensor.Config `json:"sensors,omitempty"`

	ConfigFilePath string `json:"-"`
}

// Ensure validates the station settings and fills in defaults. Sensor entries are checked when
// the station instantiates them so that one bad entry does not keep the others from loading.
func (c *Station) Ensure() error {
	if c.Name == "" {
		return goutils.NewConfigValidationFieldRequiredError("", "name")
	}
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultStationListenAddress
	}
	if err := validateHostPort("listen_address", c.ListenAddress); err != nil {
		return err
	}
	if c.AdvertisedAddress != "" {
		if err := validateHostPort("advertised_address", c.AdvertisedAddress); err != nil {
			return err
		}
	}
	if c.ProviderAddress != "" {
		if err := validateHostPort("provider_address", c.ProviderAddress); err != nil {
			return err
		}
	}
	if c.Discovery.Disabled && c.ProviderAddress == "" {
		return goutils.NewConfigValidationError("discovery", errors.New("provider_address is required when discovery is disabled"))
	}
	if c.CallTimeout < 0 {
		return goutils.NewConfigValidationError("call_timeout", errors.New("must not be negative"))
	}
	return c.Discovery.Validate("discovery")
}

// Provider is the configuration of a provider.
type Provider struct {
	ListenAddress string `json:"listen_address,omitempty"`
	// AdvertisedAddress is the address given to discovering stations. It defaults to the listen
	// address.
	AdvertisedAddress string    `json:"advertised_address,omitempty"`
	CallTimeout       Duration  `json:"call_timeout,omitempty"`
	ListConcurrency   int       `json:"list_concurrency,omitempty"`
	ConnCacheSize     int       `json:"conn_cache_size,omitempty"`
	Discovery         Discovery `json:"discovery,omitempty"`
	MetricsAddress    string    `json:"metrics_address,omitempty"`
	Debug             bool      `json:"debug,omitempty"`

	ConfigFilePath string `json:"-"`
}

// Ensure validates the provider settings and fills in defaults.
func (c *Provider) Ensure() error {
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultProviderListenAddress
	}
	if err := validateHostPort("listen_address", c.ListenAddress); err != nil {
		return err
	}
	if c.AdvertisedAddress == "" {
		c.AdvertisedAddress = c.ListenAddress
	}
	if err := validateHostPort("advertised_address", c.AdvertisedAddress); err != nil {
		return err
	}
	if c.CallTimeout < 0 {
		return goutils.NewConfigValidationError("call_timeout", errors.New("must not be negative"))
	}
	if c.ListConcurrency < 0 {
		return goutils.NewConfigValidationError("list_concurrency", errors.New("must not be negative"))
	}
	if c.ConnCacheSize < 0 {
		return goutils.NewConfigValidationError("conn_cache_size", errors.New("must not be negative"))
	}
	return c.Discovery.Validate("discovery")
}

func validateHostPort(path, address string) error {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return goutils.NewConfigValidationError(path, fmt.Errorf("invalid address %q: %w", address, err))
	}
	return nil
}
