package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/utils"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestReadStation(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	t.Setenv("GREENHOUSE_BUS", "i2c-1")
	writeFile(t, dir, DotEnvFile, "GREENHOUSE_NAME=greenhouse\nGREENHOUSE_BUS=ignored\n")
	writeFile(t, dir, "humidity.json", `{"value": 40, "jitter": 2, "bus": "${GREENHOUSE_BUS}"}`)
	path := writeFile(t, dir, "station.json", `{
		"name": "${GREENHOUSE_NAME}",
		"provider_address": "10.0.0.1:8080",
		"call_timeout": "750ms",
		"discovery": {"attempts": 5, "window": "1s"},
		"sensors": [
			{"name": "humA", "model": "fake_humidity", "load_at_startup": true,
			 "parameters_file": "humidity.json", "attributes": {"value": 55}},
			{"name": "tempA", "model": "fake_temperature"}
		]
	}`)
	t.Cleanup(func() {
		os.Unsetenv("GREENHOUSE_NAME")
	})

	cfg, err := ReadStation(path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Name, test.ShouldEqual, "greenhouse")
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.ListenAddress, test.ShouldEqual, DefaultStationListenAddress)
	test.That(t, time.Duration(cfg.CallTimeout), test.ShouldEqual, 750*time.Millisecond)
	opts := cfg.Discovery.Options()
	test.That(t, opts.Attempts, test.ShouldEqual, 5)
	test.That(t, opts.Window, test.ShouldEqual, time.Second)

	test.That(t, cfg.Sensors, test.ShouldHaveLength, 2)
	hum := cfg.Sensors[0]
	test.That(t, hum.LoadAtStartup, test.ShouldBeTrue)
	// inline attributes win over the parameters file
	test.That(t, hum.Attributes["value"], test.ShouldEqual, 55.0)
	test.That(t, hum.Attributes["jitter"], test.ShouldEqual, 2.0)
	// the environment wins over the .env file
	test.That(t, hum.Attributes["bus"], test.ShouldEqual, "i2c-1")
	test.That(t, cfg.Sensors[1].LoadAtStartup, test.ShouldBeFalse)
}

func TestReadStationProviderOverride(t *testing.T) {
	logger := logging.NewTestLogger(t)
	t.Setenv(utils.ProviderAddressEnvVar, "192.168.1.10:8080")
	cfg, err := StationFromReader("", strings.NewReader(`{"name": "s", "provider_address": "10.0.0.1:8080"}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ProviderAddress, test.ShouldEqual, "192.168.1.10:8080")
}

func TestReadStationErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, tc := range []struct {
		name     string
		contents string
		expected string
	}{
		{"no name", `{}`, `"name" is required`},
		{"bad json", `{"name": `, "failed to decode"},
		{"bad listen", `{"name": "s", "listen_address": "8081"}`, "listen_address"},
		{"bad duration", `{"name": "s", "call_timeout": "soon"}`, "soon"},
		{"discovery disabled without fallback", `{"name": "s", "discovery": {"disabled": true}}`, "provider_address is required"},
		{"bad group", `{"name": "s", "discovery": {"group_address": "nowhere"}}`, "group_address"},
		{"missing parameters", `{"name": "s", "sensors": [{"name": "a", "model": "m", "parameters_file": "/does/not/exist.json"}]}`, "sensors.0"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := StationFromReader("", strings.NewReader(tc.contents), logger)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.expected)
		})
	}

	_, err := ReadStation(filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadProvider(t *testing.T) {
	logger := logging.NewTestLogger(t)
	path := writeFile(t, t.TempDir(), "provider.json", `{
		"listen_address": "0.0.0.0:9090",
		"list_concurrency": 4,
		"discovery": {"group_address": "239.255.77.77:7077"}
	}`)
	cfg, err := ReadProvider(path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ListenAddress, test.ShouldEqual, "0.0.0.0:9090")
	test.That(t, cfg.AdvertisedAddress, test.ShouldEqual, "0.0.0.0:9090")
	test.That(t, cfg.ListConcurrency, test.ShouldEqual, 4)

	cfg, err = ProviderFromReader("", strings.NewReader(`{}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ListenAddress, test.ShouldEqual, DefaultProviderListenAddress)

	_, err = ProviderFromReader("", strings.NewReader(`{"conn_cache_size": -1}`))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDuration(t *testing.T) {
	var d Duration
	test.That(t, json.Unmarshal([]byte(`"1m30s"`), &d), test.ShouldBeNil)
	test.That(t, time.Duration(d), test.ShouldEqual, 90*time.Second)
	test.That(t, json.Unmarshal([]byte(`1000`), &d), test.ShouldBeNil)
	test.That(t, time.Duration(d), test.ShouldEqual, time.Microsecond)
	test.That(t, json.Unmarshal([]byte(`true`), &d), test.ShouldNotBeNil)

	out, err := json.Marshal(Duration(2 * time.Second))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `"2s"`)
}

func TestLoadEnv(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "extra.env", "SENSORHUB_TEST_LOAD_ENV=loaded\n")
	t.Cleanup(func() {
		os.Unsetenv("SENSORHUB_TEST_LOAD_ENV")
	})
	test.That(t, LoadEnv(logger, filepath.Join(dir, "missing.env"), path), test.ShouldBeNil)
	test.That(t, os.Getenv("SENSORHUB_TEST_LOAD_ENV"), test.ShouldEqual, "loaded")
}
