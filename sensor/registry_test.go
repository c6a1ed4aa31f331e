package sensor_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"
	goutils "go.viam.com/utils"

	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/sensor"
	"go.viam.com/sensorhub/testutils/inject"
)

type thermometerConfig struct {
	Bus      string        `json:"bus"`
	Interval time.Duration `json:"interval"`
	Offset   float64       `json:"offset"`
}

func (conf *thermometerConfig) Validate(path string) error {
	if conf.Bus == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "bus")
	}
	return nil
}

const testModel = "test_thermometer"

func registerTestModel(t *testing.T) *thermometerConfig {
	t.Helper()
	var built thermometerConfig
	sensor.RegisterModel(testModel, sensor.Registration[thermometerConfig]{
		Description: "thermometer used in tests",
		Constructor: func(ctx context.Context, name string, conf *thermometerConfig, logger logging.Logger) (sensor.Driver, error) {
			built = *conf
			return &inject.Acquirer{AcquireFunc: func(ctx context.Context) (float64, error) {
				return 20 + conf.Offset, nil
			}}, nil
		},
	})
	t.Cleanup(func() {
		sensor.DeregisterModel(testModel)
	})
	return &built
}

func TestRegisterModel(t *testing.T) {
	built := registerTestModel(t)

	reg, ok := sensor.LookupModel(testModel)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, reg.Description, test.ShouldEqual, "thermometer used in tests")

	var found bool
	models := sensor.RegisteredModels()
	for i, reg := range models {
		if i > 0 {
			test.That(t, models[i-1].Model, test.ShouldBeLessThan, reg.Model)
		}
		if reg.Model == testModel {
			found = true
		}
	}
	test.That(t, found, test.ShouldBeTrue)

	test.That(t, func() {
		sensor.RegisterModel(testModel, sensor.Registration[thermometerConfig]{
			Constructor: func(ctx context.Context, name string, conf *thermometerConfig, logger logging.Logger) (sensor.Driver, error) {
				return nil, errors.New("unused")
			},
		})
	}, test.ShouldPanic)
	test.That(t, func() {
		sensor.RegisterModel("no_constructor", sensor.Registration[thermometerConfig]{})
	}, test.ShouldPanic)

	conf := sensor.Config{
		Name:  "tempA",
		Model: testModel,
		Attributes: map[string]interface{}{
			"bus":      "i2c1",
			"interval": "250ms",
			"offset":   1.5,
		},
	}
	test.That(t, conf.Validate("sensors.0"), test.ShouldBeNil)
	native, err := sensor.NativeConfig[thermometerConfig](conf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, native.Interval, test.ShouldEqual, 250*time.Millisecond)

	ctx := context.Background()
	m, err := sensor.New(ctx, conf, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Name(), test.ShouldEqual, "tempA")
	test.That(t, built.Bus, test.ShouldEqual, "i2c1")
	test.That(t, m.Start(ctx), test.ShouldBeNil)
	value, err := sensor.Read[float64](ctx, m)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, value, test.ShouldEqual, 21.5)
}

func TestConfigValidate(t *testing.T) {
	registerTestModel(t)

	conf := sensor.Config{Model: testModel}
	err := conf.Validate("sensors.0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldEqual, goutils.NewConfigValidationFieldRequiredError("sensors.0", "name").Error())

	conf = sensor.Config{Name: "tempA"}
	err = conf.Validate("sensors.0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldEqual, goutils.NewConfigValidationFieldRequiredError("sensors.0", "model").Error())

	conf = sensor.Config{Name: "tempA", Model: "no_such_model"}
	err = conf.Validate("sensors.0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no_such_model")

	conf = sensor.Config{Name: "tempA", Model: testModel}
	err = conf.Validate("sensors.0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldEqual, goutils.NewConfigValidationFieldRequiredError("sensors.0.attributes", "bus").Error())

	conf = sensor.Config{Name: "tempA", Model: testModel, Attributes: map[string]interface{}{"bus": "i2c1", "color": "red"}}
	err = conf.Validate("sensors.0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "color")

	_, err = sensor.NativeConfig[thermometerConfig](sensor.Config{ConvertedAttributes: "nope"})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = sensor.New(context.Background(), sensor.Config{Name: "x", Model: "no_such_model"}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
