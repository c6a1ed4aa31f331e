package sensor

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/sensorhub/utils"
)

// Config describes one sensor hosted by a station.
type Config struct {
	Name          string `json:"name"`
	Model         string `json:"model"`
	LoadAtStartup bool   `json:"load_at_startup,omitempty"`
	// ParametersFile names a JSON file of attributes merged under Attributes when the station
	// configuration is read. Attributes set inline take precedence.
	ParametersFile string                 `json:"parameters_file,omitempty"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`

	// ConvertedAttributes holds the model specific configuration decoded from Attributes.
	ConvertedAttributes interface{} `json:"-"`
}

// ConfigValidator is implemented by model configurations that can check themselves.
type ConfigValidator interface {
	Validate(path string) error
}

// Validate ensures the sensor is named, its model is registered, and its attributes convert into
// the model's configuration.
func (conf *Config) Validate(path string) error {
	if conf.Name == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if conf.Model == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "model")
	}
	reg, ok := LookupModel(conf.Model)
	if !ok {
		return errors.Errorf("%s: unknown sensor model %q", path, conf.Model)
	}
	if conf.ConvertedAttributes != nil {
		return nil
	}
	converted, err := reg.convert(path, conf.Attributes)
	if err != nil {
		return err
	}
	conf.ConvertedAttributes = converted
	return nil
}

// NativeConfig returns the converted attributes of conf as a *T.
func NativeConfig[T any](conf Config) (*T, error) {
	native, ok := conf.ConvertedAttributes.(*T)
	if !ok {
		return nil, utils.NewUnexpectedTypeError[T](conf.ConvertedAttributes)
	}
	return native, nil
}

// TransformAttributes decodes attributes into a new T, matching keys against json tags and
// flattening embedded structs.
// Durations may be given as strings such as "250ms".
func TransformAttributes[T any](attributes map[string]interface{}) (*T, error) {
	out := new(T)
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		Metadata:         &md,
		WeaklyTypedInput: true,
		Squash:           true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, err
	}
	if len(md.Unused) > 0 {
		return nil, errors.Errorf("unknown attributes %v", md.Unused)
	}
	return out, nil
}
