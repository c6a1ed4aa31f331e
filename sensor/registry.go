package sensor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/sensorhub/logging"
)

// A Constructor builds the driver of a sensor from its converted configuration.
type Constructor[ConfigT any] func(ctx context.Context, name string, conf *ConfigT, logger logging.Logger) (Driver, error)

// Registration describes how to build a model's drivers.
type Registration[ConfigT any] struct {
	Constructor Constructor[ConfigT]
	// Description is shown to operators listing the available models.
	Description string
}

// ModelRegistration is the type erased form of a Registration kept by the registry.
type ModelRegistration struct {
	Model       string
	Description string

	convert   func(path string, attributes map[string]interface{}) (interface{}, error)
	construct func(ctx context.Context, name string, converted interface{}, logger logging.Logger) (Driver, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]ModelRegistration{}
)

// RegisterModel registers a sensor model. Model packages call it from init. Registering the same
// model twice panics.
func RegisterModel[ConfigT any](model string, reg Registration[ConfigT]) {
	if reg.Constructor == nil {
		panic(errors.Errorf("cannot register sensor model %q without a constructor", model))
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := registry[model]; old {
		panic(errors.Errorf("trying to register two sensor models with the same name %q", model))
	}
	registry[model] = ModelRegistration{
		Model:       model,
		Description: reg.Description,
		convert: func(path string, attributes map[string]interface{}) (interface{}, error) {
			conf, err := TransformAttributes[ConfigT](attributes)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: error converting attributes for model %q", path, model)
			}
			if validator, ok := interface{}(conf).(ConfigValidator); ok {
				if err := validator.Validate(fmt.Sprintf("%s.attributes", path)); err != nil {
					return nil, err
				}
			}
			return conf, nil
		},
		construct: func(ctx context.Context, name string, converted interface{}, logger logging.Logger) (Driver, error) {
			conf, ok := converted.(*ConfigT)
			if !ok {
				return nil, errors.Errorf("sensor %q: expected attributes of type %T but got %T", name, conf, converted)
			}
			return reg.Constructor(ctx, name, conf, logger)
		},
	}
}

// DeregisterModel removes a model from the registry. It is only meant for tests.
func DeregisterModel(model string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, model)
}

// LookupModel returns the registration of model, if any.
func LookupModel(model string) (ModelRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[model]
	return reg, ok
}

// RegisteredModels returns every registered model sorted by name.
func RegisteredModels() []ModelRegistration {
	registryMu.RLock()
	defer registryMu.RUnlock()
	regs := make([]ModelRegistration, 0, len(registry))
	for _, reg := range registry {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].Model < regs[j].Model
	})
	return regs
}

// NewDriver builds a driver for conf from its model's registration, validating conf first if it
// has not been converted yet.
func NewDriver(ctx context.Context, conf Config, logger logging.Logger) (Driver, error) {
	reg, ok := LookupModel(conf.Model)
	if !ok {
		return nil, errors.Errorf("unknown sensor model %q", conf.Model)
	}
	if conf.ConvertedAttributes == nil {
		if err := conf.Validate(conf.Name); err != nil {
			return nil, err
		}
	}
	return reg.construct(ctx, conf.Name, conf.ConvertedAttributes, logger)
}

// New builds a managed sensor for conf.
func New(ctx context.Context, conf Config, logger logging.Logger, opts ...ManagedOption) (*Managed, error) {
	driver, err := NewDriver(ctx, conf, logger)
	if err != nil {
		return nil, err
	}
	return NewManaged(conf.Name, driver, logger, opts...), nil
}
