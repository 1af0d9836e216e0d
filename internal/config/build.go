package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Brownie44l1/rvm-classifier/internal/actuator"
	"github.com/Brownie44l1/rvm-classifier/internal/engine"
	"github.com/Brownie44l1/rvm-classifier/internal/labels"
	"github.com/Brownie44l1/rvm-classifier/internal/model"
)

// NewClassifier loads the label table and opens the model with the
// configured backend. Backends must be registered by the caller's imports.
func (c Config) NewClassifier() (*model.Classifier, error) {
	ecfg := engine.Config{
		Backend:    c.Model.Backend,
		ORTLibrary: c.Model.ORTLibrary,
	}

	var table []string
	if strings.EqualFold(filepath.Ext(c.Model.Labels), ".json") {
		meta, err := labels.LoadMetadata(c.Model.Labels)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrModelLoad, err)
		}
		table = meta.Classes
		ecfg.OutputQuantization = meta.OutputQuantization
	} else {
		var err error
		if table, err = labels.Load(c.Model.Labels); err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrModelLoad, err)
		}
	}

	open, err := engine.Opener(ecfg)
	if err != nil {
		return nil, err
	}
	return model.NewClassifier(c.Model.Path, table, c.Classifier, open)
}

// NewActuator builds the configured actuator. The returned close function
// releases any connection it holds.
func (c Config) NewActuator(ctx context.Context) (actuator.Actuator, func(), error) {
	table := actuator.AngleTable{
		Angles:  c.Actuator.Angles,
		Default: c.Actuator.DefaultAngle,
	}
	switch c.Actuator.Kind {
	case "redis":
		r := c.Actuator.Redis
		client, err := actuator.DialRedis(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			return nil, nil, err
		}
		return actuator.NewRedisActuator(client, r.Channel, table), func() { client.Close() }, nil
	default:
		return &actuator.LogActuator{Table: table}, func() {}, nil
	}
}
