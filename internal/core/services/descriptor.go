package services

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/levelhost/internal/core/events/bus"
	"github.com/zeusync/levelhost/internal/core/metrics"
	"github.com/zeusync/levelhost/internal/core/observability/log"
)

// Service is implemented by every subsystem the registry owns.
//
// Lifecycle:
//  1. Construction (via Factory)
//  2. Configure(config) - config is down-cast to the service's own settings type
//  3. Start(ctx, registry) - no long-running work; defer bootstrap to GameStarted
//  4. Stop(ctx, registry) - release subscriptions; must be idempotent
type Service interface {
	Configure(config any) error
	Start(ctx context.Context, r *Registry) error
	Stop(ctx context.Context, r *Registry) error
}

// Tagged is implemented by services that advertise capability tags for
// Resolve lookups.
type Tagged interface {
	Tags() []string
}

// Env is what a factory receives to build a service.
type Env struct {
	Name    string
	Logger  log.Log
	Bus     bus.EventBus
	Metrics *metrics.Collector
}

// Factory creates a service instance. It may block (it runs on its own
// goroutine during SetUp) and should honour ctx.
type Factory func(ctx context.Context, env Env) (Service, error)

// Descriptor is one entry of the ordered service list in the configuration.
type Descriptor struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	// Config is decoded into the kind's settings type when Settings is nil.
	Config yaml.Node `yaml:"config"`

	// Settings is a ready typed configuration value. Takes precedence over Config.
	Settings any `yaml:"-"`
	// Create overrides the catalog factory for Kind.
	Create Factory `yaml:"-"`
}

// Configuration drives Registry.SetUp.
type Configuration struct {
	Services       []Descriptor
	DisableLogging bool
}

// resolve returns the factory and settings value for d.
func (d Descriptor) resolve(catalog *Catalog) (Factory, any, error) {
	if d.Name == "" {
		return nil, nil, ErrEmptyName
	}

	var kind Kind
	var hasKind bool
	if catalog != nil && d.Kind != "" {
		kind, hasKind = catalog.Lookup(d.Kind)
	}

	factory := d.Create
	if factory == nil {
		if !hasKind {
			return nil, nil, fmt.Errorf("%w: %q (service %s)", ErrUnknownKind, d.Kind, d.Name)
		}
		factory = kind.New
	}

	settings := d.Settings
	if settings == nil && hasKind && kind.Settings != nil {
		settings = kind.Settings()
		if !d.Config.IsZero() {
			if err := d.Config.Decode(settings); err != nil {
				return nil, nil, fmt.Errorf("service %s: decode config: %w", d.Name, err)
			}
		}
	}

	return factory, settings, nil
}
