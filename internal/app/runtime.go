package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/wire"

	"github.com/zeusync/levelhost/internal/core/events/bus"
	"github.com/zeusync/levelhost/internal/core/metrics"
	"github.com/zeusync/levelhost/internal/core/observability/log"
	"github.com/zeusync/levelhost/internal/core/services"
)

// ProviderSet builds a Runtime from a *Config.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideBus,
	NewCatalog,
	ProvideRegistry,
	NewRuntime,
)

// ProvideLogger builds the process logger. The cleanup flushes it.
func ProvideLogger(cfg *Config) (log.Log, func(), error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := log.NewWithOptions(log.Options{Level: level, Encoding: cfg.LogEncoding})
	return logger, func() { _ = logger.Sync() }, nil
}

func ProvideMetrics(cfg *Config) *metrics.Collector {
	return metrics.NewCollector(cfg.MetricsNamespace)
}

// ProvideBus returns the event bus with the metrics collector observing it.
func ProvideBus(collector *metrics.Collector) bus.EventBus {
	b := bus.New()
	b.AddObserver(collector)
	return b
}

func ProvideRegistry(logger log.Log, eventBus bus.EventBus, catalog *services.Catalog, collector *metrics.Collector) *services.Registry {
	return services.New(logger, eventBus, catalog, collector)
}

// Runtime is the context object owned by the process entry point.
type Runtime struct {
	Config   *Config
	Logger   log.Log
	Bus      bus.EventBus
	Metrics  *metrics.Collector
	Registry *services.Registry
}

func NewRuntime(cfg *Config, logger log.Log, eventBus bus.EventBus, collector *metrics.Collector, registry *services.Registry) *Runtime {
	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Bus:      eventBus,
		Metrics:  collector,
		Registry: registry,
	}
}

// Start creates every configured service and waits for the game started
// signal, bounded by the startup timeout.
func (rt *Runtime) Start(ctx context.Context) error {
	if rt.Config.StartupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.Config.StartupTimeout)
		defer cancel()
	}

	begin := time.Now()
	if _, err := rt.Registry.SetUp(ctx, rt.Config.Configuration()).Await(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	rt.Logger.Info("runtime started",
		log.Strings("services", rt.Registry.Names()),
		log.Duration("took", time.Since(begin)))
	return nil
}

// Shutdown stops every service, bounded by the shutdown timeout.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if rt.Config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.Config.ShutdownTimeout)
		defer cancel()
	}
	err := rt.Registry.Shutdown(ctx)
	if err != nil {
		rt.Logger.Error("runtime shutdown failed", log.Error(err))
		return err
	}
	rt.Logger.Info("runtime stopped")
	return nil
}

// Run starts the runtime, blocks until ctx is done, then shuts down.
func (rt *Runtime) Run(ctx context.Context) error {
	if err := rt.Start(ctx); err != nil {
		_ = rt.Shutdown(context.WithoutCancel(ctx))
		return err
	}
	<-ctx.Done()
	return rt.Shutdown(context.WithoutCancel(ctx))
}
