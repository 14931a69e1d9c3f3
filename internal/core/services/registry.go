// Package services owns the set of running services: creating them from
// configuration, the startup barrier, capability lookup and teardown.
package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/levelhost/internal/core/events"
	"github.com/zeusync/levelhost/internal/core/events/bus"
	"github.com/zeusync/levelhost/internal/core/lifecycle"
	"github.com/zeusync/levelhost/internal/core/metrics"
	"github.com/zeusync/levelhost/internal/core/observability/log"
	"github.com/zeusync/levelhost/pkg/async"
)

type entry struct {
	name string
	svc  Service
	tags []string
}

type Registry struct {
	logger  log.Log
	bus     bus.EventBus
	catalog *Catalog
	metrics *metrics.Collector

	mu      sync.RWMutex
	entries []*entry
	byName  map[string]*entry
	byTag   map[string]*entry
	closed  bool

	setUp   atomic.Bool
	started *async.Future[*Registry]
}

func New(logger log.Log, eventBus bus.EventBus, catalog *Catalog, collector *metrics.Collector) *Registry {
	if logger == nil {
		logger = log.Nop()
	}
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Registry{
		logger:  logger.With(log.String("component", "registry")),
		bus:     eventBus,
		catalog: catalog,
		metrics: collector,
		byName:  make(map[string]*entry),
		byTag:   make(map[string]*entry),
		started: async.New[*Registry](),
	}
}

func (r *Registry) Logger() log.Log             { return r.logger }
func (r *Registry) Bus() bus.EventBus           { return r.bus }
func (r *Registry) Catalog() *Catalog           { return r.catalog }
func (r *Registry) Metrics() *metrics.Collector { return r.metrics }

// GameStarted settles once: resolved when every configured service exists,
// rejected when setup fails or the registry shuts down first. Late callers
// observe the settled value immediately.
func (r *Registry) GameStarted() *async.Future[*Registry] {
	return r.started
}

// SetUp creates every configured service concurrently. Each one is
// configured, added and started as soon as its factory returns; when the last
// one is in, the game started signal fires and the returned future resolves.
// Any failure stops what was already added, in reverse order, and rejects
// both futures.
func (r *Registry) SetUp(ctx context.Context, cfg Configuration) *async.Future[*Registry] {
	if !r.setUp.CompareAndSwap(false, true) {
		return async.Rejected[*Registry](ErrAlreadySetUp)
	}
	if cfg.DisableLogging {
		r.logger.SetLevel(log.LevelSilent)
	}

	done := async.New[*Registry]()
	total := len(cfg.Services)
	begin := time.Now()

	r.logger.Info("setting up services", log.Int("count", total))

	if total == 0 {
		r.fireGameStarted(begin)
		done.Resolve(r)
		return done
	}

	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range cfg.Services {
		g.Go(func() error {
			if err := r.create(gctx, d); err != nil {
				return err
			}
			if created.Add(1) == int64(total) {
				r.fireGameStarted(begin)
			}
			return nil
		})
	}

	go func() {
		if err := g.Wait(); err != nil {
			r.logger.Error("service setup failed", log.Error(err))
			r.metrics.ObserveSetup(time.Since(begin), err)
			r.rollback(context.WithoutCancel(ctx))
			r.started.Reject(err)
			done.Reject(err)
			return
		}
		done.Resolve(r)
	}()

	return done
}

func (r *Registry) create(ctx context.Context, d Descriptor) error {
	factory, settings, err := d.resolve(r.catalog)
	if err != nil {
		return err
	}

	svc, err := factory(ctx, Env{
		Name:    d.Name,
		Logger:  r.logger.With(log.String("service", d.Name)),
		Bus:     r.bus,
		Metrics: r.metrics,
	})
	if err != nil {
		return fmt.Errorf("service %s: create: %w", d.Name, err)
	}
	if svc == nil {
		return fmt.Errorf("service %s: %w", d.Name, ErrNilService)
	}
	if err = svc.Configure(settings); err != nil {
		return fmt.Errorf("service %s: configure: %w", d.Name, err)
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	return r.Add(ctx, d.Name, svc)
}

func (r *Registry) fireGameStarted(begin time.Time) {
	if !r.started.Resolve(r) {
		return
	}
	r.metrics.ObserveSetup(time.Since(begin), nil)
	r.metrics.GameStarted()
	r.logger.Info("game started", log.Int("services", r.Len()))
	if err := events.Emit(r.bus, events.GameStarted, "registry", r); err != nil {
		r.logger.Warn("game started handler failed", log.Error(err))
	}
}

// Add inserts svc under name and starts it. A failing Start removes the entry
// again.
func (r *Registry) Add(ctx context.Context, name string, svc Service, tags ...string) error {
	if svc == nil {
		return ErrNilService
	}
	if t, ok := svc.(Tagged); ok {
		tags = append(slices.Clone(tags), t.Tags()...)
	}

	e := &entry{name: name, svc: svc, tags: tags}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrShutdown
	}
	if _, exists := r.byName[name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateService, name)
	}
	for _, tag := range tags {
		if owner, taken := r.byTag[tag]; taken {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s (held by %s)", ErrDuplicateCapability, tag, owner.name)
		}
	}
	r.entries = append(r.entries, e)
	r.byName[name] = e
	for _, tag := range tags {
		r.byTag[tag] = e
	}
	count := len(r.entries)
	r.mu.Unlock()

	r.metrics.SetServices(count)

	if err := svc.Start(ctx, r); err != nil {
		r.detach(e)
		return fmt.Errorf("service %s: start: %w", name, err)
	}

	r.logger.Debug("service added", log.String("service", name), log.Strings("tags", tags))
	return nil
}

// Lookup returns the first live service, in registration order, that
// satisfies T.
func Lookup[T any](r *Registry) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if typed, ok := e.svc.(T); ok && !stopped(e.svc) {
			return typed, true
		}
	}
	return zero, false
}

// Remove stops and removes the first service satisfying T.
func Remove[T any](ctx context.Context, r *Registry) (T, bool) {
	return removeWhere[T](ctx, r, func(*entry) bool { return true })
}

// RemoveNamed stops and removes the service registered under name if it
// satisfies T.
func RemoveNamed[T any](ctx context.Context, r *Registry, name string) (T, bool) {
	return removeWhere[T](ctx, r, func(e *entry) bool { return e.name == name })
}

func removeWhere[T any](ctx context.Context, r *Registry, match func(*entry) bool) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}

	r.mu.Lock()
	var found *entry
	var typed T
	for _, e := range r.entries {
		if !match(e) {
			continue
		}
		if t, ok := e.svc.(T); ok {
			found, typed = e, t
			break
		}
	}
	if found == nil {
		r.mu.Unlock()
		return zero, false
	}
	r.unlinkLocked(found)
	count := len(r.entries)
	r.mu.Unlock()

	r.metrics.SetServices(count)
	if err := found.svc.Stop(ctx, r); err != nil {
		r.logger.Warn("service stop failed", log.String("service", found.name), log.Error(err))
	}
	r.logger.Debug("service removed", log.String("service", found.name))
	return typed, true
}

// Shutdown stops every remaining service in reverse registration order. The
// registry refuses new services afterwards.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.started.Reject(ErrShutdown)
	err := r.stopAll(ctx)
	r.logger.Info("registry shut down")
	return err
}

func (r *Registry) rollback(ctx context.Context) {
	if err := r.stopAll(ctx); err != nil {
		r.logger.Warn("rollback stop failed", log.Error(err))
	}
}

func (r *Registry) stopAll(ctx context.Context) error {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.byName = make(map[string]*entry)
	r.byTag = make(map[string]*entry)
	r.mu.Unlock()

	r.metrics.SetServices(0)

	var errs error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := e.svc.Stop(ctx, r); err != nil {
			errs = errors.Join(errs, fmt.Errorf("service %s: stop: %w", e.name, err))
		}
	}
	return errs
}

func (r *Registry) detach(e *entry) {
	r.mu.Lock()
	r.unlinkLocked(e)
	count := len(r.entries)
	r.mu.Unlock()
	r.metrics.SetServices(count)
}

func (r *Registry) unlinkLocked(e *entry) {
	r.entries = slices.DeleteFunc(r.entries, func(x *entry) bool { return x == e })
	if r.byName[e.name] == e {
		delete(r.byName, e.name)
	}
	for _, tag := range e.tags {
		if r.byTag[tag] == e {
			delete(r.byTag, tag)
		}
	}
}

// Names returns service names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func stopped(svc Service) bool {
	s, ok := svc.(interface{ State() lifecycle.State })
	return ok && s.State() == lifecycle.Stopped
}
