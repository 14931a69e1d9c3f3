package lifecycle

import (
	"fmt"
	"sync"

	"github.com/zeusync/levelhost/internal/core/events"
	"github.com/zeusync/levelhost/internal/core/events/bus"
	"github.com/zeusync/levelhost/internal/core/observability/log"
)

// Base carries the state machine shared by every service. Embed it and call
// the Mark* helpers from Configure/Start/Stop.
type Base struct {
	mu       sync.RWMutex
	name     string
	state    State
	bus      bus.EventBus
	logger   log.Log
	self     any
	disposer Disposer
}

// Init binds the base to the owning service. self is carried in the
// service.* event payloads.
func (b *Base) Init(name string, eventBus bus.EventBus, logger log.Log, self any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.name = name
	b.bus = eventBus
	b.self = self
	if logger == nil {
		logger = log.Nop()
	}
	b.logger = logger.With(log.String("service", name))
}

func (b *Base) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

func (b *Base) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Logger returns the service-scoped logger.
func (b *Base) Logger() log.Log {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.logger == nil {
		return log.Nop()
	}
	return b.logger
}

func (b *Base) Bus() bus.EventBus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bus
}

func (b *Base) MarkConfigured() error {
	if err := b.transition(Configured, Unconfigured); err != nil {
		return fmt.Errorf("%s: %w", b.Name(), ErrAlreadyConfigured)
	}
	b.emit(events.ServiceConfigured, Configured)
	return nil
}

func (b *Base) MarkStarted() error {
	if err := b.transition(Started, Configured); err != nil {
		return err
	}
	b.emit(events.ServiceStarted, Started)
	return nil
}

// MarkStopped moves the service to Stopped and releases everything tracked
// by the disposer. It returns false when the service was already stopped.
func (b *Base) MarkStopped() bool {
	b.mu.Lock()
	if b.state == Stopped {
		b.mu.Unlock()
		return false
	}
	b.state = Stopped
	b.mu.Unlock()

	b.emit(events.ServiceStopped, Stopped)
	b.disposer.Dispose()
	return true
}

// Defer registers fn to run when the service stops.
func (b *Base) Defer(fn func()) {
	b.disposer.Add(fn)
}

// Track cancels sub when the service stops.
func (b *Base) Track(sub bus.Subscription) {
	b.disposer.Track(sub)
}

func (b *Base) transition(to State, from ...State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range from {
		if b.state == f {
			b.state = to
			return nil
		}
	}
	return fmt.Errorf("%s: %w: %s -> %s", b.name, ErrInvalidTransition, b.state, to)
}

func (b *Base) emit(eventType string, state State) {
	b.mu.RLock()
	eventBus, name, self, logger := b.bus, b.name, b.self, b.logger
	b.mu.RUnlock()

	if logger != nil {
		logger.Debug("service state changed", log.String("state", state.String()))
	}
	payload := events.ServiceEvent{Name: name, State: state.String(), Service: self}
	if err := events.Emit(eventBus, eventType, name, payload); err != nil && logger != nil {
		logger.Warn("service event handler failed", log.String("event", eventType), log.Error(err))
	}
}
