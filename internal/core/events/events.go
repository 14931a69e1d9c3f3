// Package events names the lifecycle broadcasts published on the bus.
package events

import "github.com/zeusync/levelhost/internal/core/events/bus"

const (
	ServiceConfigured = "service.configured"
	ServiceStarted    = "service.started"
	ServiceStopped    = "service.stopped"

	// GameStarted is published exactly once per registry, after every
	// configured service has been created.
	GameStarted = "game.started"

	LevelLoaded     = "level.loaded"
	LevelUnloaded   = "level.unloaded"
	LevelLoadFailed = "level.load_failed"
)

// Lifecycle lists every event type the runtime publishes.
var Lifecycle = []string{
	ServiceConfigured,
	ServiceStarted,
	ServiceStopped,
	GameStarted,
	LevelLoaded,
	LevelUnloaded,
	LevelLoadFailed,
}

// ServiceEvent is the payload of the service.* events.
type ServiceEvent struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	Service any    `json:"-"`
}

// LoadFailure is the payload of level.load_failed.
type LoadFailure struct {
	Name string `json:"name"`
	Err  error  `json:"-"`
}

// Emit publishes a typed event. A nil bus is accepted so components can run
// detached in tests.
func Emit(b bus.EventBus, eventType, source string, data any) error {
	if b == nil {
		return nil
	}
	return b.Publish(bus.NewEvent(eventType, source, data, nil))
}
