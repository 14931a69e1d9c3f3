package bus

import "time"

// Wildcard subscribes a handler to every event type within a topic.
const Wildcard = "*"

// EventBus defines a thread-safe, in-process pub/sub event bus.
//
// Key characteristics:
// - Type-based fan-out: handlers subscribe by Event.Type() string, or to Wildcard.
// - Optional topics: handlers can subscribe within a topic for isolation and scoping.
// - Synchronous delivery: Publish calls handler callbacks in the caller goroutine.
// - Error aggregation: multiple handler errors are joined and returned from Publish.
// - Optional observability: counters are always kept; observers receive per-event callbacks.
//
// Handlers should be quick or offload heavy work to avoid blocking publishers.
// All methods must be safe for concurrent use.
type EventBus interface {
	// Publish delivers the event synchronously to all active subscribers of event.Type()
	// in the default topic. If one or more handlers return an error, a joined error is
	// returned.
	Publish(event Event) error
	// Subscribe registers a handler for a specific event type in the default topic and
	// returns a Subscription handle that can be used to cancel later.
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels the given Subscription. It is safe to call with nil; does nothing.
	Unsubscribe(Subscription) error

	// SubscribeTopic registers a handler for eventType within a topic.
	SubscribeTopic(topic, eventType string, handler EventHandler) (Subscription, error)
	// PublishToTopic publishes to a specific topic.
	PublishToTopic(topic string, event Event) error

	// PublishAsync publishes in a separate goroutine and returns a channel that will receive
	// a joined error (or nil) when delivery completes; then the channel is closed.
	PublishAsync(event Event) <-chan error

	// AddObserver registers an observer to receive metrics callbacks.
	AddObserver(obs EventBusObserver)
	// RemoveObserver unregisters a previously added observer.
	RemoveObserver(obs EventBusObserver)
	// GetMetrics returns a best-effort snapshot of accumulated metrics.
	GetMetrics() EventBusMetrics
	// GetTopics returns a snapshot list of known topics.
	GetTopics() []TopicInfo
}

// Event is an immutable message transported by the EventBus.
//
// Fields:
// - Type: routing key used to select handlers (required for delivery).
// - Source: identifier of the publisher, usually a service name.
// - Timestamp: creation time of the event.
// - Data: payload for consumers (a level, a service event, or nil).
// - Metadata: small key/value annotations for additional context.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
	Metadata() map[string]any
}

// EventHandler is a user callback invoked per delivered event. If it returns an
// error, Publish aggregates and returns it.
type EventHandler func(event Event) error

// Subscription represents a registered handler bound to an event type.
// Use Cancel or EventBus.Unsubscribe to stop receiving events.
type Subscription interface {
	// ID is a unique identifier for this subscription.
	ID() string
	// EventType returns the event type this subscription listens to.
	EventType() string
	// IsActive reports whether this subscription is still registered.
	IsActive() bool
	// Cancel de-registers the handler from the bus. Multiple calls are safe.
	Cancel() error
}

// EventBusObserver is notified about deliveries and errors. Observers should return quickly.
type EventBusObserver interface {
	OnPublish(topic, eventType string, event Event)
	OnDelivered(topic, eventType string, handlers int, err error, duration time.Duration)
}

// EventBusMetrics represents a minimal set of counters updated on every publish.
type EventBusMetrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
	SubscribersActive uint64
	Topics            uint64
}

// TopicInfo provides a minimal snapshot about a topic.
type TopicInfo struct {
	Name       string
	EventTypes int
	Subs       int
}
