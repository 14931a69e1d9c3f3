// Package metrics exports registry, level loader and event bus telemetry
// through a private prometheus registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zeusync/levelhost/internal/core/events"
	"github.com/zeusync/levelhost/internal/core/events/bus"
)

const (
	ResultOK         = "ok"
	ResultFailed     = "failed"
	ResultSuperseded = "superseded"
)

var _ bus.EventBusObserver = (*Collector)(nil)

// Collector is safe to use as a nil pointer; every method is then a no-op.
type Collector struct {
	registry *prometheus.Registry

	servicesRegistered prometheus.Gauge
	serviceTransitions *prometheus.CounterVec
	setupDuration      *prometheus.HistogramVec
	gameStarted        prometheus.Counter

	levelLoads        *prometheus.CounterVec
	levelLoadDuration *prometheus.HistogramVec
	levelUnloads      prometheus.Counter
	currentLevel      *prometheus.GaugeVec

	busEvents        *prometheus.CounterVec
	busHandlerErrors *prometheus.CounterVec
	busDelivery      prometheus.Histogram
}

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "levelhost"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.servicesRegistered = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "services",
		Help:      "Number of services currently held by the registry",
	})
	c.serviceTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "service_transitions_total",
		Help:      "Service lifecycle transitions by service and target state",
	}, []string{"service", "state"})
	c.setupDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "setup_duration_seconds",
		Help:      "Time from SetUp until every configured service was created",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"result"})
	c.gameStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "game_started_total",
		Help:      "Number of times the startup barrier fired",
	})

	c.levelLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "levels",
		Name:      "loads_total",
		Help:      "Level load requests by result",
	}, []string{"result"})
	c.levelLoadDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "levels",
		Name:      "load_duration_seconds",
		Help:      "Time from dequeue to attach (or failure) of a level load",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"result"})
	c.levelUnloads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "levels",
		Name:      "unloads_total",
		Help:      "Number of live levels unloaded",
	})
	c.currentLevel = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "levels",
		Name:      "current",
		Help:      "1 for the level currently live, 0 otherwise",
	}, []string{"level"})

	c.busEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "events_total",
		Help:      "Events published on the bus by type",
	}, []string{"type"})
	c.busHandlerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "handler_errors_total",
		Help:      "Publishes where at least one handler failed",
	}, []string{"type"})
	c.busDelivery = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "delivery_duration_seconds",
		Help:      "Synchronous delivery time per publish",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	c.registry.MustRegister(
		c.servicesRegistered,
		c.serviceTransitions,
		c.setupDuration,
		c.gameStarted,
		c.levelLoads,
		c.levelLoadDuration,
		c.levelUnloads,
		c.currentLevel,
		c.busEvents,
		c.busHandlerErrors,
		c.busDelivery,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry exposes the private registry for HTTP exposition.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) SetServices(n int) {
	if c == nil {
		return
	}
	c.servicesRegistered.Set(float64(n))
}

func (c *Collector) ObserveSetup(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.setupDuration.WithLabelValues(resultOf(err)).Observe(d.Seconds())
}

func (c *Collector) GameStarted() {
	if c == nil {
		return
	}
	c.gameStarted.Inc()
}

func (c *Collector) LevelLoaded(name string, d time.Duration) {
	if c == nil {
		return
	}
	c.levelLoads.WithLabelValues(ResultOK).Inc()
	c.levelLoadDuration.WithLabelValues(ResultOK).Observe(d.Seconds())
	c.currentLevel.Reset()
	c.currentLevel.WithLabelValues(name).Set(1)
}

// LevelLoadFailed records a load that ended without a live level. result is
// ResultFailed or ResultSuperseded.
func (c *Collector) LevelLoadFailed(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.levelLoads.WithLabelValues(result).Inc()
	c.levelLoadDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (c *Collector) LevelUnloaded(name string) {
	if c == nil {
		return
	}
	c.levelUnloads.Inc()
	c.currentLevel.DeleteLabelValues(name)
}

func (c *Collector) OnPublish(_ string, eventType string, event bus.Event) {
	if c == nil {
		return
	}
	c.busEvents.WithLabelValues(eventType).Inc()
	if ev, ok := event.Data().(events.ServiceEvent); ok {
		c.serviceTransitions.WithLabelValues(ev.Name, ev.State).Inc()
	}
}

func (c *Collector) OnDelivered(_ string, eventType string, _ int, err error, d time.Duration) {
	if c == nil {
		return
	}
	if err != nil {
		c.busHandlerErrors.WithLabelValues(eventType).Inc()
	}
	c.busDelivery.Observe(d.Seconds())
}

func resultOf(err error) string {
	if err != nil {
		return ResultFailed
	}
	return ResultOK
}
