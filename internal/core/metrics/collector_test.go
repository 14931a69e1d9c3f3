package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/levelhost/internal/core/events"
	"github.com/zeusync/levelhost/internal/core/events/bus"
)

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.SetServices(3)
		c.ObserveSetup(time.Second, nil)
		c.GameStarted()
		c.LevelLoaded("x", time.Millisecond)
		c.LevelLoadFailed(ResultFailed, time.Millisecond)
		c.LevelUnloaded("x")
		c.OnPublish("", "t", bus.NewEvent("t", "s", nil, nil))
		c.OnDelivered("", "t", 1, nil, time.Millisecond)
	})
	assert.Nil(t, c.Registry())
}

func TestCollector_Levels(t *testing.T) {
	c := NewCollector("test")

	c.LevelLoaded("forest", 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.levelLoads.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.currentLevel.WithLabelValues("forest")))

	c.LevelLoaded("cave", 10*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(c.currentLevel))

	c.LevelUnloaded("cave")
	assert.Equal(t, 0, testutil.CollectAndCount(c.currentLevel))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.levelUnloads))

	c.LevelLoadFailed(ResultSuperseded, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.levelLoads.WithLabelValues(ResultSuperseded)))
}

func TestCollector_Registry(t *testing.T) {
	c := NewCollector("")

	c.SetServices(4)
	c.GameStarted()
	c.ObserveSetup(5*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 4.0, testutil.ToFloat64(c.servicesRegistered))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.gameStarted))
	assert.Equal(t, 1, testutil.CollectAndCount(c.setupDuration))

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "levelhost_registry_game_started_total" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCollector_BusObserver(t *testing.T) {
	c := NewCollector("test")
	b := bus.New()
	b.AddObserver(c)

	_, err := b.Subscribe(events.ServiceStarted, func(bus.Event) error { return errors.New("handler failed") })
	require.NoError(t, err)

	err = events.Emit(b, events.ServiceStarted, "audio", events.ServiceEvent{Name: "audio", State: "started"})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.busEvents.WithLabelValues(events.ServiceStarted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.busHandlerErrors.WithLabelValues(events.ServiceStarted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.serviceTransitions.WithLabelValues("audio", "started")))
}
