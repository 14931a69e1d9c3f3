package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/levelhost/internal/core/events"
	"github.com/zeusync/levelhost/internal/core/events/bus"
	"github.com/zeusync/levelhost/internal/core/metrics"
	"github.com/zeusync/levelhost/internal/core/services"
)

func newMonitor(t *testing.T, b bus.EventBus, collector *metrics.Collector, cfg *Config) (*Monitor, *services.Registry) {
	t.Helper()
	m := NewMonitor(services.Env{Name: "monitor", Bus: b, Metrics: collector})
	require.NoError(t, m.Configure(cfg))

	r := services.New(nil, b, nil, collector)
	require.NoError(t, r.Add(context.Background(), "monitor", m))
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return m, r
}

func offline() *Config {
	cfg := DefaultConfig()
	cfg.ListenAddr = ""
	return cfg
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestMonitor_StreamsEvents(t *testing.T) {
	b := bus.New()
	m, _ := newMonitor(t, b, nil, offline())
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	conn := dial(t, srv)

	require.NoError(t, events.Emit(b, events.ServiceStarted, "audio", events.ServiceEvent{Name: "audio", State: "started"}))
	env := readEnvelope(t, conn)
	assert.Equal(t, events.ServiceStarted, env.Type)
	assert.Equal(t, "audio", env.Subject)
	assert.Equal(t, "started", env.State)

	require.NoError(t, events.Emit(b, events.LevelLoadFailed, "levels", events.LoadFailure{Name: "x", Err: errors.New("gone")}))
	env = readEnvelope(t, conn)
	assert.Equal(t, events.LevelLoadFailed, env.Type)
	assert.Equal(t, "gone", env.Error)
}

func TestMonitor_ReplaysHistory(t *testing.T) {
	b := bus.New()
	cfg := offline()
	cfg.HistorySize = 2
	m, _ := newMonitor(t, b, nil, cfg)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	for _, src := range []string{"a", "b", "c"} {
		require.NoError(t, events.Emit(b, events.LevelUnloaded, src, nil))
	}

	conn := dial(t, srv)
	assert.Equal(t, "b", readEnvelope(t, conn).Source)
	assert.Equal(t, "c", readEnvelope(t, conn).Source)
}

func TestMonitor_MaxClients(t *testing.T) {
	cfg := offline()
	cfg.MaxClients = 1
	m, _ := newMonitor(t, bus.New(), nil, cfg)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	dial(t, srv)
	require.Eventually(t, func() bool { return m.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)

	second := dial(t, srv)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := second.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)
}

func TestMonitor_Health(t *testing.T) {
	m, r := newMonitor(t, bus.New(), nil, offline())
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	get := func() health {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var h health
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
		return h
	}

	h := get()
	assert.False(t, h.GameStarted)
	assert.Equal(t, []string{"monitor"}, h.Services)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := r.SetUp(ctx, services.Configuration{}).Await(ctx)
	require.NoError(t, err)

	h = get()
	assert.True(t, h.GameStarted)
	assert.Equal(t, "ok", h.Status)
}

func TestMonitor_Metrics(t *testing.T) {
	collector := metrics.NewCollector("")
	b := bus.New()
	b.AddObserver(collector)
	m, _ := newMonitor(t, b, collector, offline())
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	collector.GameStarted()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "levelhost_registry_game_started_total 1")
	assert.Contains(t, string(body), "levelhost_bus_events_total")
}

func TestMonitor_ListenAndStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	m, _ := newMonitor(t, bus.New(), nil, cfg)

	addr := m.Addr()
	require.NotNil(t, addr)

	resp, err := http.Get("http://" + addr.String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr.String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return m.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Stop(context.Background(), nil))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, m.Clients())
}

func TestMonitor_InvalidConfig(t *testing.T) {
	m := NewMonitor(services.Env{Name: "monitor"})
	cfg := offline()
	cfg.MaxClients = -1
	assert.ErrorIs(t, m.Configure(cfg), ErrInvalidConfig)
}
