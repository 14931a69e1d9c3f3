// Package server exposes the runtime to operators: a websocket stream of bus
// events, prometheus metrics and a health endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zeusync/levelhost/internal/core/events/bus"
	"github.com/zeusync/levelhost/internal/core/levels"
	"github.com/zeusync/levelhost/internal/core/lifecycle"
	"github.com/zeusync/levelhost/internal/core/metrics"
	"github.com/zeusync/levelhost/internal/core/observability/log"
	"github.com/zeusync/levelhost/internal/core/services"
)

type Config struct {
	// ListenAddr is where the HTTP server binds. Empty disables the listener;
	// the handler is still available through Handler.
	ListenAddr   string        `yaml:"listen_addr"`
	MaxClients   int           `yaml:"max_clients"`
	BufferSize   int           `yaml:"buffer_size"`
	HistorySize  int           `yaml:"history_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		ListenAddr:   "127.0.0.1:8080",
		MaxClients:   64,
		BufferSize:   256,
		HistorySize:  64,
		WriteTimeout: 5 * time.Second,
	}
}

func Kind() services.Kind {
	return services.Kind{
		New: func(_ context.Context, env services.Env) (services.Service, error) {
			return NewMonitor(env), nil
		},
		Settings: func() any { return DefaultConfig() },
	}
}

// Monitor is the operator facing service.
type Monitor struct {
	lifecycle.Base

	cfg     Config
	metrics *metrics.Collector
	hub     *hub
	mux     *http.ServeMux

	mu       sync.Mutex
	registry *services.Registry
	server   *http.Server
	addr     net.Addr
}

func NewMonitor(env services.Env) *Monitor {
	m := &Monitor{
		cfg:     *DefaultConfig(),
		metrics: env.Metrics,
	}
	m.Init(env.Name, env.Bus, env.Logger, m)
	return m
}

func (m *Monitor) Configure(config any) error {
	cfg, err := lifecycle.Settings[*Config](config)
	if err != nil {
		return err
	}
	if cfg.BufferSize < 0 || cfg.MaxClients < 0 || cfg.HistorySize < 0 {
		return fmt.Errorf("%w: negative limits", ErrInvalidConfig)
	}
	if err = m.MarkConfigured(); err != nil {
		return err
	}
	m.cfg = *cfg
	if m.cfg.BufferSize == 0 {
		m.cfg.BufferSize = DefaultConfig().BufferSize
	}
	if m.cfg.WriteTimeout <= 0 {
		m.cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	m.hub = newHub(m.cfg.MaxClients, m.cfg.HistorySize)

	m.mux = http.NewServeMux()
	m.mux.HandleFunc("/ws", m.handleWebSocket)
	m.mux.HandleFunc("/healthz", m.handleHealth)
	if reg := m.metrics.Registry(); reg != nil {
		m.mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	return nil
}

func (m *Monitor) Start(_ context.Context, r *services.Registry) error {
	if err := m.MarkStarted(); err != nil {
		return err
	}

	m.mu.Lock()
	m.registry = r
	m.mu.Unlock()

	if b := m.Bus(); b != nil {
		sub, err := b.Subscribe(bus.Wildcard, m.publish)
		if err != nil {
			return err
		}
		m.Track(sub)
	}

	if m.cfg.ListenAddr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", m.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrListenerFailed, m.cfg.ListenAddr, err)
	}
	srv := &http.Server{Handler: m.mux, ReadHeaderTimeout: 5 * time.Second}

	m.mu.Lock()
	m.server = srv
	m.addr = ln.Addr()
	m.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.Logger().Error("monitor server failed", log.Error(err))
		}
	}()

	m.Logger().Info("monitor listening", log.String("addr", ln.Addr().String()))
	return nil
}

func (m *Monitor) Stop(ctx context.Context, _ *services.Registry) error {
	if !m.MarkStopped() {
		return nil
	}

	m.mu.Lock()
	srv := m.server
	m.server = nil
	m.mu.Unlock()

	if m.hub != nil {
		m.hub.close()
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Handler serves /ws, /healthz and /metrics.
func (m *Monitor) Handler() http.Handler {
	return m.mux
}

// Addr is the bound listener address, nil when not listening.
func (m *Monitor) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// Clients is the number of connected websocket clients.
func (m *Monitor) Clients() int {
	if m.hub == nil {
		return 0
	}
	return m.hub.count()
}

type health struct {
	Status      string   `json:"status"`
	GameStarted bool     `json:"game_started"`
	Services    []string `json:"services"`
	Level       string   `json:"level,omitempty"`
	Clients     int      `json:"clients"`
}

type currentLevel interface {
	CurrentLevel() *levels.Level
}

func (m *Monitor) handleHealth(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	r := m.registry
	m.mu.Unlock()

	h := health{Status: "ok", Services: []string{}, Clients: m.Clients()}
	if r != nil {
		h.Services = r.Names()
		_, err, settled := r.GameStarted().Result()
		h.GameStarted = settled && err == nil
		if settled && err != nil {
			h.Status = "failed"
		}
		if loader, ok := services.Lookup[currentLevel](r); ok {
			if lvl := loader.CurrentLevel(); lvl != nil {
				h.Level = lvl.Name()
			}
		}
	}

	status := http.StatusOK
	if h.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(h); err != nil {
		m.Logger().Debug("health response failed", log.Error(err))
	}
}
