// Package ui tracks open windows such as the loading screen.
package ui

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zeusync/levelhost/internal/core/events"
	"github.com/zeusync/levelhost/internal/core/events/bus"
	"github.com/zeusync/levelhost/internal/core/lifecycle"
	"github.com/zeusync/levelhost/internal/core/observability/log"
	"github.com/zeusync/levelhost/internal/core/services"
)

type Config struct {
	LoadingScreen string `yaml:"loading_screen"`
	// DismissOnLoad closes every open LoadingScreen window when a
	// level.loaded event arrives.
	DismissOnLoad bool `yaml:"dismiss_on_load"`
}

func DefaultConfig() *Config {
	return &Config{LoadingScreen: "loading", DismissOnLoad: true}
}

func Kind() services.Kind {
	return services.Kind{
		New: func(_ context.Context, env services.Env) (services.Service, error) {
			return NewService(env), nil
		},
		Settings: func() any { return DefaultConfig() },
	}
}

// Window is an open UI surface.
type Window interface {
	Name() string
	Close() bool
}

type window struct {
	id     uint64
	name   string
	owner  *Service
	closed atomic.Bool
}

func (w *window) Name() string { return w.name }

// Close closes the window. It reports whether this call closed it.
func (w *window) Close() bool {
	if !w.closed.CompareAndSwap(false, true) {
		return false
	}
	w.owner.forget(w)
	return true
}

type Service struct {
	lifecycle.Base

	cfg    Config
	mu     sync.Mutex
	nextID uint64
	open   map[uint64]*window
	opened atomic.Int64
}

func NewService(env services.Env) *Service {
	s := &Service{cfg: *DefaultConfig(), open: make(map[uint64]*window)}
	s.Init(env.Name, env.Bus, env.Logger, s)
	return s
}

func (s *Service) Configure(config any) error {
	cfg, err := lifecycle.Settings[*Config](config)
	if err != nil {
		return err
	}
	if err = s.MarkConfigured(); err != nil {
		return err
	}
	s.cfg = *cfg
	return nil
}

func (s *Service) Start(context.Context, *services.Registry) error {
	if err := s.MarkStarted(); err != nil {
		return err
	}
	if s.cfg.DismissOnLoad && s.Bus() != nil {
		sub, err := s.Bus().Subscribe(events.LevelLoaded, func(bus.Event) error {
			if n := s.CloseAll(s.cfg.LoadingScreen); n > 0 {
				s.Logger().Debug("loading screen dismissed", log.Int("windows", n))
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.Track(sub)
	}
	return nil
}

func (s *Service) Stop(context.Context, *services.Registry) error {
	if s.MarkStopped() {
		s.CloseAll("")
	}
	return nil
}

// Open shows a new window.
func (s *Service) Open(name string) Window {
	s.mu.Lock()
	s.nextID++
	w := &window{id: s.nextID, name: name, owner: s}
	s.open[w.id] = w
	s.mu.Unlock()

	s.opened.Add(1)
	s.Logger().Debug("window opened", log.String("window", name))
	return w
}

// CloseAll closes every open window called name, or every window when name
// is empty.
func (s *Service) CloseAll(name string) int {
	s.mu.Lock()
	var targets []*window
	for _, w := range s.open {
		if name == "" || w.name == name {
			targets = append(targets, w)
		}
	}
	s.mu.Unlock()

	closed := 0
	for _, w := range targets {
		if w.Close() {
			closed++
		}
	}
	return closed
}

// OpenCount is the number of windows currently open with the given name.
func (s *Service) OpenCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.open {
		if w.name == name {
			n++
		}
	}
	return n
}

// Opened is the total number of windows ever opened.
func (s *Service) Opened() int64 { return s.opened.Load() }

func (s *Service) forget(w *window) {
	s.mu.Lock()
	delete(s.open, w.id)
	s.mu.Unlock()
	s.Logger().Debug("window closed", log.String("window", w.name))
}
