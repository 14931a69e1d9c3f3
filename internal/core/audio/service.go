package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gopxl/beep"

	"github.com/zeusync/levelhost/internal/core/lifecycle"
	"github.com/zeusync/levelhost/internal/core/observability/log"
	"github.com/zeusync/levelhost/internal/core/services"
)

var ErrInvalidHandle = errors.New("audio: invalid clip handle")

type Config struct {
	SampleRate int  `yaml:"sample_rate"`
	Muted      bool `yaml:"muted"`
}

func DefaultConfig() *Config {
	return &Config{SampleRate: 44100}
}

func Kind() services.Kind {
	return services.Kind{
		New: func(_ context.Context, env services.Env) (services.Service, error) {
			return NewService(env), nil
		},
		Settings: func() any { return DefaultConfig() },
	}
}

// Service mixes every playing clip into a single stream. Nothing drives a
// speaker here; a host pulls samples through Stream or Render.
type Service struct {
	lifecycle.Base

	mu         sync.Mutex
	sampleRate beep.SampleRate
	muted      bool
	mixer      *beep.Mixer
	playing    map[string]*beep.Ctrl
}

var _ beep.Streamer = (*Service)(nil)

func NewService(env services.Env) *Service {
	s := &Service{
		sampleRate: beep.SampleRate(44100),
		mixer:      &beep.Mixer{},
		playing:    make(map[string]*beep.Ctrl),
	}
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
	s.mu.Lock()
	if cfg.SampleRate > 0 {
		s.sampleRate = beep.SampleRate(cfg.SampleRate)
	}
	s.muted = cfg.Muted
	s.mu.Unlock()
	return nil
}

func (s *Service) Start(context.Context, *services.Registry) error {
	return s.MarkStarted()
}

func (s *Service) Stop(context.Context, *services.Registry) error {
	if !s.MarkStopped() {
		return nil
	}
	s.mu.Lock()
	for name, ctrl := range s.playing {
		ctrl.Streamer = nil
		delete(s.playing, name)
	}
	s.mixer.Clear()
	s.mu.Unlock()
	return nil
}

// PlayMusic starts looping h. Playing a clip that is already playing is a
// no-op.
func (s *Service) PlayMusic(h Handle) error {
	if h == nil || !h.Valid() {
		return ErrInvalidHandle
	}
	track, ok := h.(*Track)
	if !ok {
		return ErrInvalidHandle
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.playing[h.Name()]; exists {
		return nil
	}
	ctrl := &beep.Ctrl{Streamer: track.streamer(s.sampleRate), Paused: s.muted}
	s.playing[h.Name()] = ctrl
	s.mixer.Add(ctrl)

	s.Logger().Debug("music started", log.String("clip", h.Name()))
	return nil
}

// StopClip stops h if it is playing.
func (s *Service) StopClip(h Handle) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ctrl, ok := s.playing[h.Name()]
	if !ok {
		return
	}
	ctrl.Paused = true
	ctrl.Streamer = nil
	delete(s.playing, h.Name())

	s.Logger().Debug("clip stopped", log.String("clip", h.Name()))
}

func (s *Service) Playing(h Handle) bool {
	if h == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.playing[h.Name()]
	return ok
}

// Active is the number of streamers still in the mixer.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mixer.Len()
}

func (s *Service) SampleRate() beep.SampleRate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleRate
}

func (s *Service) Stream(samples [][2]float64) (n int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mixer.Stream(samples)
}

func (s *Service) Err() error { return nil }

// Render pulls d worth of mixed samples.
func (s *Service) Render(d time.Duration) [][2]float64 {
	buf := make([][2]float64, s.SampleRate().N(d))
	s.Stream(buf)
	return buf
}
