package assets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zeusync/levelhost/internal/core/lifecycle"
	"github.com/zeusync/levelhost/internal/core/observability/log"
	"github.com/zeusync/levelhost/internal/core/services"
)

// AssetSpec is one asset entry of a bundle. Params are handed to the
// category's decoder.
type AssetSpec struct {
	Key    string            `yaml:"key"`
	Params map[string]string `yaml:"params"`
}

type BundleSpec struct {
	Category string      `yaml:"category"`
	Key      string      `yaml:"key"`
	Assets   []AssetSpec `yaml:"assets"`
}

type Config struct {
	// FetchDelay simulates storage latency on every cache miss.
	FetchDelay time.Duration `yaml:"fetch_delay"`
	Shards     int           `yaml:"shards"`
	Bundles    []BundleSpec  `yaml:"bundles"`
}

func DefaultConfig() *Config {
	return &Config{Shards: defaultShards}
}

// Decoder turns an asset spec into the value Fetch returns for its category.
type Decoder func(spec AssetSpec) (any, error)

// Kind registers the provider in a service catalog.
func Kind() services.Kind {
	return services.Kind{
		New: func(_ context.Context, env services.Env) (services.Service, error) {
			return NewService(env), nil
		},
		Settings: func() any { return DefaultConfig() },
	}
}

type Service struct {
	lifecycle.Base

	mu       sync.RWMutex
	cfg      Config
	bundles  map[string]map[string]AssetSpec
	decoders map[string]Decoder

	group   singleflight.Group
	cache   *cache
	closing chan struct{}
}

func NewService(env services.Env) *Service {
	s := &Service{
		bundles:  make(map[string]map[string]AssetSpec),
		decoders: make(map[string]Decoder),
		cache:    newCache(defaultShards),
		closing:  make(chan struct{}),
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
	s.cfg = *cfg
	s.cache = newCache(cfg.Shards)
	s.mu.Unlock()

	for _, b := range cfg.Bundles {
		s.AddBundle(b)
	}
	return nil
}

func (s *Service) Start(context.Context, *services.Registry) error {
	if err := s.MarkStarted(); err != nil {
		return err
	}
	s.Defer(func() { close(s.closing) })
	s.Logger().Info("asset provider started", log.Int("bundles", s.bundleCount()))
	return nil
}

func (s *Service) Stop(context.Context, *services.Registry) error {
	s.MarkStopped()
	return nil
}

// AddBundle registers or replaces a bundle in the catalog.
func (s *Service) AddBundle(b BundleSpec) {
	assets := make(map[string]AssetSpec, len(b.Assets))
	for _, a := range b.Assets {
		assets[strings.ToLower(a.Key)] = a
	}
	s.mu.Lock()
	s.bundles[bundleKey(b.Category, b.Key)] = assets
	s.mu.Unlock()
}

// RegisterDecoder sets the decoder for a category. Assets of categories
// without a decoder are returned as their AssetSpec.
func (s *Service) RegisterDecoder(category string, d Decoder) {
	s.mu.Lock()
	s.decoders[strings.ToLower(category)] = d
	s.mu.Unlock()
}

// Fetch returns the decoded asset and takes a cache reference on it.
// Concurrent misses for the same asset share one load.
func (s *Service) Fetch(ctx context.Context, req BundleRequest) (any, error) {
	if s.State() != lifecycle.Started {
		return nil, ErrNotStarted
	}
	req = req.Normalize()
	key := req.Key()

	s.mu.RLock()
	c := s.cache
	s.mu.RUnlock()

	if v, ok := c.acquire(key); ok {
		return v, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		return s.load(req)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		s.Logger().Debug("asset fetched", log.String("asset", key), log.Bool("shared", res.Shared))
		return c.store(key, res.Val), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) load(req BundleRequest) (any, error) {
	s.mu.RLock()
	delay := s.cfg.FetchDelay
	bundle, ok := s.bundles[bundleKey(req.Category, req.Bundle)]
	decode := s.decoders[req.Category]
	s.mu.RUnlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-s.closing:
			t.Stop()
			return nil, ErrNotStarted
		}
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrBundleNotFound, req.Category, req.Bundle)
	}
	spec, ok := bundle[req.Asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s/%s", ErrAssetNotFound, req.Asset, req.Category, req.Bundle)
	}
	if decode == nil {
		return spec, nil
	}
	v, err := decode(spec)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", req.Key(), err)
	}
	return v, nil
}

// Release drops one reference on the asset, or evicts it outright when
// forced.
func (s *Service) Release(assetKey string, forced bool) {
	s.mu.RLock()
	c := s.cache
	s.mu.RUnlock()
	if c.release(strings.ToLower(assetKey), forced) {
		s.Logger().Debug("asset released", log.String("asset", assetKey), log.Bool("forced", forced))
	}
}

// DropUnused evicts every asset nobody holds a reference to.
func (s *Service) DropUnused() int {
	s.mu.RLock()
	c := s.cache
	s.mu.RUnlock()
	n := c.dropUnused()
	if n > 0 {
		s.Logger().Debug("unused assets dropped", log.Int("count", n))
	}
	return n
}

// Refs reports the reference count of a cached asset.
func (s *Service) Refs(assetKey string) (int, bool) {
	s.mu.RLock()
	c := s.cache
	s.mu.RUnlock()
	return c.refs(strings.ToLower(assetKey))
}

// Cached is the number of assets currently held in memory.
func (s *Service) Cached() int {
	s.mu.RLock()
	c := s.cache
	s.mu.RUnlock()
	return c.len()
}

func (s *Service) bundleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bundles)
}

func bundleKey(category, bundle string) string {
	return strings.ToLower(category) + "/" + strings.ToLower(bundle)
}
