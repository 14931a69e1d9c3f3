// Package world holds the objects currently live in the game world.
package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zeusync/levelhost/internal/core/lifecycle"
	"github.com/zeusync/levelhost/internal/core/observability/log"
	"github.com/zeusync/levelhost/internal/core/services"
)

var ErrAlreadyInstantiated = errors.New("world: object already instantiated")

// Object is anything that can be placed into the world.
type Object interface {
	ObjectID() string
	// Attach is called once the object is in the world.
	Attach() error
	// Detach is called when the object is removed.
	Detach()
}

// Container is a concurrency safe set of live objects.
type Container struct {
	mu      sync.Mutex
	objects map[string]Object
}

func NewContainer() *Container {
	return &Container{objects: make(map[string]Object)}
}

// Instantiate places obj in the world and attaches it. A failing Attach
// leaves the world unchanged.
func (c *Container) Instantiate(obj Object) error {
	id := obj.ObjectID()

	c.mu.Lock()
	if _, ok := c.objects[id]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyInstantiated, id)
	}
	c.objects[id] = obj
	c.mu.Unlock()

	if err := obj.Attach(); err != nil {
		c.mu.Lock()
		delete(c.objects, id)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Destroy removes obj and detaches it. Unknown objects are ignored.
func (c *Container) Destroy(obj Object) {
	if obj == nil {
		return
	}
	id := obj.ObjectID()

	c.mu.Lock()
	live, ok := c.objects[id]
	if ok {
		delete(c.objects, id)
	}
	c.mu.Unlock()

	if ok {
		live.Detach()
	}
}

func (c *Container) Contains(obj Object) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.objects[obj.ObjectID()]
	return ok
}

// IDs returns the ids of live objects, sorted.
func (c *Container) IDs() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.objects))
	for id := range c.objects {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (c *Container) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.objects)
}

// Clear detaches and removes every object.
func (c *Container) Clear() int {
	c.mu.Lock()
	objects := c.objects
	c.objects = make(map[string]Object)
	c.mu.Unlock()

	for _, obj := range objects {
		obj.Detach()
	}
	return len(objects)
}

type Config struct{}

func Kind() services.Kind {
	return services.Kind{
		New: func(_ context.Context, env services.Env) (services.Service, error) {
			return NewService(env), nil
		},
		Settings: func() any { return &Config{} },
	}
}

// Service exposes a Container as a registry service.
type Service struct {
	lifecycle.Base
	*Container
}

func NewService(env services.Env) *Service {
	s := &Service{Container: NewContainer()}
	s.Init(env.Name, env.Bus, env.Logger, s)
	return s
}

func (s *Service) Configure(config any) error {
	if _, err := lifecycle.Settings[*Config](config); err != nil {
		return err
	}
	return s.MarkConfigured()
}

func (s *Service) Start(context.Context, *services.Registry) error {
	return s.MarkStarted()
}

func (s *Service) Stop(context.Context, *services.Registry) error {
	if s.MarkStopped() {
		if n := s.Clear(); n > 0 {
			s.Logger().Info("world cleared", log.Int("objects", n))
		}
	}
	return nil
}
