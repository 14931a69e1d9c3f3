package services

import (
	"sort"
	"sync"
)

// Kind describes how to build one type of service from configuration.
type Kind struct {
	New Factory
	// Settings returns a fresh pointer to the kind's default settings; YAML
	// config is decoded on top of it.
	Settings func() any
}

// Catalog maps kind names to factories.
type Catalog struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

func NewCatalog() *Catalog {
	return &Catalog{kinds: make(map[string]Kind)}
}

func (c *Catalog) Register(name string, kind Kind) {
	c.mu.Lock()
	c.kinds[name] = kind
	c.mu.Unlock()
}

func (c *Catalog) Lookup(name string) (Kind, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.kinds[name]
	return k, ok
}

// Kinds returns the registered kind names, sorted.
func (c *Catalog) Kinds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.kinds))
	for name := range c.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
