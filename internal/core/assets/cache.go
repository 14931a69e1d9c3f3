package assets

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 16

type cached struct {
	value any
	refs  int
}

type cacheShard struct {
	mu      sync.Mutex
	entries map[string]*cached
}

// cache spreads entries over shards picked by xxhash of the key.
type cache struct {
	shards []*cacheShard
}

func newCache(shards int) *cache {
	if shards <= 0 {
		shards = defaultShards
	}
	c := &cache{shards: make([]*cacheShard, shards)}
	for i := range c.shards {
		c.shards[i] = &cacheShard{entries: make(map[string]*cached)}
	}
	return c
}

func (c *cache) shard(key string) *cacheShard {
	return c.shards[xxhash.Sum64String(key)%uint64(len(c.shards))]
}

// acquire returns the cached value and takes a reference.
func (c *cache) acquire(key string) (any, bool) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	e.refs++
	return e.value, true
}

// store inserts value unless the key is already present and takes a reference
// on whichever value ends up cached.
func (c *cache) store(key string, value any) any {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &cached{value: value}
		s.entries[key] = e
	}
	e.refs++
	return e.value
}

// release drops one reference, or the whole entry when forced.
func (c *cache) release(key string, forced bool) bool {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if forced {
		delete(s.entries, key)
		return true
	}
	if e.refs > 0 {
		e.refs--
	}
	return true
}

func (c *cache) dropUnused() int {
	dropped := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if e.refs == 0 {
				delete(s.entries, key)
				dropped++
			}
		}
		s.mu.Unlock()
	}
	return dropped
}

func (c *cache) refs(key string) (int, bool) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return 0, false
	}
	return e.refs, true
}

func (c *cache) len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
