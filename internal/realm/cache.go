package realm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"duck-warehouse/internal/domain"
)

// Cache resolves realms once per process. Concurrent first requests for the
// same realm share one load; later requests read the cached Realm.
type Cache struct {
	source   domain.RealmConfigSource
	registry *Registry

	mu     sync.RWMutex
	realms map[string]*Realm
	group  singleflight.Group
}

// NewCache returns a cache backed by source. A nil registry uses DefaultRegistry.
func NewCache(source domain.RealmConfigSource, registry *Registry) *Cache {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Cache{
		source:   source,
		registry: registry,
		realms:   make(map[string]*Realm),
	}
}

// Get returns the named realm, loading and building it on first use.
func (c *Cache) Get(ctx context.Context, name string) (*Realm, error) {
	c.mu.RLock()
	r, ok := c.realms[name]
	c.mu.RUnlock()
	if ok {
		return r, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		c.mu.RLock()
		cached, ok := c.realms[name]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		cfg, err := c.source.LoadRealm(ctx, name)
		if err != nil {
			return nil, err
		}
		built, err := New(*cfg, c.registry)
		if err != nil {
			return nil, fmt.Errorf("build realm %q: %w", name, err)
		}

		c.mu.Lock()
		c.realms[name] = built
		c.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Realm), nil
}

// List returns the names of the realms known to the source.
func (c *Cache) List(ctx context.Context) ([]string, error) {
	names, err := c.source.ListRealms(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Invalidate drops a cached realm so the next Get reloads it.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.realms, name)
	c.mu.Unlock()
	c.group.Forget(name)
}
