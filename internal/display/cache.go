package display

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"edgekvm/internal/geometry"
)

// Cache holds the last known local geometry. Readers get an immutable value;
// a refresh swaps in a new one.
type Cache struct {
	source  Source
	current atomic.Pointer[geometry.Screen]

	mu       sync.Mutex
	onChange []func(geometry.Screen)
}

// NewCache reads the source once. The first read must succeed so the
// process never runs without a local geometry.
func NewCache(source Source) (*Cache, error) {
	s, err := source.Current()
	if err != nil {
		return nil, err
	}
	c := &Cache{source: source}
	c.current.Store(&s)
	return c, nil
}

// Get returns the current geometry
func (c *Cache) Get() geometry.Screen {
	return *c.current.Load()
}

// OnChange registers fn to run after a refresh changed the geometry
func (c *Cache) OnChange(fn func(geometry.Screen)) {
	c.mu.Lock()
	c.onChange = append(c.onChange, fn)
	c.mu.Unlock()
}

// Refresh rereads the source and reports whether the geometry changed.
// A failing read keeps the previous value.
func (c *Cache) Refresh() bool {
	s, err := c.source.Current()
	if err != nil {
		log.Printf("Display: refresh failed, keeping %s: %v", c.Get(), err)
		return false
	}
	if old := c.current.Swap(&s); *old == s {
		return false
	}
	log.Printf("Display: geometry changed to %s", s)

	c.mu.Lock()
	fns := append([]func(geometry.Screen){}, c.onChange...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
	return true
}

// Watch refreshes every interval until ctx is done
func (c *Cache) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh()
		}
	}
}
