// Package cache holds the gateway's only shared mutable state: a per-scope
// time-bounded memo of upstream results.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader refreshes the value for a scope.
type Loader[T any] func(ctx context.Context) (T, error)

// Observer is told whether each lookup was served from memory.
type Observer func(scope string, hit bool)

type entry[T any] struct {
	value    T
	storedAt time.Time
}

// TTL memoizes one value per scope key. A stored value is served while
// now - storedAt < ttl; after that the next reader refreshes it before
// replying. Concurrent misses on the same scope share a single refresh.
type TTL[T any] struct {
	ttl      time.Duration
	now      func() time.Time
	observer Observer

	mu      sync.RWMutex
	entries map[string]entry[T]
	flights singleflight.Group
}

type Option[T any] func(*TTL[T])

// WithClock replaces time.Now, mostly for tests.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *TTL[T]) {
		if now != nil {
			c.now = now
		}
	}
}

func WithObserver[T any](observer Observer) Option[T] {
	return func(c *TTL[T]) {
		c.observer = observer
	}
}

func NewTTL[T any](ttl time.Duration, opts ...Option[T]) *TTL[T] {
	c := &TTL[T]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[T]),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Get returns the cached value for scope when it is still fresh, otherwise
// it runs load and stores the result. cached reports which of the two
// happened. A failed load is never stored.
//
// The load runs detached from ctx's cancellation so one caller giving up
// does not fail the others waiting on the same refresh; ctx only bounds how
// long this caller waits.
func (c *TTL[T]) Get(ctx context.Context, scope string, load Loader[T]) (value T, cached bool, err error) {
	if v, ok := c.fresh(scope); ok {
		c.observe(scope, true)
		return v, true, nil
	}
	c.observe(scope, false)

	ch := c.flights.DoChan(scope, func() (any, error) {
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.store(scope, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, false, res.Err
		}
		return res.Val.(T), false, nil
	}
}

// Len reports how many scopes currently hold a value, fresh or not.
func (c *TTL[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TTL[T]) fresh(scope string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[scope]
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (c *TTL[T]) store(scope string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[scope] = entry[T]{value: value, storedAt: c.now()}
}

func (c *TTL[T]) observe(scope string, hit bool) {
	if c.observer != nil {
		c.observer(scope, hit)
	}
}
