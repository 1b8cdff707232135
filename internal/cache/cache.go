// Package cache holds fetched views keyed by name, serializes refetches per key
// and layers optimistic mutations over them.
package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/meeple/internal/bus"
	"golang.org/x/sync/singleflight"
)

// ErrUnknownMutation is returned for ids that were never recorded or already settled.
var ErrUnknownMutation = errors.New("cache: unknown or settled mutation")

// MutationState tags an optimistic mutation.
type MutationState string

const (
	Pending    MutationState = "PENDING"
	Committed  MutationState = "COMMITTED"
	RolledBack MutationState = "ROLLED_BACK"
)

// Mutation is an optimistic change applied to one key.
type Mutation struct {
	ID    uuid.UUID
	Key   string
	Prev  any
	State MutationState

	op func(old any) any
}

type entry struct {
	base    any // server value under all unsettled mutations
	value   any // base with unsettled mutations applied in order
	stale   bool
	fetched time.Time
	muts    []*Mutation
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL makes values older than ttl stale. Zero keeps them until invalidated.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// Cache is safe for concurrent use.
type Cache struct {
	bus   *bus.Bus
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	states  map[uuid.UUID]MutationState
	owner   string
	gen     uint64 // bumped by Purge; fetches started before it are not stored
}

// New creates an empty cache. b may be nil.
func New(b *bus.Bus, opts ...Option) *Cache {
	c := &Cache{
		bus:     b,
		now:     time.Now,
		entries: make(map[string]*entry),
		states:  make(map[uuid.UUID]MutationState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current value for key, including pending optimistic changes.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Set stores a fresh server value. Pending mutations are replayed on top of it;
// committed ones are assumed to be reflected already.
func (c *Cache) Set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, v)
}

func (c *Cache) setLocked(key string, v any) {
	e := c.entry(key)
	e.base = v
	e.stale = false
	e.fetched = c.now()
	pending := e.muts[:0]
	for _, m := range e.muts {
		if m.State == Pending {
			pending = append(pending, m)
		}
	}
	e.muts = pending
	e.recompute()
}

// Invalidate marks key stale so the next Fetch refetches. The value stays readable.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.stale = true
	}
	c.mu.Unlock()
	c.bus.Emit(bus.CacheInvalidated, key)
}

// InvalidatePrefix marks every key starting with prefix stale.
func (c *Cache) InvalidatePrefix(prefix string) {
	var keys []string
	c.mu.Lock()
	for k, e := range c.entries {
		if strings.HasPrefix(k, prefix) {
			e.stale = true
			keys = append(keys, k)
		}
	}
	c.mu.Unlock()
	for _, k := range keys {
		c.bus.Emit(bus.CacheInvalidated, k)
	}
}

// Purge drops every value. Pending mutations settle as rolled back and fetches
// already in flight do not store their result.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.purgeLocked()
	c.mu.Unlock()
	c.bus.Emit(bus.CachePurged, nil)
}

func (c *Cache) purgeLocked() {
	for _, e := range c.entries {
		for _, m := range e.muts {
			if m.State == Pending {
				m.State = RolledBack
				c.states[m.ID] = RolledBack
			}
		}
	}
	c.entries = make(map[string]*entry)
	c.gen++
}

// Claim hands the cache to owner, purging it when the owner changes.
// An empty owner means nobody is signed in.
func (c *Cache) Claim(owner string) {
	c.mu.Lock()
	if c.owner == owner {
		c.mu.Unlock()
		return
	}
	c.owner = owner
	c.purgeLocked()
	c.mu.Unlock()
	c.bus.Emit(bus.CachePurged, owner)
}

// Stale reports whether key is missing, invalidated or older than the TTL.
func (c *Cache) Stale(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.stale {
		return true
	}
	return c.ttl > 0 && c.now().Sub(e.fetched) > c.ttl
}

// Fetch returns the cached value, calling fn when the key is missing or stale.
// Concurrent fetches of one key share a single call.
func (c *Cache) Fetch(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	if !c.Stale(key) {
		v, _ := c.Get(key)
		return v, nil
	}
	return c.Refetch(ctx, key, fn)
}

// Refetch calls fn regardless of freshness, sharing in-flight calls per key.
func (c *Cache) Refetch(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	fetched, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		gen := c.gen
		c.mu.Unlock()
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.setLocked(key, v)
		}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	return fetched, nil
}

// Mutate applies op to the current value of key and records it as pending.
// op must not modify its argument in place.
func (c *Cache) Mutate(key string, op func(old any) any) Mutation {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(key)
	m := &Mutation{ID: uuid.New(), Key: key, Prev: e.value, State: Pending, op: op}
	e.muts = append(e.muts, m)
	e.value = op(e.value)
	c.states[m.ID] = Pending
	return *m
}

// Commit settles a pending mutation as confirmed by the server.
func (c *Cache) Commit(id uuid.UUID) error {
	return c.settle(id, Committed)
}

// Rollback discards a pending mutation. The value is rebuilt from the server
// value and the remaining mutations in their original order, so the outcome does
// not depend on the order in which requests complete.
func (c *Cache) Rollback(id uuid.UUID) error {
	return c.settle(id, RolledBack)
}

// State returns the state of a mutation.
func (c *Cache) State(id uuid.UUID) (MutationState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[id]
	return s, ok
}

func (c *Cache) settle(id uuid.UUID, to MutationState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states[id] != Pending {
		return ErrUnknownMutation
	}
	for _, e := range c.entries {
		for i, m := range e.muts {
			if m.ID != id {
				continue
			}
			c.states[id] = to
			m.State = to
			if to == RolledBack {
				e.muts = append(e.muts[:i], e.muts[i+1:]...)
			}
			e.fold()
			e.recompute()
			return nil
		}
	}
	return ErrUnknownMutation
}

func (c *Cache) entry(key string) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{stale: true}
		c.entries[key] = e
	}
	return e
}

// fold moves the committed prefix of mutations into base.
func (e *entry) fold() {
	for len(e.muts) > 0 && e.muts[0].State == Committed {
		e.base = e.muts[0].op(e.base)
		e.muts = e.muts[1:]
	}
}

func (e *entry) recompute() {
	v := e.base
	for _, m := range e.muts {
		v = m.op(v)
	}
	e.value = v
}
