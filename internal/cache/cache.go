// Package cache holds denormalized views keyed by ":"-joined descriptors such as
// "courses:tutor:T1". Writers invalidate by prefix; readers refetch stale keys.
package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/remote"
)

type Options struct {
	TTL      time.Duration
	MaxTries uint
	// Permanent reports errors that must not be retried.
	Permanent func(error) bool
	Now       func() time.Time
}

type entry struct {
	value     any
	fetchedAt time.Time
	stale     bool
}

type Cache struct {
	mu        sync.Mutex
	entries   map[string]*entry
	inflight  map[string]bool
	listeners []func(keys []string)
	group     singleflight.Group
	opts      Options
	log       *logger.Logger
}

func New(opts Options, log *logger.Logger) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Cache{
		entries:  map[string]*entry{},
		inflight: map[string]bool{},
		opts:     opts,
		log:      log.With("component", "Cache"),
	}
}

// Key joins segments into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

func covers(prefix, key string) bool {
	return key == prefix || strings.HasPrefix(key, prefix+":")
}

// Get returns the cached value for key when fresh, otherwise fetches it. Concurrent
// fetches of the same key share one call. A fetch that overlaps an invalidation of
// its key is returned to the caller but stored stale.
func Get[T any](ctx context.Context, c *Cache, key string, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := c.fresh(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	res, err, _ := c.group.Do(key, func() (any, error) {
		c.begin(key)
		v, err := c.retry(ctx, key, func() (any, error) { return fetch(ctx) })
		c.finish(key, v, err)
		return v, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := res.(T)
	if !ok {
		var zero T
		return zero, errors.New("cache: type mismatch for key " + key)
	}
	return typed, nil
}

func (c *Cache) retry(ctx context.Context, key string, fetch func() (any, error)) (any, error) {
	attempt := 0
	op := func() (any, error) {
		attempt++
		v, err := fetch()
		if err == nil {
			return v, nil
		}
		if c.permanent(err) {
			return nil, backoff.Permanent(err)
		}
		c.log.Warn("fetch failed", "key", key, "attempt", attempt, "error", err)
		return nil, err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	return backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(c.opts.MaxTries))
}

func (c *Cache) permanent(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, remote.ErrNotFound), errors.Is(err, remote.ErrInvalidQuery), errors.Is(err, remote.ErrDuplicate):
		return true
	}
	return c.opts.Permanent != nil && c.opts.Permanent(err)
}

func (c *Cache) fresh(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.stale || c.opts.Now().Sub(e.fetchedAt) >= c.opts.TTL {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) begin(key string) {
	c.mu.Lock()
	c.inflight[key] = false
	c.mu.Unlock()
}

func (c *Cache) finish(key string, v any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raced := c.inflight[key]
	delete(c.inflight, key)
	if err != nil {
		return
	}
	c.entries[key] = &entry{value: v, fetchedAt: c.opts.Now(), stale: raced}
}

// Set stores a fresh value for key.
func (c *Cache) Set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: v, fetchedAt: c.opts.Now()}
}

// Peek returns whatever is stored for key, fresh or not.
func (c *Cache) Peek(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Update applies fn to the stored value of key under the cache lock. Missing keys
// and values of another type are left alone.
func Update[T any](c *Cache, key string, fn func(T) T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	typed, ok := e.value.(T)
	if !ok {
		return false
	}
	e.value = fn(typed)
	return true
}

// Invalidate marks every entry equal to or beneath one of prefixes as stale
// and tells the OnInvalidate listeners.
func (c *Cache) Invalidate(prefixes ...string) {
	if len(prefixes) == 0 {
		return
	}
	listeners := c.markStale(prefixes)
	c.log.Debug("invalidated", "prefixes", prefixes)
	for _, fn := range listeners {
		fn(prefixes)
	}
}

// InvalidateQuiet marks entries stale like Invalidate but skips the listeners.
// It applies invalidations that another instance already announced.
func (c *Cache) InvalidateQuiet(prefixes ...string) {
	if len(prefixes) == 0 {
		return
	}
	c.markStale(prefixes)
}

func (c *Cache) markStale(prefixes []string) []func([]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		for _, p := range prefixes {
			if covers(p, key) {
				e.stale = true
				break
			}
		}
	}
	for key := range c.inflight {
		for _, p := range prefixes {
			if covers(p, key) {
				c.inflight[key] = true
				break
			}
		}
	}
	return append([]func([]string){}, c.listeners...)
}

// Stale reports whether key is absent or needs a refetch.
func (c *Cache) Stale(key string) bool {
	_, ok := c.fresh(key)
	return !ok
}

// OnInvalidate registers fn to receive every invalidated prefix list.
func (c *Cache) OnInvalidate(fn func(keys []string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}
