// Package cache implements the fixed-capacity LRU query cache with the
// "always-on" refresh discipline of §4.3: a stale hit is served
// immediately while at most one background refresh per key races the
// inner upstream.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/compassd/dcompass/util"
)

// Policy selects how a lookup treats staleness, per §3/§4.3.
type Policy int

const (
	// Disabled bypasses the cache entirely.
	Disabled Policy = iota
	// Standard stores and serves with the always-on discipline.
	Standard
	// Persistent serves the entry until LRU eviction and always
	// triggers a background refresh when stale. Standard behaves the
	// same way in this implementation (see entry.fresh).
	Persistent
)

// Resolver is the inner upstream a Cache wraps. It is never retried by
// the cache itself — failures are propagated (Disabled/miss path) or
// logged and discarded (refresh path), per §4.3/§7.
type Resolver func(ctx context.Context, req *dns.Msg) (*dns.Msg, error)

// Cache is a fixed-capacity LRU keyed by fingerprint, wrapping a single
// inner Resolver. The eviction index (list + map) is guarded by a single
// mutex, per §5(a); entry payloads are copied out under the lock and
// used without holding it.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[uint64]*list.Element

	resolver Resolver

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type cacheEntry struct {
	key   uint64
	value *entry
}

// New builds a Cache with the given capacity wrapping resolver.
func New(capacity int, resolver Resolver) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[uint64]*list.Element),
		resolver: resolver,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close cancels all in-flight background refreshes and waits for them to
// unwind, per §5 ("closing the server cancels all outstanding tasks,
// including cache background refreshes").
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

// Len reports the number of entries currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Lookup resolves req under the Standard policy, per §4.3. Use
// LookupWithPolicy for Persistent, or for Disabled, which bypasses the
// cache.
func (c *Cache) Lookup(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	return c.lookup(ctx, req, Standard)
}

// LookupWithPolicy resolves req under an explicit policy.
func (c *Cache) LookupWithPolicy(ctx context.Context, req *dns.Msg, policy Policy) (*dns.Msg, error) {
	return c.lookup(ctx, req, policy)
}

func (c *Cache) lookup(ctx context.Context, req *dns.Msg, policy Policy) (*dns.Msg, error) {
	if policy == Disabled || len(req.Question) == 0 {
		return c.resolver(ctx, req)
	}

	q := req.Question[0]
	key := Key(q.Name, q.Qtype, q.Qclass)
	now := time.Now()

	c.mu.Lock()
	el, hit := c.items[key]
	if hit {
		c.ll.MoveToFront(el)
		e := el.Value.(*cacheEntry).value

		if e.fresh(now) {
			c.mu.Unlock()
			return e.toMsg(req), nil
		}

		// Stale hit: serve immediately, refresh in the background
		// if nobody else is already refreshing this key.
		reply := e.toMsg(req)
		shouldRefresh := !e.refreshing
		if shouldRefresh {
			e.refreshing = true
		}
		c.mu.Unlock()

		if shouldRefresh {
			c.refreshAsync(key, req.Copy(), policy)
		}
		return reply, nil
	}
	c.mu.Unlock()

	// Miss: call the inner upstream directly; the caller waits, per
	// §4.3 ("Miss: call the inner upstream").
	resp, err := c.resolver(ctx, req)
	if err != nil {
		return nil, err
	}

	c.store(key, resp, policy, time.Now())
	return resp, nil
}

func (c *Cache) store(key uint64, resp *dns.Msg, policy Policy, now time.Time) {
	respType, _ := util.ClassifyResponse(resp, now)
	ttl := util.CalculateCacheTTL(resp, respType)

	c.mu.Lock()
	defer c.mu.Unlock()

	e := newEntry(resp, ttl, policy, now)
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).value = e
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{key: key, value: e})
	c.items[key] = el

	for c.ll.Len() > c.capacity {
		c.evictOldest()
	}
}

func (c *Cache) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.ll.Remove(el)
	delete(c.items, el.Value.(*cacheEntry).key)
}

// refreshAsync launches exactly one background refresh for key. The
// cancelled-at-shutdown contract is satisfied by deriving the refresh's
// context from c.ctx, which Close cancels.
func (c *Cache) refreshAsync(key uint64, req *dns.Msg, policy Policy) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		resp, err := c.resolver(c.ctx, req)

		c.mu.Lock()
		defer c.mu.Unlock()

		el, ok := c.items[key]
		if !ok {
			return
		}
		e := el.Value.(*cacheEntry).value

		if err != nil {
			// Leave the stale entry in place; clear the marker
			// so the next stale hit retries, per §4.3 invariant (1).
			e.refreshing = false
			return
		}

		now := time.Now()
		respType, _ := util.ClassifyResponse(resp, now)
		ttl := util.CalculateCacheTTL(resp, respType)
		el.Value.(*cacheEntry).value = newEntry(resp, ttl, policy, now)
	}()
}
