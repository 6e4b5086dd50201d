package engine

import (
	"container/list"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionCache stores search sessions: L1 in-memory LRU with TTL + optional L2 Redis.
// L1 enforces the capacity bound. L2 survives restarts and is cleared whenever L1
// evicts, so a cursor into an evicted session never resolves again.
type SessionCache struct {
	mu         sync.Mutex
	ll         *list.List // front = most recently used
	items      map[string]*list.Element
	evicted    map[string]time.Time // capacity-evicted ids until their TTL ends
	ttl        time.Duration
	maxEntries int
	l2         sessionStore // nil if Redis unavailable
	now        func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

type sessionEntry struct {
	session   SearchSession
	expiresAt time.Time
}

// CacheOpts configures a SessionCache.
type CacheOpts struct {
	TTL             time.Duration
	MaxEntries      int
	CleanupInterval time.Duration // <= 0 disables the background sweep
	RedisURL        string        // empty disables L2
}

// Cache metrics: atomic counters for thread-safe access.
var (
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
)

const sessionKeyPrefix = "yts:session:"

// sessionStore is the L2 tier.
type sessionStore interface {
	Set(ctx context.Context, id string, data []byte, ttl time.Duration) error
	Get(ctx context.Context, id string) ([]byte, error)
	Del(ctx context.Context, ids ...string) error
	Close() error
}

type redisSessions struct {
	rdb *redis.Client
}

func (r redisSessions) Set(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, sessionKeyPrefix+id, data, ttl).Err()
}

func (r redisSessions) Get(ctx context.Context, id string) ([]byte, error) {
	return r.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
}

func (r redisSessions) Del(ctx context.Context, ids ...string) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKeyPrefix + id
	}
	return r.rdb.Del(ctx, keys...).Err()
}

func (r redisSessions) Close() error { return r.rdb.Close() }

// NewSessionCache sets up the 2-tier session cache.
func NewSessionCache(opts CacheOpts) *SessionCache {
	c := &SessionCache{
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		evicted:    make(map[string]time.Time),
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if c.ttl <= 0 {
		c.ttl = 15 * time.Minute
	}

	if opts.RedisURL != "" {
		ropts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			slog.Warn("cache: invalid redis URL, L2 disabled", slog.Any("error", err))
		} else {
			rdb := redis.NewClient(ropts)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				slog.Warn("cache: redis unreachable, L2 disabled", slog.Any("error", err))
				_ = rdb.Close()
			} else {
				c.l2 = redisSessions{rdb: rdb}
				slog.Info("cache: L2 redis connected", slog.String("addr", ropts.Addr))
			}
		}
	}

	slog.Info("cache: initialized",
		slog.Duration("ttl", c.ttl),
		slog.Bool("redis", c.l2 != nil),
		slog.Int("max_entries", c.maxEntries))

	if opts.CleanupInterval > 0 {
		go c.cleanupLoop(opts.CleanupInterval)
	}
	return c
}

// Put stores s, evicting expired and then least recently used sessions when full.
// Redis calls run outside the lock.
func (c *SessionCache) Put(ctx context.Context, s SearchSession) {
	c.mu.Lock()
	delete(c.evicted, s.ID)
	gone := c.insertLocked(s, c.now().Add(c.ttl))
	c.mu.Unlock()

	if c.l2 == nil {
		return
	}
	c.deleteL2(ctx, gone)
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.l2.Set(ctx, s.ID, data, c.ttl); err != nil {
		slog.Debug("cache: L2 set failed", slog.Any("error", err))
		return
	}
	// s may have been evicted by a concurrent Put before the Set landed.
	c.mu.Lock()
	_, live := c.items[s.ID]
	c.mu.Unlock()
	if !live {
		c.deleteL2(ctx, []string{s.ID})
	}
}

func (c *SessionCache) deleteL2(ctx context.Context, ids []string) {
	if c.l2 == nil || len(ids) == 0 {
		return
	}
	if err := c.l2.Del(ctx, ids...); err != nil {
		slog.Debug("cache: L2 delete failed", slog.Int("sessions", len(ids)), slog.Any("error", err))
	}
}

// Get returns the live session for id. A hit refreshes its LRU position.
func (c *SessionCache) Get(ctx context.Context, id string) (SearchSession, bool) {
	c.mu.Lock()
	if el, ok := c.items[id]; ok {
		entry := el.Value.(*sessionEntry)
		if c.now().Before(entry.expiresAt) {
			c.ll.MoveToFront(el)
			c.mu.Unlock()
			cacheHits.Add(1)
			return entry.session, true
		}
		c.removeLocked(el)
		c.mu.Unlock()
		cacheMisses.Add(1)
		return SearchSession{}, false
	}
	c.mu.Unlock()

	if s, ok := c.loadL2(ctx, id); ok {
		cacheHits.Add(1)
		return s, true
	}
	cacheMisses.Add(1)
	return SearchSession{}, false
}

// loadL2 reads a session from Redis and repopulates L1 on hit.
func (c *SessionCache) loadL2(ctx context.Context, id string) (SearchSession, bool) {
	if c.l2 == nil {
		return SearchSession{}, false
	}
	data, err := c.l2.Get(ctx, id)
	if err != nil {
		return SearchSession{}, false
	}
	var s SearchSession
	if err := json.Unmarshal(data, &s); err != nil || s.ID != id {
		return SearchSession{}, false
	}
	expiresAt := s.CreatedAt.Add(c.ttl)
	if !c.now().Before(expiresAt) {
		return SearchSession{}, false
	}

	c.mu.Lock()
	if _, gone := c.evicted[id]; gone {
		c.mu.Unlock()
		c.deleteL2(ctx, []string{id})
		return SearchSession{}, false
	}
	var evicted []string
	if el, ok := c.items[id]; ok {
		c.ll.MoveToFront(el)
	} else {
		evicted = c.insertLocked(s, expiresAt)
	}
	c.mu.Unlock()

	slog.Debug("cache: L2 hit", slog.String("session", id))
	c.deleteL2(ctx, evicted)
	return s, true
}

// Len returns the number of sessions held in L1, expired or not.
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Close stops the cleanup loop and the Redis client.
func (c *SessionCache) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		if c.l2 != nil {
			_ = c.l2.Close()
		}
	})
}

// CacheStats returns current cache hit/miss counters.
func CacheStats() (hits, misses int64) {
	return cacheHits.Load(), cacheMisses.Load()
}

// insertLocked adds or refreshes s and returns the ids evicted to make room.
func (c *SessionCache) insertLocked(s SearchSession, expiresAt time.Time) []string {
	if el, ok := c.items[s.ID]; ok {
		el.Value = &sessionEntry{session: s, expiresAt: expiresAt}
		c.ll.MoveToFront(el)
		return nil
	}
	evicted := c.evictLocked()
	c.items[s.ID] = c.ll.PushFront(&sessionEntry{session: s, expiresAt: expiresAt})
	return evicted
}

// evictLocked makes room for one entry. Removes expired entries first, then the
// least recently used ones while still at capacity. Returns the capacity-evicted ids.
func (c *SessionCache) evictLocked() []string {
	if c.maxEntries <= 0 || c.ll.Len() < c.maxEntries {
		return nil
	}
	now := c.now()
	c.pruneLocked(now)

	var evicted []string
	for c.ll.Len() >= c.maxEntries {
		el := c.ll.Back()
		entry := el.Value.(*sessionEntry)
		id := entry.session.ID
		c.removeLocked(el)
		c.evicted[id] = entry.expiresAt
		evicted = append(evicted, id)
		IncrSessionsEvicted()
		slog.Debug("cache: evicted session", slog.String("session", id))
	}
	return evicted
}

// pruneLocked drops expired sessions and tombstones.
func (c *SessionCache) pruneLocked(now time.Time) {
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*sessionEntry).expiresAt) {
			c.removeLocked(el)
		}
		el = prev
	}
	for id, until := range c.evicted {
		if !now.Before(until) {
			delete(c.evicted, id)
		}
	}
}

func (c *SessionCache) removeLocked(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*sessionEntry).session.ID)
}

// cleanupLoop periodically removes expired L1 entries.
func (c *SessionCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.pruneLocked(c.now())
			c.mu.Unlock()
		}
	}
}
