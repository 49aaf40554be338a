package rules

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
)

// RuleCache is a TTL-based in-memory cache of per-role rule sets with
// stale-while-revalidate. Uses sync.Map for lock-free reads on the hot path.
type RuleCache struct {
	store sync.Map // map[string]*ruleCacheEntry
	ttl   time.Duration

	mu  sync.Mutex    // serializes writes against Clear
	gen atomic.Uint64 // bumped by Clear
}

type ruleCacheEntry struct {
	rules      []engine.Rule // empty = role has no active rules
	expiresAt  time.Time
	refreshing atomic.Bool
}

// CacheGetResult holds the result of a cache lookup.
type CacheGetResult struct {
	Rules        []engine.Rule
	Hit          bool // true if a value was found (fresh or stale)
	NeedsRefresh bool // true if expired; caller should refresh in background
}

// NewRuleCache creates a cache with the given TTL.
func NewRuleCache(ttl time.Duration) *RuleCache {
	return &RuleCache{ttl: ttl}
}

// Get performs a non-blocking cache lookup.
// Returns stale entries with NeedsRefresh=true when expired.
func (c *RuleCache) Get(role string) CacheGetResult {
	val, ok := c.store.Load(role)
	if !ok {
		return CacheGetResult{}
	}

	entry := val.(*ruleCacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return CacheGetResult{Rules: entry.rules, Hit: true}
	}

	// Stale hit: only one goroutine wins the CAS.
	return CacheGetResult{
		Rules:        entry.rules,
		Hit:          true,
		NeedsRefresh: entry.refreshing.CompareAndSwap(false, true),
	}
}

// Set stores a rule set with a fresh TTL.
func (c *RuleCache) Set(role string, rules []engine.Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(role, rules)
}

// Generation returns the current invalidation generation. Read it before
// loading rules and pass it to SetIfCurrent.
func (c *RuleCache) Generation() uint64 {
	return c.gen.Load()
}

// SetIfCurrent stores a rule set only if Clear has not run since gen was read.
func (c *RuleCache) SetIfCurrent(role string, rules []engine.Rule, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.Load() != gen {
		return false
	}
	c.set(role, rules)
	return true
}

func (c *RuleCache) set(role string, rules []engine.Rule) {
	if rules == nil {
		rules = []engine.Rule{}
	}
	c.store.Store(role, &ruleCacheEntry{
		rules:     rules,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// release lets the next stale read retry a refresh that failed.
func (c *RuleCache) release(role string) {
	if val, ok := c.store.Load(role); ok {
		val.(*ruleCacheEntry).refreshing.Store(false)
	}
}

// Delete removes one role's entry.
func (c *RuleCache) Delete(role string) {
	c.store.Delete(role)
}

// Clear drops every entry. Loads started before Clear can no longer be stored.
func (c *RuleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen.Add(1)
	c.store.Clear()
}
