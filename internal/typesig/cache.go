package typesig

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash"
)

// Column type strings repeat heavily within and across pages of the same
// query, so parsed signatures are memoized in a small bounded LRU keyed by
// the hash of the raw text. This is purely an optimization: Parse is pure,
// so a cache hit and a fresh parse always agree.
const maxCachedSignatures = 512

// CacheStats is a point-in-time snapshot of signature-cache performance,
// mirroring the hit/miss/eviction counters a statement cache would report.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

var sigCache = newSignatureCache(maxCachedSignatures)

type signatureCache struct {
	maxSize int
	mu      sync.Mutex
	entries map[uint64]*cacheEntry
	order   []uint64 // access order, oldest first
	stats   cacheCounters
}

type cacheEntry struct {
	raw string
	sig Signature
}

type cacheCounters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

func newSignatureCache(maxSize int) *signatureCache {
	return &signatureCache{
		maxSize: maxSize,
		entries: make(map[uint64]*cacheEntry, maxSize),
	}
}

func cacheGet(raw string) (Signature, bool) {
	return sigCache.get(raw)
}

func cachePut(raw string, sig Signature) {
	sigCache.put(raw, sig)
}

// Stats returns a snapshot of the package-level signature cache's
// performance counters.
func Stats() CacheStats {
	return CacheStats{
		Hits:      sigCache.stats.hits.Load(),
		Misses:    sigCache.stats.misses.Load(),
		Evictions: sigCache.stats.evictions.Load(),
	}
}

func (c *signatureCache) get(raw string) (Signature, bool) {
	key := xxhash.Sum64String(raw)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.raw != raw {
		c.stats.misses.Add(1)
		return Signature{}, false
	}

	c.stats.hits.Add(1)
	c.touch(key)
	return entry.sig, true
}

func (c *signatureCache) put(raw string, sig Signature) {
	key := xxhash.Sum64String(raw)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLRU()
	}

	c.entries[key] = &cacheEntry{raw: raw, sig: sig}
	c.touch(key)
}

// touch moves key to the back of the access order, marking it most recently
// used. Caller holds c.mu.
func (c *signatureCache) touch(key uint64) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, key)
}

// evictLRU drops the least recently used entry. Caller holds c.mu.
func (c *signatureCache) evictLRU() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
	c.stats.evictions.Add(1)
}
