package verifier

import (
	"container/list"
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Cache maps fingerprints to previously computed reports with LRU eviction,
// and deduplicates in-flight computations: concurrent callers with the same
// fingerprint share one verifier invocation instead of spawning duplicates.
//
// Purely an in-memory optimization: a cold cache produces identical results
// to a warm one, so nothing here is persisted.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[Fingerprint]*list.Element
	order    *list.List // front = most recently used
	inflight map[Fingerprint]*flight
}

type cacheEntry struct {
	fp     Fingerprint
	report *Report
}

// flight is one in-progress computation. The caller that wins the race to
// create it is the sole writer; everyone else waits on done.
type flight struct {
	done   chan struct{}
	report *Report
	err    error
}

// NewCache creates a cache retaining up to capacity reports. Zero capacity
// disables retention; in-flight deduplication still applies.
func NewCache(capacity int) *Cache {
	if capacity < 0 {
		capacity = 0
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[Fingerprint]*list.Element),
		order:    list.New(),
		inflight: make(map[Fingerprint]*flight),
	}
}

// GetOrCompute returns the cached report for fp, or runs compute exactly
// once per fingerprint no matter how many callers arrive concurrently. The
// second return value reports whether the result came from the cache.
//
// Errors are never cached: a launch failure must not poison the fingerprint
// once the environment is fixed.
func (c *Cache) GetOrCompute(ctx context.Context, fp Fingerprint, compute func() (*Report, error)) (*Report, bool, error) {
	c.mu.Lock()

	if elem, ok := c.entries[fp]; ok {
		c.order.MoveToFront(elem)
		report := elem.Value.(*cacheEntry).report
		c.mu.Unlock()
		return report, true, nil
	}

	if f, ok := c.inflight[fp]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			if f.err != nil {
				return nil, false, f.err
			}
			return f.report, true, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	f := &flight{done: make(chan struct{})}
	c.inflight[fp] = f
	c.mu.Unlock()

	report, err := compute()

	c.mu.Lock()
	f.report = report
	f.err = err
	delete(c.inflight, fp)
	if err == nil {
		c.store(fp, report)
	}
	c.mu.Unlock()
	close(f.done)

	return report, false, err
}

// Len returns the number of retained reports.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// store inserts a report, evicting the least recently used entry when full.
// Callers hold c.mu.
func (c *Cache) store(fp Fingerprint, report *Report) {
	if c.capacity == 0 {
		return
	}

	if elem, ok := c.entries[fp]; ok {
		elem.Value.(*cacheEntry).report = report
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*cacheEntry)
		c.order.Remove(oldest)
		delete(c.entries, evicted.fp)
		log.Debug().Str("fingerprint", evicted.fp.Short()).Msg("cache entry evicted")
	}

	c.entries[fp] = c.order.PushFront(&cacheEntry{fp: fp, report: report})
}
