package tablebase

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hailam/chesscore/internal/board"
)

// Source is anything that answers Probe and MaxPieces, such as a
// LichessProber.
type Source interface {
	Probe(ctx context.Context, pos *board.Position) (int, bool)
	MaxPieces() int
}

type cachedResult struct {
	dtm int
	ok  bool
}

// CachedProber wraps another prober with a cache keyed by Zobrist hash.
// Misses are cached too, so an unreachable source is asked once per
// position, except when the caller's ctx ended the probe.
type CachedProber struct {
	inner   Source
	mu      sync.RWMutex
	cache   map[uint64]cachedResult
	maxSize int
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// DefaultCacheSize is the entry limit NewCachedLichessProber uses.
const DefaultCacheSize = 100000

// NewCachedProber creates a cached prober wrapping the given prober.
func NewCachedProber(inner Source, cacheSize int) *CachedProber {
	return &CachedProber{
		inner:   inner,
		cache:   make(map[uint64]cachedResult, min(cacheSize, 1024)),
		maxSize: max(cacheSize, 2),
	}
}

// NewCachedLichessProber creates a cached Lichess prober with default cache size.
func NewCachedLichessProber(opts ...LichessOption) *CachedProber {
	return NewCachedProber(NewLichessProber(opts...), DefaultCacheSize)
}

func (cp *CachedProber) Probe(ctx context.Context, pos *board.Position) (int, bool) {
	cp.mu.RLock()
	r, found := cp.cache[pos.Hash]
	cp.mu.RUnlock()
	if found {
		cp.hits.Add(1)
		return r.dtm, r.ok
	}

	cp.misses.Add(1)
	dtm, ok := cp.inner.Probe(ctx, pos)
	if !ok && ctx.Err() != nil {
		return 0, false
	}

	cp.mu.Lock()
	if len(cp.cache) >= cp.maxSize {
		// Drop an arbitrary half.
		i := 0
		for k := range cp.cache {
			if i >= cp.maxSize/2 {
				break
			}
			delete(cp.cache, k)
			i++
		}
	}
	cp.cache[pos.Hash] = cachedResult{dtm: dtm, ok: ok}
	cp.mu.Unlock()

	return dtm, ok
}

func (cp *CachedProber) MaxPieces() int {
	return cp.inner.MaxPieces()
}

// HitRate returns the cache hit rate as a percentage.
func (cp *CachedProber) HitRate() float64 {
	hits, misses := cp.hits.Load(), cp.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses) * 100
}

// CacheSize returns the current number of cached entries.
func (cp *CachedProber) CacheSize() int {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	return len(cp.cache)
}

// Clear clears the cache.
func (cp *CachedProber) Clear() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.cache = make(map[uint64]cachedResult, min(cp.maxSize, 1024))
	cp.hits.Store(0)
	cp.misses.Store(0)
}
