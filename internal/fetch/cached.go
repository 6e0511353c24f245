package fetch

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a fetched page is served from cache
const DefaultCacheTTL = 10 * time.Minute

// Fetcher retrieves a page
type Fetcher interface {
	Fetch(ctx context.Context, urlStr string) (*CachedResult, error)
}

// CachedFetcher wraps URL fetching with an in-memory TTL cache keyed by URL.
type CachedFetcher struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	options  *Options
	cacheTTL time.Duration
	fetch    func(ctx context.Context, urlStr string, opts *Options) (*Result, error)
	now      func() time.Time
}

type cacheEntry struct {
	result    *Result
	fetchedAt time.Time
}

// CachedFetcherConfig holds configuration for the cached fetcher.
type CachedFetcherConfig struct {
	CacheTTL time.Duration
	Options  *Options
}

// DefaultCachedFetcherConfig returns sensible defaults.
func DefaultCachedFetcherConfig() *CachedFetcherConfig {
	return &CachedFetcherConfig{
		CacheTTL: DefaultCacheTTL,
		Options:  DefaultOptions(),
	}
}

// NewCachedFetcher creates a new cached fetcher.
func NewCachedFetcher(config *CachedFetcherConfig) *CachedFetcher {
	if config == nil {
		config = DefaultCachedFetcherConfig()
	}
	if config.Options == nil {
		config.Options = DefaultOptions()
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	return &CachedFetcher{
		entries:  make(map[string]cacheEntry),
		options:  config.Options,
		cacheTTL: config.CacheTTL,
		fetch:    URL,
		now:      time.Now,
	}
}

// CachedResult extends Result with cache metadata.
type CachedResult struct {
	*Result
	FromCache bool
}

// Fetch retrieves a URL, serving a cached copy while it is within the TTL.
// Failed fetches are not cached.
func (f *CachedFetcher) Fetch(ctx context.Context, urlStr string) (*CachedResult, error) {
	f.mu.Lock()
	entry, ok := f.entries[urlStr]
	f.mu.Unlock()
	if ok && f.now().Sub(entry.fetchedAt) < f.cacheTTL {
		return &CachedResult{Result: entry.result, FromCache: true}, nil
	}

	result, err := f.fetch(ctx, urlStr, f.options)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.entries[urlStr] = cacheEntry{result: result, fetchedAt: f.now()}
	f.mu.Unlock()

	return &CachedResult{Result: result}, nil
}

// InvalidateCache drops a cached page, forcing a re-fetch on next request.
func (f *CachedFetcher) InvalidateCache(urlStr string) {
	f.mu.Lock()
	delete(f.entries, urlStr)
	f.mu.Unlock()
}

// Evict drops every entry older than the TTL and returns how many were removed
func (f *CachedFetcher) Evict() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k, e := range f.entries {
		if f.now().Sub(e.fetchedAt) >= f.cacheTTL {
			delete(f.entries, k)
			n++
		}
	}
	return n
}
