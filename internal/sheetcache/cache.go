// Package sheetcache caches chord-sheet pages in two facets: metadata, which
// is cheap and fetched first, and content, which is expensive and fetched only
// when asked for. Entries expire a fixed TTL after they are created.
package sheetcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
	"github.com/JakeFAU/chordsheet-resolver/internal/clock/system"
)

// DefaultTTL is how long an entry stays valid.
const DefaultTTL = 5 * time.Minute

// Facet names, used for single-flight keys and metrics labels.
const (
	FacetMetadata = "metadata"
	FacetContent  = "content"
)

// Fetcher performs the live page loads behind the cache.
type Fetcher interface {
	FetchMetadata(ctx context.Context, url string) (catalog.SongMetadata, error)
	FetchContent(ctx context.Context, url string) (catalog.ChordSheetContent, error)
}

// Observer receives hit/miss outcomes per facet.
type Observer interface {
	ObserveLookup(facet, result string)
}

type entry struct {
	metadata   *catalog.SongMetadata
	content    *catalog.ChordSheetContent
	insertedAt time.Time
}

// Cache is a ProgressiveExtractionCache. It is safe for concurrent use;
// concurrent misses for the same URL and facet share one fetch.
type Cache struct {
	fetcher  Fetcher
	ttl      time.Duration
	clock    catalog.Clock
	logger   *zap.Logger
	observer Observer

	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
}

// Option customizes a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects a clock (tests).
func WithClock(clock catalog.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithObserver attaches a lookup observer (metrics).
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds an empty cache over fetcher.
func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		clock:   system.New(),
		logger:  zap.NewNop(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle gives access to both facets of one URL.
type Handle struct {
	cache *Cache
	url   string
}

// Resolve returns a handle for url. No I/O happens until a facet is read.
func (c *Cache) Resolve(url string) *Handle {
	return &Handle{cache: c, url: url}
}

// URL returns the cache key of the handle.
func (h *Handle) URL() string { return h.url }

// Metadata returns the header facet, loading it on a miss.
func (h *Handle) Metadata(ctx context.Context) (catalog.SongMetadata, error) {
	return h.cache.metadata(ctx, h.url)
}

// Content returns the chord body, loading it on a miss and attaching it to
// the URL's entry.
func (h *Handle) Content(ctx context.Context) (catalog.ChordSheetContent, error) {
	return h.cache.content(ctx, h.url)
}

// Len returns the number of unexpired entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	n := 0
	for _, e := range c.entries {
		if c.fresh(e, now) {
			n++
		}
	}
	return n
}

func (c *Cache) metadata(ctx context.Context, url string) (catalog.SongMetadata, error) {
	if meta, ok := c.cachedMetadata(url); ok {
		c.observe(FacetMetadata, "hit")
		return meta, nil
	}
	c.observe(FacetMetadata, "miss")

	v, err := c.flight(ctx, FacetMetadata+":"+url, func() (any, error) {
		if meta, ok := c.cachedMetadata(url); ok {
			return meta, nil
		}
		meta, err := c.fetcher.FetchMetadata(context.WithoutCancel(ctx), url)
		if err != nil {
			return nil, err
		}
		c.store(url, func(e *entry) { e.metadata = &meta })
		return meta, nil
	})
	if err != nil {
		return catalog.SongMetadata{}, err
	}
	return v.(catalog.SongMetadata), nil
}

func (c *Cache) content(ctx context.Context, url string) (catalog.ChordSheetContent, error) {
	if content, ok := c.cachedContent(url); ok {
		c.observe(FacetContent, "hit")
		return content, nil
	}
	c.observe(FacetContent, "miss")

	v, err := c.flight(ctx, FacetContent+":"+url, func() (any, error) {
		if content, ok := c.cachedContent(url); ok {
			return content, nil
		}
		content, err := c.fetcher.FetchContent(context.WithoutCancel(ctx), url)
		if err != nil {
			return nil, err
		}
		c.store(url, func(e *entry) { e.content = &content })
		return content, nil
	})
	if err != nil {
		return catalog.ChordSheetContent{}, err
	}
	return v.(catalog.ChordSheetContent), nil
}

// flight runs fn once per key across concurrent callers. The fetch inside fn
// is detached from caller cancellation; each caller stops waiting when its
// own ctx is done.
func (c *Cache) flight(ctx context.Context, key string, fn func() (any, error)) (any, error) {
	ch := c.group.DoChan(key, fn)
	select {
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("shared in-flight fetch", zap.String("key", key))
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for %s: %w", key, ctx.Err())
	}
}

func (c *Cache) cachedMetadata(url string) (catalog.SongMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(url)
	if !ok || e.metadata == nil {
		return catalog.SongMetadata{}, false
	}
	return *e.metadata, true
}

func (c *Cache) cachedContent(url string) (catalog.ChordSheetContent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(url)
	if !ok || e.content == nil {
		return catalog.ChordSheetContent{}, false
	}
	return *e.content, true
}

// lookup returns the live entry for url. Callers hold c.mu.
func (c *Cache) lookup(url string) (*entry, bool) {
	e, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	if !c.fresh(e, c.clock.Now()) {
		delete(c.entries, url)
		return nil, false
	}
	return e, true
}

// store mutates the live entry for url, creating it (and sweeping expired
// entries) when there is none.
func (c *Cache) store(url string, mutate func(*entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(url)
	if !ok {
		c.sweep()
		e = &entry{insertedAt: c.clock.Now()}
		c.entries[url] = e
	}
	mutate(e)
}

func (c *Cache) sweep() {
	now := c.clock.Now()
	for key, e := range c.entries {
		if !c.fresh(e, now) {
			delete(c.entries, key)
		}
	}
}

func (c *Cache) fresh(e *entry, now time.Time) bool {
	return now.Sub(e.insertedAt) < c.ttl
}

func (c *Cache) observe(facet, result string) {
	if c.observer != nil {
		c.observer.ObserveLookup(facet, result)
	}
}
