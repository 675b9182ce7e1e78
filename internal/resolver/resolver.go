// Package resolver answers artist, song-list, and chord-sheet queries by
// walking a fallback chain of sources from cheapest to most expensive. The
// artifact store and the artist index are accelerators: their failures are
// logged and treated as misses. Only the final live page extraction can fail
// a request.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
	"github.com/JakeFAU/chordsheet-resolver/internal/clock/system"
	"github.com/JakeFAU/chordsheet-resolver/internal/loader"
	"github.com/JakeFAU/chordsheet-resolver/internal/render"
	"github.com/JakeFAU/chordsheet-resolver/internal/sheetcache"
)

// Operation and source labels reported to the Observer.
const (
	OpArtists     = "artists"
	OpArtistSongs = "artist_songs"
	OpSearch      = "search"

	SourceIndex     = "index"
	SourceArtifacts = "artifacts"
	SourceLive      = "live"
)

// DefaultSearchPath is the origin's search URL template.
const DefaultSearchPath = "/?q=%s"

// PageRunner checks out a renderer page for the duration of fn.
// *render.Browser implements it.
type PageRunner interface {
	WithPage(ctx context.Context, fn func(ctx context.Context, page render.Page) error) error
}

// Observer receives per-source outcomes (metrics).
type Observer interface {
	ObserveSource(op, source, outcome string)
}

// Config holds the origin settings.
type Config struct {
	// Origin is the base URL of the chord-sheet site.
	Origin *url.URL
	// SearchPath is a fmt template with one %s for the escaped query.
	SearchPath string
	// SearchSelector restricts which anchors on the search page are read.
	// Empty means every anchor.
	SearchSelector string
	// Topic is where artifact change events are published.
	Topic string
}

// Deps are the collaborators of a Resolver. Index and Publisher may be nil.
type Deps struct {
	Pages          PageRunner
	Loader         *loader.Loader
	MetadataLoader *loader.Loader
	Index          catalog.ArtistIndex
	Store          catalog.SongListStore
	Publisher      catalog.Publisher
	IDs            catalog.IDGenerator
}

// Resolver implements the artist, song-list, and chord-sheet lookups.
type Resolver struct {
	cfg        Config
	pages      PageRunner
	loader     *loader.Loader
	metaLoader *loader.Loader
	index      catalog.ArtistIndex
	store      catalog.SongListStore
	publisher  catalog.Publisher
	ids        catalog.IDGenerator
	clock      catalog.Clock
	logger     *zap.Logger
	observer   Observer
	sheets     *sheetcache.Cache
	cacheOpts  []sheetcache.Option
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver attaches a source observer.
func WithObserver(o Observer) Option {
	return func(r *Resolver) { r.observer = o }
}

// WithClock overrides the wall clock used for event timestamps.
func WithClock(c catalog.Clock) Option {
	return func(r *Resolver) { r.clock = c }
}

// WithCacheOptions passes options to the chord-sheet cache.
func WithCacheOptions(opts ...sheetcache.Option) Option {
	return func(r *Resolver) { r.cacheOpts = append(r.cacheOpts, opts...) }
}

// New validates cfg and deps and builds a Resolver.
func New(cfg Config, deps Deps, opts ...Option) (*Resolver, error) {
	if cfg.Origin == nil || cfg.Origin.Host == "" {
		return nil, errors.New("origin url is required")
	}
	if cfg.SearchPath == "" {
		cfg.SearchPath = DefaultSearchPath
	}
	if strings.Count(cfg.SearchPath, "%s") != 1 {
		return nil, fmt.Errorf("search path %q must contain exactly one %%s", cfg.SearchPath)
	}
	if deps.Pages == nil || deps.Loader == nil || deps.Store == nil {
		return nil, errors.New("pages, loader and store are required")
	}
	if deps.MetadataLoader == nil {
		deps.MetadataLoader = deps.Loader
	}
	r := &Resolver{
		cfg:        cfg,
		pages:      deps.Pages,
		loader:     deps.Loader,
		metaLoader: deps.MetadataLoader,
		index:      deps.Index,
		store:      deps.Store,
		publisher:  deps.Publisher,
		ids:        deps.IDs,
		clock:      system.New(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	cacheOpts := append([]sheetcache.Option{sheetcache.WithLogger(r.logger.Named("sheetcache"))}, r.cacheOpts...)
	r.sheets = sheetcache.New(&pageFetcher{r: r}, cacheOpts...)
	return r, nil
}

// Origin returns the configured origin URL.
func (r *Resolver) Origin() *url.URL {
	u := *r.cfg.Origin
	return &u
}

func (r *Resolver) observe(op, source, outcome string) {
	if r.observer != nil {
		r.observer.ObserveSource(op, source, outcome)
	}
}

func (r *Resolver) searchURL(text string) string {
	ref := fmt.Sprintf(r.cfg.SearchPath, url.QueryEscape(text))
	u, err := url.Parse(ref)
	if err != nil {
		return r.cfg.Origin.String()
	}
	return r.cfg.Origin.ResolveReference(u).String()
}

// live renders target on a fresh page and runs extract through the retrying
// loader. Failures that did not come from the loader (renderer start-up, a
// closed browser) are reported as upstream failures too.
func live[T any](ctx context.Context, r *Resolver, l *loader.Loader, target string, extract loader.Extractor[T]) (T, error) {
	var out T
	err := r.pages.WithPage(ctx, func(ctx context.Context, page render.Page) error {
		v, err := loader.Load(ctx, l, page, target, extract)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, catalog.ErrUpstream), ctx.Err() != nil:
		return out, err
	default:
		return out, fmt.Errorf("%w: %w", catalog.ErrUpstream, err)
	}
}

func (r *Resolver) now() time.Time {
	return r.clock.Now().UTC()
}
