package resolver

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chordsheet-resolver/internal/artifacts"
	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
	"github.com/JakeFAU/chordsheet-resolver/internal/loader"
	pubmemory "github.com/JakeFAU/chordsheet-resolver/internal/publisher/memory"
	"github.com/JakeFAU/chordsheet-resolver/internal/render"
	"github.com/JakeFAU/chordsheet-resolver/internal/storage/memory"
)

const (
	originURL  = "https://www.cifraclub.com.br"
	searchURL  = originURL + "/?q=Oasis"
	artistURL  = originURL + "/oasis/"
	songURL    = originURL + "/oasis/wonderwall/"
	songSearch = originURL + "/?q=Oasis+Wonderwall"
)

const searchHTML = `<html><body>
<a href="/oasis/">Oasis - X</a>
<a href="/oasis/wonderwall/">Wonderwall - Oasis</a>
<a href="/oasis-tribute/">Oasis Tribute</a>
<a href="https://elsewhere.example.com/oasis/">Mirror</a>
<a href="/favicon.ico">Favicon</a>
<a href="/sitemap.xml">Sitemap</a>
<a href="/static/app.js">App</a>
</body></html>`

const artistHTML = `<html><body><h1 class="t1">Oasis</h1>
<a href="/oasis/wonderwall/">Wonderwall</a>
<a href="/oasis/wonderwall/letra/">Wonderwall letra</a>
<a href="/oasis/champagne-supernova/">Champagne Supernova</a>
<a href="/oasis/wonderwall/">Wonderwall</a>
</body></html>`

const songHTML = `<html><body>
<h1 class="t1">Wonderwall</h1><h2 class="t3"><a href="/oasis/">Oasis</a></h2>
<span id="cifra_tom">tom: <a>F#m</a></span>
<div class="cifra_cnt"><pre>Em7  G  Dsus4  A7sus4</pre></div>
</body></html>`

// fakeSite serves fixed HTML per URL and counts navigations. Unknown URLs
// answer 404.
type fakeSite struct {
	mu       sync.Mutex
	pages    map[string]string
	navs     []string
	withErr  error
	pageRuns int
}

func newFakeSite(pages map[string]string) *fakeSite {
	return &fakeSite{pages: pages}
}

func (s *fakeSite) WithPage(ctx context.Context, fn func(context.Context, render.Page) error) error {
	s.mu.Lock()
	s.pageRuns++
	err := s.withErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(ctx, &sitePage{site: s})
}

func (s *fakeSite) navigations(target string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.navs {
		if u == target {
			n++
		}
	}
	return n
}

func (s *fakeSite) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.navs)
}

type sitePage struct {
	site    *fakeSite
	current string
}

func (p *sitePage) Navigate(_ context.Context, target string, _ render.WaitCondition, _ time.Duration) (render.Response, error) {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	p.site.navs = append(p.site.navs, target)
	if _, ok := p.site.pages[target]; !ok {
		return render.Response{URL: target, StatusCode: 404}, nil
	}
	p.current = target
	return render.Response{URL: target, StatusCode: 200}, nil
}

func (p *sitePage) WaitReady(context.Context, time.Duration) error { return nil }

func (p *sitePage) Document(context.Context) (*goquery.Document, error) {
	p.site.mu.Lock()
	html := p.site.pages[p.current]
	p.site.mu.Unlock()
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (p *sitePage) Close() error { return nil }

type fakeIndex struct {
	rows  []catalog.IndexRecord
	err   error
	calls int
}

func (f *fakeIndex) SearchArtists(context.Context, string) ([]catalog.IndexRecord, error) {
	f.calls++
	return f.rows, f.err
}

// countingStore wraps the real artifact store and counts writes.
type countingStore struct {
	*artifacts.Store
	mu   sync.Mutex
	puts int
}

func (s *countingStore) Put(ctx context.Context, key string, songs []catalog.Song) bool {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return s.Store.Put(ctx, key, songs)
}

type sourceCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *sourceCounter) ObserveSource(op, source, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[op+"/"+source+"/"+outcome]++
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errors.New("topic deleted")
}

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return "evt-" + string(rune('0'+s.n)), nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

type harness struct {
	site     *fakeSite
	index    *fakeIndex
	store    *countingStore
	pub      *pubmemory.Publisher
	observer *sourceCounter
	res      *Resolver
}

func newHarness(t *testing.T, pages map[string]string, index *fakeIndex) *harness {
	t.Helper()
	origin, err := url.Parse(originURL)
	require.NoError(t, err)

	noSleep := loader.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })
	contentLoader, err := loader.New(loader.Config{Strategies: loader.DefaultStrategies(), Backoff: loader.DefaultBackoff()}, nil, noSleep)
	require.NoError(t, err)
	metaLoader, err := loader.New(loader.Config{Strategies: loader.MetadataStrategies(), Backoff: loader.DefaultBackoff()}, nil, noSleep)
	require.NoError(t, err)

	h := &harness{
		site:     newFakeSite(pages),
		index:    index,
		store:    &countingStore{Store: artifacts.New(memory.NewBlobStore(), "", nil)},
		pub:      pubmemory.New(),
		observer: &sourceCounter{},
	}
	deps := Deps{
		Pages:          h.site,
		Loader:         contentLoader,
		MetadataLoader: metaLoader,
		Store:          h.store,
		Publisher:      h.pub,
		IDs:            &seqIDs{},
	}
	if index != nil {
		deps.Index = index
	}
	h.res, err = New(Config{Origin: origin, Topic: "artist-songs"}, deps,
		WithObserver(h.observer), WithClock(fixedClock{}))
	require.NoError(t, err)
	return h
}

func TestResolveArtistsIndexHitSkipsLiveSearch(t *testing.T) {
	t.Parallel()

	count := 212
	h := newHarness(t, map[string]string{searchURL: searchHTML}, &fakeIndex{
		rows: []catalog.IndexRecord{{Name: "Oasis", Slug: "oasis", SongCount: &count}, {Name: "", Slug: "a/b"}},
	})

	artists, err := h.res.ResolveArtists(context.Background(), "Oasis")
	require.NoError(t, err)
	require.Len(t, artists, 1)
	assert.Equal(t, catalog.Artist{DisplayName: "Oasis", Path: "oasis", SongCount: &count}, artists[0])
	assert.Zero(t, h.site.total())
	assert.Equal(t, 1, h.observer.counts["artists/index/hit"])
}

func TestResolveArtistsFallsBackToLiveSearch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		index   *fakeIndex
		counter string
	}{
		{"index error", &fakeIndex{err: errors.New("connection refused")}, "artists/index/error"},
		{"index empty", &fakeIndex{}, "artists/index/miss"},
		{"no index", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, map[string]string{searchURL: searchHTML}, tt.index)

			artists, err := h.res.ResolveArtists(context.Background(), " Oasis ")
			require.NoError(t, err)
			require.Len(t, artists, 2)
			assert.Equal(t, catalog.Artist{DisplayName: "Oasis", Path: "oasis"}, artists[0])
			assert.Nil(t, artists[0].SongCount)
			assert.Equal(t, "oasis-tribute", artists[1].Path)
			assert.Equal(t, 1, h.site.navigations(searchURL))
			if tt.counter != "" {
				assert.Equal(t, 1, h.observer.counts[tt.counter])
			}
			assert.Equal(t, 1, h.observer.counts["artists/live/success"])
		})
	}
}

func TestResolveArtistsRequiresText(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil)
	_, err := h.res.ResolveArtists(context.Background(), "  ")
	require.ErrorIs(t, err, catalog.ErrValidation)
	assert.Zero(t, h.site.total())
}

func TestResolveArtistSongsScrapesAndWritesThrough(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]string{artistURL: artistHTML}, nil)
	ctx := context.Background()

	songs, err := h.res.ResolveArtistSongs(ctx, "oasis/")
	require.NoError(t, err)
	require.Len(t, songs, 2)
	assert.Equal(t, catalog.Song{Title: "Wonderwall", Path: "oasis/wonderwall", Artist: "Oasis"}, songs[0])
	assert.Equal(t, "oasis/champagne-supernova", songs[1].Path)
	assert.Equal(t, 1, h.store.puts)

	msgs := h.pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "artist-songs", msgs[0].Topic)
	event, ok := msgs[0].Payload.(ArtistSongsEvent)
	require.True(t, ok)
	assert.Equal(t, ArtistSongsEvent{
		ID:         "evt-1",
		Type:       EventArtistSongsCached,
		ArtistPath: "oasis",
		SongCount:  2,
		At:         fixedClock{}.Now(),
	}, event)

	again, err := h.res.ResolveArtistSongs(ctx, "Oasis")
	require.NoError(t, err)
	assert.Equal(t, songs, again)
	assert.Equal(t, 1, h.site.navigations(artistURL), "stored list must short-circuit the scrape")
	assert.Equal(t, 1, h.observer.counts["artist_songs/artifacts/hit"])
}

func TestResolveArtistSongsNeverStoresEmptyList(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]string{artistURL: `<html><body><h1>Oasis</h1></body></html>`}, nil)

	songs, err := h.res.ResolveArtistSongs(context.Background(), "oasis")
	require.NoError(t, err)
	assert.Empty(t, songs)
	assert.Zero(t, h.store.puts)
	assert.Empty(t, h.pub.Messages())
	assert.Empty(t, h.res.ListCached(context.Background()))
}

func TestResolveArtistSongsUpstreamFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil)
	_, err := h.res.ResolveArtistSongs(context.Background(), "oasis")
	require.ErrorIs(t, err, catalog.ErrUpstream)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Equal(t, len(loader.DefaultStrategies()), h.site.navigations(artistURL))
}

func TestResolveArtistSongsValidatesPath(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil)
	for _, path := range []string{"", "oasis/wonderwall", "/"} {
		_, err := h.res.ResolveArtistSongs(context.Background(), path)
		require.ErrorIs(t, err, catalog.ErrValidation, path)
	}
	assert.Zero(t, h.site.total())
}

func TestRendererFailureIsUpstream(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil)
	h.site.withErr = render.ErrBrowserClosed

	_, err := h.res.ResolveArtistSongs(context.Background(), "oasis")
	require.ErrorIs(t, err, catalog.ErrUpstream)
	require.ErrorIs(t, err, render.ErrBrowserClosed)
}

func TestAddAndRemoveSong(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil)
	ctx := context.Background()
	wonderwall := catalog.Song{Title: "Wonderwall", Path: "/Oasis/Wonderwall/", Artist: "Oasis"}

	songs, err := h.res.AddSong(ctx, "oasis", wonderwall)
	require.NoError(t, err)
	require.Len(t, songs, 1)
	assert.Equal(t, "oasis/wonderwall", songs[0].Path)

	songs, err = h.res.AddSong(ctx, "oasis", wonderwall)
	require.NoError(t, err)
	assert.Len(t, songs, 1)

	_, err = h.res.AddSong(ctx, "oasis", catalog.Song{Title: "Song 2", Path: "blur/song-2"})
	require.ErrorIs(t, err, catalog.ErrValidation)
	_, err = h.res.AddSong(ctx, "oasis", catalog.Song{Title: "", Path: "oasis/x"})
	require.ErrorIs(t, err, catalog.ErrValidation)

	assert.Equal(t, []string{"oasis"}, h.res.ListCached(ctx))

	_, err = h.res.RemoveSong(ctx, "oasis", "oasis/champagne-supernova")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	songs, err = h.res.RemoveSong(ctx, "oasis", "oasis/wonderwall/")
	require.NoError(t, err)
	assert.Empty(t, songs)
	assert.Empty(t, h.res.ListCached(ctx), "removing the last song deletes the artifact")

	var actions []string
	for _, msg := range h.pub.Messages() {
		event := msg.Payload.(ArtistSongsEvent)
		assert.Equal(t, EventArtistSongsUpdated, event.Type)
		actions = append(actions, event.Action)
	}
	assert.Equal(t, []string{ActionAdd, ActionRemove}, actions)
	assert.Zero(t, h.site.total(), "mutations never scrape")
}

func TestAddSongThenResolveUsesStoredList(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]string{artistURL: artistHTML}, nil)
	ctx := context.Background()

	_, err := h.res.AddSong(ctx, "oasis", catalog.Song{Title: "Live Forever", Path: "oasis/live-forever"})
	require.NoError(t, err)

	songs, err := h.res.ResolveArtistSongs(ctx, "oasis")
	require.NoError(t, err)
	require.Len(t, songs, 1)
	assert.Equal(t, "Oasis", songs[0].Artist)
	assert.Zero(t, h.site.total())
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]string{artistURL: artistHTML}, nil)
	h.res.publisher = failingPublisher{}

	songs, err := h.res.ResolveArtistSongs(context.Background(), "oasis")
	require.NoError(t, err)
	assert.Len(t, songs, 2)
}

func TestMetadataThenContentLoadsEachFacetOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]string{songURL: songHTML}, nil)
	ctx := context.Background()

	meta, err := h.res.Metadata(ctx, "oasis/wonderwall")
	require.NoError(t, err)
	assert.Equal(t, "Wonderwall", meta.Title)
	assert.Equal(t, "F#m", meta.SongKey)
	assert.Equal(t, catalog.StandardTuning, meta.GuitarTuning)

	_, err = h.res.Metadata(ctx, songURL)
	require.NoError(t, err)
	assert.Equal(t, 1, h.site.navigations(songURL))

	content, err := h.res.ChordSheet(ctx, "https://cifraclub.com.br/oasis/wonderwall")
	require.NoError(t, err)
	assert.Equal(t, "Em7  G  Dsus4  A7sus4", content.SongChords)
	assert.Equal(t, 2, h.site.navigations(songURL))

	_, err = h.res.ChordSheet(ctx, songURL)
	require.NoError(t, err)
	assert.Equal(t, 2, h.site.navigations(songURL))
}

func TestChordSheetValidatesBeforeLoading(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil)
	for _, raw := range []string{
		originURL + "/oasis/wonderwall/letra/",
		"https://evil.example.com/oasis/wonderwall/",
		"oasis",
		"",
	} {
		_, err := h.res.ChordSheet(context.Background(), raw)
		require.ErrorIs(t, err, catalog.ErrValidation, raw)
		_, err = h.res.Metadata(context.Background(), raw)
		require.ErrorIs(t, err, catalog.ErrValidation, raw)
	}
	assert.Zero(t, h.site.total())
}

func TestChordSheetWithoutBodyIsNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]string{songURL: `<html><body><h1>Wonderwall</h1></body></html>`}, nil)
	_, err := h.res.ChordSheet(context.Background(), songURL)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestSearch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]string{searchURL: searchHTML, songSearch: searchHTML}, &fakeIndex{})
	ctx := context.Background()

	q, err := catalog.NewSearchQuery("Oasis", "")
	require.NoError(t, err)
	res, err := h.res.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, catalog.SearchArtist, res.Kind)
	assert.Len(t, res.Artists, 2)
	assert.Empty(t, res.Songs)

	q, err = catalog.NewSearchQuery("Oasis", "Wonderwall")
	require.NoError(t, err)
	res, err = h.res.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, catalog.SearchSong, res.Kind)
	require.Len(t, res.Songs, 1)
	assert.Equal(t, catalog.Song{Title: "Wonderwall", Path: "oasis/wonderwall", Artist: "Oasis"}, res.Songs[0])
	assert.Equal(t, 1, h.index.calls, "song searches skip the artist index")

	_, err = h.res.Search(ctx, catalog.SearchQuery{Kind: "ALBUM", Text: "x"})
	require.ErrorIs(t, err, catalog.ErrValidation)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	origin, err := url.Parse(originURL)
	require.NoError(t, err)

	_, err = New(Config{}, Deps{})
	require.Error(t, err)
	_, err = New(Config{Origin: origin, SearchPath: "/search"}, Deps{})
	require.Error(t, err)
	_, err = New(Config{Origin: origin}, Deps{})
	require.Error(t, err)
}
