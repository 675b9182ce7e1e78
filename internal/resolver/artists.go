package resolver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
	"github.com/JakeFAU/chordsheet-resolver/internal/extract"
	"github.com/JakeFAU/chordsheet-resolver/internal/normalize"
)

// SearchResult holds the outcome of Search. Only the slice matching Kind is set.
type SearchResult struct {
	Kind    catalog.SearchKind `json:"kind"`
	Artists []catalog.Artist   `json:"artists,omitempty"`
	Songs   []catalog.Song     `json:"songs,omitempty"`
}

// ResolveArtists looks text up in the artist index and falls back to a live
// origin search, restricted to artist-shaped paths, when the index fails or
// has no rows.
func (r *Resolver) ResolveArtists(ctx context.Context, text string) ([]catalog.Artist, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: artist is required", catalog.ErrValidation)
	}

	if artists := r.indexArtists(ctx, text); len(artists) > 0 {
		return artists, nil
	}

	records, err := live(ctx, r, r.loader, r.searchURL(text), extract.Links(r.cfg.Origin, r.cfg.SearchSelector))
	if err != nil {
		r.observe(OpArtists, SourceLive, "error")
		return nil, err
	}
	artists := normalize.ToArtists(records)
	r.observe(OpArtists, SourceLive, outcome(len(artists)))
	return artists, nil
}

// indexArtists returns nil on any index failure or an empty result.
func (r *Resolver) indexArtists(ctx context.Context, text string) []catalog.Artist {
	if r.index == nil {
		return nil
	}
	rows, err := r.index.SearchArtists(ctx, text)
	if err != nil {
		r.observe(OpArtists, SourceIndex, "error")
		r.logger.Warn("artist index lookup failed, falling back to live search",
			zap.String("query", text), zap.Error(err))
		return nil
	}
	artists := normalize.ToArtists(rows)
	if len(artists) == 0 {
		r.observe(OpArtists, SourceIndex, "miss")
		return nil
	}
	r.observe(OpArtists, SourceIndex, "hit")
	return artists
}

// Search runs a validated query. ARTIST queries go through ResolveArtists;
// SONG queries always search the origin, since the index holds only artists.
func (r *Resolver) Search(ctx context.Context, q catalog.SearchQuery) (SearchResult, error) {
	switch q.Kind {
	case catalog.SearchArtist:
		artists, err := r.ResolveArtists(ctx, q.Text)
		if err != nil {
			return SearchResult{}, err
		}
		return SearchResult{Kind: q.Kind, Artists: artists}, nil
	case catalog.SearchSong:
		text := strings.TrimSpace(q.Text)
		if text == "" {
			return SearchResult{}, fmt.Errorf("%w: song is required", catalog.ErrValidation)
		}
		records, err := live(ctx, r, r.loader, r.searchURL(text), extract.Links(r.cfg.Origin, r.cfg.SearchSelector))
		if err != nil {
			r.observe(OpSearch, SourceLive, "error")
			return SearchResult{}, err
		}
		songs := normalize.ToSongs(records)
		r.observe(OpSearch, SourceLive, outcome(len(songs)))
		return SearchResult{Kind: q.Kind, Songs: songs}, nil
	default:
		return SearchResult{}, fmt.Errorf("%w: unknown search kind %q", catalog.ErrValidation, q.Kind)
	}
}

func outcome(n int) string {
	if n == 0 {
		return "empty"
	}
	return "success"
}
