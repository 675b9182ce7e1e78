package resolver

import (
	"context"

	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
	"github.com/JakeFAU/chordsheet-resolver/internal/extract"
	"github.com/JakeFAU/chordsheet-resolver/internal/normalize"
)

// Metadata returns the song header of a chord-sheet page. rawURL may be a
// full origin URL or a bare "artist/song" path; it is validated before any
// cache or network work.
func (r *Resolver) Metadata(ctx context.Context, rawURL string) (catalog.SongMetadata, error) {
	canonical, err := normalize.ChordSheetURL(rawURL, r.cfg.Origin)
	if err != nil {
		return catalog.SongMetadata{}, err
	}
	return r.sheets.Resolve(canonical).Metadata(ctx)
}

// ChordSheet returns the chord body of a chord-sheet page. See Metadata for
// the accepted forms of rawURL.
func (r *Resolver) ChordSheet(ctx context.Context, rawURL string) (catalog.ChordSheetContent, error) {
	canonical, err := normalize.ChordSheetURL(rawURL, r.cfg.Origin)
	if err != nil {
		return catalog.ChordSheetContent{}, err
	}
	return r.sheets.Resolve(canonical).Content(ctx)
}

// pageFetcher loads the two facets of a chord-sheet page with separate
// strategy sets: metadata does not need a settled page.
type pageFetcher struct {
	r *Resolver
}

func (f *pageFetcher) FetchMetadata(ctx context.Context, url string) (catalog.SongMetadata, error) {
	return live(ctx, f.r, f.r.metaLoader, url, extract.Metadata)
}

func (f *pageFetcher) FetchContent(ctx context.Context, url string) (catalog.ChordSheetContent, error) {
	return live(ctx, f.r, f.r.loader, url, extract.ChordSheet)
}
