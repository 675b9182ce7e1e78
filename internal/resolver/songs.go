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

// ResolveArtistSongs returns the songs of an artist. A stored artifact with
// at least one song wins; otherwise the artist page is scraped and a
// non-empty result is written through to the store.
func (r *Resolver) ResolveArtistSongs(ctx context.Context, artistPath string) ([]catalog.Song, error) {
	path, err := artistKey(artistPath)
	if err != nil {
		return nil, err
	}

	if cached := r.store.Get(ctx, path); len(cached) > 0 {
		r.observe(OpArtistSongs, SourceArtifacts, "hit")
		return cached, nil
	}
	r.observe(OpArtistSongs, SourceArtifacts, "miss")

	records, err := live(ctx, r, r.loader, normalize.ArtistURL(path, r.cfg.Origin), extract.ArtistSongs(r.cfg.Origin, path))
	if err != nil {
		r.observe(OpArtistSongs, SourceLive, "error")
		return nil, err
	}
	songs := normalize.ToSongs(records)
	r.observe(OpArtistSongs, SourceLive, outcome(len(songs)))
	if len(songs) == 0 {
		r.logger.Info("artist page yielded no songs, not caching", zap.String("artist", path))
		return songs, nil
	}

	if r.store.Put(ctx, path, songs) {
		r.publish(ctx, EventArtistSongsCached, path, len(songs), "")
	}
	return songs, nil
}

// AddSong inserts song into the stored list of artistPath without scraping.
// Adding a path that is already present leaves the list unchanged.
func (r *Resolver) AddSong(ctx context.Context, artistPath string, song catalog.Song) ([]catalog.Song, error) {
	path, err := artistKey(artistPath)
	if err != nil {
		return nil, err
	}
	normalized, ok := normalize.ToSong(catalog.RecordFromSong(song))
	if !ok {
		return nil, fmt.Errorf("%w: song needs a title and an artist/song path", catalog.ErrValidation)
	}
	normalized.Path = strings.ToLower(normalized.Path)
	if !strings.HasPrefix(normalized.Path, path+"/") {
		return nil, fmt.Errorf("%w: song %q does not belong to artist %q", catalog.ErrValidation, normalized.Path, path)
	}

	added := false
	songs, err := r.store.Mutate(ctx, path, func(current []catalog.Song) []catalog.Song {
		for _, s := range current {
			if s.Path == normalized.Path {
				return current
			}
		}
		added = true
		return append(current, normalized)
	})
	if err != nil {
		return nil, fmt.Errorf("add song to %s: %w", path, err)
	}
	if added {
		r.publish(ctx, EventArtistSongsUpdated, path, len(songs), ActionAdd)
	}
	return songs, nil
}

// RemoveSong deletes songPath from the stored list of artistPath. Removing the
// last song deletes the artifact. A song that is not in the list yields
// ErrNotFound.
func (r *Resolver) RemoveSong(ctx context.Context, artistPath, songPath string) ([]catalog.Song, error) {
	path, err := artistKey(artistPath)
	if err != nil {
		return nil, err
	}
	target := strings.ToLower(normalize.CleanPath(songPath))
	if !normalize.IsValidPath(target, catalog.SearchSong) {
		return nil, fmt.Errorf("%w: %q is not an artist/song path", catalog.ErrValidation, songPath)
	}

	removed := false
	songs, err := r.store.Mutate(ctx, path, func(current []catalog.Song) []catalog.Song {
		kept := make([]catalog.Song, 0, len(current))
		for _, s := range current {
			if s.Path == target {
				removed = true
				continue
			}
			kept = append(kept, s)
		}
		return kept
	})
	if err != nil {
		return nil, fmt.Errorf("remove song from %s: %w", path, err)
	}
	if !removed {
		return nil, fmt.Errorf("%w: %s is not in the list of %s", catalog.ErrNotFound, target, path)
	}
	r.publish(ctx, EventArtistSongsUpdated, path, len(songs), ActionRemove)
	return songs, nil
}

// ListCached returns the artist paths that have a stored song list.
func (r *Resolver) ListCached(ctx context.Context) []string {
	keys := r.store.List(ctx)
	if keys == nil {
		return []string{}
	}
	return keys
}

func artistKey(artistPath string) (string, error) {
	path := normalize.NormalizeArtistPath(artistPath)
	if !normalize.IsValidPath(path, catalog.SearchArtist) {
		return "", fmt.Errorf("%w: %q is not an artist path", catalog.ErrValidation, artistPath)
	}
	return path, nil
}
