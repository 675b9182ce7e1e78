package catalog

import (
	"fmt"
	"strings"
)

// Artist is the canonical artist record returned to callers.
type Artist struct {
	DisplayName string `json:"displayName"`
	Path        string `json:"path"`
	SongCount   *int   `json:"songCount"`
}

// Song is the canonical song record. Path is always "artist-slug/song-slug".
// The persisted artifact shape is exactly these three fields.
type Song struct {
	Title  string `json:"title"`
	Path   string `json:"path"`
	Artist string `json:"artist"`
}

// StandardTuning is the six-string standard guitar tuning, low to high.
var StandardTuning = [6]string{"E", "A", "D", "G", "B", "E"}

// SongMetadata is the cheap header facet of a chord-sheet page.
type SongMetadata struct {
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	SongKey      string    `json:"songKey"`
	GuitarCapo   int       `json:"guitarCapo"`
	GuitarTuning [6]string `json:"guitarTuning"`
}

// NewSongMetadata returns metadata with capo 0 and standard tuning.
func NewSongMetadata(title, artist string) SongMetadata {
	return SongMetadata{
		Title:        title,
		Artist:       artist,
		GuitarTuning: StandardTuning,
	}
}

// ChordSheetContent is the expensive body facet of a chord-sheet page.
type ChordSheetContent struct {
	SongChords string `json:"songChords"`
}

// SearchKind selects which path shape a search is restricted to.
type SearchKind string

// Search kinds.
const (
	SearchArtist SearchKind = "ARTIST"
	SearchSong   SearchKind = "SONG"
)

// SearchQuery is a validated user search.
type SearchQuery struct {
	Text string     `json:"text"`
	Kind SearchKind `json:"kind"`
}

// NewSearchQuery derives a query from the user-supplied artist and song fields.
// Both present yields a SONG query, exactly one yields that kind, and neither
// is a validation error.
func NewSearchQuery(artist, song string) (SearchQuery, error) {
	artist = strings.TrimSpace(artist)
	song = strings.TrimSpace(song)
	switch {
	case artist != "" && song != "":
		return SearchQuery{Text: artist + " " + song, Kind: SearchSong}, nil
	case artist != "":
		return SearchQuery{Text: artist, Kind: SearchArtist}, nil
	case song != "":
		return SearchQuery{Text: song, Kind: SearchSong}, nil
	default:
		return SearchQuery{}, fmt.Errorf("%w: artist or song is required", ErrValidation)
	}
}
