// Package normalize validates raw index rows and scraped links and converts
// them into the canonical catalog schema. Nothing in this package returns an
// error for bad records: invalid input is reported with ok == false and the
// caller drops it.
package normalize

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
)

// lyricsSegment is the trailing segment of lyrics-only pages.
const lyricsSegment = "letra"

// titleSuffixes are appended by the origin site to page and link titles.
var titleSuffixes = []string{
	" - Cifra Club",
	" | Cifra Club",
	" - Cifras",
	" - Chords",
	" (Cifra)",
	" Chords",
}

// CleanPath strips the query, the fragment, surrounding whitespace, and
// leading/trailing slashes from a URL path.
func CleanPath(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.Trim(path, "/")
}

// IsValidPath reports whether path has the shape of an artist page (exactly
// one segment) or a song page (exactly two segments, not a lyrics page).
// Segments that look like file names never match either kind.
func IsValidPath(path string, kind catalog.SearchKind) bool {
	clean := CleanPath(path)
	if clean == "" {
		return false
	}
	segments := strings.Split(clean, "/")
	for _, seg := range segments {
		if strings.TrimSpace(seg) == "" || strings.Contains(seg, ".") {
			return false
		}
	}
	switch kind {
	case catalog.SearchArtist:
		return len(segments) == 1
	case catalog.SearchSong:
		return len(segments) == 2 && !strings.EqualFold(segments[1], lyricsSegment)
	default:
		return false
	}
}

// PathFromHref resolves href against origin and returns the cleaned path.
// Links pointing at another host are rejected.
func PathFromHref(href string, origin *url.URL) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if origin != nil {
		ref = origin.ResolveReference(ref)
		if !SameSite(ref.Hostname(), origin.Hostname()) {
			return "", false
		}
	}
	clean := CleanPath(ref.Path)
	return clean, clean != ""
}

// SameSite compares two hostnames ignoring case and a leading "www.".
func SameSite(a, b string) bool {
	trim := func(h string) string {
		return strings.TrimPrefix(strings.ToLower(h), "www.")
	}
	return trim(a) == trim(b)
}

// ToArtist converts a raw record into an Artist. ok is false when the path is
// not artist-shaped or no display name can be derived.
func ToArtist(rec catalog.RawRecord) (catalog.Artist, bool) {
	var (
		name      string
		path      string
		songCount *int
	)
	switch r := rec.(type) {
	case catalog.IndexRecord:
		path = strings.ToLower(CleanPath(r.Slug))
		name = strings.TrimSpace(r.Name)
		songCount = r.SongCount
	case catalog.ScrapedRecord:
		path = hrefPath(r.Href)
		name = headOfTitle(StripTitleSuffixes(r.Title))
		if name == "" {
			name = strings.TrimSpace(r.Artist)
		}
	default:
		return catalog.Artist{}, false
	}
	if !IsValidPath(path, catalog.SearchArtist) {
		return catalog.Artist{}, false
	}
	if name == "" {
		name = SlugToName(path)
	}
	if name == "" {
		return catalog.Artist{}, false
	}
	return catalog.Artist{DisplayName: name, Path: path, SongCount: songCount}, true
}

// ToSong converts a scraped record into a Song. Index rows never describe
// songs. ok is false when the path is not song-shaped or the title is empty.
func ToSong(rec catalog.RawRecord) (catalog.Song, bool) {
	r, isScraped := rec.(catalog.ScrapedRecord)
	if !isScraped {
		return catalog.Song{}, false
	}
	path := hrefPath(r.Href)
	if !IsValidPath(path, catalog.SearchSong) {
		return catalog.Song{}, false
	}
	title := StripTitleSuffixes(r.Title)
	artist := strings.TrimSpace(r.Artist)
	if artist == "" {
		if head, tail, found := strings.Cut(title, " - "); found {
			title = strings.TrimSpace(head)
			artist = strings.TrimSpace(tail)
		}
	}
	if artist == "" {
		artistSlug, _, _ := strings.Cut(path, "/")
		artist = SlugToName(artistSlug)
	}
	if title == "" {
		return catalog.Song{}, false
	}
	return catalog.Song{Title: title, Path: path, Artist: artist}, true
}

// ToArtists normalizes records and drops the invalid ones and duplicate paths.
func ToArtists[R catalog.RawRecord](records []R) []catalog.Artist {
	out := make([]catalog.Artist, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		artist, ok := ToArtist(rec)
		if !ok {
			continue
		}
		if _, dup := seen[artist.Path]; dup {
			continue
		}
		seen[artist.Path] = struct{}{}
		out = append(out, artist)
	}
	return out
}

// ToSongs normalizes records and drops the invalid ones and duplicate paths.
func ToSongs[R catalog.RawRecord](records []R) []catalog.Song {
	out := make([]catalog.Song, 0, len(records))
	for _, rec := range records {
		if song, ok := ToSong(rec); ok {
			out = append(out, song)
		}
	}
	return DedupeSongs(out)
}

// DedupeSongs keeps the first song seen for each path, preserving order.
func DedupeSongs(songs []catalog.Song) []catalog.Song {
	out := make([]catalog.Song, 0, len(songs))
	seen := make(map[string]struct{}, len(songs))
	for _, s := range songs {
		if _, dup := seen[s.Path]; dup {
			continue
		}
		seen[s.Path] = struct{}{}
		out = append(out, s)
	}
	return out
}

// StripTitleSuffixes trims every known site suffix from the end of title.
func StripTitleSuffixes(title string) string {
	title = strings.TrimSpace(title)
	for {
		stripped := false
		for _, suffix := range titleSuffixes {
			if len(title) >= len(suffix) && strings.EqualFold(title[len(title)-len(suffix):], suffix) {
				title = strings.TrimSpace(title[:len(title)-len(suffix)])
				stripped = true
			}
		}
		if !stripped {
			return title
		}
	}
}

// SlugToName turns "red-hot-chili-peppers" into "Red Hot Chili Peppers".
func SlugToName(slug string) string {
	words := strings.FieldsFunc(CleanPath(slug), func(r rune) bool {
		return r == '-' || r == '_' || r == '/'
	})
	for i, w := range words {
		first, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(first)) + w[size:]
	}
	return strings.Join(words, " ")
}

// NormalizeArtistPath canonicalizes a user-supplied artist path ("oasis/" -> "oasis").
func NormalizeArtistPath(path string) string {
	return strings.ToLower(CleanPath(path))
}

func headOfTitle(title string) string {
	head, _, _ := strings.Cut(title, " - ")
	return strings.TrimSpace(head)
}

func hrefPath(href string) string {
	if strings.Contains(href, "://") {
		if u, err := url.Parse(strings.TrimSpace(href)); err == nil {
			return CleanPath(u.Path)
		}
	}
	return CleanPath(href)
}
