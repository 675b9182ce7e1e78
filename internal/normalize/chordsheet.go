package normalize

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
)

// ChordSheetURL validates a user-supplied chord-sheet reference and returns
// its canonical URL on the origin. raw may be a full URL, a host-prefixed
// path ("www.example.com/artist/song"), or a bare "artist/song" path. The
// song-path shape is checked before anything else so "artist/song/letra" is
// rejected as a three-segment path.
func ChordSheetURL(raw string, origin *url.URL) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", catalog.ErrValidation)
	}
	if origin == nil || origin.Host == "" {
		return "", fmt.Errorf("%w: origin is not configured", catalog.ErrValidation)
	}

	host := ""
	path := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("%w: malformed url: %v", catalog.ErrValidation, err)
		}
		host = u.Hostname()
		path = u.Path
	} else if first, rest, found := strings.Cut(CleanPath(raw), "/"); found && strings.Contains(first, ".") {
		host = first
		path = rest
	}

	if !IsValidPath(path, catalog.SearchSong) {
		return "", fmt.Errorf("%w: %q is not an artist/song path", catalog.ErrValidation, CleanPath(path))
	}
	if host != "" && !SameSite(host, origin.Hostname()) {
		return "", fmt.Errorf("%w: %q is not on %s", catalog.ErrValidation, host, origin.Hostname())
	}

	canonical := url.URL{
		Scheme: origin.Scheme,
		Host:   origin.Host,
		Path:   "/" + CleanPath(path) + "/",
	}
	return canonical.String(), nil
}

// ArtistURL returns the origin URL of an artist page.
func ArtistURL(artistPath string, origin *url.URL) string {
	u := url.URL{
		Scheme: origin.Scheme,
		Host:   origin.Host,
		Path:   "/" + NormalizeArtistPath(artistPath) + "/",
	}
	return u.String()
}
