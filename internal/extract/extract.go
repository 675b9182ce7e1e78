// Package extract reads origin-site pages. Each function here is a page
// extractor: it takes a rendered goquery document and returns raw records or
// song facets, leaving validation to the normalize package.
package extract

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
	"github.com/JakeFAU/chordsheet-resolver/internal/normalize"
)

var (
	// ErrNoMetadata means the page has no recognizable song header.
	ErrNoMetadata = errors.New("song header not found")
	// ErrNoChords means the page rendered but carries no chord body.
	ErrNoChords = fmt.Errorf("chord body not found: %w", catalog.ErrNotFound)
)

// Selectors used on the origin site. Several alternatives are listed where
// the markup has changed over time; the first match wins.
var (
	songTitleSelectors  = []string{"h1.t1", "h1"}
	songArtistSelectors = []string{"h2.t3 a", "h2.t3", "h2 a"}
	songKeySelectors    = []string{"#cifra_tom a", "#cifra_tom"}
	capoSelectors       = []string{"#cifra_capo"}
	tuningSelectors     = []string{"#cifra_afi"}
	chordBodySelectors  = []string{".cifra_cnt pre", "pre"}
	artistNameSelectors = []string{"h1.t1", "h1"}
)

var (
	capoPattern   = regexp.MustCompile(`(?i)(?:capotraste\s+na\s+(\d+)|capo:?\s*(\d+))`)
	tuningPattern = regexp.MustCompile(`(?i)(?:afina(?:ção|cao)|tuning):?\s*((?:[A-G][#b]?\s*){6})`)
	keyPattern    = regexp.MustCompile(`(?i)\btom:?\s*([A-G][#b]?m?)\b`)
	noteToken     = regexp.MustCompile(`[A-G][#b]?`)
)

// Links returns every same-site anchor under selector as a scraped record
// whose Href is the cleaned site-relative path. Foreign links are dropped.
func Links(origin *url.URL, selector string) func(*goquery.Document) ([]catalog.ScrapedRecord, error) {
	if selector == "" {
		selector = "a[href]"
	}
	return func(doc *goquery.Document) ([]catalog.ScrapedRecord, error) {
		var records []catalog.ScrapedRecord
		doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			path, ok := normalize.PathFromHref(href, origin)
			if !ok {
				return
			}
			title := collapse(a.Text())
			if title == "" {
				title, _ = a.Attr("title")
			}
			records = append(records, catalog.ScrapedRecord{Title: collapse(title), Href: path})
		})
		return records, nil
	}
}

// ArtistSongs returns the song links on an artist page, restricted to paths
// under artistPath and tagged with the artist name from the page header.
func ArtistSongs(origin *url.URL, artistPath string) func(*goquery.Document) ([]catalog.ScrapedRecord, error) {
	prefix := normalize.NormalizeArtistPath(artistPath) + "/"
	links := Links(origin, "a[href]")
	return func(doc *goquery.Document) ([]catalog.ScrapedRecord, error) {
		all, err := links(doc)
		if err != nil {
			return nil, err
		}
		artist := normalize.StripTitleSuffixes(firstText(doc, artistNameSelectors))
		out := make([]catalog.ScrapedRecord, 0, len(all))
		for _, rec := range all {
			if !strings.HasPrefix(strings.ToLower(rec.Href)+"/", prefix) || rec.Title == "" {
				continue
			}
			if !normalize.IsValidPath(rec.Href, catalog.SearchSong) {
				continue
			}
			rec.Artist = artist
			out = append(out, rec)
		}
		return out, nil
	}
}

// Metadata reads the lightweight song header. It never touches the chord body.
func Metadata(doc *goquery.Document) (catalog.SongMetadata, error) {
	title := normalize.StripTitleSuffixes(firstText(doc, songTitleSelectors))
	if title == "" {
		return catalog.SongMetadata{}, ErrNoMetadata
	}
	meta := catalog.NewSongMetadata(title, firstText(doc, songArtistSelectors))

	header := collapse(doc.Find(".cifra_header, header, #side-menu, .cifra-column--left").Text())
	meta.SongKey = firstText(doc, songKeySelectors)
	if meta.SongKey == "" {
		if m := keyPattern.FindStringSubmatch(header); m != nil {
			meta.SongKey = m[1]
		}
	}
	if capo, ok := ParseCapo(firstText(doc, capoSelectors) + " " + header); ok {
		meta.GuitarCapo = capo
	}
	if tuning, ok := ParseTuning(firstText(doc, tuningSelectors) + " " + header); ok {
		meta.GuitarTuning = tuning
	}
	return meta, nil
}

// ChordSheet reads the chord/lyric block verbatim.
func ChordSheet(doc *goquery.Document) (catalog.ChordSheetContent, error) {
	for _, sel := range chordBodySelectors {
		if body := doc.Find(sel).First(); body.Length() > 0 {
			text := strings.Trim(body.Text(), "\n")
			if strings.TrimSpace(text) != "" {
				return catalog.ChordSheetContent{SongChords: text}, nil
			}
		}
	}
	return catalog.ChordSheetContent{}, ErrNoChords
}

// ParseCapo finds a capo position in text such as "Capo: 2" or
// "Capotraste na 2ª casa".
func ParseCapo(text string) (int, bool) {
	m := capoPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > 24 {
		return 0, false
	}
	return n, true
}

// ParseTuning finds six notes after "Afinação:" or "Tuning:" in text.
func ParseTuning(text string) ([6]string, bool) {
	var tuning [6]string
	m := tuningPattern.FindStringSubmatch(text)
	if m == nil {
		return tuning, false
	}
	notes := noteToken.FindAllString(m[1], -1)
	if len(notes) != 6 {
		return tuning, false
	}
	copy(tuning[:], notes)
	return tuning, true
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if text := collapse(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
