package catalog

// RecordSource tags where a raw record came from.
type RecordSource string

// Raw record sources.
const (
	SourceIndex   RecordSource = "index"
	SourceScraped RecordSource = "scraped"
)

// RawRecord is an un-normalized record from either the artist index or a
// rendered page. Only IndexRecord and ScrapedRecord implement it; the
// normalizer is the single place that turns them into Artist or Song values.
type RawRecord interface {
	Source() RecordSource
}

// IndexRecord is a row returned by the authoritative artist index.
type IndexRecord struct {
	Name      string
	Slug      string
	SongCount *int
}

// Source implements RawRecord.
func (IndexRecord) Source() RecordSource { return SourceIndex }

// ScrapedRecord is a link extracted from a rendered origin page. Href may be
// absolute or relative; Artist is optional.
type ScrapedRecord struct {
	Title  string
	Href   string
	Artist string
}

// Source implements RawRecord.
func (ScrapedRecord) Source() RecordSource { return SourceScraped }

// RecordFromSong converts a canonical song back into a raw record so it can be
// re-validated (for example when a client submits a song to add).
func RecordFromSong(s Song) ScrapedRecord {
	return ScrapedRecord{Title: s.Title, Href: s.Path, Artist: s.Artist}
}
