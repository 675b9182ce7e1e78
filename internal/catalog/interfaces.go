package catalog

import (
	"context"
	"time"
)

// ArtistIndex is the authoritative relational store used for fuzzy artist
// lookup. Errors are returned, never panicked, and callers treat them as a miss.
type ArtistIndex interface {
	SearchArtists(ctx context.Context, text string) ([]IndexRecord, error)
}

// SongListStore is the persistent artist -> song-list artifact cache.
// Get returns nil on a miss or any failure. Put reports false on failure and
// must never be called with an empty list.
//
// Mutate is a serialized read-modify-write of one key: fn receives the stored
// list (nil on a miss) and returns the list to store. An empty result deletes
// the artifact. Unlike Get, Mutate reports read failures so an unreadable
// list is never overwritten.
type SongListStore interface {
	Get(ctx context.Context, key string) []Song
	Put(ctx context.Context, key string, songs []Song) bool
	List(ctx context.Context) []string
	Mutate(ctx context.Context, key string, fn func([]Song) []Song) ([]Song, error)
}

// Publisher pushes artifact change events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator yields unique identifiers for events and requests.
type IDGenerator interface {
	NewID() (string, error)
}
