// Package catalog defines the canonical artist, song, and chord-sheet types
// shared by the resolver, the normalizer, the extraction cache, and the HTTP
// surface, together with the collaborator interfaces they depend on.
package catalog
