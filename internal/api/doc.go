// Package api hosts the HTTP server, middleware, and REST handlers of the
// resolver. Notable routes:
//   - GET /healthz and /readyz for probes, GET /metrics for Prometheus.
//   - GET /artists, /artist-songs, /search for catalog lookups.
//   - GET /chord-sheet and /song-metadata for chord-sheet pages.
//   - POST /artist-songs/add and DELETE /artist-songs/remove to edit a
//     stored song list directly.
package api
