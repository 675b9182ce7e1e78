package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
	"github.com/JakeFAU/chordsheet-resolver/internal/metrics"
	"github.com/JakeFAU/chordsheet-resolver/internal/resolver"
)

const (
	defaultRequestTimeout = 90 * time.Second
	readinessTimeout      = 2 * time.Second
)

// Service is the resolver surface served over HTTP. *resolver.Resolver
// implements it.
type Service interface {
	ResolveArtists(ctx context.Context, text string) ([]catalog.Artist, error)
	ResolveArtistSongs(ctx context.Context, artistPath string) ([]catalog.Song, error)
	Search(ctx context.Context, q catalog.SearchQuery) (resolver.SearchResult, error)
	Metadata(ctx context.Context, rawURL string) (catalog.SongMetadata, error)
	ChordSheet(ctx context.Context, rawURL string) (catalog.ChordSheetContent, error)
	AddSong(ctx context.Context, artistPath string, song catalog.Song) ([]catalog.Song, error)
	RemoveSong(ctx context.Context, artistPath, songPath string) ([]catalog.Song, error)
	ListCached(ctx context.Context) []string
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Options tunes the Server.
type Options struct {
	// RequestTimeout bounds every request. Zero means 90s.
	RequestTimeout time.Duration
	// Readiness checks run by /readyz, by name.
	Readiness map[string]ReadinessCheck
	// IDs generates request IDs.
	IDs catalog.IDGenerator
	// APIKey, when set, is required on the song-list edit routes.
	APIKey string
}

// Server wires HTTP handlers to the resolver.
type Server struct {
	router    chi.Router
	svc       Service
	readiness map[string]ReadinessCheck
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc Service, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s := &Server{
		svc:       svc,
		readiness: opts.Readiness,
		logger:    logger,
	}

	metrics.Init()
	r := chi.NewRouter()
	r.Use(requestIDMiddleware(opts.IDs, logger))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))

		r.Get("/search", s.search)
		r.Route("/artists", func(r chi.Router) {
			r.Get("/", s.artists)
			r.Get("/cached", s.cachedArtists)
		})
		r.Route("/artist-songs", func(r chi.Router) {
			r.Get("/", s.artistSongs)
			r.Group(func(r chi.Router) {
				if opts.APIKey != "" {
					r.Use(apiKeyMiddleware(opts.APIKey))
				}
				r.Post("/add", s.addSong)
				r.Delete("/remove", s.removeSong)
			})
		})
		r.Get("/chord-sheet", s.chordSheet)
		r.Get("/song-metadata", s.songMetadata)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(s.readiness))
	for name := range s.readiness {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := map[string]string{}
	for _, name := range names {
		if err := s.readiness[name](ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
