// Package server builds the resolver's dependency graph and runs the HTTP
// server until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/chordsheet-resolver/internal/api"
	"github.com/JakeFAU/chordsheet-resolver/internal/artifacts"
	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
	"github.com/JakeFAU/chordsheet-resolver/internal/clock/system"
	"github.com/JakeFAU/chordsheet-resolver/internal/config"
	"github.com/JakeFAU/chordsheet-resolver/internal/id/uuid"
	"github.com/JakeFAU/chordsheet-resolver/internal/loader"
	"github.com/JakeFAU/chordsheet-resolver/internal/logging"
	"github.com/JakeFAU/chordsheet-resolver/internal/metrics"
	memorypublisher "github.com/JakeFAU/chordsheet-resolver/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/chordsheet-resolver/internal/publisher/pubsub"
	"github.com/JakeFAU/chordsheet-resolver/internal/render"
	"github.com/JakeFAU/chordsheet-resolver/internal/resolver"
	"github.com/JakeFAU/chordsheet-resolver/internal/sheetcache"
	blobstorage "github.com/JakeFAU/chordsheet-resolver/internal/storage"
	gcsstorage "github.com/JakeFAU/chordsheet-resolver/internal/storage/gcs"
	localstorage "github.com/JakeFAU/chordsheet-resolver/internal/storage/local"
	memorystorage "github.com/JakeFAU/chordsheet-resolver/internal/storage/memory"
	miniostorage "github.com/JakeFAU/chordsheet-resolver/internal/storage/minio"
	pgstore "github.com/JakeFAU/chordsheet-resolver/internal/storage/postgres"
	redisstorage "github.com/JakeFAU/chordsheet-resolver/internal/storage/redis"
)

// readyProbeKey is looked up by the artifact readiness check. Its absence is
// the expected answer.
const readyProbeKey = ".ready"

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	browser   *render.Browser
	resolver  *resolver.Resolver
	apiServer *api.Server
	blobs     blobstorage.BlobStore
	gcs       *storage.Client
	redis     *redisstorage.BlobStore
	index     *pgstore.ArtistIndex
	publisher *gcppublisher.Publisher

	closeOnce sync.Once
	closeErr  error
}

// Build creates the application's dependencies. Nothing touches the origin
// until the first request: the renderer starts lazily.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.NewWithOptions(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		File:        cfg.Logging.File,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("origin", cfg.Origin.BaseURL),
		zap.String("renderer", cfg.Renderer.Engine),
		zap.String("artifacts", cfg.Artifacts.Backend),
		zap.Bool("index", cfg.Index.DSN != ""),
	)
	metrics.Init()

	if err := app.build(ctx); err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	origin, err := a.cfg.OriginURL()
	if err != nil {
		return err
	}

	a.browser = setupRenderer(a.cfg, a.logger)

	contentLoader, err := loader.New(a.cfg.Loader.ContentLoader(), a.logger.Named("loader"),
		loader.WithObserver(metrics.Loader{}))
	if err != nil {
		return fmt.Errorf("content loader init failed: %w", err)
	}
	metaLoader, err := loader.New(a.cfg.Loader.MetadataLoader(), a.logger.Named("metadata_loader"),
		loader.WithObserver(metrics.Loader{}))
	if err != nil {
		return fmt.Errorf("metadata loader init failed: %w", err)
	}

	if a.blobs, err = a.setupStorage(ctx); err != nil {
		return err
	}
	if err := a.setupIndex(ctx); err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}

	deps := resolver.Deps{
		Pages:          a.browser,
		Loader:         contentLoader,
		MetadataLoader: metaLoader,
		Store:          artifacts.New(a.blobs, a.cfg.Artifacts.Prefix, a.logger.Named("artifacts")),
		Publisher:      publisher,
		IDs:            uuid.NewUUIDGenerator(),
	}
	if a.index != nil {
		deps.Index = a.index
	}
	a.resolver, err = resolver.New(resolver.Config{
		Origin:         origin,
		SearchPath:     a.cfg.Origin.SearchPath,
		SearchSelector: a.cfg.Origin.SearchSelector,
		Topic:          a.cfg.Events.Topic,
	}, deps,
		resolver.WithLogger(a.logger.Named("resolver")),
		resolver.WithObserver(metrics.Resolver{}),
		resolver.WithClock(system.New()),
		resolver.WithCacheOptions(
			sheetcache.WithTTL(a.cfg.Cache.TTL),
			sheetcache.WithObserver(metrics.SheetCache{}),
			sheetcache.WithLogger(a.logger.Named("sheetcache")),
		),
	)
	if err != nil {
		return fmt.Errorf("resolver init failed: %w", err)
	}

	apiKey := ""
	if a.cfg.Auth.Enabled {
		apiKey = a.cfg.Auth.APIKey
	}
	a.apiServer = api.NewServer(a.resolver, api.Options{
		RequestTimeout: a.cfg.Server.RequestTimeout,
		Readiness:      a.readiness(),
		IDs:            uuid.NewUUIDGenerator(),
		APIKey:         apiKey,
	}, a.logger.Named("api"))
	return nil
}

func setupRenderer(cfg *config.Config, logger *zap.Logger) *render.Browser {
	var factory render.EngineFactory
	switch cfg.Renderer.Engine {
	case config.EngineColly:
		factory = func(context.Context) (render.Engine, error) {
			return render.NewCollyEngine(render.CollyConfig{UserAgent: cfg.Origin.UserAgent}, nil, logger.Named("colly")), nil
		}
	default:
		factory = func(ctx context.Context) (render.Engine, error) {
			engine, err := render.NewChromedpEngine(ctx, render.ChromedpConfig{
				Headless:  cfg.Renderer.Headless,
				UserAgent: cfg.Origin.UserAgent,
			}, logger.Named("chromedp"))
			if err != nil {
				return nil, err
			}
			return engine, nil
		}
	}
	logger.Info("renderer configured",
		zap.String("engine", cfg.Renderer.Engine),
		zap.Int("max_pages", cfg.Renderer.MaxPages),
		zap.Float64("domain_qps", cfg.Renderer.DomainQPS),
	)
	return render.NewBrowser(factory, render.Options{
		MaxPages:  cfg.Renderer.MaxPages,
		DomainQPS: cfg.Renderer.DomainQPS,
		Observer:  metrics.Renderer{},
	}, logger.Named("renderer"))
}

func (a *App) setupStorage(ctx context.Context) (blobstorage.BlobStore, error) {
	switch a.cfg.Artifacts.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS artifact backend", zap.String("bucket", a.cfg.Artifacts.GCS.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcs = client
		blobs, err := gcsstorage.New(client, a.cfg.Artifacts.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case config.BackendMinio:
		a.logger.Info("using MinIO artifact backend",
			zap.String("endpoint", a.cfg.Artifacts.Minio.Endpoint),
			zap.String("bucket", a.cfg.Artifacts.Minio.Bucket))
		blobs, err := miniostorage.New(ctx, a.cfg.Artifacts.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio blob store init failed: %w", err)
		}
		return blobs, nil
	case config.BackendRedis:
		a.logger.Info("using Redis artifact backend", zap.String("addr", a.cfg.Artifacts.Redis.Addr))
		blobs, err := redisstorage.New(ctx, a.cfg.Artifacts.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis blob store init failed: %w", err)
		}
		a.redis = blobs
		return blobs, nil
	case config.BackendLocal:
		a.logger.Info("using local artifact backend", zap.String("path", a.cfg.Artifacts.Local.BaseDir))
		blobs, err := localstorage.New(a.cfg.Artifacts.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	default:
		a.logger.Info("using in-memory artifact backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupIndex(ctx context.Context) error {
	if a.cfg.Index.DSN == "" {
		a.logger.Warn("no index DSN configured; artist lookups always search the origin")
		return nil
	}
	index, err := pgstore.NewArtistIndex(ctx, a.cfg.Index)
	if err != nil {
		return fmt.Errorf("artist index init failed: %w", err)
	}
	a.index = index
	a.logger.Info("artist index initialized", zap.String("table", a.cfg.Index.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (catalog.Publisher, error) {
	if a.cfg.Events.Topic == "" || a.cfg.Events.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	publisher, err := gcppublisher.Dial(ctx, a.cfg.Events.ProjectID, a.cfg.Events.Topic)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = publisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.Events.ProjectID),
		zap.String("topic", a.cfg.Events.Topic),
	)
	return publisher, nil
}

func (a *App) readiness() map[string]api.ReadinessCheck {
	checks := map[string]api.ReadinessCheck{
		"artifacts": func(ctx context.Context) error {
			_, err := a.blobs.GetObject(ctx, a.cfg.Artifacts.Prefix+"/"+readyProbeKey)
			if err == nil || errors.Is(err, blobstorage.ErrNotFound) {
				return nil
			}
			return err
		},
	}
	if a.index != nil {
		checks["index"] = a.index.Ping
	}
	return checks
}

// Resolver exposes the wired resolver (CLI commands).
func (a *App) Resolver() *resolver.Resolver {
	return a.resolver
}

// Service exposes the resolver through the interface the API serves.
func (a *App) Service() api.Service {
	return a.resolver
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the HTTP server and blocks until ctx is canceled or a signal
// arrives, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return closeErr
}

// Close releases the renderer and every backend client. It is safe to call
// on a partially built App and more than once.
func (a *App) Close(_ context.Context) error {
	a.closeOnce.Do(func() { a.closeErr = a.close() })
	return a.closeErr
}

func (a *App) close() error {
	var errs []error
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("renderer close: %w", err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.index != nil {
		a.index.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
