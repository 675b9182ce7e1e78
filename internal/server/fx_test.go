package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/chordsheet-resolver/internal/config"
	"github.com/JakeFAU/chordsheet-resolver/internal/loader"
	localstorage "github.com/JakeFAU/chordsheet-resolver/internal/storage/local"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, RequestTimeout: time.Minute},
		Origin:   config.OriginConfig{BaseURL: "https://www.cifraclub.com.br", SearchPath: "/?q=%s"},
		Renderer: config.RendererConfig{Engine: config.EngineColly, MaxPages: 1},
		Loader: config.LoaderConfig{
			Strategies:         loader.DefaultStrategies(),
			MetadataStrategies: loader.MetadataStrategies(),
			BackoffStep:        time.Second,
		},
		Cache: config.CacheConfig{TTL: time.Minute},
		Artifacts: config.ArtifactsConfig{
			Backend: config.BackendLocal,
			Prefix:  "artist-songs",
			Local:   localConfig(t),
		},
	}
}

func TestBuildWiresHTTPSurface(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	require.NoError(t, cfg.Validate())
	app, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	require.NotNil(t, app.Resolver())
	assert.Equal(t, "www.cifraclub.com.br", app.Resolver().Origin().Host)

	for _, path := range []string{"/healthz", "/readyz", "/artists/cached"} {
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chord-sheet?url=https://evil.example.com/a/b/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuildFailsOnUnreachableIndex(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Index.DSN = "not a dsn"
	cfg.Index.Limit = 20
	_, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "artist index init failed")
}

func TestCloseIsSafeOnEmptyApp(t *testing.T) {
	t.Parallel()

	app := &App{logger: zap.NewNop()}
	require.NoError(t, app.Close(context.Background()))
}

func localConfig(t *testing.T) localstorage.Config {
	t.Helper()
	return localstorage.Config{BaseDir: t.TempDir()}
}
