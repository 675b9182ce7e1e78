// Package config loads and validates resolver configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/chordsheet-resolver/internal/loader"
	"github.com/JakeFAU/chordsheet-resolver/internal/storage/gcs"
	"github.com/JakeFAU/chordsheet-resolver/internal/storage/local"
	"github.com/JakeFAU/chordsheet-resolver/internal/storage/minio"
	"github.com/JakeFAU/chordsheet-resolver/internal/storage/postgres"
	"github.com/JakeFAU/chordsheet-resolver/internal/storage/redis"
)

// EnvPrefix prefixes every environment override, e.g. CHORDS_SERVER_PORT.
const EnvPrefix = "CHORDS"

// Renderer engines.
const (
	EngineChromedp = "chromedp"
	EngineColly    = "colly"
)

// Artifact backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMinio  = "minio"
	BackendRedis  = "redis"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Origin    OriginConfig    `mapstructure:"origin"`
	Renderer  RendererConfig  `mapstructure:"renderer"`
	Loader    LoaderConfig    `mapstructure:"loader"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Index     IndexConfig     `mapstructure:"index"`
	Events    EventsConfig    `mapstructure:"events"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig guards the song-list edit routes.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// OriginConfig describes the chord-sheet site.
type OriginConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	SearchPath     string `mapstructure:"search_path"`
	SearchSelector string `mapstructure:"search_selector"`
	UserAgent      string `mapstructure:"user_agent"`
}

// RendererConfig configures the page renderer.
type RendererConfig struct {
	Engine    string  `mapstructure:"engine"`
	MaxPages  int     `mapstructure:"max_pages"`
	DomainQPS float64 `mapstructure:"domain_qps"`
	Headless  bool    `mapstructure:"headless"`
}

// LoaderConfig holds both strategy sets and the shared retry knobs.
type LoaderConfig struct {
	Strategies         []loader.Strategy `mapstructure:"strategies"`
	MetadataStrategies []loader.Strategy `mapstructure:"metadata_strategies"`
	BackoffStep        time.Duration     `mapstructure:"backoff_step"`
	BackoffMax         time.Duration     `mapstructure:"backoff_max"`
	ReadyTimeout       time.Duration     `mapstructure:"ready_timeout"`
}

// CacheConfig configures the chord-sheet cache.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// ArtifactsConfig selects and configures the song-list blob backend.
type ArtifactsConfig struct {
	Backend string       `mapstructure:"backend"`
	Prefix  string       `mapstructure:"prefix"`
	Local   local.Config `mapstructure:"local"`
	GCS     gcs.Config   `mapstructure:"gcs"`
	Minio   minio.Config `mapstructure:"minio"`
	Redis   redis.Config `mapstructure:"redis"`
}

// IndexConfig configures the Postgres artist index. An empty DSN disables it.
type IndexConfig = postgres.ArtistIndexConfig

// EventsConfig configures artifact change events. An empty topic keeps them
// in memory.
type EventsConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features and file output.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
}

// Load builds a Config from disk/environment. With an empty path, a
// config.yaml in the working directory or /etc/chordsheet-resolver is used
// when present.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/chordsheet-resolver/")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("origin.base_url", "https://www.cifraclub.com.br")
	v.SetDefault("origin.search_path", "/?q=%s")
	v.SetDefault("origin.search_selector", "")
	v.SetDefault("origin.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	v.SetDefault("renderer.engine", EngineChromedp)
	v.SetDefault("renderer.max_pages", 1)
	v.SetDefault("renderer.domain_qps", 0)
	v.SetDefault("renderer.headless", true)
	v.SetDefault("loader.strategies", strategyDefaults(loader.DefaultStrategies()))
	v.SetDefault("loader.metadata_strategies", strategyDefaults(loader.MetadataStrategies()))
	v.SetDefault("loader.backoff_step", "2s")
	v.SetDefault("loader.backoff_max", "5s")
	v.SetDefault("loader.ready_timeout", "5s")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("artifacts.backend", BackendMemory)
	v.SetDefault("artifacts.prefix", "artist-songs")
	v.SetDefault("artifacts.local.base_dir", "data/artifacts")
	v.SetDefault("artifacts.gcs.bucket", "")
	v.SetDefault("artifacts.minio.endpoint", "")
	v.SetDefault("artifacts.minio.access_key", "")
	v.SetDefault("artifacts.minio.secret_key", "")
	v.SetDefault("artifacts.minio.bucket", "")
	v.SetDefault("artifacts.minio.region", "")
	v.SetDefault("artifacts.minio.use_ssl", true)
	v.SetDefault("artifacts.redis.addr", "localhost:6379")
	v.SetDefault("artifacts.redis.password", "")
	v.SetDefault("artifacts.redis.db", 0)
	v.SetDefault("artifacts.redis.ttl", "0s")
	v.SetDefault("index.dsn", "")
	v.SetDefault("index.table", "artists")
	v.SetDefault("index.limit", 20)
	v.SetDefault("index.max_conns", 4)
	v.SetDefault("index.min_conns", 0)
	v.SetDefault("index.max_conn_lifetime", "30m")
	v.SetDefault("events.project_id", "")
	v.SetDefault("events.topic", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.file", "")
}

func strategyDefaults(strategies []loader.Strategy) []map[string]any {
	out := make([]map[string]any, 0, len(strategies))
	for _, s := range strategies {
		out = append(out, map[string]any{
			"name":    s.Name,
			"wait":    string(s.Wait),
			"timeout": s.Timeout.String(),
			"settle":  s.Settle.String(),
		})
	}
	return out
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if _, err := c.OriginURL(); err != nil {
		return err
	}
	if strings.Count(c.Origin.SearchPath, "%s") != 1 {
		return fmt.Errorf("origin.search_path must contain exactly one %%s")
	}
	switch c.Renderer.Engine {
	case EngineChromedp, EngineColly:
	default:
		return fmt.Errorf("renderer.engine must be %q or %q, got %q", EngineChromedp, EngineColly, c.Renderer.Engine)
	}
	if c.Renderer.MaxPages <= 0 {
		return fmt.Errorf("renderer.max_pages must be > 0")
	}
	if c.Renderer.DomainQPS < 0 {
		return fmt.Errorf("renderer.domain_qps must be >= 0")
	}
	if err := loader.ValidateStrategies(c.Loader.Strategies); err != nil {
		return fmt.Errorf("loader.strategies: %w", err)
	}
	if err := loader.ValidateStrategies(c.Loader.MetadataStrategies); err != nil {
		return fmt.Errorf("loader.metadata_strategies: %w", err)
	}
	if c.Loader.BackoffStep < 0 || c.Loader.BackoffMax < 0 {
		return fmt.Errorf("loader backoff must be >= 0")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0")
	}
	if err := c.Artifacts.validate(); err != nil {
		return err
	}
	if c.Index.DSN != "" && c.Index.Limit <= 0 {
		return fmt.Errorf("index.limit must be > 0")
	}
	if c.Events.Topic != "" && c.Events.ProjectID == "" {
		return fmt.Errorf("events.project_id must be set when events.topic is set")
	}
	return nil
}

func (a ArtifactsConfig) validate() error {
	switch a.Backend {
	case BackendMemory:
	case BackendLocal:
		if strings.TrimSpace(a.Local.BaseDir) == "" {
			return fmt.Errorf("artifacts.local.base_dir is required for the local backend")
		}
	case BackendGCS:
		if a.GCS.Bucket == "" {
			return fmt.Errorf("artifacts.gcs.bucket is required for the gcs backend")
		}
	case BackendMinio:
		if a.Minio.Endpoint == "" || a.Minio.Bucket == "" {
			return fmt.Errorf("artifacts.minio.endpoint and artifacts.minio.bucket are required for the minio backend")
		}
	case BackendRedis:
		if a.Redis.Addr == "" {
			return fmt.Errorf("artifacts.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("artifacts.backend %q is not supported", a.Backend)
	}
	if strings.Trim(a.Prefix, "/") == "" {
		return fmt.Errorf("artifacts.prefix must not be empty")
	}
	return nil
}

// OriginURL parses origin.base_url. Only absolute http(s) URLs are accepted.
func (c Config) OriginURL() (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(c.Origin.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("origin.base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("origin.base_url must be an absolute http(s) URL, got %q", c.Origin.BaseURL)
	}
	return u, nil
}

// ContentLoader is the loader configuration for full page loads.
func (l LoaderConfig) ContentLoader() loader.Config {
	return loader.Config{Strategies: l.Strategies, Backoff: l.backoff(), ReadyTimeout: l.ReadyTimeout}
}

// MetadataLoader is the loader configuration for header-only loads.
func (l LoaderConfig) MetadataLoader() loader.Config {
	return loader.Config{Strategies: l.MetadataStrategies, Backoff: l.backoff(), ReadyTimeout: l.ReadyTimeout}
}

func (l LoaderConfig) backoff() loader.Backoff {
	return loader.Backoff{Step: l.BackoffStep, Max: l.BackoffMax}
}
