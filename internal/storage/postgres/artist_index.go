// Package postgres provides the Postgres-backed artist index.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	defaultTable = "artists"
	defaultLimit = 20
)

// ArtistIndexConfig controls the Postgres connection pool used for artist lookups.
type ArtistIndexConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	Limit           int           `mapstructure:"limit"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type queryCloser interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// ArtistIndex searches a table of (name, slug, song_count) rows.
type ArtistIndex struct {
	pool  queryCloser
	table string
	limit int
}

var _ catalog.ArtistIndex = (*ArtistIndex)(nil)

// NewArtistIndex connects a pool using cfg.
func NewArtistIndex(ctx context.Context, cfg ArtistIndexConfig) (*ArtistIndex, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("index.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	idx, err := NewArtistIndexWithPool(pool, cfg.Table, cfg.Limit)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

// NewArtistIndexWithPool constructs an index from an existing pool (primarily for testing).
func NewArtistIndexWithPool(pool queryCloser, table string, limit int) (*ArtistIndex, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	return &ArtistIndex{pool: pool, table: table, limit: limit}, nil
}

// Close releases the underlying pool resources.
func (x *ArtistIndex) Close() {
	if x == nil || x.pool == nil {
		return
	}
	x.pool.Close()
}

// Ping checks connectivity for readiness probes.
func (x *ArtistIndex) Ping(ctx context.Context) error {
	if err := x.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// SearchArtists returns rows whose name or slug contains text, exact name
// matches first, then by song count.
func (x *ArtistIndex) SearchArtists(ctx context.Context, text string) ([]catalog.IndexRecord, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT name, slug, song_count
		FROM %s
		WHERE name ILIKE $1 OR slug ILIKE $1
		ORDER BY lower(name) = lower($2) DESC, song_count DESC NULLS LAST, name
		LIMIT $3;
	`, x.table)
	rows, err := x.pool.Query(ctx, query, "%"+escapeLike(text)+"%", text, x.limit)
	if err != nil {
		return nil, fmt.Errorf("search artists: %w", err)
	}
	defer rows.Close()

	var records []catalog.IndexRecord
	for rows.Next() {
		var rec catalog.IndexRecord
		if err := rows.Scan(&rec.Name, &rec.Slug, &rec.SongCount); err != nil {
			return nil, fmt.Errorf("scan artist row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artist rows: %w", err)
	}
	return records, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
