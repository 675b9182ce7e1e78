package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
)

func intPtr(n int) *int { return &n }

func TestSearchArtistsReturnsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx, err := NewArtistIndexWithPool(mock, "artists", 5)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"name", "slug", "song_count"}).
		AddRow("Oasis", "oasis", intPtr(212)).
		AddRow("Oasis Tribute", "oasis-tribute", (*int)(nil))
	mock.ExpectQuery("SELECT name, slug, song_count").
		WithArgs("%oasis%", "oasis", 5).
		WillReturnRows(rows)

	got, err := idx.SearchArtists(context.Background(), "  oasis ")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, catalog.IndexRecord{Name: "Oasis", Slug: "oasis", SongCount: intPtr(212)}, got[0])
	assert.Nil(t, got[1].SongCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchArtistsEscapesWildcards(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx, err := NewArtistIndexWithPool(mock, "", 0)
	require.NoError(t, err)

	mock.ExpectQuery("FROM artists").
		WithArgs(`%100\% pure\_%`, "100% pure_", defaultLimit).
		WillReturnRows(pgxmock.NewRows([]string{"name", "slug", "song_count"}))

	got, err := idx.SearchArtists(context.Background(), "100% pure_")
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchArtistsReturnsQueryError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx, err := NewArtistIndexWithPool(mock, "artists", 5)
	require.NoError(t, err)

	mock.ExpectQuery("FROM artists").WillReturnError(errors.New("relation does not exist"))

	_, err = idx.SearchArtists(context.Background(), "oasis")
	require.ErrorContains(t, err, "relation does not exist")
}

func TestSearchArtistsBlankTextSkipsQuery(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx, err := NewArtistIndexWithPool(mock, "artists", 5)
	require.NoError(t, err)

	got, err := idx.SearchArtists(context.Background(), " ")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewArtistIndexWithPoolValidates(t *testing.T) {
	t.Parallel()

	_, err := NewArtistIndexWithPool(nil, "artists", 1)
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewArtistIndexWithPool(mock, "artists; drop table x", 1)
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mock.Close()

	idx, err := NewArtistIndexWithPool(mock, "artists", 1)
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, idx.Ping(context.Background()))
	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.Error(t, idx.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewArtistIndexRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewArtistIndex(context.Background(), ArtistIndexConfig{})
	require.Error(t, err)
}
