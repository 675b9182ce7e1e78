package redis

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chordsheet-resolver/internal/storage"
)

var _ storage.BlobStore = (*BlobStore)(nil)

// fakeRedis answers commands from a map using go-redis result constructors.
type fakeRedis struct {
	data     map[string]string
	lastTTL  time.Duration
	scanErr  error
	scanSize int
	closed   bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, scanSize: 1}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	b, ok := value.([]byte)
	if !ok {
		return redis.NewStatusResult("", errors.New("unexpected value type"))
	}
	f.data[key] = string(b)
	f.lastTTL = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// Scan pages through sorted keys scanSize at a time; cursor is the offset.
func (f *fakeRedis) Scan(_ context.Context, cursor uint64, match string, _ int64) *redis.ScanCmd {
	if f.scanErr != nil {
		return redis.NewScanCmdResult(nil, 0, f.scanErr)
	}
	prefix := match[:len(match)-1]
	var keys []string
	for k := range f.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	start := int(cursor)
	if start >= len(keys) {
		return redis.NewScanCmdResult(nil, 0, nil)
	}
	end := start + f.scanSize
	next := uint64(end)
	if end >= len(keys) {
		end = len(keys)
		next = 0
	}
	// sort for a stable page order
	sorted := append([]string(nil), keys...)
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j] < sorted[i] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	return redis.NewScanCmdResult(sorted[start:end], next, nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	store := &BlobStore{client: fake, ttl: time.Hour}
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "artist-songs/oasis.json", "application/json", bytes.NewReader([]byte("[1]")))
	require.NoError(t, err)
	assert.Equal(t, "redis://artist-songs/oasis.json", uri)
	assert.Equal(t, time.Hour, fake.lastTTL)

	got, err := store.GetObject(ctx, "artist-songs/oasis.json")
	require.NoError(t, err)
	assert.Equal(t, "[1]", string(got))

	require.NoError(t, store.DeleteObject(ctx, "artist-songs/oasis.json"))
	_, err = store.GetObject(ctx, "artist-songs/oasis.json")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Close())
	assert.True(t, fake.closed)
}

func TestBlobStoreListPagesThroughScan(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	for _, k := range []string{"artist-songs/c.json", "artist-songs/a.json", "artist-songs/b.json", "other"} {
		fake.data[k] = "[]"
	}
	store := &BlobStore{client: fake}

	keys, err := store.ListObjects(context.Background(), "artist-songs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"artist-songs/a.json", "artist-songs/b.json", "artist-songs/c.json"}, keys)

	fake.scanErr = errors.New("LOADING")
	_, err = store.ListObjects(context.Background(), "artist-songs/")
	require.Error(t, err)
}

func TestNewRequiresAddr(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
