// Package artifacts persists artist -> song-list artifacts on a blob store.
// Every read failure is logged and reported as a miss; the store never turns
// a request into an error except through Mutate.
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
	"github.com/JakeFAU/chordsheet-resolver/internal/normalize"
	"github.com/JakeFAU/chordsheet-resolver/internal/storage"
)

// DefaultPrefix is the object-key prefix for song-list artifacts.
const DefaultPrefix = "artist-songs"

const contentType = "application/json"

// Store implements catalog.SongListStore.
type Store struct {
	blobs  storage.BlobStore
	prefix string
	logger *zap.Logger
	locks  keyLocks
}

var _ catalog.SongListStore = (*Store)(nil)

// New wraps blobs. An empty prefix means DefaultPrefix.
func New(blobs storage.BlobStore, prefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		blobs:  blobs,
		prefix: prefix,
		logger: logger,
		locks:  keyLocks{held: make(map[string]*keyLock)},
	}
}

// ObjectKey maps an artist path to its blob key.
func (s *Store) ObjectKey(artistPath string) string {
	return s.prefix + "/" + normalize.NormalizeArtistPath(artistPath) + ".json"
}

// Get returns the stored list, or nil on a miss or any failure.
func (s *Store) Get(ctx context.Context, key string) []catalog.Song {
	songs, err := s.read(ctx, key)
	if err != nil {
		s.logger.Warn("artifact read failed, treating as miss",
			zap.String("key", key), zap.Error(err))
		return nil
	}
	return songs
}

// Put stores songs under key and reports whether the write succeeded.
// Empty lists are refused.
func (s *Store) Put(ctx context.Context, key string, songs []catalog.Song) bool {
	if len(songs) == 0 {
		s.logger.Warn("refusing to store empty song list", zap.String("key", key))
		return false
	}
	if err := s.write(ctx, key, songs); err != nil {
		s.logger.Warn("artifact write failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// List returns the artist paths with a stored artifact. Failures yield nil.
func (s *Store) List(ctx context.Context) []string {
	objects, err := s.blobs.ListObjects(ctx, s.prefix+"/")
	if err != nil {
		s.logger.Warn("artifact list failed", zap.Error(err))
		return nil
	}
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		name := strings.TrimPrefix(obj, s.prefix+"/")
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	return keys
}

// Mutate runs a locked read-modify-write of key. See catalog.SongListStore.
func (s *Store) Mutate(ctx context.Context, key string, fn func([]catalog.Song) []catalog.Song) ([]catalog.Song, error) {
	unlock := s.locks.lock(s.ObjectKey(key))
	defer unlock()

	current, err := s.read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	next := fn(current)
	if len(next) == 0 {
		if err := s.blobs.DeleteObject(ctx, s.ObjectKey(key)); err != nil {
			return nil, fmt.Errorf("delete %s: %w", key, err)
		}
		return nil, nil
	}
	if err := s.write(ctx, key, next); err != nil {
		return nil, err
	}
	return next, nil
}

// read returns nil, nil on a miss.
func (s *Store) read(ctx context.Context, key string) ([]catalog.Song, error) {
	body, err := s.blobs.GetObject(ctx, s.ObjectKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	var songs []catalog.Song
	if err := json.Unmarshal(body, &songs); err != nil {
		return nil, fmt.Errorf("decode song list: %w", err)
	}
	return songs, nil
}

func (s *Store) write(ctx context.Context, key string, songs []catalog.Song) error {
	body, err := json.Marshal(songs)
	if err != nil {
		return fmt.Errorf("encode song list: %w", err)
	}
	uri, err := s.blobs.PutObject(ctx, s.ObjectKey(key), contentType, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	s.logger.Debug("artifact stored", zap.String("uri", uri), zap.Int("songs", len(songs)))
	return nil
}

// keyLocks hands out one mutex per key and forgets it when no one holds it.
type keyLocks struct {
	mu   sync.Mutex
	held map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (l *keyLocks) lock(key string) func() {
	l.mu.Lock()
	kl, ok := l.held[key]
	if !ok {
		kl = &keyLock{}
		l.held[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.held, key)
		}
		l.mu.Unlock()
	}
}
