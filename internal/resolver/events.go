package resolver

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event types published on artifact changes.
const (
	EventArtistSongsCached  = "artist_songs.cached"
	EventArtistSongsUpdated = "artist_songs.updated"
)

// Mutation actions carried by EventArtistSongsUpdated.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// ArtistSongsEvent describes a change to a stored song list.
type ArtistSongsEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ArtistPath string    `json:"artist_path"`
	SongCount  int       `json:"song_count"`
	Action     string    `json:"action,omitempty"`
	At         time.Time `json:"at"`
}

// EventType is used as the message attribute by the Pub/Sub publisher.
func (e ArtistSongsEvent) EventType() string { return e.Type }

// publish sends an event and logs, never returns, failures.
func (r *Resolver) publish(ctx context.Context, eventType, artistPath string, songCount int, action string) {
	if r.publisher == nil {
		return
	}
	event := ArtistSongsEvent{
		Type:       eventType,
		ArtistPath: artistPath,
		SongCount:  songCount,
		Action:     action,
		At:         r.now(),
	}
	if r.ids != nil {
		id, err := r.ids.NewID()
		if err != nil {
			r.logger.Warn("event id generation failed", zap.Error(err))
		}
		event.ID = id
	}
	msgID, err := r.publisher.Publish(ctx, r.cfg.Topic, event)
	if err != nil {
		r.logger.Warn("publish event failed",
			zap.String("type", eventType), zap.String("artist", artistPath), zap.Error(err))
		return
	}
	r.logger.Debug("event published", zap.String("type", eventType), zap.String("message_id", msgID))
}
