package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type typedEvent struct {
	ArtistPath string `json:"artist_path"`
}

func (typedEvent) EventType() string { return "artist_songs.cached" }

func TestPublishDeliversJSON(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)

	topic, err := client.CreateTopic(ctx, "artist-songs")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "sub-id", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	pub := New(client, "artist-songs")
	id, err := pub.Publish(ctx, "", typedEvent{ArtistPath: "oasis"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	received := make(chan *pubsub.Message, 1)
	recvCtx, stop := context.WithCancel(ctx)
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case received <- msg:
			default:
			}
		})
	}()

	select {
	case msg := <-received:
		var got typedEvent
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "oasis", got.ArtistPath)
		assert.Equal(t, "artist_songs.cached", msg.Attributes["event_type"])
	case <-ctx.Done():
		t.Fatal("message not received")
	}
	stop()

	require.NoError(t, pub.Close())
}

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "t").Publish(context.Background(), "", "x")
	require.Error(t, err)
	require.NoError(t, New(nil, "t").Close())
}
