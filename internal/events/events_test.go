package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/sources"
)

func TestPublishActivity(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	listener := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer listener.Close()

	sub := listener.Subscribe(context.Background(), "listenparty.events")
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	pub := NewPublisher(rdb, "listenparty.events")
	track := sources.Track{ID: "a", Title: "A", Source: sources.SourceYouTube}
	pub.Observe(player.Activity{Type: player.ActivityTrackStarted, GuildID: "g1", Track: &track})

	select {
	case msg := <-sub.Channel():
		var got player.Activity
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, player.ActivityTrackStarted, got.Type)
		assert.Equal(t, "g1", got.GuildID)
		require.NotNil(t, got.Track)
		assert.Equal(t, "a", got.Track.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("activity was not published")
	}

	require.NoError(t, pub.Close())
	assert.ErrorIs(t, pub.Close(), ErrPublisherClosed)
	pub.Observe(player.Activity{Type: player.ActivitySessionClosed})
}

func TestSubscribeRelaysPayloads(t *testing.T) {
	mr := miniredis.RunT(t)
	pub := NewPublisher(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "ch")
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []byte, 1)
	errc := make(chan error, 1)
	go func() { errc <- pub.Subscribe(ctx, func(b []byte) { got <- b }) }()

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("ch")) == 1
	}, time.Second, 10*time.Millisecond)
	mr.Publish("ch", `{"type":"session.closed"}`)

	select {
	case b := <-got:
		assert.JSONEq(t, `{"type":"session.closed"}`, string(b))
	case <-time.After(2 * time.Second):
		t.Fatal("payload not relayed")
	}

	cancel()
	assert.NoError(t, <-errc)
}

func TestDialRejectsBadURL(t *testing.T) {
	_, err := Dial(context.Background(), "not-a-url", "ch")
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	pub, err := Dial(context.Background(), "redis://"+mr.Addr(), "ch")
	require.NoError(t, err)
	assert.Equal(t, "ch", pub.Channel())
	require.NoError(t, pub.Close())
}
