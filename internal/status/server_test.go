package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/player/playertest"
	"github.com/keshon/listenparty/internal/music/presence"
	"github.com/keshon/listenparty/internal/music/registry"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New(registry.Options{
		Connector:   playertest.NewConnector(),
		Roster:      presence.NewTracker(),
		IdleTimeout: time.Minute,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r
}

func TestHealthAndSessions(t *testing.T) {
	reg := newRegistry(t)
	_, _, err := reg.Connect(context.Background(), registry.ConnectRequest{GuildID: "g1", ChannelID: "vc1", UserID: "dj"})
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(reg).Router())
	defer srv.Close()

	t.Run("healthz", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
		assert.EqualValues(t, 1, body["sessions"])
	})

	t.Run("list", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/sessions")
		require.NoError(t, err)
		defer resp.Body.Close()

		var snaps []player.Snapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snaps))
		require.Len(t, snaps, 1)
		assert.Equal(t, "g1", snaps[0].GuildID)
		assert.Equal(t, "dj", snaps[0].DJ)
	})

	t.Run("one", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/sessions/g1")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var snap player.Snapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
		assert.Equal(t, "vc1", snap.ChannelID)
	})

	t.Run("missing", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/sessions/nope")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestEventsFeed(t *testing.T) {
	s := NewServer(newRegistry(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Hub().Run(ctx)

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer ws.Close()

	// the client is registered once the hub has seen it; keep publishing
	// until the first activity arrives
	got := make(chan player.Activity, 1)
	go func() {
		var a player.Activity
		if err := ws.ReadJSON(&a); err == nil {
			got <- a
		}
	}()

	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case a := <-got:
			assert.Equal(t, player.ActivityDJChanged, a.Type)
			assert.Equal(t, "g1", a.GuildID)
			return
		case <-tick.C:
			s.Hub().Observe(player.Activity{Type: player.ActivityDJChanged, GuildID: "g1", UserID: "u2"})
		case <-deadline:
			t.Fatal("no activity received over websocket")
		}
	}
}
