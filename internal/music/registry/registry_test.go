package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/player/playertest"
	"github.com/keshon/listenparty/internal/music/presence"
)

type staticSettings map[string]player.Settings

func (s staticSettings) LoadSettings(guildID string) (player.Settings, bool, error) {
	st, ok := s[guildID]
	return st, ok, nil
}

func newRegistry(t *testing.T, conn *playertest.Connector, settings SettingsLoader) *Registry {
	t.Helper()
	r := New(Options{
		Connector:     conn,
		Roster:        presence.NewTracker(),
		Settings:      settings,
		IdleTimeout:   time.Minute,
		DefaultVolume: 70,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r
}

func TestConnectCreatesOnce(t *testing.T) {
	conn := playertest.NewConnector()
	conn.Delay = 20 * time.Millisecond
	r := newRegistry(t, conn, nil)

	var wg sync.WaitGroup
	results := make([]*player.Session, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, _, err := r.Connect(context.Background(), ConnectRequest{GuildID: "g", ChannelID: "vc", UserID: "u"})
			assert.NoError(t, err)
			results[i] = s
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, conn.Calls())
	assert.Equal(t, 1, r.Len())
	for _, s := range results {
		assert.Same(t, results[0], s)
	}
	assert.Equal(t, "u", results[0].DJ())
	assert.Equal(t, 70, conn.Transport("g").Volume(), "default volume applies without stored settings")
}

func TestConnectMovesExistingSession(t *testing.T) {
	conn := playertest.NewConnector()
	r := newRegistry(t, conn, nil)

	s1, created, err := r.Connect(context.Background(), ConnectRequest{GuildID: "g", ChannelID: "vc1", TextChannelID: "t1", UserID: "u"})
	require.NoError(t, err)
	assert.True(t, created)

	s2, created, err := r.Connect(context.Background(), ConnectRequest{GuildID: "g", ChannelID: "vc2", TextChannelID: "t2", UserID: "v"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, s1, s2)

	assert.Equal(t, "vc2", s1.ChannelID())
	assert.Equal(t, "t2", s1.TextChannelID())
	assert.Equal(t, []string{"vc2"}, conn.Transport("g").Moves())
	assert.Equal(t, 1, conn.Calls())
	assert.Equal(t, "u", s1.DJ(), "moving keeps the DJ")
}

func TestConnectFailureLeavesNoSession(t *testing.T) {
	conn := playertest.NewConnector()
	conn.Fail = true
	r := newRegistry(t, conn, nil)

	_, _, err := r.Connect(context.Background(), ConnectRequest{GuildID: "g", ChannelID: "vc"})
	assert.ErrorIs(t, err, playertest.ErrRefused)
	assert.Nil(t, r.Get("g"))
}

func TestStoredSettingsApply(t *testing.T) {
	conn := playertest.NewConnector()
	r := newRegistry(t, conn, staticSettings{"g": {Announce: false, AllowDuplicates: true, Volume: 25}})

	s, _, err := r.Connect(context.Background(), ConnectRequest{GuildID: "g", ChannelID: "vc"})
	require.NoError(t, err)
	assert.Equal(t, player.Settings{AllowDuplicates: true, Volume: 25}, s.Settings())
	assert.Equal(t, 25, conn.Transport("g").Volume())
}

func TestDestroyForgetsSession(t *testing.T) {
	conn := playertest.NewConnector()
	r := newRegistry(t, conn, nil)

	var closed []player.Reason
	r.OnClose(func(guildID string, reason player.Reason) {
		assert.Equal(t, "g", guildID)
		closed = append(closed, reason)
	})

	s, _, err := r.Connect(context.Background(), ConnectRequest{GuildID: "g", ChannelID: "vc"})
	require.NoError(t, err)

	r.Destroy("g", player.ReasonStopped)
	r.Destroy("g", player.ReasonStopped)
	s.Teardown(player.ReasonIdle)

	assert.Nil(t, r.Get("g"))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, []player.Reason{player.ReasonStopped}, closed)
	assert.Equal(t, 1, conn.Transport("g").Disconnects())
}

func TestReplacedSessionCloseSkipsHooks(t *testing.T) {
	conn := playertest.NewConnector()
	r := newRegistry(t, conn, nil)

	var mu sync.Mutex
	var closed []player.Reason
	r.OnClose(func(_ string, reason player.Reason) {
		mu.Lock()
		closed = append(closed, reason)
		mu.Unlock()
	})

	old, _, err := r.Connect(context.Background(), ConnectRequest{GuildID: "g", ChannelID: "vc"})
	require.NoError(t, err)

	// a new session is made while the old one is still releasing voice
	var fresh *player.Session
	conn.Transport("g").OnDisconnect = func() {
		var err error
		fresh, _, err = r.Connect(context.Background(), ConnectRequest{GuildID: "g", ChannelID: "vc"})
		assert.NoError(t, err)
	}
	old.Teardown(player.ReasonStopped)

	require.NotNil(t, fresh)
	assert.NotSame(t, old, fresh)
	assert.Same(t, fresh, r.Get("g"))
	assert.False(t, fresh.Closed())
	mu.Lock()
	assert.Empty(t, closed)
	mu.Unlock()

	r.Destroy("g", player.ReasonIdle)
	mu.Lock()
	assert.Equal(t, []player.Reason{player.ReasonIdle}, closed)
	mu.Unlock()
}

func TestSessionTeardownRemovesMapping(t *testing.T) {
	conn := playertest.NewConnector()
	r := New(Options{Connector: conn, Roster: presence.NewTracker(), IdleTimeout: 30 * time.Millisecond})

	_, _, err := r.Connect(context.Background(), ConnectRequest{GuildID: "g", ChannelID: "vc"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return r.Get("g") == nil }, time.Second, 5*time.Millisecond)

	s, created, err := r.Connect(context.Background(), ConnectRequest{GuildID: "g", ChannelID: "vc"})
	require.NoError(t, err)
	assert.True(t, created, "a fresh session replaces the reclaimed one")
	s.Teardown(player.ReasonShutdown)
}

func TestSnapshotsAndShutdown(t *testing.T) {
	conn := playertest.NewConnector()
	r := newRegistry(t, conn, nil)

	for _, g := range []string{"b", "a", "c"} {
		_, _, err := r.Connect(context.Background(), ConnectRequest{GuildID: g, ChannelID: "vc-" + g})
		require.NoError(t, err)
	}

	snaps := r.Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{snaps[0].GuildID, snaps[1].GuildID, snaps[2].GuildID})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
	assert.Equal(t, 0, r.Len())
	for _, g := range []string{"a", "b", "c"} {
		assert.Equal(t, 1, conn.Transport(g).Disconnects())
	}
}

func TestRebind(t *testing.T) {
	conn := playertest.NewConnector()
	r := newRegistry(t, conn, nil)

	s, _, err := r.Connect(context.Background(), ConnectRequest{GuildID: "g", ChannelID: "vc1"})
	require.NoError(t, err)

	r.Rebind("g", "vc9")
	assert.Equal(t, "vc9", s.ChannelID())
	assert.Empty(t, conn.Transport("g").Moves(), "rebind follows a move that already happened")
}
