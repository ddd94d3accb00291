package music

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/player/playertest"
	"github.com/keshon/listenparty/internal/music/presence"
	"github.com/keshon/listenparty/internal/music/queue"
	"github.com/keshon/listenparty/internal/music/registry"
	"github.com/keshon/listenparty/internal/music/source_resolver"
	"github.com/keshon/listenparty/internal/music/sources"
	"github.com/keshon/listenparty/internal/storage"
)

const (
	guild = "g1"
	vc1   = "vc1"
	vc2   = "vc2"
	text  = "text1"
)

type fakeResolver struct {
	results map[string]*sources.Result
	calls   int
}

func (r *fakeResolver) Resolve(_ context.Context, query, _ string) (*sources.Result, error) {
	r.calls++
	res, ok := r.results[query]
	if !ok {
		return nil, fmt.Errorf("%w: %s", source_resolver.ErrNotFound, query)
	}
	return res, nil
}

type fixture struct {
	deps     *Deps
	tracker  *presence.Tracker
	conn     *playertest.Connector
	resolver *fakeResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tracker := presence.NewTracker()
	conn := playertest.NewConnector()
	reg := registry.New(registry.Options{
		Connector:   conn,
		Roster:      tracker,
		IdleTimeout: time.Minute,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
	})

	track := func(id string) sources.Track {
		return sources.Track{ID: id, Title: "Song " + id, URI: "https://youtu.be/" + id, Duration: 3 * time.Minute, Source: sources.SourceYouTube}
	}
	resolver := &fakeResolver{results: map[string]*sources.Result{
		"a":        {Tracks: []sources.Track{track("a")}},
		"b":        {Tracks: []sources.Track{track("b")}},
		"playlist": {Tracks: []sources.Track{track("p1"), track("p2"), track("p3")}, Playlist: "Mix"},
	}}

	now := time.Now()
	tracker.Update(guild, "bot", vc1, true, now)
	tracker.Update(guild, "dj", vc1, false, now)
	tracker.Update(guild, "u2", vc1, false, now)
	tracker.Update(guild, "u3", vc1, false, now)
	tracker.Update(guild, "far", vc2, false, now)

	return &fixture{
		deps:     &Deps{Registry: reg, Resolver: resolver, Voice: tracker},
		tracker:  tracker,
		conn:     conn,
		resolver: resolver,
	}
}

func (f *fixture) play(t *testing.T, userID, input string) {
	t.Helper()
	_, err := f.deps.play(context.Background(), playRequest{
		GuildID: guild, TextChannelID: text, Actor: player.Actor{ID: userID}, Input: input,
	})
	require.NoError(t, err)
}

func (f *fixture) waitPlaying(t *testing.T) *player.Session {
	t.Helper()
	s := f.deps.Registry.Get(guild)
	require.NotNil(t, s)
	require.Eventually(t, func() bool {
		_, ok := s.Current()
		return ok && s.State() == player.StatePlaying
	}, 2*time.Second, 5*time.Millisecond)
	return s
}

func TestPlayCreatesSessionAndQueues(t *testing.T) {
	f := newFixture(t)

	embed, err := f.deps.play(context.Background(), playRequest{
		GuildID: guild, TextChannelID: text, Actor: player.Actor{ID: "dj"}, Input: "a",
	})
	require.NoError(t, err)
	assert.Contains(t, embed.Description, "Song a")
	assert.Contains(t, embed.Description, "now.")

	s := f.waitPlaying(t)
	assert.Equal(t, "dj", s.DJ())
	assert.Equal(t, vc1, s.ChannelID())
	assert.Equal(t, text, s.TextChannelID())

	// the same media again is a duplicate of what is playing
	_, err = f.deps.play(context.Background(), playRequest{GuildID: guild, Actor: player.Actor{ID: "u2"}, Input: "a"})
	assert.ErrorIs(t, err, queue.ErrDuplicate)

	embed, err = f.deps.play(context.Background(), playRequest{GuildID: guild, Actor: player.Actor{ID: "u2"}, Input: "playlist"})
	require.NoError(t, err)
	assert.Contains(t, embed.Description, "3 tracks from **Mix** starting at position 1.")
	assert.Len(t, s.Queue(), 3)
	assert.Equal(t, "u2", s.Queue()[0].RequesterID)
}

func TestPlayRejections(t *testing.T) {
	t.Run("not in voice", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.deps.play(context.Background(), playRequest{GuildID: guild, Actor: player.Actor{ID: "ghost"}, Input: "a"})
		assert.ErrorIs(t, err, errNotInVoice)
		assert.Zero(t, f.resolver.calls)
	})

	t.Run("nothing found leaves no session", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.deps.play(context.Background(), playRequest{GuildID: guild, Actor: player.Actor{ID: "dj"}, Input: "missing"})
		assert.ErrorIs(t, err, source_resolver.ErrNotFound)
		assert.Nil(t, f.deps.Registry.Get(guild))
		assert.Zero(t, f.conn.Calls())
	})

	t.Run("listener in another channel", func(t *testing.T) {
		f := newFixture(t)
		f.play(t, "dj", "a")
		_, err := f.deps.play(context.Background(), playRequest{GuildID: guild, Actor: player.Actor{ID: "far"}, Input: "b"})
		assert.ErrorIs(t, err, player.ErrNotInSession)
	})
}

func TestConnectMoveNeedsStanding(t *testing.T) {
	f := newFixture(t)
	embed, err := f.deps.connect(context.Background(), guild, text, player.Actor{ID: "dj"})
	require.NoError(t, err)
	assert.Contains(t, embed.Description, "Joined <#vc1>")

	_, err = f.deps.connect(context.Background(), guild, text, player.Actor{ID: "far"})
	assert.ErrorIs(t, err, player.ErrPermissionDenied)

	_, err = f.deps.connect(context.Background(), guild, text, player.Actor{ID: "far", Moderator: true})
	require.NoError(t, err)
	assert.Equal(t, vc2, f.deps.Registry.Get(guild).ChannelID())
	assert.Equal(t, []string{vc2}, f.conn.Transport(guild).Moves())
}

func TestControlVotesAndBypass(t *testing.T) {
	f := newFixture(t)
	f.play(t, "dj", "a")
	f.play(t, "dj", "b")
	s := f.waitPlaying(t)

	// four occupants with the bot: two votes needed
	embed, err := f.deps.control(guild, player.Actor{ID: "u2"}, "skip")
	require.NoError(t, err)
	assert.Equal(t, "🗳 Vote recorded", embed.Title)
	assert.Contains(t, embed.Description, "1 of 2")

	_, err = f.deps.control(guild, player.Actor{ID: "u2"}, "skip")
	assert.ErrorIs(t, err, player.ErrAlreadyVoted)

	embed, err = f.deps.control(guild, player.Actor{ID: "u3"}, "skip")
	require.NoError(t, err)
	assert.Contains(t, embed.Description, "vote passed")

	require.Eventually(t, func() bool {
		cur, ok := s.Current()
		return ok && cur.ID == "b"
	}, 2*time.Second, 5*time.Millisecond)

	embed, err = f.deps.control(guild, player.Actor{ID: "dj"}, "pause")
	require.NoError(t, err)
	assert.Contains(t, embed.Description, "Paused")

	_, err = f.deps.control(guild, player.Actor{ID: "far"}, "resume")
	assert.ErrorIs(t, err, player.ErrNotInSession)

	_, err = f.deps.control("other", player.Actor{ID: "dj"}, "resume")
	assert.ErrorIs(t, err, registry.ErrNoSession)
}

func TestDJOnlyCommands(t *testing.T) {
	f := newFixture(t)
	f.play(t, "dj", "a")
	f.play(t, "u2", "b")
	f.waitPlaying(t)

	_, err := f.deps.volume(guild, player.Actor{ID: "u2"}, 50)
	assert.ErrorIs(t, err, player.ErrPermissionDenied)
	embed, err := f.deps.volume(guild, player.Actor{ID: "dj"}, 50)
	require.NoError(t, err)
	assert.Contains(t, embed.Description, "50%")
	assert.Equal(t, 50, f.conn.Transport(guild).Volume())

	embed, err = f.deps.applyToggle(guild, player.Actor{ID: "dj"}, toggles[2])
	require.NoError(t, err)
	assert.Contains(t, embed.Description, "Loop turned **on**")

	_, err = f.deps.seek(guild, player.Actor{ID: "dj"}, "soon")
	assert.ErrorIs(t, err, errBadPosition)
	_, err = f.deps.seek(guild, player.Actor{ID: "dj"}, "1:30")
	require.NoError(t, err)

	_, err = f.deps.swapDJ(guild, player.Actor{ID: "dj"}, "far")
	assert.ErrorIs(t, err, errTargetNotListening)
	_, err = f.deps.swapDJ(guild, player.Actor{ID: "u2"}, "u3")
	assert.ErrorIs(t, err, player.ErrPermissionDenied)
	_, err = f.deps.swapDJ(guild, player.Actor{ID: "dj"}, "u3")
	require.NoError(t, err)
	assert.Equal(t, "u3", f.deps.Registry.Get(guild).DJ())

	// the requester may remove their own track
	embed, err = f.deps.remove(guild, player.Actor{ID: "u2"}, 1)
	require.NoError(t, err)
	assert.Contains(t, embed.Description, "Song b")

	_, err = f.deps.clear(guild, player.Actor{ID: "u2"})
	assert.ErrorIs(t, err, player.ErrPermissionDenied)
	embed, err = f.deps.clear(guild, player.Actor{ID: "u3"})
	require.NoError(t, err)
	assert.Contains(t, embed.Description, "Removed 0 tracks")
}

func TestExplain(t *testing.T) {
	cases := []struct {
		err   error
		known bool
		want  string
	}{
		{registry.ErrNoSession, true, "No active session in this server."},
		{fmt.Errorf("wrapped: %w", player.ErrPermissionDenied), true, "Only the DJ or a moderator can do that."},
		{fmt.Errorf("%w: lofi", source_resolver.ErrNotFound), true, "Nothing was found"},
		{queue.ErrDuplicate, true, "already in the queue"},
		{fmt.Errorf("%w: join failed", player.ErrTransportUnreachable), true, "couldn't reach the voice channel"},
		{player.ErrSessionClosed, true, "session just ended"},
		{context.DeadlineExceeded, true, "took too long"},
		{errTargetNotListening, true, "That user is not listening"},
		{errors.New("boom"), false, "Something went wrong: boom"},
	}
	for _, c := range cases {
		t.Run(c.err.Error(), func(t *testing.T) {
			msg, known := Explain(c.err)
			assert.Equal(t, c.known, known)
			assert.Contains(t, msg, c.want)
		})
	}
}

func TestParsePosition(t *testing.T) {
	ok := map[string]time.Duration{
		"90":      90 * time.Second,
		"1:30":    90 * time.Second,
		"1:02:03": time.Hour + 2*time.Minute + 3*time.Second,
		"2m5s":    2*time.Minute + 5*time.Second,
		" 0 ":     0,
	}
	for in, want := range ok {
		got, err := parsePosition(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "abc", "1:75", "-5", "1:2:3:4", "-1m"} {
		_, err := parsePosition(in)
		assert.ErrorIs(t, err, errBadPosition, in)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00", formatDuration(0))
	assert.Equal(t, "3:07", formatDuration(3*time.Minute+7*time.Second))
	assert.Equal(t, "1:00:01", formatDuration(time.Hour+time.Second))
}

func TestQueueEmbedPaging(t *testing.T) {
	snap := player.Snapshot{}
	for i := range 12 {
		snap.Queue = append(snap.Queue, sources.Track{ID: fmt.Sprint(i), Title: fmt.Sprintf("T%d", i), Duration: time.Minute, RequesterID: "u"})
	}
	embed := queueEmbed(snap)
	assert.Contains(t, embed.Description, "`10.` T9")
	assert.NotContains(t, embed.Description, "T10")
	assert.Contains(t, embed.Description, "and 2 more")
	assert.Equal(t, "12 tracks, 12:00 total", embed.Footer.Text)

	assert.Contains(t, queueEmbed(player.Snapshot{}).Description, "empty")
}

type fakeHistory []storage.TrackHistoryRecord

func (h fakeHistory) FetchTrackHistory(string) ([]storage.TrackHistoryRecord, error) {
	return h, nil
}

func TestHistoryEmbed(t *testing.T) {
	_, err := historyEmbed(nil, guild)
	assert.ErrorIs(t, err, errNoStorage)

	at := time.Unix(1700000000, 0)
	embed, err := historyEmbed(fakeHistory{
		{Track: sources.Track{Title: "old"}, PlayedAt: at},
		{Track: sources.Track{Title: "new"}, PlayedAt: at.Add(time.Minute)},
	}, guild)
	require.NoError(t, err)
	assert.Regexp(t, `(?s)new.*old`, embed.Description)
}

func TestCommandsAreNamedUniquely(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range Commands(&Deps{}) {
		assert.False(t, seen[c.Name()], c.Name())
		seen[c.Name()] = true
		assert.NotEmpty(t, c.Description(), c.Name())
	}
	assert.True(t, seen["music-skip"])
	assert.True(t, seen["music-loop"])
	assert.Len(t, seen, 18)
}
