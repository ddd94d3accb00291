package dj

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/player/playertest"
	"github.com/keshon/listenparty/internal/music/presence"
	"github.com/keshon/listenparty/internal/music/registry"
	"github.com/keshon/listenparty/pkg/jobmgr"
)

const (
	guild   = "g"
	channel = "vc"
)

type fixture struct {
	roster  *presence.Tracker
	reg     *registry.Registry
	handoff *Handoff
	session *player.Session
	clock   time.Time
}

func newFixture(t *testing.T, grace time.Duration, members ...string) *fixture {
	t.Helper()
	f := &fixture{roster: presence.NewTracker(), clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	f.reg = registry.New(registry.Options{
		Connector:   playertest.NewConnector(),
		Roster:      f.roster,
		IdleTimeout: time.Minute,
	})
	f.handoff = NewHandoff(f.reg, f.roster, jobmgr.NewManager(nil), grace)

	f.move("bot", channel, true)
	for _, m := range members {
		f.move(m, channel, false)
	}

	s, _, err := f.reg.Connect(context.Background(), registry.ConnectRequest{GuildID: guild, ChannelID: channel, UserID: members[0]})
	require.NoError(t, err)
	f.session = s

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.reg.Shutdown(ctx)
	})
	return f
}

// move puts userID in channelID ("" to leave) and feeds the change to the handoff.
func (f *fixture) move(userID, channelID string, bot bool) {
	f.clock = f.clock.Add(time.Second)
	ch := f.roster.Update(guild, userID, channelID, bot, f.clock)
	if f.handoff != nil {
		f.handoff.OnChange(ch)
	}
}

func TestDJLeavesHandsToEarliestJoined(t *testing.T) {
	f := newFixture(t, time.Minute, "dj", "first", "second")

	f.move("dj", "", false)
	assert.Equal(t, "first", f.session.DJ(), "reassigned within the same step")

	f.move("first", "elsewhere", false)
	assert.Equal(t, "second", f.session.DJ())
}

func TestListenerLeavingKeepsDJ(t *testing.T) {
	f := newFixture(t, time.Minute, "dj", "a", "b")

	f.move("a", "", false)
	assert.Equal(t, "dj", f.session.DJ())
}

func TestEmptyChannelTearsDownAfterGrace(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond, "dj", "a")

	f.move("a", "", false)
	f.move("dj", "", false)
	assert.Equal(t, "", f.session.DJ())
	assert.False(t, f.session.Closed(), "grace period first")

	require.Eventually(t, f.session.Closed, time.Second, 5*time.Millisecond)
	assert.Nil(t, f.reg.Get(guild))
}

func TestRejoinCancelsGraceAndTakesDJ(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond, "dj")

	f.move("dj", "", false)
	assert.Equal(t, "", f.session.DJ())

	f.move("newcomer", channel, false)
	assert.Equal(t, "newcomer", f.session.DJ())

	time.Sleep(100 * time.Millisecond)
	assert.False(t, f.session.Closed())
	assert.Same(t, f.session, f.reg.Get(guild))
}

func TestBotChangesIgnored(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond, "dj")

	f.move("other-bot", channel, true)
	f.move("other-bot", "", true)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, f.session.Closed())
	assert.Equal(t, "dj", f.session.DJ())
}

func TestReconcileAfterChannelMove(t *testing.T) {
	f := newFixture(t, time.Minute, "dj")
	f.move("x", "vc2", false)
	f.move("y", "vc2", false)

	f.reg.Rebind(guild, "vc2")
	f.handoff.Reconcile(guild)
	assert.Equal(t, "x", f.session.DJ())
}
