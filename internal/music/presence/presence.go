// Package presence tracks who sits in which voice channel, fed by gateway
// voice state updates.
package presence

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

type Member struct {
	UserID    string
	ChannelID string
	Bot       bool
	JoinedAt  time.Time
}

// Change describes one voice state transition. Before or After is empty
// when the user was or is no longer in voice.
type Change struct {
	GuildID string
	UserID  string
	Bot     bool
	Before  string
	After   string
}

func (c Change) Joined(channelID string) bool {
	return c.After == channelID && c.Before != channelID
}

func (c Change) Left(channelID string) bool {
	return c.Before == channelID && c.After != channelID
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	guilds map[string]map[string]Member
}

func NewTracker() *Tracker {
	return &Tracker{guilds: make(map[string]map[string]Member)}
}

// Update records that userID is now in channelID ("" for none). JoinedAt
// is kept while the user stays in the same channel.
func (t *Tracker) Update(guildID, userID, channelID string, bot bool, at time.Time) Change {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.guilds[guildID]
	if !ok {
		members = make(map[string]Member)
		t.guilds[guildID] = members
	}

	prev, had := members[userID]
	ch := Change{GuildID: guildID, UserID: userID, Bot: bot}
	if had {
		ch.Before = prev.ChannelID
	}
	ch.After = channelID

	switch {
	case channelID == "":
		delete(members, userID)
	case had && prev.ChannelID == channelID:
		prev.Bot = bot
		members[userID] = prev
	default:
		members[userID] = Member{UserID: userID, ChannelID: channelID, Bot: bot, JoinedAt: at}
	}
	return ch
}

// Forget drops everything known about a guild.
func (t *Tracker) Forget(guildID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.guilds, guildID)
}

// Count returns every member of the channel, bots included.
func (t *Tracker) Count(guildID, channelID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, m := range t.guilds[guildID] {
		if m.ChannelID == channelID {
			n++
		}
	}
	return n
}

func (t *Tracker) Contains(guildID, channelID, userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.guilds[guildID][userID]
	return ok && m.ChannelID == channelID
}

// ChannelOf returns the voice channel userID is in, or "".
func (t *Tracker) ChannelOf(guildID, userID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.guilds[guildID][userID].ChannelID
}

// Humans returns non-bot members ordered by join time, then user ID.
func (t *Tracker) Humans(guildID, channelID string) []Member {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Member
	for _, m := range t.guilds[guildID] {
		if m.ChannelID == channelID && !m.Bot {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b Member) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out
}
