package discord

import (
	"log/slog"
	"time"

	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/presence"
)

type sessionControl interface {
	Get(guildID string) *player.Session
	Destroy(guildID string, reason player.Reason)
	Rebind(guildID, channelID string)
}

type handoffEvents interface {
	OnChange(ch presence.Change)
	Reconcile(guildID string)
}

// voiceRouter applies a voice state update to the presence tracker and
// then to whatever depends on it.
type voiceRouter struct {
	presence *presence.Tracker
	sessions sessionControl
	handoff  handoffEvents
	selfID   func() string
	log      *slog.Logger
}

func (r *voiceRouter) update(guildID, userID, channelID string, bot bool) {
	ch := r.presence.Update(guildID, userID, channelID, bot, time.Now())

	if userID != r.selfID() {
		r.handoff.OnChange(ch)
		return
	}

	s := r.sessions.Get(guildID)
	if s == nil || s.Closed() {
		return
	}
	switch bound := s.ChannelID(); {
	case channelID == "" && ch.Before == bound:
		r.log.Warn("Disconnected from voice", "guild", guildID, "channel", bound)
		r.sessions.Destroy(guildID, player.ReasonDisconnected)
	case channelID != "" && channelID != bound:
		r.log.Info("Moved by Discord, rebinding", "guild", guildID, "from", bound, "to", channelID)
		r.sessions.Rebind(guildID, channelID)
		r.handoff.Reconcile(guildID)
	}
}
