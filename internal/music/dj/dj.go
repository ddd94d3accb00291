// Package dj keeps a session's DJ assigned as listeners come and go, and
// reclaims sessions whose channel has emptied.
package dj

import (
	"log/slog"
	"time"

	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/presence"
	"github.com/keshon/listenparty/pkg/jobmgr"
)

const DefaultGrace = 10 * time.Second

// Sessions is the part of the registry the handoff needs.
type Sessions interface {
	Get(guildID string) *player.Session
	Destroy(guildID string, reason player.Reason)
}

type Handoff struct {
	sessions Sessions
	roster   player.Roster
	jobs     *jobmgr.Manager
	grace    time.Duration
	log      *slog.Logger
}

func NewHandoff(sessions Sessions, roster player.Roster, jobs *jobmgr.Manager, grace time.Duration) *Handoff {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Handoff{
		sessions: sessions,
		roster:   roster,
		jobs:     jobs,
		grace:    grace,
		log:      logging.For("dj"),
	}
}

func graceJob(guildID string) string {
	return "grace:" + guildID
}

// OnChange reacts to a presence change that the roster has already applied.
// Bot changes are ignored; the bot's own moves are handled by the registry.
func (h *Handoff) OnChange(ch presence.Change) {
	if ch.Bot {
		return
	}
	s := h.sessions.Get(ch.GuildID)
	if s == nil {
		return
	}
	bound := s.ChannelID()

	switch {
	case ch.Left(bound):
		h.departed(s, ch.UserID)
	case ch.Joined(bound):
		h.joined(s, ch.UserID)
	}
}

// Reconcile re-evaluates a session after its channel changed under it.
func (h *Handoff) Reconcile(guildID string) {
	s := h.sessions.Get(guildID)
	if s == nil {
		return
	}
	humans := h.roster.Humans(guildID, s.ChannelID())
	if len(humans) == 0 {
		h.startGrace(s)
		return
	}
	h.cancelGrace(guildID)

	cur := s.DJ()
	for _, m := range humans {
		if m.UserID == cur {
			return
		}
	}
	s.SetDJ(humans[0].UserID)
}

func (h *Handoff) departed(s *player.Session, userID string) {
	humans := h.roster.Humans(s.GuildID(), s.ChannelID())
	if len(humans) == 0 {
		if s.DJ() == userID {
			s.SetDJ("")
		}
		h.startGrace(s)
		return
	}
	if s.DJ() == userID {
		next := humans[0].UserID
		h.log.Info("DJ left, handing over", "guild", s.GuildID(), "from", userID, "to", next)
		s.SetDJ(next)
	}
}

func (h *Handoff) joined(s *player.Session, userID string) {
	h.cancelGrace(s.GuildID())
	if s.DJ() == "" {
		h.log.Info("Assigning DJ to newcomer", "guild", s.GuildID(), "dj", userID)
		s.SetDJ(userID)
	}
}

func (h *Handoff) startGrace(s *player.Session) {
	guildID := s.GuildID()
	err := h.jobs.After(graceJob(guildID), h.grace, func() {
		// someone may have come back between the timer firing and now
		if cur := h.sessions.Get(guildID); cur != s || len(h.roster.Humans(guildID, s.ChannelID())) > 0 {
			return
		}
		h.log.Info("Channel stayed empty, leaving", "guild", guildID, "grace", h.grace)
		h.sessions.Destroy(guildID, player.ReasonEmptyChannel)
	})
	if err == nil {
		h.log.Debug("Channel empty, grace timer started", "guild", guildID, "grace", h.grace)
	}
}

func (h *Handoff) cancelGrace(guildID string) {
	if h.jobs.Stop(graceJob(guildID)) == nil {
		h.log.Debug("Grace timer cancelled", "guild", guildID)
	}
}

// Forget drops any pending timer for a guild whose session is gone.
func (h *Handoff) Forget(guildID string) {
	_ = h.jobs.Stop(graceJob(guildID))
}
