// Package registry maps guilds to their playback session. It is the only
// place sessions are created or forgotten.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/music/player"
)

var ErrNoSession = errors.New("no active session in this server")

// SettingsLoader supplies persisted per-guild settings for new sessions.
type SettingsLoader interface {
	LoadSettings(guildID string) (player.Settings, bool, error)
}

type Options struct {
	Connector     player.Connector
	Roster        player.Roster
	Notifier      player.Notifier
	Observer      player.Observer
	Settings      SettingsLoader
	IdleTimeout   time.Duration
	DefaultVolume int
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*player.Session
	group    singleflight.Group
	opts     Options
	onClose  []func(guildID string, reason player.Reason)
	log      *slog.Logger
}

func New(opts Options) *Registry {
	if opts.DefaultVolume < 1 || opts.DefaultVolume > 100 {
		opts.DefaultVolume = 100
	}
	return &Registry{
		sessions: make(map[string]*player.Session),
		opts:     opts,
		log:      logging.For("registry"),
	}
}

// OnClose registers fn to run after a session has been torn down and forgotten.
// It is not called for a session that a newer one had already replaced.
func (r *Registry) OnClose(fn func(guildID string, reason player.Reason)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClose = append(r.onClose, fn)
}

type ConnectRequest struct {
	GuildID       string
	ChannelID     string
	TextChannelID string
	UserID        string // becomes DJ of a new session
}

// Connect returns the guild's session, creating it if absent. An existing
// session bound to another channel is moved there. created reports whether
// the session was made by this call or one it was merged with.
func (r *Registry) Connect(ctx context.Context, req ConnectRequest) (s *player.Session, created bool, err error) {
	if s := r.Get(req.GuildID); s != nil && !s.Closed() {
		if err := r.move(ctx, s, req.ChannelID); err != nil {
			return nil, false, err
		}
		s.SetTextChannel(req.TextChannelID)
		return s, false, nil
	}

	type result struct {
		s       *player.Session
		created bool
	}
	v, err, _ := r.group.Do(req.GuildID, func() (any, error) {
		if s := r.Get(req.GuildID); s != nil && !s.Closed() {
			return result{s: s}, nil
		}
		s, err := r.create(ctx, req)
		if err != nil {
			return nil, err
		}
		return result{s: s, created: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(result)
	// a concurrent caller may have created it for another channel
	if err := r.move(ctx, res.s, req.ChannelID); err != nil {
		return nil, false, err
	}
	return res.s, res.created, nil
}

func (r *Registry) create(ctx context.Context, req ConnectRequest) (*player.Session, error) {
	transport, err := r.opts.Connector.Connect(ctx, req.GuildID, req.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("connect voice: %w", err)
	}

	settings := player.DefaultSettings(r.opts.DefaultVolume)
	if r.opts.Settings != nil {
		stored, ok, err := r.opts.Settings.LoadSettings(req.GuildID)
		switch {
		case err != nil:
			r.log.Warn("Failed to load settings, using defaults", "guild", req.GuildID, "error", err)
		case ok:
			settings = stored
		}
	}

	s := player.New(player.Options{
		GuildID:       req.GuildID,
		ChannelID:     req.ChannelID,
		TextChannelID: req.TextChannelID,
		DJ:            req.UserID,
		Settings:      settings,
		IdleTimeout:   r.opts.IdleTimeout,
		Transport:     transport,
		Roster:        r.opts.Roster,
		Notifier:      r.opts.Notifier,
		Observer:      r.opts.Observer,
		OnTeardown:    r.forget,
	})

	r.mu.Lock()
	r.sessions[req.GuildID] = s
	r.mu.Unlock()

	s.Start()
	r.log.Info("Session created", "guild", req.GuildID, "channel", req.ChannelID, "dj", req.UserID)
	return s, nil
}

func (r *Registry) move(ctx context.Context, s *player.Session, channelID string) error {
	if s.ChannelID() == channelID {
		return nil
	}
	r.log.Info("Moving session", "guild", s.GuildID(), "from", s.ChannelID(), "to", channelID)
	if err := s.Move(ctx, channelID); err != nil {
		return fmt.Errorf("move voice: %w", err)
	}
	return nil
}

// forget runs as the session's teardown callback.
func (r *Registry) forget(s *player.Session, reason player.Reason) {
	guildID := s.GuildID()

	r.mu.Lock()
	current := r.sessions[guildID] == s
	if current {
		delete(r.sessions, guildID)
	}
	hooks := slices.Clone(r.onClose)
	r.mu.Unlock()

	if !current {
		// a newer session already owns the guild; its hooks must not fire for this one
		r.log.Debug("Replaced session closed", "guild", guildID, "reason", reason)
		return
	}
	r.log.Info("Session closed", "guild", guildID, "reason", reason)
	for _, fn := range hooks {
		fn(guildID, reason)
	}
}

// Get returns the live session for guildID, or nil.
func (r *Registry) Get(guildID string) *player.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[guildID]
}

// Destroy tears down the guild's session, if any.
func (r *Registry) Destroy(guildID string, reason player.Reason) {
	if s := r.Get(guildID); s != nil {
		s.Teardown(reason)
	}
}

// Rebind follows a channel change that Discord made to the bot directly.
func (r *Registry) Rebind(guildID, channelID string) {
	if s := r.Get(guildID); s != nil {
		s.Rebind(channelID)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshots returns every live session, ordered by guild ID.
func (r *Registry) Snapshots() []player.Snapshot {
	r.mu.RLock()
	list := make([]*player.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	out := make([]player.Snapshot, 0, len(list))
	for _, s := range list {
		out = append(out, s.Snapshot())
	}
	slices.SortFunc(out, func(a, b player.Snapshot) int { return strings.Compare(a.GuildID, b.GuildID) })
	return out
}

// Shutdown tears every session down and waits for their loops to exit.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	list := make([]*player.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	for _, s := range list {
		s.Teardown(player.ReasonShutdown)
	}
	for _, s := range list {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.log.Info("All sessions closed", "count", len(list))
	return nil
}
