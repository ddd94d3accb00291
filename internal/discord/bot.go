// Package discord connects the gateway to the playback core: it
// dispatches slash commands, feeds voice presence and delivers notices.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/listenparty/internal/config"
	"github.com/keshon/listenparty/internal/core"
	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/music/dj"
	"github.com/keshon/listenparty/internal/music/presence"
	"github.com/keshon/listenparty/internal/music/registry"
	"github.com/keshon/listenparty/internal/storage"
)

const defaultShutdownTimeout = 10 * time.Second

type Options struct {
	Session  *discordgo.Session
	Config   *config.Config
	Storage  *storage.Storage
	Registry *registry.Registry
	Presence *presence.Tracker
	Handoff  *dj.Handoff

	// ShutdownTimeout bounds how long Run waits for sessions to close.
	ShutdownTimeout time.Duration
}

// gateway is the part of the Discord session Run opens and closes.
type gateway interface {
	Open() error
	Close() error
}

type sessionCloser interface {
	Shutdown(ctx context.Context) error
}

// Bot is a Discord bot
type Bot struct {
	dg       *discordgo.Session
	cfg      *config.Config
	storage  *storage.Storage
	registry *registry.Registry
	voice    *voiceRouter
	cache    *commandCache
	timeout  time.Duration
	log      *slog.Logger
}

func NewBot(opts Options) *Bot {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	b := &Bot{
		dg:       opts.Session,
		cfg:      opts.Config,
		storage:  opts.Storage,
		registry: opts.Registry,
		cache:    newCommandCache(filepath.Join(filepath.Dir(opts.Config.StoragePath), "commands")),
		timeout:  opts.ShutdownTimeout,
		log:      logging.For("discord"),
	}
	b.voice = &voiceRouter{
		presence: opts.Presence,
		sessions: opts.Registry,
		handoff:  opts.Handoff,
		selfID:   b.selfID,
		log:      b.log,
	}
	return b
}

// Run opens the gateway and serves events until ctx ends. Every session
// is shut down before the gateway closes.
func (b *Bot) Run(ctx context.Context) error {
	b.dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onInteractionCreate)
	b.dg.AddHandler(b.onVoiceStateUpdate)

	return b.serve(ctx, b.dg, b.registry)
}

// serve holds gw open until ctx ends. Voice disconnects are sent over the
// gateway, so sessions must be released while it is still open.
func (b *Bot) serve(ctx context.Context, gw gateway, sessions sessionCloser) error {
	if err := gw.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	<-ctx.Done()
	b.log.Info("Shutdown signal received, closing sessions")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		b.log.Warn("Sessions did not close in time", "error", err)
	}

	if err := gw.Close(); err != nil {
		b.log.Warn("Failed to close gateway", "error", err)
	}
	return nil
}

func (b *Bot) selfID() string {
	if b.dg.State != nil && b.dg.State.User != nil {
		return b.dg.State.User.ID
	}
	return ""
}

// onReady is called when the bot is ready
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("Discord bot is running", "user", r.User.Username, "guilds", len(r.Guilds))
}

// onGuildCreate seeds presence from the guild's voice states and syncs
// its slash commands.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	b.log.Info("Guild available", "guild", g.ID, "name", g.Name)

	bots := make(map[string]bool, len(g.Members))
	for _, m := range g.Members {
		if m.User != nil {
			bots[m.User.ID] = m.User.Bot
		}
	}
	now := time.Now()
	for _, vs := range g.VoiceStates {
		b.voice.presence.Update(g.ID, vs.UserID, vs.ChannelID, bots[vs.UserID] || vs.UserID == b.selfID(), now)
	}

	if !b.cfg.InitSlashCommands {
		b.log.Debug("Registering slash commands skipped", "guild", g.ID)
		return
	}
	if err := b.registerCommands(g.ID); err != nil {
		b.log.Error("Failed to register commands", "guild", g.ID, "error", err)
	}
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	bot := v.UserID == b.selfID()
	if v.Member != nil && v.Member.User != nil {
		bot = bot || v.Member.User.Bot
	}
	b.voice.update(v.GuildID, v.UserID, v.ChannelID, bot)
}

// onInteractionCreate is called when an interaction is created
func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		b.log.Debug("Ignoring interaction", "type", i.Type)
		return
	}
	data := i.ApplicationCommandData()
	cmd, ok := core.GetCommand(data.Name)
	if !ok {
		b.log.Warn("Unknown command", "command", data.Name)
		return
	}

	ctx := &core.SlashInteractionContext{
		Session:     s,
		Event:       i,
		Storage:     b.storage,
		DeveloperID: b.cfg.DeveloperID,
	}
	if err := cmd.Run(ctx); err != nil {
		b.log.Error("Error running slash command", "command", data.Name, "guild", i.GuildID, "error", err)
		_ = core.RespondEmbedEphemeral(s, i, core.Embed("Error", fmt.Sprintf("Error running command: %v", err)))
	}
}
