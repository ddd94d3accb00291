package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/listenparty/internal/commands/music"
	"github.com/keshon/listenparty/internal/config"
	"github.com/keshon/listenparty/internal/core"
	"github.com/keshon/listenparty/internal/discord"
	"github.com/keshon/listenparty/internal/events"
	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/music/dj"
	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/presence"
	"github.com/keshon/listenparty/internal/music/registry"
	"github.com/keshon/listenparty/internal/music/source_resolver"
	"github.com/keshon/listenparty/internal/music/sources/soundcloud"
	"github.com/keshon/listenparty/internal/music/sources/youtube"
	"github.com/keshon/listenparty/internal/music/sources/ytmusic"
	"github.com/keshon/listenparty/internal/music/stream"
	"github.com/keshon/listenparty/internal/status"
	"github.com/keshon/listenparty/internal/storage"
	"github.com/keshon/listenparty/pkg/jobmgr"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := logging.Init(logging.Options{Level: cfg.SlogLevel(), File: cfg.LogFile}); err != nil {
		slog.Error("Failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer logging.Close()

	if err := run(cfg); err != nil {
		slog.Error("Bot stopped with error", "error", err)
		logging.Close()
		os.Exit(1)
	}
	slog.Info("Bot exited cleanly")
}

func run(cfg *config.Config) error {
	log := logging.For("main")
	log.Info("Starting listenparty bot...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.StorageDriver, cfg.StoragePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close storage", "error", err)
		}
	}()

	httpClient := youtube.NewHTTPClient(cfg.YouTubeProxy, logging.For("youtube"))
	yt := youtube.New(httpClient)
	resolver := source_resolver.New(cfg.ResolveTimeout,
		yt,
		ytmusic.New(yt),
		soundcloud.New(httpClient, cfg.YouTubeProxy),
	)

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return err
	}

	observers := player.Observers{store}

	var publisher *events.Publisher
	if cfg.RedisURL != "" {
		publisher, err = events.Dial(ctx, cfg.RedisURL, cfg.EventsChannel)
		if err != nil {
			return err
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn("Failed to close event publisher", "error", err)
			}
		}()
		observers = append(observers, publisher)
		log.Info("Publishing session events", "channel", publisher.Channel())
	}

	tracker := presence.NewTracker()
	notifier := discord.NewNotifier(dg)
	defer notifier.Close()

	reg := registry.New(registry.Options{
		Connector:     stream.NewConnector(dg, resolver, stream.Options{StuckThreshold: cfg.StuckThreshold}),
		Roster:        tracker,
		Notifier:      notifier,
		Observer:      &observers, // the status hub joins below, before any session exists
		Settings:      store,
		IdleTimeout:   cfg.IdleTimeout,
		DefaultVolume: cfg.DefaultVolume,
	})

	if cfg.StatusAddr != "" {
		statusSrv := status.NewServer(reg)
		if publisher != nil {
			// every instance publishes to the same channel, so the feed covers all shards
			go func() {
				if err := publisher.Subscribe(ctx, statusSrv.Hub().Publish); err != nil {
					log.Error("Event subscription ended", "error", err)
				}
			}()
		} else {
			observers = append(observers, statusSrv.Hub())
		}
		go func() {
			if err := statusSrv.ListenAndServe(ctx, cfg.StatusAddr); err != nil {
				log.Error("Status server failed", "error", err)
			}
		}()
	}

	jobs := jobmgr.NewManager(logging.For("jobs"))
	defer jobs.StopAll()
	handoff := dj.NewHandoff(reg, tracker, jobs, cfg.EmptyChannelGrace)
	reg.OnClose(func(guildID string, _ player.Reason) { handoff.Forget(guildID) })

	music.Register(&music.Deps{Registry: reg, Resolver: resolver, Voice: tracker},
		core.WithGuildOnly(),
		core.WithBotPermissionCheck(),
		core.WithModeratorStanding(),
		core.WithCommandLogger(),
	)

	bot := discord.NewBot(discord.Options{
		Session:  dg,
		Config:   cfg,
		Storage:  store,
		Registry: reg,
		Presence: tracker,
		Handoff:  handoff,

		ShutdownTimeout: shutdownTimeout,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- bot.Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal")
		runErr = <-errCh
	case runErr = <-errCh:
		if runErr != nil {
			log.Error("Discord bot error", "error", runErr)
		}
	}
	stop()
	return runErr
}
