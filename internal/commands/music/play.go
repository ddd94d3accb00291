package music

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/listenparty/internal/core"
	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/registry"
	"github.com/keshon/listenparty/internal/music/sources"
)

const commandTimeout = 30 * time.Second

type ConnectCommand struct{ *Deps }

func (c *ConnectCommand) Name() string            { return "music-connect" }
func (c *ConnectCommand) Description() string     { return "Bring the bot into your voice channel" }
func (c *ConnectCommand) Category() string        { return category }
func (c *ConnectCommand) BotPermissions() []int64 { return voicePermissions }

func (c *ConnectCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Type:        discordgo.ChatApplicationCommand,
	}
}

func (c *ConnectCommand) Run(ctx interface{}) error {
	sc, ok := slashContext(ctx)
	if !ok {
		return nil
	}
	if err := core.Defer(sc.Session, sc.Event); err != nil {
		return fmt.Errorf("failed to send deferred response: %w", err)
	}

	cctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	embed, err := c.connect(cctx, sc.Event.GuildID, sc.Event.ChannelID, actorOf(sc))
	return followup(sc, embed, err)
}

func (d *Deps) connect(ctx context.Context, guildID, textChannelID string, actor player.Actor) (*discordgo.MessageEmbed, error) {
	channelID := d.Voice.ChannelOf(guildID, actor.ID)
	if channelID == "" {
		return nil, errNotInVoice
	}

	// only the DJ or a moderator may pull a session into another channel
	if s, err := d.session(guildID); err == nil && s.ChannelID() != channelID {
		if !actor.Moderator && s.DJ() != actor.ID {
			return nil, player.ErrPermissionDenied
		}
	}

	s, created, err := d.Registry.Connect(ctx, registry.ConnectRequest{
		GuildID:       guildID,
		ChannelID:     channelID,
		TextChannelID: textChannelID,
		UserID:        actor.ID,
	})
	if err != nil {
		return nil, err
	}
	if created {
		return core.Embed("🎧 Connected", fmt.Sprintf("Joined <#%s>. %s is the DJ.", channelID, mention(s.DJ()))), nil
	}
	return core.Embed("🎧 Connected", fmt.Sprintf("Playing in <#%s>. %s is the DJ.", s.ChannelID(), mention(s.DJ()))), nil
}

type PlayCommand struct{ *Deps }

func (c *PlayCommand) Name() string            { return "music-play" }
func (c *PlayCommand) Description() string     { return "Queue a track, playlist or search result" }
func (c *PlayCommand) Category() string        { return category }
func (c *PlayCommand) BotPermissions() []int64 { return voicePermissions }

func (c *PlayCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Type:        discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "input",
				Description: "Link to youtube/soundcloud or song name",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "source",
				Description: "Source to search if a song name is given",
				Required:    false,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "youtube", Value: sources.SourceYouTube},
					{Name: "youtube music", Value: sources.SourceYTMusic},
					{Name: "soundcloud", Value: sources.SourceSoundCloud},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "front",
				Description: "Play next instead of at the end of the queue",
				Required:    false,
			},
		},
	}
}

func (c *PlayCommand) Run(ctx interface{}) error {
	sc, ok := slashContext(ctx)
	if !ok {
		return nil
	}
	req := playRequest{
		GuildID:       sc.Event.GuildID,
		TextChannelID: sc.Event.ChannelID,
		Actor:         actorOf(sc),
		Input:         optionString(sc, "input"),
		Source:        optionString(sc, "source"),
		Front:         optionBool(sc, "front"),
	}
	if req.Input == "" {
		return core.RespondEphemeral(sc.Session, sc.Event, "🎵 Error: input is required")
	}
	if err := core.Defer(sc.Session, sc.Event); err != nil {
		return fmt.Errorf("failed to send deferred response: %w", err)
	}

	cctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	embed, err := c.play(cctx, req)
	return followup(sc, embed, err)
}

type playRequest struct {
	GuildID       string
	TextChannelID string
	Actor         player.Actor
	Input         string
	Source        string
	Front         bool
}

// play resolves first so a failed lookup leaves no session behind.
func (d *Deps) play(ctx context.Context, req playRequest) (*discordgo.MessageEmbed, error) {
	channelID := d.Voice.ChannelOf(req.GuildID, req.Actor.ID)
	if channelID == "" {
		return nil, errNotInVoice
	}

	res, err := d.Resolver.Resolve(ctx, req.Input, req.Source)
	if err != nil {
		return nil, err
	}

	s, err := d.session(req.GuildID)
	if err != nil {
		s, _, err = d.Registry.Connect(ctx, registry.ConnectRequest{
			GuildID:       req.GuildID,
			ChannelID:     channelID,
			TextChannelID: req.TextChannelID,
			UserID:        req.Actor.ID,
		})
		if err != nil {
			return nil, err
		}
	}

	added, err := s.Enqueue(req.Actor, res.Tracks, req.Front)
	if err != nil {
		return nil, err
	}
	return enqueuedEmbed(res, added), nil
}

func enqueuedEmbed(res *sources.Result, added player.EnqueueResult) *discordgo.MessageEmbed {
	var desc string
	switch {
	case res.IsPlaylist():
		desc = fmt.Sprintf("Queued %d tracks from **%s** starting at position %d.", added.Added, res.Playlist, added.Position)
	case len(res.Tracks) == 1 && added.StartsNow:
		desc = fmt.Sprintf("Starting %s now.", trackLine(res.Tracks[0]))
	case len(res.Tracks) == 1:
		desc = fmt.Sprintf("Queued %s at position %d.", trackLine(res.Tracks[0]), added.Position)
	default:
		desc = fmt.Sprintf("Queued %d tracks starting at position %d.", added.Added, added.Position)
	}
	if added.Duplicates > 0 {
		desc += fmt.Sprintf("\nSkipped %d already queued.", added.Duplicates)
	}

	embed := core.Embed("🎶 Added to Queue", desc)
	if len(res.Tracks) > 0 && res.Tracks[0].Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: res.Tracks[0].Thumbnail}
	}
	return embed
}
