package music

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/listenparty/internal/core"
	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/storage"
)

var errNoStorage = errors.New("history is not available right now")

type QueueCommand struct{ *Deps }

func (c *QueueCommand) Name() string        { return "music-queue" }
func (c *QueueCommand) Description() string { return "Show the queue" }
func (c *QueueCommand) Category() string    { return category }

func (c *QueueCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Type:        discordgo.ChatApplicationCommand,
	}
}

func (c *QueueCommand) Run(ctx interface{}) error {
	sc, ok := slashContext(ctx)
	if !ok {
		return nil
	}
	s, err := c.session(sc.Event.GuildID)
	if err != nil {
		return reply(sc, nil, err)
	}
	return reply(sc, queueEmbed(s.Snapshot()), nil)
}

type NowPlayingCommand struct{ *Deps }

func (c *NowPlayingCommand) Name() string        { return "music-now-playing" }
func (c *NowPlayingCommand) Description() string { return "Show the current track" }
func (c *NowPlayingCommand) Category() string    { return category }

func (c *NowPlayingCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Type:        discordgo.ChatApplicationCommand,
	}
}

func (c *NowPlayingCommand) Run(ctx interface{}) error {
	sc, ok := slashContext(ctx)
	if !ok {
		return nil
	}
	s, err := c.session(sc.Event.GuildID)
	if err != nil {
		return reply(sc, nil, err)
	}
	return reply(sc, nowPlayingEmbed(s.Snapshot()), nil)
}

type RemoveCommand struct{ *Deps }

func (c *RemoveCommand) Name() string        { return "music-remove" }
func (c *RemoveCommand) Description() string { return "Remove a track from the queue" }
func (c *RemoveCommand) Category() string    { return category }

func (c *RemoveCommand) SlashDefinition() *discordgo.ApplicationCommand {
	minPos := float64(1)
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Type:        discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "position",
				Description: "Queue position as shown by /music-queue",
				Required:    true,
				MinValue:    &minPos,
			},
		},
	}
}

func (c *RemoveCommand) Run(ctx interface{}) error {
	sc, ok := slashContext(ctx)
	if !ok {
		return nil
	}
	pos, _ := optionInt(sc, "position")
	embed, err := c.remove(sc.Event.GuildID, actorOf(sc), pos)
	return reply(sc, embed, err)
}

func (d *Deps) remove(guildID string, actor player.Actor, pos int) (*discordgo.MessageEmbed, error) {
	s, err := d.session(guildID)
	if err != nil {
		return nil, err
	}
	t, err := s.Remove(actor, pos)
	if err != nil {
		return nil, err
	}
	return core.Embed("🗑 Removed", fmt.Sprintf("Removed %s from position %d.", trackLine(t), pos)), nil
}

type ClearCommand struct{ *Deps }

func (c *ClearCommand) Name() string        { return "music-clear" }
func (c *ClearCommand) Description() string { return "Empty the queue (DJ only)" }
func (c *ClearCommand) Category() string    { return category }

func (c *ClearCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Type:        discordgo.ChatApplicationCommand,
	}
}

func (c *ClearCommand) Run(ctx interface{}) error {
	sc, ok := slashContext(ctx)
	if !ok {
		return nil
	}
	embed, err := c.clear(sc.Event.GuildID, actorOf(sc))
	return reply(sc, embed, err)
}

func (d *Deps) clear(guildID string, actor player.Actor) (*discordgo.MessageEmbed, error) {
	s, err := d.session(guildID)
	if err != nil {
		return nil, err
	}
	n, err := s.Clear(actor)
	if err != nil {
		return nil, err
	}
	return core.Embed("🗑 Queue Cleared", fmt.Sprintf("Removed %d tracks.", n)), nil
}

// TrackHistory is where recently played tracks are read from.
type TrackHistory interface {
	FetchTrackHistory(guildID string) ([]storage.TrackHistoryRecord, error)
}

type HistoryCommand struct{ *Deps }

func (c *HistoryCommand) Name() string        { return "music-history" }
func (c *HistoryCommand) Description() string { return "Show recently played tracks" }
func (c *HistoryCommand) Category() string    { return category }

func (c *HistoryCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Type:        discordgo.ChatApplicationCommand,
	}
}

func (c *HistoryCommand) Run(ctx interface{}) error {
	sc, ok := slashContext(ctx)
	if !ok {
		return nil
	}
	var h TrackHistory
	if sc.Storage != nil {
		h = sc.Storage
	}
	embed, err := historyEmbed(h, sc.Event.GuildID)
	return reply(sc, embed, err)
}

func historyEmbed(h TrackHistory, guildID string) (*discordgo.MessageEmbed, error) {
	if h == nil {
		return nil, errNoStorage
	}
	records, err := h.FetchTrackHistory(guildID)
	if err != nil {
		return nil, fmt.Errorf("fetch track history: %w", err)
	}
	if len(records) == 0 {
		return core.Embed("📜 Recently Played", "Nothing has been played here yet."), nil
	}

	var b strings.Builder
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		fmt.Fprintf(&b, "<t:%d:R> %s\n", r.PlayedAt.Unix(), trackLine(r.Track))
	}
	return core.Embed("📜 Recently Played", b.String()), nil
}
