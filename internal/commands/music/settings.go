package music

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/listenparty/internal/core"
	"github.com/keshon/listenparty/internal/music/player"
)

var (
	errBadPosition        = errors.New("use a position like 90, 1:30 or 1m30s")
	errTargetNotListening = errors.New("that user is not listening in the session's channel")
)

type VolumeCommand struct{ *Deps }

func (c *VolumeCommand) Name() string        { return "music-volume" }
func (c *VolumeCommand) Description() string { return "Set the playback volume (DJ only)" }
func (c *VolumeCommand) Category() string    { return category }

func (c *VolumeCommand) SlashDefinition() *discordgo.ApplicationCommand {
	minVolume := float64(1)
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Type:        discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "level",
				Description: "Volume from 1 to 100",
				Required:    true,
				MinValue:    &minVolume,
				MaxValue:    100,
			},
		},
	}
}

func (c *VolumeCommand) Run(ctx interface{}) error {
	sc, ok := slashContext(ctx)
	if !ok {
		return nil
	}
	level, _ := optionInt(sc, "level")
	embed, err := c.volume(sc.Event.GuildID, actorOf(sc), level)
	return reply(sc, embed, err)
}

func (d *Deps) volume(guildID string, actor player.Actor, level int) (*discordgo.MessageEmbed, error) {
	s, err := d.session(guildID)
	if err != nil {
		return nil, err
	}
	if err := s.SetVolume(actor, level); err != nil {
		return nil, err
	}
	return core.Embed("🔊 Volume", fmt.Sprintf("Volume set to **%d%%**.", level)), nil
}

type SeekCommand struct{ *Deps }

func (c *SeekCommand) Name() string        { return "music-seek" }
func (c *SeekCommand) Description() string { return "Jump to a position in the current track (DJ only)" }
func (c *SeekCommand) Category() string    { return category }

func (c *SeekCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Type:        discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "position",
				Description: "Seconds, m:ss or a duration like 1m30s",
				Required:    true,
			},
		},
	}
}

func (c *SeekCommand) Run(ctx interface{}) error {
	sc, ok := slashContext(ctx)
	if !ok {
		return nil
	}
	embed, err := c.seek(sc.Event.GuildID, actorOf(sc), optionString(sc, "position"))
	return reply(sc, embed, err)
}

func (d *Deps) seek(guildID string, actor player.Actor, input string) (*discordgo.MessageEmbed, error) {
	pos, err := parsePosition(input)
	if err != nil {
		return nil, err
	}
	s, err := d.session(guildID)
	if err != nil {
		return nil, err
	}
	if err := s.Seek(actor, pos); err != nil {
		return nil, err
	}
	return core.Embed("⏩ Seek", fmt.Sprintf("Jumped to **%s**.", formatDuration(pos))), nil
}

// parsePosition accepts plain seconds, colon separated m:ss or h:mm:ss,
// and Go durations.
func parsePosition(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errBadPosition
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, errBadPosition
		}
		return d, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, errBadPosition
	}
	var total time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, errBadPosition
		}
		if i > 0 && n >= 60 {
			return 0, errBadPosition
		}
		total = total*60 + time.Duration(n)*time.Second
	}
	return total, nil
}

type SwapDJCommand struct{ *Deps }

func (c *SwapDJCommand) Name() string        { return "music-swap-dj" }
func (c *SwapDJCommand) Description() string { return "Hand the DJ role to another listener" }
func (c *SwapDJCommand) Category() string    { return category }

func (c *SwapDJCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Type:        discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "user",
				Description: "The new DJ",
				Required:    true,
			},
		},
	}
}

func (c *SwapDJCommand) Run(ctx interface{}) error {
	sc, ok := slashContext(ctx)
	if !ok {
		return nil
	}
	embed, err := c.swapDJ(sc.Event.GuildID, actorOf(sc), optionUser(sc, "user"))
	return reply(sc, embed, err)
}

func (d *Deps) swapDJ(guildID string, actor player.Actor, target string) (*discordgo.MessageEmbed, error) {
	s, err := d.session(guildID)
	if err != nil {
		return nil, err
	}
	if err := s.SwapDJ(actor, target); err != nil {
		// the actor passed the presence check, so the target failed it
		if errors.Is(err, player.ErrNotInSession) && d.Voice.ChannelOf(guildID, actor.ID) == s.ChannelID() {
			return nil, errTargetNotListening
		}
		return nil, err
	}
	return core.Embed(player.StatusDJChanged.StringEmoji()+" "+string(player.StatusDJChanged), fmt.Sprintf("%s is the DJ now.", mention(target))), nil
}
