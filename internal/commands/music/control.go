package music

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/listenparty/internal/core"
	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/vote"
)

var controlActions = vote.Actions

var controlDescriptions = map[vote.Action]string{
	vote.ActionPause:   "Pause playback (vote unless you are the DJ)",
	vote.ActionResume:  "Resume playback (vote unless you are the DJ)",
	vote.ActionSkip:    "Skip the current track (vote unless you are the DJ or requester)",
	vote.ActionShuffle: "Shuffle the queue (vote unless you are the DJ)",
	vote.ActionStop:    "Stop playback and leave (vote unless you are the DJ)",
}

// ControlCommand runs one vote-gated action.
type ControlCommand struct {
	*Deps
	Action vote.Action
}

func (c *ControlCommand) Name() string        { return "music-" + string(c.Action) }
func (c *ControlCommand) Description() string { return controlDescriptions[c.Action] }
func (c *ControlCommand) Category() string    { return category }

func (c *ControlCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Type:        discordgo.ChatApplicationCommand,
	}
}

func (c *ControlCommand) Run(ctx interface{}) error {
	sc, ok := slashContext(ctx)
	if !ok {
		return nil
	}
	embed, err := c.control(sc.Event.GuildID, actorOf(sc), c.Action)
	return reply(sc, embed, err)
}

func (d *Deps) control(guildID string, actor player.Actor, action vote.Action) (*discordgo.MessageEmbed, error) {
	s, err := d.session(guildID)
	if err != nil {
		return nil, err
	}
	res, err := s.Control(actor, action)
	if err != nil {
		return nil, err
	}
	return controlEmbed(res), nil
}

type toggle struct {
	name  string
	desc  string
	label string
	flip  func(s *player.Session, actor player.Actor) (bool, error)
}

var toggles = []toggle{
	{
		name:  "announce",
		desc:  "Toggle now-playing announcements in this channel",
		label: "Announcements",
		flip:  (*player.Session).ToggleAnnounce,
	},
	{
		name:  "duplicates",
		desc:  "Toggle whether the same track can be queued twice",
		label: "Duplicate tracks",
		flip:  (*player.Session).ToggleDuplicates,
	},
	{
		name:  "loop",
		desc:  "Toggle repeating the current track",
		label: "Loop",
		flip:  (*player.Session).ToggleLoop,
	},
}

// ToggleCommand flips one DJ-only session setting.
type ToggleCommand struct {
	*Deps
	toggle toggle
}

func (c *ToggleCommand) Name() string        { return "music-" + c.toggle.name }
func (c *ToggleCommand) Description() string { return c.toggle.desc }
func (c *ToggleCommand) Category() string    { return category }

func (c *ToggleCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Type:        discordgo.ChatApplicationCommand,
	}
}

func (c *ToggleCommand) Run(ctx interface{}) error {
	sc, ok := slashContext(ctx)
	if !ok {
		return nil
	}
	embed, err := c.applyToggle(sc.Event.GuildID, actorOf(sc), c.toggle)
	return reply(sc, embed, err)
}

func (d *Deps) applyToggle(guildID string, actor player.Actor, t toggle) (*discordgo.MessageEmbed, error) {
	s, err := d.session(guildID)
	if err != nil {
		return nil, err
	}
	on, err := t.flip(s, actor)
	if err != nil {
		return nil, err
	}
	return core.Embed("⚙️ Settings", fmt.Sprintf("%s turned **%s**.", t.label, onOff(on))), nil
}
