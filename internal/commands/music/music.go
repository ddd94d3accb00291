// Package music holds the slash commands that drive shared playback.
package music

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/listenparty/internal/core"
	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/registry"
	"github.com/keshon/listenparty/internal/music/sources"
)

const category = "🎵 Music"

var errNotInVoice = errors.New("join a voice channel first")

// Resolver turns user input into tracks.
type Resolver interface {
	Resolve(ctx context.Context, query, source string) (*sources.Result, error)
}

// VoiceLocator answers which voice channel a user is in ("" for none).
type VoiceLocator interface {
	ChannelOf(guildID, userID string) string
}

// Deps is what every music command works against.
type Deps struct {
	Registry *registry.Registry
	Resolver Resolver
	Voice    VoiceLocator
}

// Commands builds every music command over deps.
func Commands(deps *Deps) []core.Command {
	cmds := []core.Command{
		&ConnectCommand{deps},
		&PlayCommand{deps},
		&VolumeCommand{deps},
		&SeekCommand{deps},
		&SwapDJCommand{deps},
		&QueueCommand{deps},
		&NowPlayingCommand{deps},
		&RemoveCommand{deps},
		&ClearCommand{deps},
		&HistoryCommand{deps},
	}
	for _, a := range controlActions {
		cmds = append(cmds, &ControlCommand{Deps: deps, Action: a})
	}
	for _, t := range toggles {
		cmds = append(cmds, &ToggleCommand{Deps: deps, toggle: t})
	}
	return cmds
}

// Register adds every music command to the core registry.
func Register(deps *Deps, mws ...core.Middleware) {
	for _, c := range Commands(deps) {
		core.RegisterCommand(c, mws...)
	}
}

func actorOf(ctx *core.SlashInteractionContext) player.Actor {
	var id string
	if u := ctx.User(); u != nil {
		id = u.ID
	}
	return player.Actor{ID: id, Moderator: ctx.Moderator}
}

// session returns the guild's live session or registry.ErrNoSession.
func (d *Deps) session(guildID string) (*player.Session, error) {
	s := d.Registry.Get(guildID)
	if s == nil || s.Closed() {
		return nil, registry.ErrNoSession
	}
	return s, nil
}

// reply answers a command with embed, or with the explanation of err.
// Errors are shown only to the invoking user.
func reply(ctx *core.SlashInteractionContext, embed *discordgo.MessageEmbed, err error) error {
	if err != nil {
		return core.RespondEmbedEphemeral(ctx.Session, ctx.Event, failure(err))
	}
	return core.RespondEmbed(ctx.Session, ctx.Event, embed)
}

// followup is reply for deferred commands.
func followup(ctx *core.SlashInteractionContext, embed *discordgo.MessageEmbed, err error) error {
	if err != nil {
		embed = failure(err)
	}
	return core.FollowupEmbed(ctx.Session, ctx.Event, embed)
}

func failure(err error) *discordgo.MessageEmbed {
	msg, known := Explain(err)
	if !known {
		logging.For("music").Error("Command failed", "error", err)
	}
	return core.Embed("🎵 Error", msg)
}

func slashContext(ctx interface{}) (*core.SlashInteractionContext, bool) {
	c, ok := ctx.(*core.SlashInteractionContext)
	if !ok || c.Event == nil || c.Event.GuildID == "" {
		return nil, false
	}
	return c, true
}

func optionString(ctx *core.SlashInteractionContext, name string) string {
	if o, ok := ctx.Options()[name]; ok {
		return o.StringValue()
	}
	return ""
}

func optionInt(ctx *core.SlashInteractionContext, name string) (int, bool) {
	if o, ok := ctx.Options()[name]; ok {
		return int(o.IntValue()), true
	}
	return 0, false
}

func optionBool(ctx *core.SlashInteractionContext, name string) bool {
	if o, ok := ctx.Options()[name]; ok {
		return o.BoolValue()
	}
	return false
}

func optionUser(ctx *core.SlashInteractionContext, name string) string {
	o, ok := ctx.Options()[name]
	if !ok {
		return ""
	}
	if v, ok := o.Value.(string); ok {
		return v
	}
	return fmt.Sprint(o.Value)
}

var voicePermissions = []int64{discordgo.PermissionVoiceConnect, discordgo.PermissionVoiceSpeak}
