// Package core is the slash command framework: the command contract,
// the registry commands are looked up in and the middleware wrapped
// around them.
package core

import (
	"github.com/bwmarrin/discordgo"

	"github.com/keshon/listenparty/internal/storage"
)

type Command interface {
	Name() string
	Description() string
	Category() string
	Run(ctx interface{}) error
}

// SlashProvider is how a command is registered with Discord.
type SlashProvider interface {
	SlashDefinition() *discordgo.ApplicationCommand
}

// BotPermissionProvider lists the channel permissions the bot needs
// before the command can run.
type BotPermissionProvider interface {
	BotPermissions() []int64
}

// SlashInteractionContext is what the runtime hands a command.
type SlashInteractionContext struct {
	Session     *discordgo.Session
	Event       *discordgo.InteractionCreate
	Storage     *storage.Storage
	DeveloperID string

	// Moderator is filled in by WithModeratorStanding.
	Moderator bool
}

// User is the invoking user, in a guild or a DM.
func (c *SlashInteractionContext) User() *discordgo.User {
	if c.Event.Member != nil && c.Event.Member.User != nil {
		return c.Event.Member.User
	}
	return c.Event.User
}

// Options returns the top-level slash options keyed by name.
func (c *SlashInteractionContext) Options() map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := make(map[string]*discordgo.ApplicationCommandInteractionDataOption)
	if c.Event.Type != discordgo.InteractionApplicationCommand {
		return opts
	}
	for _, o := range c.Event.ApplicationCommandData().Options {
		opts[o.Name] = o
	}
	return opts
}
