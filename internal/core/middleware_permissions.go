package core

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/listenparty/internal/logging"
)

var PermissionNames = map[int64]string{
	discordgo.PermissionAdministrator:          "Administrator",
	discordgo.PermissionManageChannels:         "Manage Channels",
	discordgo.PermissionManageGuild:            "Manage Server",
	discordgo.PermissionViewChannel:            "View Channel",
	discordgo.PermissionSendMessages:           "Send Messages",
	discordgo.PermissionEmbedLinks:             "Embed Links",
	discordgo.PermissionVoiceConnect:           "Connect to Voice Channel",
	discordgo.PermissionVoiceSpeak:             "Speak",
	discordgo.PermissionVoiceMoveMembers:       "Move Members",
	discordgo.PermissionVoiceMuteMembers:       "Mute Members",
	discordgo.PermissionVoiceDeafenMembers:     "Deafen Members",
	discordgo.PermissionModerateMembers:        "Moderate Members",
	discordgo.PermissionUseApplicationCommands: "Use Application Commands",
}

// moderatorPermissions grant moderator standing over a session: any one
// of them bypasses votes.
const moderatorPermissions = discordgo.PermissionAdministrator |
	discordgo.PermissionManageGuild |
	discordgo.PermissionManageChannels |
	discordgo.PermissionVoiceMoveMembers

// WithModeratorStanding decides whether the invoking member counts as a
// moderator before the command runs.
func WithModeratorStanding() Middleware {
	return func(cmd Command) Command {
		return &wrappedCommand{
			Command: cmd,
			wrap: func(ctx interface{}) error {
				if v, ok := ctx.(*SlashInteractionContext); ok {
					v.Moderator = IsModerator(v.Session, v.Event.GuildID, v.Event.Member, v.DeveloperID)
				}
				return cmd.Run(ctx)
			},
		}
	}
}

// WithBotPermissionCheck refuses to run a command when the bot lacks any
// of the permissions it declares. Commands declaring none always run.
func WithBotPermissionCheck() Middleware {
	return func(cmd Command) Command {
		var required []int64
		if bp, ok := cmd.(BotPermissionProvider); ok {
			required = bp.BotPermissions()
		}
		return &wrappedCommand{
			Command: cmd,
			wrap: func(ctx interface{}) error {
				v, ok := ctx.(*SlashInteractionContext)
				if !ok || v.Event.GuildID == "" || len(required) == 0 {
					return cmd.Run(ctx)
				}

				botUser := v.Session.State.User
				if botUser == nil {
					return cmd.Run(ctx)
				}
				perms, err := v.Session.UserChannelPermissions(botUser.ID, v.Event.ChannelID)
				if err != nil {
					logging.For("core").Warn("Failed to get bot permissions", "command", cmd.Name(), "error", err)
					return cmd.Run(ctx)
				}

				if missing := MissingPermissions(perms, required); len(missing) > 0 {
					msg := fmt.Sprintf(
						"I need the following permissions in this channel to run this command:\n`%s`",
						strings.Join(missing, "`, `"),
					)
					return RespondEphemeral(v.Session, v.Event, msg)
				}
				return cmd.Run(ctx)
			},
		}
	}
}

// MissingPermissions names every required permission absent from have.
// Administrator implies all of them.
func MissingPermissions(have int64, required []int64) []string {
	if have&discordgo.PermissionAdministrator != 0 {
		return nil
	}
	var missing []string
	for _, p := range required {
		if have&p != 0 {
			continue
		}
		name := PermissionNames[p]
		if name == "" {
			name = fmt.Sprintf("0x%x", p)
		}
		missing = append(missing, name)
	}
	return missing
}

// HasModeratorPermissions reports whether perms grant moderator standing.
func HasModeratorPermissions(perms int64) bool {
	return perms&moderatorPermissions != 0
}
