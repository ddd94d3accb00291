package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/storage"
)

// WithCommandLogger records every slash command in the guild's command
// history once it has run.
func WithCommandLogger() Middleware {
	return func(cmd Command) Command {
		return &wrappedCommand{
			Command: cmd,
			wrap: func(ctx interface{}) error {
				err := cmd.Run(ctx)

				v, ok := ctx.(*SlashInteractionContext)
				if !ok || v.Storage == nil || v.Event.GuildID == "" {
					return err
				}
				if e := LogCommand(v, cmd.Name()); e != nil {
					logging.For("core").Warn("Failed to log command", "command", cmd.Name(), "error", e)
				}
				return err
			},
		}
	}
}

func LogCommand(v *SlashInteractionContext, commandName string) error {
	user := v.User()
	if user == nil {
		return fmt.Errorf("no user on interaction %s", v.Event.ID)
	}
	guildID, channelID := v.Event.GuildID, v.Event.ChannelID

	var param string
	if v.Event.Type == discordgo.InteractionApplicationCommand {
		param = FormatOptions(v.Event.ApplicationCommandData().Options)
	}

	return v.Storage.AppendCommandToHistory(guildID, storage.CommandHistoryRecord{
		ChannelID:   channelID,
		ChannelName: channelName(v.Session, channelID),
		GuildName:   guildName(v.Session, guildID),
		UserID:      user.ID,
		Username:    user.Username,
		Command:     commandName,
		Param:       param,
		Datetime:    time.Now(),
	})
}

// FormatOptions renders slash options as "name=value" pairs.
func FormatOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	parts := make([]string, 0, len(opts))
	for _, o := range opts {
		if len(o.Options) > 0 {
			parts = append(parts, fmt.Sprintf("%s(%s)", o.Name, FormatOptions(o.Options)))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", o.Name, o.Value))
	}
	return strings.Join(parts, " ")
}
