package core

import (
	"github.com/bwmarrin/discordgo"
)

const EmbedColor = 0xb01e66

func Respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
}

func RespondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func RespondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

func RespondEmbedEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
}

// Defer acknowledges the interaction so the command can take longer than
// three seconds; answer with FollowupEmbed.
func Defer(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

func FollowupEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	return err
}

func Embed(title, description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       EmbedColor,
	}
}

// IsModerator reports whether member holds moderator standing in the
// guild: the developer, the guild owner, or anyone with a moderator
// permission.
func IsModerator(s *discordgo.Session, guildID string, member *discordgo.Member, developerID string) bool {
	if member == nil || member.User == nil {
		return false
	}
	if developerID != "" && member.User.ID == developerID {
		return true
	}
	if HasModeratorPermissions(member.Permissions) {
		return true
	}
	if s == nil || s.State == nil {
		return false
	}

	guild, err := s.State.Guild(guildID)
	if err != nil || guild == nil {
		return false
	}
	if member.User.ID == guild.OwnerID {
		return true
	}
	for _, r := range member.Roles {
		role, _ := s.State.Role(guildID, r)
		if role != nil && HasModeratorPermissions(role.Permissions) {
			return true
		}
	}
	return false
}

func channelName(s *discordgo.Session, channelID string) string {
	if ch, err := s.State.Channel(channelID); err == nil && ch != nil {
		return ch.Name
	}
	return ""
}

func guildName(s *discordgo.Session, guildID string) string {
	if g, err := s.State.Guild(guildID); err == nil && g != nil {
		return g.Name
	}
	return ""
}
