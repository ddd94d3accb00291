package music

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/listenparty/internal/core"
	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/sources"
	"github.com/keshon/listenparty/internal/music/vote"
)

const queuePageSize = 10

// formatDuration renders d as m:ss or h:mm:ss.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func trackLine(t sources.Track) string {
	title := t.String()
	if t.URI != "" {
		title = fmt.Sprintf("[%s](%s)", title, t.URI)
	}
	if t.Duration > 0 {
		title += fmt.Sprintf(" `%s`", formatDuration(t.Duration))
	}
	return title
}

var actionVerbs = map[vote.Action]string{
	vote.ActionPause:   "⏸ Paused",
	vote.ActionResume:  "▶️ Resumed",
	vote.ActionSkip:    "⏭ Skipped",
	vote.ActionShuffle: "🔀 Shuffled the queue",
	vote.ActionStop:    "⏹ Stopped playback and cleared the queue",
}

func controlEmbed(res player.ControlResult) *discordgo.MessageEmbed {
	if res.Executed() {
		desc := actionVerbs[res.Action] + "."
		if res.Decision.Outcome == vote.ThresholdMet {
			desc += fmt.Sprintf(" The vote passed with %d of %d.", res.Decision.Votes, res.Decision.Required)
		}
		return core.Embed("🎵 "+capitalize(string(res.Action)), desc)
	}
	return core.Embed("🗳 Vote recorded", fmt.Sprintf(
		"%d of %d votes to **%s**. The DJ or a moderator can do it right away.",
		res.Decision.Votes, res.Decision.Required, res.Action,
	))
}

func queueEmbed(snap player.Snapshot) *discordgo.MessageEmbed {
	var b strings.Builder
	if snap.Current != nil {
		fmt.Fprintf(&b, "**Now:** %s\n\n", trackLine(*snap.Current))
	}
	if len(snap.Queue) == 0 {
		b.WriteString("The queue is empty.")
	}
	var total time.Duration
	for i, t := range snap.Queue {
		total += t.Duration
		if i < queuePageSize {
			fmt.Fprintf(&b, "`%d.` %s <@%s>\n", i+1, trackLine(t), t.RequesterID)
		}
	}
	if extra := len(snap.Queue) - queuePageSize; extra > 0 {
		fmt.Fprintf(&b, "…and %d more", extra)
	}

	embed := core.Embed("🎶 Queue", b.String())
	if len(snap.Queue) > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%d tracks, %s total", len(snap.Queue), formatDuration(total)),
		}
	}
	return embed
}

func nowPlayingEmbed(snap player.Snapshot) *discordgo.MessageEmbed {
	if snap.Current == nil {
		return core.Embed("🎵 Now Playing", "Nothing is playing.")
	}
	t := snap.Current
	progress := formatDuration(snap.Position)
	if t.Duration > 0 {
		progress += " / " + formatDuration(t.Duration)
	}

	embed := core.Embed(player.StatusPlaying.StringEmoji()+" "+string(player.StatusPlaying), trackLine(*t))
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Position", Value: progress, Inline: true},
		{Name: "DJ", Value: mention(snap.DJ), Inline: true},
		{Name: "Requested by", Value: mention(t.RequesterID), Inline: true},
		{Name: "State", Value: string(snap.State), Inline: true},
		{Name: "Volume", Value: fmt.Sprintf("%d%%", snap.Settings.Volume), Inline: true},
		{Name: "Loop", Value: onOff(snap.Loop), Inline: true},
	}
	if t.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: t.Thumbnail}
	}
	return embed
}

func mention(userID string) string {
	if userID == "" {
		return "nobody"
	}
	return "<@" + userID + ">"
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
