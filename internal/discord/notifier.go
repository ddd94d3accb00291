package discord

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/listenparty/internal/core"
	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/music/player"
)

const noticeQueue = 64

type embedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts session notices to their text channel from its own
// goroutine, so sessions never wait on Discord.
type Notifier struct {
	sender embedSender
	queue  chan player.Notice
	log    *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ player.Notifier = (*Notifier)(nil)

func NewNotifier(sender embedSender) *Notifier {
	n := &Notifier{
		sender: sender,
		queue:  make(chan player.Notice, noticeQueue),
		log:    logging.For("notifier"),
		done:   make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *Notifier) Notify(notice player.Notice) {
	if notice.ChannelID == "" {
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- notice:
	default:
		n.log.Warn("Notice dropped (queue full)", "guild", notice.GuildID, "status", notice.Status)
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for notice := range n.queue {
		if _, err := n.sender.ChannelMessageSendEmbed(notice.ChannelID, noticeEmbed(notice)); err != nil {
			n.log.Warn("Failed to send notice", "guild", notice.GuildID, "channel", notice.ChannelID, "error", err)
		}
	}
}

// Close sends what is queued and stops.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()
	<-n.done
}

func noticeEmbed(n player.Notice) *discordgo.MessageEmbed {
	embed := core.Embed(fmt.Sprintf("%s %s", n.Status.StringEmoji(), n.Status), n.Message)
	if n.Track == nil {
		return embed
	}

	title := n.Track.String()
	if n.Track.URI != "" {
		title = fmt.Sprintf("[%s](%s)", title, n.Track.URI)
	}
	if embed.Description == "" {
		embed.Description = title
	} else {
		embed.Description = title + "\n" + embed.Description
	}
	if n.Track.RequesterID != "" {
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Requested by", Value: "<@" + n.Track.RequesterID + ">", Inline: true},
		}
	}
	if n.Track.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: n.Track.Thumbnail}
	}
	return embed
}
