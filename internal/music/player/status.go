package player

import (
	"time"

	"github.com/keshon/listenparty/internal/music/sources"
	"github.com/keshon/listenparty/internal/music/vote"
)

type State string

const (
	StateIdle           State = "idle"
	StateConnectedEmpty State = "connected"
	StatePlaying        State = "playing"
	StatePaused         State = "paused"
)

type PlayerStatus string

const (
	StatusPlaying   PlayerStatus = "Now Playing"
	StatusStopped   PlayerStatus = "Playback Stopped"
	StatusTrackFail PlayerStatus = "Track Failed"
	StatusIdle      PlayerStatus = "Left Due To Inactivity"
	StatusDJChanged PlayerStatus = "DJ Changed"
)

func (status PlayerStatus) StringEmoji() string {
	m := map[PlayerStatus]string{
		StatusPlaying:   "▶️",
		StatusStopped:   "⏹",
		StatusTrackFail: "❌",
		StatusIdle:      "💤",
		StatusDJChanged: "🎧",
	}
	return m[status]
}

// Notice is a message for the session's text channel.
type Notice struct {
	GuildID   string
	ChannelID string
	Status    PlayerStatus
	Track     *sources.Track
	Message   string
}

type Reason string

const (
	ReasonStopped      Reason = "stopped"
	ReasonIdle         Reason = "idle"
	ReasonEmptyChannel Reason = "empty_channel"
	ReasonDisconnected Reason = "disconnected"
	ReasonTransport    Reason = "transport_lost"
	ReasonShutdown     Reason = "shutdown"
)

func (r Reason) Message() string {
	switch r {
	case ReasonIdle:
		return "Nothing was queued for a while, so I left the channel."
	case ReasonEmptyChannel:
		return "Everyone left the channel, so I left too."
	case ReasonDisconnected:
		return "I was disconnected from voice."
	case ReasonTransport:
		return "Lost the voice connection."
	case ReasonShutdown:
		return "Shutting down."
	default:
		return "Playback stopped and the queue was cleared."
	}
}

// Settings are the per-guild toggles that outlive a session.
type Settings struct {
	Announce        bool `json:"announce"`
	AllowDuplicates bool `json:"allow_duplicates"`
	Volume          int  `json:"volume"`
}

func DefaultSettings(volume int) Settings {
	return Settings{Announce: true, Volume: volume}
}

type ActivityType string

const (
	ActivitySessionCreated  ActivityType = "session.created"
	ActivityTrackStarted    ActivityType = "track.started"
	ActivityVoteCast        ActivityType = "vote.cast"
	ActivityDJChanged       ActivityType = "dj.changed"
	ActivitySettingsChanged ActivityType = "settings.changed"
	ActivitySessionClosed   ActivityType = "session.closed"
)

type Activity struct {
	Type      ActivityType   `json:"type"`
	GuildID   string         `json:"guild_id"`
	ChannelID string         `json:"channel_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Track     *sources.Track `json:"track,omitempty"`
	Action    vote.Action    `json:"action,omitempty"`
	Votes     int            `json:"votes,omitempty"`
	Required  int            `json:"required,omitempty"`
	Settings  *Settings      `json:"settings,omitempty"`
	Reason    Reason         `json:"reason,omitempty"`
	At        time.Time      `json:"at"`
}

type Snapshot struct {
	GuildID       string              `json:"guild_id"`
	ChannelID     string              `json:"channel_id"`
	TextChannelID string              `json:"text_channel_id"`
	DJ            string              `json:"dj"`
	State         State               `json:"state"`
	Current       *sources.Track      `json:"current,omitempty"`
	Position      time.Duration       `json:"position"`
	Queue         []sources.Track     `json:"queue"`
	Settings      Settings            `json:"settings"`
	Loop          bool                `json:"loop"`
	Votes         map[vote.Action]int `json:"votes"`
}
