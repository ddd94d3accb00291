package player

import (
	"context"
	"errors"
	"time"

	"github.com/keshon/listenparty/internal/music/presence"
	"github.com/keshon/listenparty/internal/music/sources"
)

// ErrTransportUnreachable is the only transport failure that ends a session.
var ErrTransportUnreachable = errors.New("voice connection unreachable")

type EventKind int

const (
	EventTrackEnd EventKind = iota
	EventTrackError
	EventTrackStuck
)

func (k EventKind) String() string {
	switch k {
	case EventTrackError:
		return "error"
	case EventTrackStuck:
		return "stuck"
	default:
		return "end"
	}
}

// TrackEvent is emitted by a Transport for the track it was last told to play.
type TrackEvent struct {
	Kind      EventKind
	Track     sources.Track
	Message   string        // EventTrackError
	Threshold time.Duration // EventTrackStuck
}

// Transport is one guild's voice connection.
//
// Play replaces whatever is playing without emitting an event for it.
// A track emits exactly one of EventTrackEnd or EventTrackError when it
// finishes; Stop ends it with EventTrackEnd. EventTrackStuck may precede
// either.
type Transport interface {
	Play(ctx context.Context, track sources.Track) error
	Pause() error
	Resume() error
	Stop() error
	SetVolume(volume int) error
	Seek(pos time.Duration) error
	Position() time.Duration
	ChannelID() string
	Move(ctx context.Context, channelID string) error
	Disconnect() error
	Events() <-chan TrackEvent
}

// Connector opens transports.
type Connector interface {
	Connect(ctx context.Context, guildID, channelID string) (Transport, error)
}

// Roster answers who is in a voice channel. Counts include bots.
type Roster interface {
	Count(guildID, channelID string) int
	Contains(guildID, channelID, userID string) bool
	Humans(guildID, channelID string) []presence.Member
}

// Notifier delivers user-facing notices. Calls must not block.
type Notifier interface {
	Notify(n Notice)
}

// Observer receives lifecycle activity for persistence and fan-out.
type Observer interface {
	Observe(a Activity)
}

// Observers fans one activity out to many observers.
type Observers []Observer

func (o Observers) Observe(a Activity) {
	for _, ob := range o {
		if ob != nil {
			ob.Observe(a)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}

type nopObserver struct{}

func (nopObserver) Observe(Activity) {}
