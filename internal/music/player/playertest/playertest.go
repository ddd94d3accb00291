// Package playertest provides an in-memory voice transport for tests of
// packages built on player.
package playertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/sources"
)

// Transport records calls and emits events on demand.
type Transport struct {
	mu          sync.Mutex
	channelID   string
	events      chan player.TrackEvent
	playing     *sources.Track
	played      []sources.Track
	moves       []string
	volume      int
	disconnects int

	// OnDisconnect, if set, runs at the start of Disconnect.
	OnDisconnect func()
}

func NewTransport(channelID string) *Transport {
	return &Transport{channelID: channelID, events: make(chan player.TrackEvent, 16)}
}

func (t *Transport) Play(_ context.Context, tr sources.Track) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = &tr
	t.played = append(t.played, tr)
	return nil
}

func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing != nil {
		t.events <- player.TrackEvent{Kind: player.EventTrackEnd, Track: *t.playing}
		t.playing = nil
	}
	return nil
}

// Finish ends the playing track naturally.
func (t *Transport) Finish() {
	_ = t.Stop()
}

func (t *Transport) Pause() error  { return nil }
func (t *Transport) Resume() error { return nil }

func (t *Transport) SetVolume(v int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.volume = v
	return nil
}

func (t *Transport) Seek(time.Duration) error { return nil }
func (t *Transport) Position() time.Duration  { return 0 }

func (t *Transport) ChannelID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channelID
}

func (t *Transport) Move(_ context.Context, channelID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channelID = channelID
	t.moves = append(t.moves, channelID)
	return nil
}

func (t *Transport) Disconnect() error {
	if t.OnDisconnect != nil {
		t.OnDisconnect()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnects++
	return nil
}

func (t *Transport) Events() <-chan player.TrackEvent {
	return t.events
}

func (t *Transport) Played() []sources.Track {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sources.Track(nil), t.played...)
}

func (t *Transport) Moves() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.moves...)
}

func (t *Transport) Volume() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.volume
}

func (t *Transport) Disconnects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnects
}

var ErrRefused = errors.New("connection refused")

// Connector hands out Transports and remembers them per guild.
type Connector struct {
	mu         sync.Mutex
	transports map[string]*Transport
	calls      int
	Delay      time.Duration
	Fail       bool
}

func NewConnector() *Connector {
	return &Connector{transports: make(map[string]*Transport)}
}

func (c *Connector) Connect(ctx context.Context, guildID, channelID string) (player.Transport, error) {
	c.mu.Lock()
	c.calls++
	delay, fail := c.Delay, c.Fail
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if fail {
		return nil, ErrRefused
	}

	t := NewTransport(channelID)
	c.mu.Lock()
	c.transports[guildID] = t
	c.mu.Unlock()
	return t, nil
}

func (c *Connector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Transport returns the last transport opened for guildID.
func (c *Connector) Transport(guildID string) *Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transports[guildID]
}
