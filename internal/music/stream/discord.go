package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/sources"
)

var ErrNotPlaying = errors.New("nothing is streaming")

const DefaultStuckThreshold = 10 * time.Second

// Voice is the part of a voice connection the transport drives.
type Voice interface {
	Send() chan<- []byte
	Ready() bool
	Speaking(on bool) error
	ChangeChannel(channelID string) error
	Disconnect() error
}

// Encoder turns one PCM frame into an opus packet.
type Encoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

type discordVoice struct {
	vc *discordgo.VoiceConnection
}

func (d discordVoice) Send() chan<- []byte { return d.vc.OpusSend }

func (d discordVoice) Ready() bool {
	d.vc.RLock()
	defer d.vc.RUnlock()
	return d.vc.Ready
}

func (d discordVoice) Speaking(on bool) error { return d.vc.Speaking(on) }

func (d discordVoice) ChangeChannel(channelID string) error {
	return d.vc.ChangeChannel(channelID, false, true)
}

func (d discordVoice) Disconnect() error { return d.vc.Disconnect() }

type Options struct {
	Opener         Opener
	StuckThreshold time.Duration
	// NewEncoder defaults to a gopus encoder.
	NewEncoder func() (Encoder, error)
}

func (o Options) withDefaults() Options {
	if o.Opener == nil {
		o.Opener = FFmpeg{}
	}
	if o.StuckThreshold <= 0 {
		o.StuckThreshold = DefaultStuckThreshold
	}
	if o.NewEncoder == nil {
		o.NewEncoder = func() (Encoder, error) {
			enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
			if err != nil {
				return nil, err
			}
			return enc, nil
		}
	}
	return o
}

// Connector joins voice channels through a discordgo session.
type Connector struct {
	dg   *discordgo.Session
	urls URLResolver
	opts Options
}

func NewConnector(dg *discordgo.Session, urls URLResolver, opts Options) *Connector {
	return &Connector{dg: dg, urls: urls, opts: opts.withDefaults()}
}

func (c *Connector) Connect(ctx context.Context, guildID, channelID string) (player.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := c.dg.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to join voice channel %s: %v", player.ErrTransportUnreachable, channelID, err)
	}
	return NewVoiceTransport(guildID, channelID, discordVoice{vc: vc}, c.urls, c.opts), nil
}

// VoiceTransport streams one track at a time into a guild's voice
// connection and reports how each track ended.
type VoiceTransport struct {
	guildID string
	voice   Voice
	urls    URLResolver
	opts    Options
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	volume atomic.Int32
	events chan player.TrackEvent

	mu        sync.Mutex
	channelID string
	cur       *playback
}

func NewVoiceTransport(guildID, channelID string, voice Voice, urls URLResolver, opts Options) *VoiceTransport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &VoiceTransport{
		guildID:   guildID,
		channelID: channelID,
		voice:     voice,
		urls:      urls,
		opts:      opts.withDefaults(),
		log:       logging.For("stream").With("guild", guildID),
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan player.TrackEvent, 16),
	}
	t.volume.Store(100)
	return t
}

type playback struct {
	track  sources.Track
	src    *RecoveryStream
	stop   chan struct{}
	once   sync.Once
	done   chan struct{}
	seek   chan *RecoveryStream
	wake   chan struct{}
	paused atomic.Bool
	pos    atomic.Int64
}

func (p *playback) halt() {
	p.once.Do(func() { close(p.stop) })
}

func (t *VoiceTransport) Events() <-chan player.TrackEvent {
	return t.events
}

func (t *VoiceTransport) ChannelID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channelID
}

// Play starts track, silently replacing whatever was streaming.
func (t *VoiceTransport) Play(ctx context.Context, track sources.Track) error {
	if t.ctx.Err() != nil || !t.voice.Ready() {
		return player.ErrTransportUnreachable
	}

	url, err := t.urls.StreamURL(ctx, track)
	if err != nil {
		return fmt.Errorf("stream url: %w", err)
	}
	src := t.newSource(track, url)
	if err := src.Open(0); err != nil {
		return fmt.Errorf("failed to create PCM stream for track: %w", err)
	}

	p := &playback{
		track: track,
		src:   src,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		seek:  make(chan *RecoveryStream),
		wake:  make(chan struct{}, 1),
	}

	t.mu.Lock()
	old := t.cur
	t.cur = p
	t.mu.Unlock()
	if old != nil {
		old.halt()
		<-old.done
	}

	t.log.Info("Starting track", "track", track.Title)
	go t.run(p)
	return nil
}

func (t *VoiceTransport) newSource(track sources.Track, url string) *RecoveryStream {
	open := func(offset time.Duration) (io.ReadCloser, error) {
		return t.opts.Opener.Open(t.ctx, url, offset)
	}
	return NewRecoveryStream(open, track.Duration, t.log.With("track", track.Title))
}

// Stop ends the current track; it is reported as a normal end.
func (t *VoiceTransport) Stop() error {
	t.mu.Lock()
	p := t.cur
	t.mu.Unlock()
	if p != nil {
		p.halt()
	}
	return nil
}

func (t *VoiceTransport) Pause() error {
	p := t.current()
	if p == nil {
		return ErrNotPlaying
	}
	p.paused.Store(true)
	return nil
}

func (t *VoiceTransport) Resume() error {
	p := t.current()
	if p == nil {
		return ErrNotPlaying
	}
	p.paused.Store(false)
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

func (t *VoiceTransport) SetVolume(volume int) error {
	if volume < 1 || volume > 100 {
		return player.ErrInvalidVolume
	}
	t.volume.Store(int32(volume))
	return nil
}

// Seek restarts the decoder at pos within the current track.
func (t *VoiceTransport) Seek(pos time.Duration) error {
	p := t.current()
	if p == nil {
		return ErrNotPlaying
	}
	url, err := t.urls.StreamURL(t.ctx, p.track)
	if err != nil {
		return fmt.Errorf("stream url: %w", err)
	}
	src := t.newSource(p.track, url)
	if err := src.Open(pos); err != nil {
		return fmt.Errorf("failed to reopen stream at %s: %w", pos, err)
	}

	p.pos.Store(int64(pos))
	select {
	case p.seek <- src:
		return nil
	case <-p.done:
		_ = src.Close()
		return ErrNotPlaying
	}
}

func (t *VoiceTransport) Position() time.Duration {
	p := t.current()
	if p == nil {
		return 0
	}
	return time.Duration(p.pos.Load())
}

func (t *VoiceTransport) Move(_ context.Context, channelID string) error {
	if err := t.voice.ChangeChannel(channelID); err != nil {
		return fmt.Errorf("change channel: %w", err)
	}
	t.mu.Lock()
	t.channelID = channelID
	t.mu.Unlock()
	return nil
}

// Disconnect drops the current track without an event and leaves voice.
func (t *VoiceTransport) Disconnect() error {
	t.mu.Lock()
	p := t.cur
	t.cur = nil
	t.mu.Unlock()
	if p != nil {
		p.halt()
		<-p.done
	}
	t.cancel()
	return t.voice.Disconnect()
}

func (t *VoiceTransport) current() *playback {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}

func (t *VoiceTransport) run(p *playback) {
	defer close(p.done)

	if err := t.voice.Speaking(true); err != nil {
		t.log.Warn("Couldn't set speaking state", "error", err)
	}
	defer func() { _ = t.voice.Speaking(false) }()

	enc, err := t.opts.NewEncoder()
	if err != nil {
		_ = p.src.Close()
		t.finish(p, fmt.Errorf("encoder error: %w", err))
		return
	}

	pm := startPump(p.src)
	defer func() { pm.close() }()

	check := t.opts.StuckThreshold / 4
	if check < frameDuration {
		check = frameDuration
	}
	watchdog := time.NewTicker(check)
	defer watchdog.Stop()

	last := time.Now()
	reported := false
	stalled := func() {
		if !reported && time.Since(last) >= t.opts.StuckThreshold {
			reported = true
			t.emitFor(p, player.TrackEvent{
				Kind:      player.EventTrackStuck,
				Track:     p.track,
				Threshold: t.opts.StuckThreshold,
			})
		}
	}
	progressed := func() {
		last = time.Now()
		reported = false
	}
	swap := func(src *RecoveryStream) {
		pm.close()
		p.src = src
		pm = startPump(src)
		progressed()
	}

	for {
		if p.paused.Load() {
			select {
			case <-p.stop:
				t.finish(p, nil)
				return
			case src := <-p.seek:
				swap(src)
			case <-p.wake:
			}
			progressed()
			continue
		}

		select {
		case <-p.stop:
			t.finish(p, nil)
			return

		case src := <-p.seek:
			swap(src)

		case <-watchdog.C:
			stalled()

		case pcm, ok := <-pm.frames:
			if !ok {
				t.finish(p, pm.err)
				return
			}
			scaleVolume(pcm, int(t.volume.Load()))
			packet, err := enc.Encode(pcm, frameSize, frameBytes)
			if err != nil {
				t.finish(p, fmt.Errorf("encode error: %w", err))
				return
			}

		send:
			for {
				select {
				case t.voice.Send() <- packet:
					break send
				case <-p.stop:
					t.finish(p, nil)
					return
				case <-watchdog.C:
					stalled()
				}
			}
			p.pos.Add(int64(frameDuration))
			progressed()
		}
	}
}

// finish reports how p ended unless it was superseded.
func (t *VoiceTransport) finish(p *playback, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur != p {
		return
	}
	t.cur = nil

	ev := player.TrackEvent{Kind: player.EventTrackEnd, Track: p.track}
	if !finished(err) {
		ev.Kind = player.EventTrackError
		ev.Message = err.Error()
		t.log.Warn("Track ended with error", "track", p.track.Title, "error", err)
	} else {
		t.log.Debug("Track finished", "track", p.track.Title)
	}
	t.emit(ev)
}

func (t *VoiceTransport) emitFor(p *playback, ev player.TrackEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur != p {
		return
	}
	t.emit(ev)
}

// emit requires t.mu.
func (t *VoiceTransport) emit(ev player.TrackEvent) {
	select {
	case t.events <- ev:
	default:
		t.log.Warn("Track event dropped (channel full)", "kind", ev.Kind)
	}
}
