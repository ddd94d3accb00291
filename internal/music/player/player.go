package player

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/music/queue"
	"github.com/keshon/listenparty/internal/music/sources"
	"github.com/keshon/listenparty/internal/music/vote"
)

var (
	ErrNotInSession      = errors.New("you are not in the session's voice channel")
	ErrPermissionDenied  = errors.New("only the DJ or a moderator can do that")
	ErrNothingPlaying    = errors.New("nothing is playing")
	ErrAlreadyPaused     = errors.New("playback is already paused")
	ErrNotPaused         = errors.New("playback is not paused")
	ErrQueueTooShort     = errors.New("the queue needs at least two tracks")
	ErrAlreadyVoted      = errors.New("you already voted for that")
	ErrTransitionPending = errors.New("already moving to the next track")
	ErrInvalidVolume     = errors.New("volume must be between 1 and 100")
	ErrInvalidSeek       = errors.New("position is outside the track")
	ErrInvalidPosition   = errors.New("no track at that queue position")
	ErrSessionClosed     = errors.New("session is closed")
)

const DefaultIdleTimeout = 120 * time.Second

type Options struct {
	GuildID       string
	ChannelID     string
	TextChannelID string
	DJ            string
	Settings      Settings
	IdleTimeout   time.Duration

	Transport Transport
	Roster    Roster
	Notifier  Notifier
	Observer  Observer

	// OnTeardown is called once, after the session has released its transport.
	OnTeardown func(s *Session, reason Reason)
}

// Session is one guild's shared playback. Its run loop is the only
// goroutine that advances tracks, so transitions within a session are
// strictly sequential.
type Session struct {
	mu sync.Mutex

	guildID       string
	channelID     string
	textChannelID string
	dj            string

	state       State
	current     *sources.Track
	settings    Settings
	loop        bool
	advancing   bool
	skipPending bool
	closed      bool

	queue       *queue.Queue
	ballot      *vote.Ballot
	idleTimeout time.Duration

	transport  Transport
	roster     Roster
	notifier   Notifier
	observer   Observer
	onTeardown func(*Session, Reason)

	ctx     context.Context
	cancel  context.CancelFunc
	trigger chan struct{}
	done    chan struct{}
	log     *slog.Logger
}

// New builds a session around an already connected transport. Call Start
// to begin playback.
func New(opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		guildID:       opts.GuildID,
		channelID:     opts.ChannelID,
		textChannelID: opts.TextChannelID,
		dj:            opts.DJ,
		state:         StateConnectedEmpty,
		settings:      opts.Settings,
		queue:         queue.New(),
		ballot:        vote.NewBallot(),
		idleTimeout:   opts.IdleTimeout,
		transport:     opts.Transport,
		roster:        opts.Roster,
		notifier:      opts.Notifier,
		observer:      opts.Observer,
		onTeardown:    opts.OnTeardown,
		ctx:           ctx,
		cancel:        cancel,
		trigger:       make(chan struct{}, 1),
		done:          make(chan struct{}),
		log:           logging.For("player").With("guild", opts.GuildID),
	}
	if s.idleTimeout <= 0 {
		s.idleTimeout = DefaultIdleTimeout
	}
	if s.settings.Volume < 1 || s.settings.Volume > 100 {
		s.settings.Volume = 100
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	return s
}

// Start launches the run loop and the first advance, so an empty session
// is reclaimed after the idle timeout like any other.
func (s *Session) Start() {
	if err := s.transport.SetVolume(s.settings.Volume); err != nil {
		s.log.Warn("Failed to apply initial volume", "volume", s.settings.Volume, "error", err)
	}
	s.observe(Activity{Type: ActivitySessionCreated, UserID: s.DJ()})
	go s.run()
	s.requestAdvance()
}

func (s *Session) run() {
	defer close(s.done)
	events := s.transport.Events()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.trigger:
			s.advance()
		case ev, ok := <-events:
			if !ok {
				s.log.Warn("Transport event stream closed")
				s.Teardown(ReasonTransport)
				return
			}
			s.handleEvent(ev)
		}
	}
}

// requestAdvance never blocks; one pending request is enough.
func (s *Session) requestAdvance() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Session) handleEvent(ev TrackEvent) {
	s.mu.Lock()
	stale := s.closed || s.advancing || s.current == nil || s.current.Key() != ev.Track.Key()
	s.mu.Unlock()
	if stale {
		s.log.Debug("Ignoring stale transport event", "kind", ev.Kind, "track", ev.Track.ID)
		return
	}

	switch ev.Kind {
	case EventTrackEnd:
		s.log.Debug("Track ended", "track", ev.Track.Title)
	case EventTrackError, EventTrackStuck:
		s.trackFailed(ev)
	}
	s.advance()
}

// trackFailed reports a bad track. The session carries on with the next one.
func (s *Session) trackFailed(ev TrackEvent) {
	msg := ev.Message
	if ev.Kind == EventTrackStuck {
		msg = "Playback stalled for " + ev.Threshold.String() + ", skipping."
	}
	s.log.Warn("Track failed", "kind", ev.Kind, "track", ev.Track.Title, "message", msg)

	// a stalled stream is still owned by the transport; its TrackEnd arrives
	// stale once current is cleared
	if ev.Kind == EventTrackStuck {
		if err := s.transport.Stop(); err != nil {
			s.log.Warn("Failed to stop stalled track", "track", ev.Track.Title, "error", err)
		}
	}

	s.mu.Lock()
	// a looping track that fails must not be replayed forever
	s.current = nil
	s.state = StateConnectedEmpty
	s.mu.Unlock()

	t := ev.Track
	s.notify(StatusTrackFail, &t, msg)
}

// advance moves to the next track: loop reuse, or a wait on the queue of
// up to the idle timeout, then Play.
func (s *Session) advance() {
	s.mu.Lock()
	if s.closed || s.advancing {
		s.mu.Unlock()
		return
	}
	s.advancing = true
	s.ballot.Reset()

	var track sources.Track
	reuse := s.loop && s.current != nil && !s.skipPending
	if reuse {
		track = *s.current
	} else {
		s.current = nil
		s.state = StateConnectedEmpty
	}
	s.skipPending = false
	s.mu.Unlock()

	if !reuse {
		next, err := s.queue.Dequeue(s.ctx, s.idleTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrQueueTimeout) {
				s.log.Info("Queue idle, leaving", "timeout", s.idleTimeout)
				s.Teardown(ReasonIdle)
			}
			s.endAdvance()
			return
		}
		track = next
	}

	if err := s.transport.Play(s.ctx, track); err != nil {
		if errors.Is(err, ErrTransportUnreachable) {
			s.log.Error("Voice transport unreachable", "error", err)
			s.Teardown(ReasonTransport)
			s.endAdvance()
			return
		}
		if s.ctx.Err() != nil {
			s.endAdvance()
			return
		}
		s.log.Warn("Failed to start track", "track", track.Title, "error", err)
		s.mu.Lock()
		s.current = nil
		s.state = StateConnectedEmpty
		s.advancing = false
		s.mu.Unlock()
		s.notify(StatusTrackFail, &track, err.Error())
		s.requestAdvance()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.current = &track
	s.state = StatePlaying
	s.advancing = false
	s.ballot.Reset()
	announce := s.settings.Announce
	s.mu.Unlock()

	s.log.Info("Now playing", "track", track.Title, "source", track.Source, "queue", s.queue.Len())
	s.observe(Activity{Type: ActivityTrackStarted, Track: &track, UserID: track.RequesterID})
	if announce {
		s.notify(StatusPlaying, &track, "")
	}
}

func (s *Session) endAdvance() {
	s.mu.Lock()
	s.advancing = false
	s.mu.Unlock()
}

// Teardown stops playback, clears the queue and releases the voice
// connection. Only the first call has any effect.
func (s *Session) Teardown(reason Reason) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = StateIdle
	s.current = nil
	s.ballot.Reset()
	onTeardown := s.onTeardown
	s.mu.Unlock()

	s.log.Info("Tearing down session", "reason", reason)
	s.cancel()
	s.queue.Clear()

	if err := s.transport.Stop(); err != nil {
		s.log.Debug("Transport stop during teardown", "error", err)
	}
	if err := s.transport.Disconnect(); err != nil {
		s.log.Warn("Failed to disconnect voice", "error", err)
	}

	switch reason {
	case ReasonShutdown:
	case ReasonIdle, ReasonEmptyChannel:
		s.notify(StatusIdle, nil, reason.Message())
	default:
		s.notify(StatusStopped, nil, reason.Message())
	}
	s.observe(Activity{Type: ActivitySessionClosed, Reason: reason})

	if onTeardown != nil {
		onTeardown(s, reason)
	}
}

// Done is closed once the run loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) GuildID() string {
	return s.guildID
}

func (s *Session) ChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

func (s *Session) TextChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.textChannelID
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Current() (sources.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return sources.Track{}, false
	}
	return *s.current, true
}

func (s *Session) Queue() []sources.Track {
	return s.queue.Tracks()
}

func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		GuildID:       s.guildID,
		ChannelID:     s.channelID,
		TextChannelID: s.textChannelID,
		DJ:            s.dj,
		State:         s.state,
		Settings:      s.settings,
		Loop:          s.loop,
		Votes:         s.ballot.Counts(),
	}
	if s.current != nil {
		t := *s.current
		snap.Current = &t
	}
	s.mu.Unlock()

	snap.Queue = s.queue.Tracks()
	if snap.Current != nil {
		snap.Position = s.transport.Position()
	}
	return snap
}

// Move sends the voice connection to another channel of the same guild.
func (s *Session) Move(ctx context.Context, channelID string) error {
	if s.Closed() {
		return ErrSessionClosed
	}
	if err := s.transport.Move(ctx, channelID); err != nil {
		return err
	}
	s.Rebind(channelID)
	return nil
}

// Rebind records a channel change that already happened on the gateway.
func (s *Session) Rebind(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channelID != channelID {
		s.log.Info("Session rebound", "from", s.channelID, "to", channelID)
		s.channelID = channelID
	}
}

// SetTextChannel points notices at the channel the latest command came from.
func (s *Session) SetTextChannel(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channelID != "" {
		s.textChannelID = channelID
	}
}

func (s *Session) DJ() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dj
}

// SetDJ assigns the DJ without permission checks; "" clears it.
func (s *Session) SetDJ(userID string) {
	s.mu.Lock()
	if s.closed || s.dj == userID {
		s.mu.Unlock()
		return
	}
	s.dj = userID
	s.mu.Unlock()

	s.log.Info("DJ changed", "dj", userID)
	s.observe(Activity{Type: ActivityDJChanged, UserID: userID})
	if userID != "" {
		s.notify(StatusDJChanged, nil, "<@"+userID+"> is now the DJ.")
	}
}

func (s *Session) notify(status PlayerStatus, track *sources.Track, msg string) {
	s.notifier.Notify(Notice{
		GuildID:   s.guildID,
		ChannelID: s.TextChannelID(),
		Status:    status,
		Track:     track,
		Message:   msg,
	})
}

func (s *Session) observe(a Activity) {
	a.GuildID = s.guildID
	if a.ChannelID == "" {
		a.ChannelID = s.ChannelID()
	}
	if a.At.IsZero() {
		a.At = time.Now()
	}
	s.observer.Observe(a)
}
