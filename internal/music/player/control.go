package player

import (
	"errors"
	"fmt"
	"time"

	"github.com/keshon/listenparty/internal/music/queue"
	"github.com/keshon/listenparty/internal/music/sources"
	"github.com/keshon/listenparty/internal/music/vote"
)

// Actor is the user behind an intent. Moderator is decided by the
// command layer from guild permissions.
type Actor struct {
	ID        string
	Moderator bool
}

type ControlResult struct {
	Action   vote.Action
	Decision vote.Decision
}

// Executed reports whether the action was carried out.
func (r ControlResult) Executed() bool {
	return r.Decision.Outcome.Executes()
}

// Control runs pause, resume, skip, shuffle or stop for actor, directly
// when the actor is privileged, otherwise once enough listeners voted.
func (s *Session) Control(actor Actor, action vote.Action) (ControlResult, error) {
	res := ControlResult{Action: action}
	if !action.Valid() {
		return res, fmt.Errorf("unknown action %q", action)
	}

	s.mu.Lock()
	if err := s.checkPresent(actor); err != nil {
		s.mu.Unlock()
		return res, err
	}
	if err := s.checkPrecondition(action); err != nil {
		s.mu.Unlock()
		return res, err
	}

	st := vote.State{
		DJ:        s.dj,
		Moderator: actor.Moderator,
		Occupants: s.roster.Count(s.guildID, s.channelID),
		Votes:     s.ballot.Count(action),
		Voted:     s.ballot.Has(action, actor.ID),
	}
	if s.current != nil {
		st.Requester = s.current.RequesterID
	}
	d := vote.Decide(actor.ID, action, st)
	res.Decision = d

	switch d.Outcome {
	case vote.AlreadyVoted:
		s.mu.Unlock()
		return res, ErrAlreadyVoted
	case vote.Accumulate:
		s.ballot.Cast(action, actor.ID)
		s.mu.Unlock()
		s.log.Debug("Vote recorded", "action", action, "votes", d.Votes, "required", d.Required)
		s.observe(Activity{Type: ActivityVoteCast, UserID: actor.ID, Action: action, Votes: d.Votes, Required: d.Required})
		return res, nil
	}

	s.ballot.Clear(action)
	s.log.Info("Executing control", "action", action, "actor", actor.ID, "outcome", d.Outcome)

	switch action {
	case vote.ActionPause:
		s.state = StatePaused
		s.mu.Unlock()
		if err := s.transport.Pause(); err != nil {
			s.revertState(StatePaused, StatePlaying)
			return res, fmt.Errorf("pause: %w", err)
		}

	case vote.ActionResume:
		s.state = StatePlaying
		s.mu.Unlock()
		if err := s.transport.Resume(); err != nil {
			s.revertState(StatePlaying, StatePaused)
			return res, fmt.Errorf("resume: %w", err)
		}

	case vote.ActionSkip:
		s.skipPending = true
		s.mu.Unlock()
		// the transport answers Stop with a track end, which drives the advance
		if err := s.transport.Stop(); err != nil {
			s.mu.Lock()
			s.skipPending = false
			s.mu.Unlock()
			return res, fmt.Errorf("skip: %w", err)
		}

	case vote.ActionShuffle:
		s.mu.Unlock()
		s.queue.Shuffle()

	case vote.ActionStop:
		s.mu.Unlock()
		s.Teardown(ReasonStopped)
	}
	return res, nil
}

func (s *Session) revertState(from, to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == from {
		s.state = to
	}
}

// checkPresent requires s.mu.
func (s *Session) checkPresent(actor Actor) error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.roster.Contains(s.guildID, s.channelID, actor.ID) {
		return ErrNotInSession
	}
	return nil
}

// checkPrivileged requires s.mu.
func (s *Session) checkPrivileged(actor Actor) error {
	if err := s.checkPresent(actor); err != nil {
		return err
	}
	if actor.Moderator || (s.dj != "" && actor.ID == s.dj) {
		return nil
	}
	return ErrPermissionDenied
}

// checkPrecondition requires s.mu.
func (s *Session) checkPrecondition(action vote.Action) error {
	switch action {
	case vote.ActionPause:
		switch {
		case s.state == StatePaused:
			return ErrAlreadyPaused
		case s.state != StatePlaying || s.current == nil:
			return ErrNothingPlaying
		}
	case vote.ActionResume:
		switch {
		case s.current == nil:
			return ErrNothingPlaying
		case s.state != StatePaused:
			return ErrNotPaused
		}
	case vote.ActionSkip:
		switch {
		case s.skipPending || (s.advancing && s.current != nil):
			return ErrTransitionPending
		case s.current == nil:
			return ErrNothingPlaying
		}
	case vote.ActionShuffle:
		if s.queue.Len() < 2 {
			return ErrQueueTooShort
		}
	}
	return nil
}

type EnqueueResult struct {
	Added      int
	Duplicates int
	Position   int  // queue position of the first added track
	StartsNow  bool // nothing was playing or waiting, so the first track plays at once
}

// Enqueue adds tracks attributed to actor. With front set they go to the
// head in their given order. Duplicates of queued or playing tracks are
// dropped unless the session allows them.
func (s *Session) Enqueue(actor Actor, tracks []sources.Track, front bool) (EnqueueResult, error) {
	var res EnqueueResult

	s.mu.Lock()
	if err := s.checkPresent(actor); err != nil {
		s.mu.Unlock()
		return res, err
	}
	allowDup := s.settings.AllowDuplicates
	var playing string
	if s.current != nil {
		playing = s.current.Key()
	}
	// taken before inserting: the run loop may dequeue the first track at once
	waiting := s.queue.Len()
	s.mu.Unlock()

	ordered := tracks
	if front {
		ordered = make([]sources.Track, len(tracks))
		for i, t := range tracks {
			ordered[len(tracks)-1-i] = t
		}
	}

	for _, t := range ordered {
		t = t.RequestedBy(actor.ID)
		if allowDup {
			s.queue.Enqueue(t, front)
			res.Added++
			continue
		}
		if t.Key() == playing {
			res.Duplicates++
			continue
		}
		if err := s.queue.EnqueueUnique(t, front); err != nil {
			res.Duplicates++
			continue
		}
		res.Added++
	}

	if front {
		res.Position = 1
	} else {
		res.Position = waiting + 1
	}
	res.StartsNow = res.Added > 0 && playing == "" && waiting == 0
	if res.Added == 0 && res.Duplicates > 0 {
		return res, queue.ErrDuplicate
	}
	s.log.Debug("Tracks queued", "added", res.Added, "duplicates", res.Duplicates, "front", front)
	return res, nil
}

// SetVolume takes 1..100.
func (s *Session) SetVolume(actor Actor, volume int) error {
	if volume < 1 || volume > 100 {
		return ErrInvalidVolume
	}
	s.mu.Lock()
	if err := s.checkPrivileged(actor); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if err := s.transport.SetVolume(volume); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	s.updateSettings(func(st *Settings) { st.Volume = volume })
	return nil
}

// Seek jumps within the current track.
func (s *Session) Seek(actor Actor, pos time.Duration) error {
	s.mu.Lock()
	if err := s.checkPrivileged(actor); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.current == nil || s.advancing {
		s.mu.Unlock()
		return ErrNothingPlaying
	}
	dur := s.current.Duration
	s.mu.Unlock()

	if pos < 0 || (dur > 0 && pos >= dur) {
		return ErrInvalidSeek
	}
	if err := s.transport.Seek(pos); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	return nil
}

func (s *Session) ToggleAnnounce(actor Actor) (bool, error) {
	return s.toggle(actor, func(st *Settings) *bool { return &st.Announce })
}

func (s *Session) ToggleDuplicates(actor Actor) (bool, error) {
	return s.toggle(actor, func(st *Settings) *bool { return &st.AllowDuplicates })
}

// ToggleLoop repeats the current track until turned off or skipped.
func (s *Session) ToggleLoop(actor Actor) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkPrivileged(actor); err != nil {
		return false, err
	}
	s.loop = !s.loop
	return s.loop, nil
}

func (s *Session) toggle(actor Actor, field func(*Settings) *bool) (bool, error) {
	s.mu.Lock()
	if err := s.checkPrivileged(actor); err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.mu.Unlock()

	var v bool
	s.updateSettings(func(st *Settings) {
		f := field(st)
		*f = !*f
		v = *f
	})
	return v, nil
}

func (s *Session) updateSettings(fn func(*Settings)) {
	s.mu.Lock()
	fn(&s.settings)
	st := s.settings
	s.mu.Unlock()
	s.observe(Activity{Type: ActivitySettingsChanged, Settings: &st})
}

// SwapDJ hands the DJ role to target, who must be a listener in the channel.
func (s *Session) SwapDJ(actor Actor, target string) error {
	s.mu.Lock()
	if err := s.checkPrivileged(actor); err != nil {
		s.mu.Unlock()
		return err
	}
	guildID, channelID := s.guildID, s.channelID
	s.mu.Unlock()

	found := false
	for _, m := range s.roster.Humans(guildID, channelID) {
		if m.UserID == target {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: <@%s> is not listening", ErrNotInSession, target)
	}
	s.SetDJ(target)
	return nil
}

// Remove drops the track at 1-based queue position pos. The DJ, a
// moderator or whoever queued the track may remove it.
func (s *Session) Remove(actor Actor, pos int) (sources.Track, error) {
	s.mu.Lock()
	err := s.checkPrivileged(actor)
	s.mu.Unlock()

	tracks := s.queue.Tracks()
	if pos < 1 || pos > len(tracks) {
		if err != nil {
			return sources.Track{}, err
		}
		return sources.Track{}, ErrInvalidPosition
	}
	if err != nil {
		if !errors.Is(err, ErrPermissionDenied) || tracks[pos-1].RequesterID != actor.ID {
			return sources.Track{}, err
		}
	}

	removed, ok := s.queue.RemoveAt(pos)
	if !ok {
		return sources.Track{}, ErrInvalidPosition
	}
	return removed, nil
}

// Clear empties the queue and returns how many tracks were dropped.
func (s *Session) Clear(actor Actor) (int, error) {
	s.mu.Lock()
	err := s.checkPrivileged(actor)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return s.queue.Clear(), nil
}
