// Package vote decides whether a control action runs immediately, runs
// because enough listeners agreed, or waits for more votes.
package vote

import "slices"

type Action string

const (
	ActionPause   Action = "pause"
	ActionResume  Action = "resume"
	ActionSkip    Action = "skip"
	ActionShuffle Action = "shuffle"
	ActionStop    Action = "stop"
)

var Actions = []Action{ActionPause, ActionResume, ActionSkip, ActionShuffle, ActionStop}

func (a Action) Valid() bool {
	return slices.Contains(Actions, a)
}

// RequiredVotes is ceil((occupants-1)/2.5), at least one. Stopping in a
// channel of exactly three needs two.
func RequiredVotes(action Action, occupants int) int {
	if action == ActionStop && occupants == 3 {
		return 2
	}
	n := ((occupants-1)*2 + 4) / 5
	return max(n, 1)
}

type Outcome int

const (
	Accumulate Outcome = iota
	ThresholdMet
	Bypass
	AlreadyVoted
)

func (o Outcome) String() string {
	switch o {
	case Bypass:
		return "bypass"
	case ThresholdMet:
		return "threshold"
	case AlreadyVoted:
		return "duplicate"
	default:
		return "accumulate"
	}
}

// Executes reports whether the action should be carried out now.
func (o Outcome) Executes() bool {
	return o == Bypass || o == ThresholdMet
}

// State is what Decide needs to know about the session and the actor.
type State struct {
	DJ        string
	Requester string // requester of the current track
	Moderator bool   // actor holds moderator standing
	Occupants int    // members of the bound channel, the bot included
	Votes     int    // votes already recorded for the action
	Voted     bool   // actor is already among them
}

type Decision struct {
	Outcome  Outcome
	Votes    int // votes counted once this one is included
	Required int
}

// Decide has no side effects; the caller records or clears votes.
func Decide(actor string, action Action, st State) Decision {
	required := RequiredVotes(action, st.Occupants)

	if privileged(actor, action, st) {
		return Decision{Outcome: Bypass, Votes: st.Votes, Required: required}
	}
	if st.Voted {
		return Decision{Outcome: AlreadyVoted, Votes: st.Votes, Required: required}
	}

	votes := st.Votes + 1
	if votes >= required {
		return Decision{Outcome: ThresholdMet, Votes: votes, Required: required}
	}
	return Decision{Outcome: Accumulate, Votes: votes, Required: required}
}

func privileged(actor string, action Action, st State) bool {
	if st.Moderator {
		return true
	}
	if st.DJ != "" && actor == st.DJ {
		return true
	}
	return action == ActionSkip && st.Requester != "" && actor == st.Requester
}
