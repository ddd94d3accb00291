package music

import (
	"context"
	"errors"
	"fmt"

	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/queue"
	"github.com/keshon/listenparty/internal/music/registry"
	"github.com/keshon/listenparty/internal/music/source_resolver"
	"github.com/keshon/listenparty/internal/music/sources"
)

// userFacing errors carry a message that can be shown as is.
var userFacing = []error{
	errNotInVoice,
	errBadPosition,
	errTargetNotListening,
	errNoStorage,
	registry.ErrNoSession,
	player.ErrNotInSession,
	player.ErrPermissionDenied,
	player.ErrNothingPlaying,
	player.ErrAlreadyPaused,
	player.ErrNotPaused,
	player.ErrQueueTooShort,
	player.ErrAlreadyVoted,
	player.ErrTransitionPending,
	player.ErrInvalidVolume,
	player.ErrInvalidSeek,
	player.ErrInvalidPosition,
}

// Explain turns an error from the playback core into a message for the
// user. known is false for errors nobody anticipated; those still get a
// message and should be logged.
func Explain(err error) (msg string, known bool) {
	switch {
	case err == nil:
		return "", true
	case errors.Is(err, player.ErrSessionClosed):
		return "That session just ended. Start a new one with `/music-play`.", true
	case errors.Is(err, queue.ErrDuplicate):
		return "That track is already in the queue. Ask the DJ to allow duplicates with `/music-duplicates`.", true
	case errors.Is(err, source_resolver.ErrNotFound), errors.Is(err, sources.ErrNoMatch):
		return "Nothing was found for that. Try a different query or source.", true
	case errors.Is(err, sources.ErrUnsupported):
		return "That source can't handle this kind of link.", true
	case errors.Is(err, player.ErrTransportUnreachable):
		return "I couldn't reach the voice channel. Check that I can connect and speak there.", true
	case errors.Is(err, context.DeadlineExceeded):
		return "That took too long. Please try again.", true
	}

	for _, e := range userFacing {
		if errors.Is(err, e) {
			return capitalize(e.Error()) + ".", true
		}
	}
	return fmt.Sprintf("Something went wrong: %v", err), false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
