package stream

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	maxRecoveryAttempts = 3
	// a stream ending this close to the known duration is a normal end
	recoveryTolerance = 3 * time.Second
)

var (
	ErrStreamNotOpen = errors.New("stream not opened")
	ErrStreamClosed  = errors.New("stream closed")
)

// OpenFunc opens the track's PCM at offset.
type OpenFunc func(offset time.Duration) (io.ReadCloser, error)

// RecoveryStream reopens a track from the current position when the
// decoder ends before the track's known duration.
//
// Read is not safe for concurrent use; Close may be called from any
// goroutine to abort a blocked Read.
type RecoveryStream struct {
	open     OpenFunc
	duration time.Duration

	mu     sync.Mutex
	stream io.ReadCloser
	closed bool

	read    int64 // bytes since offset
	offset  time.Duration
	retries int
	log     *slog.Logger
}

func NewRecoveryStream(open OpenFunc, duration time.Duration, log *slog.Logger) *RecoveryStream {
	return &RecoveryStream{open: open, duration: duration, log: log}
}

// Open starts the stream at seek.
func (rs *RecoveryStream) Open(seek time.Duration) error {
	s, err := rs.open(seek)
	if err != nil {
		return err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		_ = s.Close()
		return ErrStreamClosed
	}
	if rs.stream != nil {
		_ = rs.stream.Close()
	}
	rs.stream = s
	rs.offset = seek
	rs.read = 0
	return nil
}

// Position is the playback offset of the next byte Read returns.
func (rs *RecoveryStream) Position() time.Duration {
	return rs.offset + bytesToDuration(rs.read)
}

func (rs *RecoveryStream) Read(p []byte) (int, error) {
	rs.mu.Lock()
	s, closed := rs.stream, rs.closed
	rs.mu.Unlock()
	if closed {
		return 0, ErrStreamClosed
	}
	if s == nil {
		return 0, ErrStreamNotOpen
	}

	n, err := s.Read(p)
	rs.read += int64(n)
	if errors.Is(err, io.EOF) && n == 0 && rs.premature() {
		return rs.handleRecovery(p)
	}
	return n, err
}

func (rs *RecoveryStream) premature() bool {
	return rs.duration > 0 && rs.Position() < rs.duration-recoveryTolerance
}

func (rs *RecoveryStream) handleRecovery(p []byte) (int, error) {
	if rs.retries >= maxRecoveryAttempts {
		rs.log.Warn("Max recovery attempts reached", "position", rs.Position())
		return 0, io.EOF
	}
	rs.retries++
	pos := rs.Position()
	rs.log.Info("Stream ended prematurely, attempting recovery", "attempt", rs.retries, "position", pos)

	if err := rs.Open(pos); err != nil {
		rs.log.Warn("Recovery failed", "error", err)
		return 0, io.EOF
	}
	return rs.Read(p)
}

func (rs *RecoveryStream) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.closed = true
	if rs.stream == nil {
		return nil
	}
	return rs.stream.Close()
}

func bytesToDuration(n int64) time.Duration {
	const bytesPerSecond = sampleRate * channels * 2
	return time.Duration(n) * time.Second / bytesPerSecond
}
