package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/sources"
)

func TestScaleVolume(t *testing.T) {
	samples := []int16{1000, -1000, 32767, -32768}
	scaleVolume(samples, 50)
	assert.Equal(t, []int16{500, -500, 16383, -16384}, samples)

	full := []int16{1234, -4321}
	scaleVolume(full, 100)
	assert.Equal(t, []int16{1234, -4321}, full)
}

func TestDecodePCM(t *testing.T) {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint16(buf[0:], uint16(1))
	binary.LittleEndian.PutUint16(buf[2:], 0xFFFF)
	binary.LittleEndian.PutUint16(buf[4:], 0x8000)
	out := make([]int16, 3)
	decodePCM(buf, out)
	assert.Equal(t, []int16{1, -1, -32768}, out)
}

func TestBytesToDuration(t *testing.T) {
	assert.Equal(t, time.Second, bytesToDuration(sampleRate*channels*2))
	assert.Equal(t, frameDuration, bytesToDuration(frameBytes))
}

const bytesPerSecond = sampleRate * channels * 2

func TestRecoveryStreamReopensFromPosition(t *testing.T) {
	var offsets []time.Duration
	open := func(offset time.Duration) (io.ReadCloser, error) {
		offsets = append(offsets, offset)
		return io.NopCloser(bytes.NewReader(make([]byte, bytesPerSecond))), nil
	}
	rs := NewRecoveryStream(open, 10*time.Second, logging.For("stream"))
	require.NoError(t, rs.Open(0))

	data, err := io.ReadAll(rs)
	require.NoError(t, err)
	assert.Len(t, data, 4*bytesPerSecond)
	assert.Equal(t, []time.Duration{0, time.Second, 2 * time.Second, 3 * time.Second}, offsets)
}

func TestRecoveryStreamEndsNormallyNearDuration(t *testing.T) {
	opens := 0
	open := func(time.Duration) (io.ReadCloser, error) {
		opens++
		return io.NopCloser(bytes.NewReader(make([]byte, 2*bytesPerSecond))), nil
	}
	rs := NewRecoveryStream(open, 2*time.Second, logging.For("stream"))
	require.NoError(t, rs.Open(0))

	_, err := io.ReadAll(rs)
	require.NoError(t, err)
	assert.Equal(t, 1, opens)
}

func TestRecoveryStreamClosed(t *testing.T) {
	rs := NewRecoveryStream(func(time.Duration) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}, 0, logging.For("stream"))

	_, err := rs.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrStreamNotOpen)

	require.NoError(t, rs.Close())
	assert.ErrorIs(t, rs.Open(0), ErrStreamClosed)
}

type fakeVoice struct {
	mu          sync.Mutex
	send        chan []byte
	ready       bool
	channel     string
	disconnects int
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{send: make(chan []byte, 1000), ready: true}
}

func (v *fakeVoice) Send() chan<- []byte { return v.send }
func (v *fakeVoice) Speaking(bool) error { return nil }

func (v *fakeVoice) Ready() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ready
}

func (v *fakeVoice) ChangeChannel(ch string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.channel = ch
	return nil
}

func (v *fakeVoice) Disconnect() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.disconnects++
	return nil
}

type fakeEncoder struct{}

func (fakeEncoder) Encode([]int16, int, int) ([]byte, error) { return []byte{0xF8}, nil }

type staticURLs struct{ err error }

func (s staticURLs) StreamURL(_ context.Context, tr sources.Track) (string, error) {
	return "https://media.example/" + tr.ID, s.err
}

// openerFunc adapts a function to Opener.
type openerFunc func(url string, offset time.Duration) (io.ReadCloser, error)

func (f openerFunc) Open(_ context.Context, url string, offset time.Duration) (io.ReadCloser, error) {
	return f(url, offset)
}

func frames(n int) openerFunc {
	return func(string, time.Duration) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(make([]byte, n*frameBytes))), nil
	}
}

// silence never produces data until closed.
func silence() openerFunc {
	return func(string, time.Duration) (io.ReadCloser, error) {
		r, _ := io.Pipe()
		return r, nil
	}
}

func newTestTransport(voice *fakeVoice, opener Opener, stuck time.Duration) *VoiceTransport {
	return NewVoiceTransport("g1", "vc1", voice, staticURLs{}, Options{
		Opener:         opener,
		StuckThreshold: stuck,
		NewEncoder:     func() (Encoder, error) { return fakeEncoder{}, nil },
	})
}

func nextEvent(t *testing.T, tr *VoiceTransport) player.TrackEvent {
	t.Helper()
	select {
	case ev := <-tr.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no track event")
		return player.TrackEvent{}
	}
}

func noEvent(t *testing.T, tr *VoiceTransport, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event %s for %s", ev.Kind, ev.Track.ID)
	case <-time.After(wait):
	}
}

func TestPlayEndsWhenStreamDrains(t *testing.T) {
	voice := newFakeVoice()
	tr := newTestTransport(voice, frames(5), time.Second)
	track := sources.Track{ID: "a", Title: "A"}

	require.NoError(t, tr.Play(context.Background(), track))

	ev := nextEvent(t, tr)
	assert.Equal(t, player.EventTrackEnd, ev.Kind)
	assert.Equal(t, "a", ev.Track.ID)
	assert.Len(t, voice.send, 5)
}

func TestStopReportsEnd(t *testing.T) {
	tr := newTestTransport(newFakeVoice(), silence(), time.Minute)
	require.NoError(t, tr.Play(context.Background(), sources.Track{ID: "a"}))

	require.NoError(t, tr.Stop())
	ev := nextEvent(t, tr)
	assert.Equal(t, player.EventTrackEnd, ev.Kind)
	noEvent(t, tr, 50*time.Millisecond)
}

func TestPlaySupersedesSilently(t *testing.T) {
	tr := newTestTransport(newFakeVoice(), silence(), time.Minute)
	require.NoError(t, tr.Play(context.Background(), sources.Track{ID: "a"}))
	require.NoError(t, tr.Play(context.Background(), sources.Track{ID: "b"}))
	noEvent(t, tr, 50*time.Millisecond)

	require.NoError(t, tr.Stop())
	ev := nextEvent(t, tr)
	assert.Equal(t, "b", ev.Track.ID)
	noEvent(t, tr, 50*time.Millisecond)
}

func TestStreamErrorReported(t *testing.T) {
	boom := errors.New("decoder crashed")
	opener := openerFunc(func(string, time.Duration) (io.ReadCloser, error) {
		return io.NopCloser(io.MultiReader(
			bytes.NewReader(make([]byte, frameBytes)),
			iotest.ErrReader(boom),
		)), nil
	})
	tr := newTestTransport(newFakeVoice(), opener, time.Minute)
	require.NoError(t, tr.Play(context.Background(), sources.Track{ID: "a"}))

	ev := nextEvent(t, tr)
	assert.Equal(t, player.EventTrackError, ev.Kind)
	assert.Contains(t, ev.Message, "decoder crashed")
}

func TestStuckReportedOnce(t *testing.T) {
	tr := newTestTransport(newFakeVoice(), silence(), 40*time.Millisecond)
	require.NoError(t, tr.Play(context.Background(), sources.Track{ID: "a"}))

	ev := nextEvent(t, tr)
	assert.Equal(t, player.EventTrackStuck, ev.Kind)
	assert.Equal(t, 40*time.Millisecond, ev.Threshold)
	noEvent(t, tr, 120*time.Millisecond)

	require.NoError(t, tr.Stop())
	assert.Equal(t, player.EventTrackEnd, nextEvent(t, tr).Kind)
}

func TestPausedTrackIsNotStuck(t *testing.T) {
	tr := newTestTransport(newFakeVoice(), silence(), 40*time.Millisecond)
	require.NoError(t, tr.Play(context.Background(), sources.Track{ID: "a"}))
	require.NoError(t, tr.Pause())

	noEvent(t, tr, 150*time.Millisecond)
	require.NoError(t, tr.Stop())
	assert.Equal(t, player.EventTrackEnd, nextEvent(t, tr).Kind)
}

func TestPlayFailures(t *testing.T) {
	voice := newFakeVoice()
	tr := NewVoiceTransport("g1", "vc1", voice, staticURLs{err: sources.ErrNoMatch}, Options{
		Opener:     frames(1),
		NewEncoder: func() (Encoder, error) { return fakeEncoder{}, nil },
	})
	err := tr.Play(context.Background(), sources.Track{ID: "a"})
	assert.ErrorIs(t, err, sources.ErrNoMatch)
	assert.NotErrorIs(t, err, player.ErrTransportUnreachable)

	voice.mu.Lock()
	voice.ready = false
	voice.mu.Unlock()
	assert.ErrorIs(t, tr.Play(context.Background(), sources.Track{ID: "a"}), player.ErrTransportUnreachable)
	noEvent(t, tr, 20*time.Millisecond)
}

func TestSeekMovesPosition(t *testing.T) {
	var mu sync.Mutex
	var offsets []time.Duration
	opener := openerFunc(func(_ string, offset time.Duration) (io.ReadCloser, error) {
		mu.Lock()
		offsets = append(offsets, offset)
		mu.Unlock()
		r, _ := io.Pipe()
		return r, nil
	})
	tr := newTestTransport(newFakeVoice(), opener, time.Minute)
	require.NoError(t, tr.Play(context.Background(), sources.Track{ID: "a", Duration: time.Minute}))

	require.NoError(t, tr.Seek(30*time.Second))
	assert.Equal(t, 30*time.Second, tr.Position())
	mu.Lock()
	assert.Equal(t, []time.Duration{0, 30 * time.Second}, offsets)
	mu.Unlock()

	require.NoError(t, tr.Stop())
	nextEvent(t, tr)
	assert.ErrorIs(t, tr.Seek(time.Second), ErrNotPlaying)
}

func TestDisconnectIsSilent(t *testing.T) {
	voice := newFakeVoice()
	tr := newTestTransport(voice, silence(), time.Minute)
	require.NoError(t, tr.Play(context.Background(), sources.Track{ID: "a"}))

	require.NoError(t, tr.Move(context.Background(), "vc2"))
	assert.Equal(t, "vc2", tr.ChannelID())

	require.NoError(t, tr.Disconnect())
	noEvent(t, tr, 50*time.Millisecond)
	assert.Equal(t, 1, voice.disconnects)
	assert.ErrorIs(t, tr.Play(context.Background(), sources.Track{ID: "b"}), player.ErrTransportUnreachable)
}

func TestSetVolumeBounds(t *testing.T) {
	tr := newTestTransport(newFakeVoice(), frames(1), time.Minute)
	assert.ErrorIs(t, tr.SetVolume(0), player.ErrInvalidVolume)
	assert.ErrorIs(t, tr.SetVolume(101), player.ErrInvalidVolume)
	require.NoError(t, tr.SetVolume(40))
	assert.EqualValues(t, 40, tr.volume.Load())
}
