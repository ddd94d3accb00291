// Package stream plays tracks into a Discord voice connection: ffmpeg
// decodes to PCM, gopus encodes 20ms frames for OpusSend.
package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/keshon/listenparty/internal/music/sources"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz

	frameBytes    = frameSize * channels * 2
	frameDuration = 20 * time.Millisecond
)

// URLResolver finds a playable media URL for a track.
type URLResolver interface {
	StreamURL(ctx context.Context, track sources.Track) (string, error)
}

// Opener starts decoding url at offset and yields raw s16le stereo PCM.
type Opener interface {
	Open(ctx context.Context, url string, offset time.Duration) (io.ReadCloser, error)
}

// FFmpeg decodes through an ffmpeg process.
type FFmpeg struct {
	Path string
}

func (f FFmpeg) Open(ctx context.Context, url string, offset time.Duration) (io.ReadCloser, error) {
	path := f.Path
	if path == "" {
		path = "ffmpeg"
	}
	args := []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
	}
	if offset > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", offset.Seconds()))
	}
	args = append(args,
		"-i", url,
		"-vn",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-loglevel", "warning",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, path, args...)
	reader, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("command start error: %w", err)
	}
	return &process{ReadCloser: reader, cmd: cmd}, nil
}

type process struct {
	io.ReadCloser
	cmd  *exec.Cmd
	once sync.Once
}

func (p *process) Close() error {
	p.once.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		_ = p.cmd.Wait()
	})
	return nil
}

// decodePCM reads little-endian samples from buf into out.
func decodePCM(buf []byte, out []int16) {
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
	}
}

// scaleVolume applies volume (1..100) to samples in place.
func scaleVolume(samples []int16, volume int) {
	if volume >= 100 {
		return
	}
	if volume < 0 {
		volume = 0
	}
	v := int32(volume)
	for i, s := range samples {
		samples[i] = int16(int32(s) * v / 100)
	}
}

// finished reports whether a read error is the normal end of a stream.
func finished(err error) bool {
	return err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// pump reads PCM frames off r on its own goroutine so a stalled decoder
// can be noticed by the sender.
type pump struct {
	r      io.ReadCloser
	frames chan []int16
	quit   chan struct{}
	once   sync.Once
	err    error // valid once frames is closed
}

func startPump(r io.ReadCloser) *pump {
	p := &pump{
		r:      r,
		frames: make(chan []int16, 50),
		quit:   make(chan struct{}),
	}
	go func() {
		defer close(p.frames)
		buf := make([]byte, frameBytes)
		for {
			if _, err := io.ReadFull(r, buf); err != nil {
				p.err = err
				return
			}
			pcm := make([]int16, frameSize*channels)
			decodePCM(buf, pcm)
			select {
			case p.frames <- pcm:
			case <-p.quit:
				return
			}
		}
	}()
	return p
}

func (p *pump) close() {
	p.once.Do(func() {
		close(p.quit)
		_ = p.r.Close()
	})
}
