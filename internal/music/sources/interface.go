package sources

import (
	"context"
	"errors"
)

var (
	ErrNoMatch     = errors.New("no match for the given query")
	ErrUnsupported = errors.New("operation not supported by this source")
)

type Source interface {
	// Name returns the identifier ("youtube", "soundcloud", ...)
	Name() string

	// Match reports whether input is a direct link this source owns
	Match(input string) bool

	// Lookup turns a direct link into one track or an ordered playlist
	Lookup(ctx context.Context, link string) (*Result, error)

	// Search returns the best match for free text
	Search(ctx context.Context, query string) (Track, error)

	// StreamURL returns a URL ffmpeg can read audio from
	StreamURL(ctx context.Context, track Track) (string, error)
}
