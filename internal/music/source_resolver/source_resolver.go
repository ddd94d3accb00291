package source_resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/music/sources"
	"github.com/keshon/listenparty/pkg/retrylimit"
)

// ErrNotFound wraps every resolution failure returned to callers.
var ErrNotFound = errors.New("track not found")

// DefaultSearchOrder is tried in turn when no source is selected for free text.
var DefaultSearchOrder = []string{sources.SourceYouTube, sources.SourceYTMusic, sources.SourceSoundCloud}

type SourceResolver struct {
	sources map[string]sources.Source
	order   []string
	timeout time.Duration
	limiter *retrylimit.AdaptiveLimiter
	retry   retrylimit.Config
	log     *slog.Logger
}

// New registers srcs in the given order; that order decides which source
// claims a link and the free-text fallback order.
func New(timeout time.Duration, srcs ...sources.Source) *SourceResolver {
	log := logging.For("resolver")
	r := &SourceResolver{
		sources: make(map[string]sources.Source, len(srcs)),
		timeout: timeout,
		limiter: retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5),
		retry:   retrylimit.DefaultConfig(),
		log:     log,
	}
	r.retry.Logger = log
	r.retry.Retryable = func(err error) bool {
		return !errors.Is(err, sources.ErrNoMatch) && !errors.Is(err, sources.ErrUnsupported)
	}
	for _, s := range srcs {
		r.sources[s.Name()] = s
		r.order = append(r.order, s.Name())
	}
	return r
}

// Names lists registered sources in registration order.
func (r *SourceResolver) Names() []string {
	return append([]string(nil), r.order...)
}

// Resolve turns a link or free text into tracks. Links go to the source
// that owns them; text goes to source's search, or down the default order
// when source is empty.
func (r *SourceResolver) Resolve(ctx context.Context, query, source string) (*sources.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrNotFound)
	}
	if source != "" {
		if _, ok := r.sources[source]; !ok {
			return nil, fmt.Errorf("%w: unknown source %q", ErrNotFound, source)
		}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if isURL(query) {
		return r.lookup(ctx, query, source)
	}
	return r.search(ctx, query, source)
}

func (r *SourceResolver) lookup(ctx context.Context, link, source string) (*sources.Result, error) {
	src := r.owner(link)
	if src == nil {
		return nil, fmt.Errorf("%w: unsupported link", ErrNotFound)
	}
	if source != "" && src.Name() != source {
		return nil, fmt.Errorf("%w: link does not belong to %s", ErrNotFound, source)
	}

	var res *sources.Result
	err := retrylimit.Do(ctx, r.limiter, r.retry, func(ctx context.Context) error {
		var err error
		res, err = src.Lookup(ctx, link)
		return err
	})
	if err != nil {
		r.log.Warn("Lookup failed", "source", src.Name(), "link", link, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if res == nil || len(res.Tracks) == 0 {
		return nil, fmt.Errorf("%w: %s returned no tracks", ErrNotFound, src.Name())
	}
	return res, nil
}

func (r *SourceResolver) search(ctx context.Context, query, source string) (*sources.Result, error) {
	order := DefaultSearchOrder
	if source != "" {
		order = []string{source}
	}

	var lastErr error = sources.ErrNoMatch
	for _, name := range order {
		src, ok := r.sources[name]
		if !ok {
			continue
		}

		var track sources.Track
		err := retrylimit.Do(ctx, r.limiter, r.retry, func(ctx context.Context) error {
			var err error
			track, err = src.Search(ctx, query)
			return err
		})
		if err == nil && track.ID != "" {
			return &sources.Result{Tracks: []sources.Track{track}}, nil
		}
		if err == nil {
			err = sources.ErrNoMatch
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		r.log.Debug("Search miss", "source", name, "query", query, "error", err)
	}
	return nil, fmt.Errorf("%w: %w", ErrNotFound, lastErr)
}

// StreamURL asks the source that produced track for a playable URL.
func (r *SourceResolver) StreamURL(ctx context.Context, track sources.Track) (string, error) {
	src, ok := r.sources[track.Source]
	if !ok {
		return "", fmt.Errorf("no source %q for track %s", track.Source, track.ID)
	}
	var link string
	err := retrylimit.Do(ctx, r.limiter, r.retry, func(ctx context.Context) error {
		var err error
		link, err = src.StreamURL(ctx, track)
		return err
	})
	return link, err
}

func (r *SourceResolver) owner(link string) sources.Source {
	for _, name := range r.order {
		if s := r.sources[name]; s.Match(link) {
			return s
		}
	}
	return nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
