package soundcloud

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/music/sources"
)

type SoundCloudSource struct {
	resolver *SoundCloudResolver
	log      *slog.Logger
}

func New(client *http.Client, proxy string) *SoundCloudSource {
	return &SoundCloudSource{
		resolver: NewSoundCloudResolver(client, proxy),
		log:      logging.For("soundcloud"),
	}
}

func (s *SoundCloudSource) Name() string {
	return sources.SourceSoundCloud
}

func (s *SoundCloudSource) Match(input string) bool {
	return isSoundCloudURL(strings.TrimSpace(input))
}

func (s *SoundCloudSource) Lookup(ctx context.Context, link string) (*sources.Result, error) {
	entries, playlist, err := s.resolver.Lookup(ctx, strings.TrimSpace(link))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, sources.ErrNoMatch
	}
	res := &sources.Result{Tracks: make([]sources.Track, 0, len(entries))}
	for _, e := range entries {
		res.Tracks = append(res.Tracks, toTrack(e))
	}
	if len(entries) > 1 {
		res.Playlist = playlist
		if res.Playlist == "" {
			res.Playlist = "SoundCloud set"
		}
	}
	return res, nil
}

// Search tries yt-dlp first, then the DuckDuckGo page scrape.
func (s *SoundCloudSource) Search(ctx context.Context, query string) (sources.Track, error) {
	query = strings.TrimSpace(query)

	entries, err := s.resolver.Search(ctx, query)
	if err == nil && len(entries) > 0 {
		return toTrack(entries[0]), nil
	}
	if err != nil {
		s.log.Warn("yt-dlp search failed, falling back to web search", "query", query, "error", err)
	}

	link, err := s.resolver.SearchFirstTrackURL(ctx, query)
	if err != nil {
		return sources.Track{}, err
	}
	res, err := s.Lookup(ctx, link)
	if err != nil {
		return sources.Track{}, err
	}
	return res.Tracks[0], nil
}

func (s *SoundCloudSource) StreamURL(ctx context.Context, track sources.Track) (string, error) {
	return s.resolver.StreamURL(ctx, track.URI)
}

func toTrack(e entry) sources.Track {
	return sources.Track{
		ID:        e.ID,
		Title:     e.Title,
		Author:    e.Uploader,
		URI:       e.URL,
		Duration:  e.Duration,
		Thumbnail: e.Thumbnail,
		Source:    sources.SourceSoundCloud,
	}
}
