package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	kkdai "github.com/kkdai/youtube/v2"

	"github.com/keshon/listenparty/internal/music/sources"
)

var (
	ErrNoVideoMatch  = fmt.Errorf("youtube: no video found for the given title: %w", sources.ErrNoMatch)
	ErrEmptyPlaylist = fmt.Errorf("youtube: no videos found in the playlist: %w", sources.ErrNoMatch)
	ErrNoAudioFormat = errors.New("no audio formats found for video")
	ErrInvalidURL    = errors.New("invalid YouTube URL format")
)

type YouTubeSource struct {
	resolver *Resolver
}

func New(httpClient *http.Client) *YouTubeSource {
	return &YouTubeSource{resolver: NewResolver(httpClient)}
}

func (y *YouTubeSource) Name() string {
	return sources.SourceYouTube
}

func (y *YouTubeSource) Match(input string) bool {
	return isYouTubeURL(strings.TrimSpace(input))
}

func (y *YouTubeSource) Lookup(ctx context.Context, link string) (*sources.Result, error) {
	link = strings.TrimSpace(link)
	if !isURL(link) || !isYouTubeURL(link) {
		return nil, ErrInvalidURL
	}

	if isPlaylistURL(link) {
		pl, err := y.resolver.Playlist(ctx, link)
		if err != nil {
			return nil, err
		}
		tracks := make([]sources.Track, 0, len(pl.Videos))
		for _, entry := range pl.Videos {
			if entry == nil || entry.ID == "" {
				continue
			}
			tracks = append(tracks, sources.Track{
				ID:        entry.ID,
				Title:     entry.Title,
				Author:    entry.Author,
				URI:       watchURL(entry.ID),
				Duration:  entry.Duration,
				Thumbnail: bestThumbnail(entry.Thumbnails, entry.ID),
				Source:    sources.SourceYouTube,
			})
		}
		if len(tracks) == 0 {
			return nil, ErrEmptyPlaylist
		}
		title := pl.Title
		if title == "" {
			title = "YouTube playlist"
		}
		return &sources.Result{Tracks: tracks, Playlist: title}, nil
	}

	video, err := y.resolver.Video(ctx, CleanVideoURL(link))
	if err != nil {
		return nil, err
	}
	return &sources.Result{Tracks: []sources.Track{videoTrack(video)}}, nil
}

func (y *YouTubeSource) Search(ctx context.Context, query string) (sources.Track, error) {
	hit, err := y.resolver.SearchFirst(ctx, strings.TrimSpace(query))
	if err != nil {
		return sources.Track{}, err
	}
	return sources.Track{
		ID:        hit.VideoID,
		Title:     hit.Title,
		Author:    hit.Channel,
		URI:       watchURL(hit.VideoID),
		Duration:  hit.Duration,
		Thumbnail: thumbnailURL(hit.VideoID),
		Source:    sources.SourceYouTube,
	}, nil
}

func (y *YouTubeSource) StreamURL(ctx context.Context, track sources.Track) (string, error) {
	return y.resolver.AudioURL(ctx, track.ID)
}

func videoTrack(v *kkdai.Video) sources.Track {
	return sources.Track{
		ID:        v.ID,
		Title:     v.Title,
		Author:    v.Author,
		URI:       watchURL(v.ID),
		Duration:  v.Duration,
		Thumbnail: bestThumbnail(v.Thumbnails, v.ID),
		Source:    sources.SourceYouTube,
	}
}

func bestThumbnail(thumbs kkdai.Thumbnails, videoID string) string {
	var best kkdai.Thumbnail
	for _, t := range thumbs {
		if t.Width >= best.Width {
			best = t
		}
	}
	if best.URL != "" {
		return best.URL
	}
	return thumbnailURL(videoID)
}
