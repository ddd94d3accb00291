// Package ytmusic searches YouTube Music. Tracks carry YouTube video IDs,
// so streaming is delegated to the YouTube source.
package ytmusic

import (
	"context"
	"fmt"
	"strings"

	"github.com/raitonoberu/ytmusic"

	"github.com/keshon/listenparty/internal/music/sources"
)

var ErrNoTrackMatch = fmt.Errorf("ytmusic: no track found for the given query: %w", sources.ErrNoMatch)

type searchFunc func(query string) ([]*ytmusic.TrackItem, error)

type YTMusicSource struct {
	streamer sources.Source
	search   searchFunc
}

// New returns a source whose StreamURL is served by streamer.
func New(streamer sources.Source) *YTMusicSource {
	return &YTMusicSource{streamer: streamer, search: trackSearch}
}

func trackSearch(query string) ([]*ytmusic.TrackItem, error) {
	r, err := ytmusic.TrackSearch(query).Next()
	if err != nil {
		return nil, err
	}
	return r.Tracks, nil
}

func (m *YTMusicSource) Name() string {
	return sources.SourceYTMusic
}

// Match is always false; music.youtube.com links are owned by the YouTube source.
func (m *YTMusicSource) Match(string) bool {
	return false
}

func (m *YTMusicSource) Lookup(context.Context, string) (*sources.Result, error) {
	return nil, sources.ErrUnsupported
}

func (m *YTMusicSource) Search(ctx context.Context, query string) (sources.Track, error) {
	type outcome struct {
		tracks []*ytmusic.TrackItem
		err    error
	}
	// the client has no context support
	done := make(chan outcome, 1)
	go func() {
		tracks, err := m.search(strings.TrimSpace(query))
		done <- outcome{tracks, err}
	}()

	var out outcome
	select {
	case <-ctx.Done():
		return sources.Track{}, ctx.Err()
	case out = <-done:
	}
	if out.err != nil {
		return sources.Track{}, out.err
	}

	for _, v := range out.tracks {
		if v == nil || v.VideoID == "" {
			continue
		}
		var artists []string
		for _, a := range v.Artists {
			artists = append(artists, a.Name)
		}
		return sources.Track{
			ID:        v.VideoID,
			Title:     v.Title,
			Author:    strings.Join(artists, ", "),
			URI:       "https://music.youtube.com/watch?v=" + v.VideoID,
			Thumbnail: "https://i.ytimg.com/vi/" + v.VideoID + "/hqdefault.jpg",
			Source:    sources.SourceYTMusic,
		}, nil
	}
	return sources.Track{}, ErrNoTrackMatch
}

func (m *YTMusicSource) StreamURL(ctx context.Context, track sources.Track) (string, error) {
	if m.streamer == nil {
		return "", sources.ErrUnsupported
	}
	return m.streamer.StreamURL(ctx, track)
}
