package ytmusic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raitonoberu/ytmusic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/listenparty/internal/music/sources"
)

func TestSearchSkipsEntriesWithoutVideoID(t *testing.T) {
	m := New(nil)
	m.search = func(string) ([]*ytmusic.TrackItem, error) {
		return []*ytmusic.TrackItem{
			{Title: "no id"},
			{VideoID: "abc", Title: "Song", Artists: []ytmusic.Artist{{Name: "A"}, {Name: "B"}}},
		}, nil
	}

	tr, err := m.Search(context.Background(), " song ")
	require.NoError(t, err)
	assert.Equal(t, "abc", tr.ID)
	assert.Equal(t, "A, B", tr.Author)
	assert.Equal(t, sources.SourceYTMusic, tr.Source)
}

func TestSearchNoResults(t *testing.T) {
	m := New(nil)
	m.search = func(string) ([]*ytmusic.TrackItem, error) { return nil, nil }

	_, err := m.Search(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoTrackMatch)
}

func TestSearchHonoursContext(t *testing.T) {
	m := New(nil)
	release := make(chan struct{})
	defer close(release)
	m.search = func(string) ([]*ytmusic.TrackItem, error) {
		<-release
		return nil, errors.New("late")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Search(ctx, "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamURLWithoutStreamer(t *testing.T) {
	_, err := New(nil).StreamURL(context.Background(), sources.Track{ID: "abc"})
	assert.ErrorIs(t, err, sources.ErrUnsupported)
}
