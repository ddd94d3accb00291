package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/listenparty/internal/music/sources"
)

func track(id string) sources.Track {
	return sources.Track{ID: id, Title: id, Source: sources.SourceYouTube}
}

func drain(t *testing.T, q *Queue, n int) []string {
	t.Helper()
	var ids []string
	for range n {
		tr, err := q.Dequeue(context.Background(), time.Second)
		require.NoError(t, err)
		ids = append(ids, tr.ID)
	}
	return ids
}

func TestEnqueueOrder(t *testing.T) {
	t.Run("back", func(t *testing.T) {
		q := New()
		for _, id := range []string{"A", "B", "C"} {
			q.Enqueue(track(id), false)
		}
		assert.Equal(t, []string{"A", "B", "C"}, drain(t, q, 3))
	})

	t.Run("front", func(t *testing.T) {
		q := New()
		for _, id := range []string{"A", "B", "C"} {
			q.Enqueue(track(id), true)
		}
		assert.Equal(t, []string{"C", "B", "A"}, drain(t, q, 3))
	})
}

func TestDequeueTimeout(t *testing.T) {
	q := New()
	start := time.Now()
	_, err := q.Dequeue(context.Background(), 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrQueueTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestDequeueWakesOnEnqueue(t *testing.T) {
	q := New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Enqueue(track("late"), false)
	}()

	tr, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", tr.ID)
}

func TestDequeueObservesCancel(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := q.Dequeue(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnqueueUnique(t *testing.T) {
	q := New()
	require.NoError(t, q.EnqueueUnique(track("A"), false))
	assert.ErrorIs(t, q.EnqueueUnique(track("A").RequestedBy("someone"), false), ErrDuplicate)
	assert.Equal(t, 1, q.Len())

	other := track("A")
	other.Source = sources.SourceSoundCloud
	assert.NoError(t, q.EnqueueUnique(other, false), "same id on a different source is a different track")
}

func TestPeekRemoveClear(t *testing.T) {
	q := New()
	_, ok := q.PeekNext()
	assert.False(t, ok)

	for _, id := range []string{"A", "B", "C", "D"} {
		q.Enqueue(track(id), false)
	}

	head, ok := q.PeekNext()
	require.True(t, ok)
	assert.Equal(t, "A", head.ID)
	assert.Equal(t, 4, q.Len(), "peek does not remove")

	removed, ok := q.Remove(track("B").Key())
	require.True(t, ok)
	assert.Equal(t, "B", removed.ID)
	assert.False(t, q.Contains(track("B").Key()))

	removed, ok = q.RemoveAt(3)
	require.True(t, ok)
	assert.Equal(t, "D", removed.ID)

	_, ok = q.RemoveAt(5)
	assert.False(t, ok)

	assert.Equal(t, 2, q.Clear())
	assert.Equal(t, 0, q.Len())
}

func TestShuffleKeepsTracks(t *testing.T) {
	q := New()
	ids := []string{"A", "B", "C", "D", "E", "F"}
	for _, id := range ids {
		q.Enqueue(track(id), false)
	}
	q.Shuffle()

	var got []string
	for _, tr := range q.Tracks() {
		got = append(got, tr.ID)
	}
	assert.ElementsMatch(t, ids, got)
}
