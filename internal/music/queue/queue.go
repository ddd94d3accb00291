// Package queue holds the pending tracks of one playback session.
package queue

import (
	"container/list"
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/keshon/listenparty/internal/music/sources"
)

var (
	ErrQueueTimeout = errors.New("queue stayed empty until the timeout")
	ErrDuplicate    = errors.New("track is already queued")
)

// Queue is an unbounded FIFO with front insertion and a blocking Dequeue.
type Queue struct {
	mu     sync.Mutex
	items  *list.List
	notify chan struct{} // closed and replaced on every insert
}

func New() *Queue {
	return &Queue{
		items:  list.New(),
		notify: make(chan struct{}),
	}
}

// Enqueue appends track, or puts it at the head when front is set.
func (q *Queue) Enqueue(track sources.Track, front bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.insert(track, front)
}

// EnqueueUnique is Enqueue guarded by a containment check on Track.Key.
func (q *Queue) EnqueueUnique(track sources.Track, front bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.find(track.Key()) != nil {
		return ErrDuplicate
	}
	q.insert(track, front)
	return nil
}

func (q *Queue) insert(track sources.Track, front bool) {
	if front {
		q.items.PushFront(track)
	} else {
		q.items.PushBack(track)
	}
	close(q.notify)
	q.notify = make(chan struct{})
}

// Dequeue removes and returns the head, waiting up to timeout for one to
// arrive. It returns ErrQueueTimeout when the wait runs out and ctx.Err()
// when ctx ends first.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (sources.Track, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if e := q.items.Front(); e != nil {
			q.items.Remove(e)
			q.mu.Unlock()
			return e.Value.(sources.Track), nil
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return sources.Track{}, ctx.Err()
		case <-timer.C:
			return sources.Track{}, ErrQueueTimeout
		case <-wait:
		}
	}
}

func (q *Queue) PeekNext() (sources.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e := q.items.Front(); e != nil {
		return e.Value.(sources.Track), true
	}
	return sources.Track{}, false
}

func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.items.Len()
	q.items.Init()
	return n
}

// Remove drops the first track whose Key matches.
func (q *Queue) Remove(key string) (sources.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.find(key)
	if e == nil {
		return sources.Track{}, false
	}
	q.items.Remove(e)
	return e.Value.(sources.Track), true
}

// RemoveAt drops the track at 1-based position pos.
func (q *Queue) RemoveAt(pos int) (sources.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if pos < 1 || pos > q.items.Len() {
		return sources.Track{}, false
	}
	e := q.items.Front()
	for i := 1; i < pos; i++ {
		e = e.Next()
	}
	q.items.Remove(e)
	return e.Value.(sources.Track), true
}

func (q *Queue) Contains(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.find(key) != nil
}

func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	tracks := q.snapshot()
	rand.Shuffle(len(tracks), func(i, j int) { tracks[i], tracks[j] = tracks[j], tracks[i] })
	q.items.Init()
	for _, t := range tracks {
		q.items.PushBack(t)
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Tracks returns a copy of the queue in play order.
func (q *Queue) Tracks() []sources.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshot()
}

func (q *Queue) snapshot() []sources.Track {
	out := make([]sources.Track, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(sources.Track))
	}
	return out
}

func (q *Queue) find(key string) *list.Element {
	for e := q.items.Front(); e != nil; e = e.Next() {
		if e.Value.(sources.Track).Key() == key {
			return e
		}
	}
	return nil
}
