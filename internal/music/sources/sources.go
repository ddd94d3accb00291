package sources

import (
	"fmt"
	"time"
)

const (
	SourceYouTube    = "youtube"
	SourceYTMusic    = "ytmusic"
	SourceSoundCloud = "soundcloud"
)

// Track is a playable item. It is passed by value and never mutated once built.
type Track struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Author      string        `json:"author,omitempty"`
	URI         string        `json:"uri"`
	Duration    time.Duration `json:"duration"`
	Thumbnail   string        `json:"thumbnail,omitempty"`
	Source      string        `json:"source"`
	RequesterID string        `json:"requester_id,omitempty"`
}

// RequestedBy returns a copy of t attributed to userID.
func (t Track) RequestedBy(userID string) Track {
	t.RequesterID = userID
	return t
}

// Key identifies the underlying media regardless of who requested it.
func (t Track) Key() string {
	return t.Source + ":" + t.ID
}

func (t Track) String() string {
	if t.Author != "" {
		return fmt.Sprintf("%s - %s", t.Author, t.Title)
	}
	return t.Title
}

// Result is what a resolution yields: one track, or a playlist in source order.
type Result struct {
	Tracks   []Track
	Playlist string
}

func (r *Result) IsPlaylist() bool {
	return r.Playlist != ""
}
