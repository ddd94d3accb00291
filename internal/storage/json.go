package storage

import (
	"fmt"
	"sync"

	"github.com/keshon/listenparty/datastore"
	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/music/player"
)

// Record is everything stored for one guild in the JSON datastore.
type Record struct {
	Settings        *player.Settings       `json:"settings,omitempty"`
	TracksHistory   []TrackHistoryRecord   `json:"tracks_history"`
	CommandsHistory []CommandHistoryRecord `json:"cmd_history"`
}

type jsonBackend struct {
	mu sync.Mutex // serialises read-modify-write of guild records
	ds *datastore.DataStore
}

func openJSON(path string) (*jsonBackend, error) {
	cfg := datastore.DefaultConfig(path)
	cfg.Logger = logging.For("storage")
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &jsonBackend{ds: ds}, nil
}

func (b *jsonBackend) Close() error {
	return b.ds.Close()
}

// getOrCreateGuildRecord requires b.mu.
func (b *jsonBackend) getOrCreateGuildRecord(guildID string) (*Record, error) {
	var record Record
	if _, err := b.ds.Get(guildID, &record); err != nil {
		return nil, fmt.Errorf("error reading guild record: %w", err)
	}
	if record.TracksHistory == nil {
		record.TracksHistory = []TrackHistoryRecord{}
	}
	if record.CommandsHistory == nil {
		record.CommandsHistory = []CommandHistoryRecord{}
	}
	return &record, nil
}

func (b *jsonBackend) update(guildID string, fn func(*Record)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	record, err := b.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}
	fn(record)
	return b.ds.Put(guildID, record)
}

func (b *jsonBackend) view(guildID string) (*Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getOrCreateGuildRecord(guildID)
}

func (b *jsonBackend) LoadSettings(guildID string) (player.Settings, bool, error) {
	record, err := b.view(guildID)
	if err != nil || record.Settings == nil {
		return player.Settings{}, false, err
	}
	return *record.Settings, true, nil
}

func (b *jsonBackend) SaveSettings(guildID string, s player.Settings) error {
	return b.update(guildID, func(r *Record) { r.Settings = &s })
}

func (b *jsonBackend) AppendTrack(guildID string, rec TrackHistoryRecord, limit int) error {
	return b.update(guildID, func(r *Record) {
		r.TracksHistory = keepLast(append(r.TracksHistory, rec), limit)
	})
}

func (b *jsonBackend) Tracks(guildID string) ([]TrackHistoryRecord, error) {
	record, err := b.view(guildID)
	if err != nil {
		return nil, err
	}
	return record.TracksHistory, nil
}

func (b *jsonBackend) AppendCommand(guildID string, rec CommandHistoryRecord, limit int) error {
	return b.update(guildID, func(r *Record) {
		r.CommandsHistory = keepLast(append(r.CommandsHistory, rec), limit)
	})
}

func (b *jsonBackend) Commands(guildID string) ([]CommandHistoryRecord, error) {
	record, err := b.view(guildID)
	if err != nil {
		return nil, err
	}
	return record.CommandsHistory, nil
}

func keepLast[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
