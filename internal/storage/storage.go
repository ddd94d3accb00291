// Package storage persists per-guild music settings, play history and
// command history.
package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keshon/listenparty/internal/logging"
	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/sources"
)

const (
	commandHistoryLimit int = 20
	tracksHistoryLimit  int = 12
)

var ErrUnknownDriver = errors.New("unknown storage driver")

type CommandHistoryRecord struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	GuildName   string    `json:"guild_name"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Command     string    `json:"command"`
	Param       string    `json:"param"`
	Datetime    time.Time `json:"datetime"`
}

type TrackHistoryRecord struct {
	Track    sources.Track `json:"track"`
	PlayedAt time.Time     `json:"played_at"`
}

// Backend is one persistence engine. Append operations keep only the
// newest limit records.
type Backend interface {
	LoadSettings(guildID string) (player.Settings, bool, error)
	SaveSettings(guildID string, s player.Settings) error
	AppendTrack(guildID string, rec TrackHistoryRecord, limit int) error
	Tracks(guildID string) ([]TrackHistoryRecord, error)
	AppendCommand(guildID string, rec CommandHistoryRecord, limit int) error
	Commands(guildID string) ([]CommandHistoryRecord, error)
	Close() error
}

type Storage struct {
	backend Backend
	log     *slog.Logger
}

// New opens the backend named by driver ("json" or "sqlite") at path.
func New(driver, path string) (*Storage, error) {
	var (
		b   Backend
		err error
	)
	switch driver {
	case "json", "":
		b, err = openJSON(path)
	case "sqlite":
		b, err = openSQLite(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", driver, err)
	}
	return NewWithBackend(b), nil
}

func NewWithBackend(b Backend) *Storage {
	return &Storage{backend: b, log: logging.For("storage")}
}

func (s *Storage) Close() error {
	return s.backend.Close()
}

// LoadSettings returns the guild's saved settings, if any.
func (s *Storage) LoadSettings(guildID string) (player.Settings, bool, error) {
	return s.backend.LoadSettings(guildID)
}

func (s *Storage) SaveSettings(guildID string, st player.Settings) error {
	return s.backend.SaveSettings(guildID, st)
}

// AppendCommandToHistory appends a command history record for a guild
func (s *Storage) AppendCommandToHistory(guildID string, command CommandHistoryRecord) error {
	return s.backend.AppendCommand(guildID, command, commandHistoryLimit)
}

func (s *Storage) FetchCommandHistory(guildID string) ([]CommandHistoryRecord, error) {
	return s.backend.Commands(guildID)
}

func (s *Storage) AppendTrackToHistory(guildID string, track sources.Track, at time.Time) error {
	return s.backend.AppendTrack(guildID, TrackHistoryRecord{Track: track, PlayedAt: at}, tracksHistoryLimit)
}

// FetchTrackHistory lists recently played tracks, oldest first.
func (s *Storage) FetchTrackHistory(guildID string) ([]TrackHistoryRecord, error) {
	return s.backend.Tracks(guildID)
}

// Observe records started tracks and changed settings.
func (s *Storage) Observe(a player.Activity) {
	var err error
	switch a.Type {
	case player.ActivityTrackStarted:
		if a.Track != nil {
			err = s.AppendTrackToHistory(a.GuildID, *a.Track, a.At)
		}
	case player.ActivitySettingsChanged:
		if a.Settings != nil {
			err = s.SaveSettings(a.GuildID, *a.Settings)
		}
	default:
		return
	}
	if err != nil {
		s.log.Error("Failed to persist activity", "guild", a.GuildID, "type", a.Type, "error", err)
	}
}
