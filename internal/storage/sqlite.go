package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/keshon/listenparty/internal/music/player"
	"github.com/keshon/listenparty/internal/music/sources"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS guild_settings (
	guild_id TEXT PRIMARY KEY,
	announce INTEGER NOT NULL,
	allow_duplicates INTEGER NOT NULL,
	volume INTEGER NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS track_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	guild_id TEXT NOT NULL,
	track_id TEXT NOT NULL,
	title TEXT NOT NULL,
	author TEXT,
	uri TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	thumbnail TEXT,
	source TEXT NOT NULL,
	requester_id TEXT,
	played_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_track_history_guild ON track_history (guild_id, id);
CREATE TABLE IF NOT EXISTS command_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	guild_id TEXT NOT NULL,
	channel_id TEXT,
	channel_name TEXT,
	guild_name TEXT,
	user_id TEXT NOT NULL,
	username TEXT,
	command TEXT NOT NULL,
	param TEXT,
	datetime DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_command_history_guild ON command_history (guild_id, id);
`

type sqliteBackend struct {
	db *sql.DB
}

func openSQLite(path string) (*sqliteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

func (b *sqliteBackend) LoadSettings(guildID string) (player.Settings, bool, error) {
	var s player.Settings
	err := b.db.QueryRow(
		`SELECT announce, allow_duplicates, volume FROM guild_settings WHERE guild_id = ?`,
		guildID,
	).Scan(&s.Announce, &s.AllowDuplicates, &s.Volume)
	if errors.Is(err, sql.ErrNoRows) {
		return player.Settings{}, false, nil
	}
	if err != nil {
		return player.Settings{}, false, fmt.Errorf("load settings: %w", err)
	}
	return s, true, nil
}

func (b *sqliteBackend) SaveSettings(guildID string, s player.Settings) error {
	_, err := b.db.Exec(`
		INSERT INTO guild_settings (guild_id, announce, allow_duplicates, volume, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(guild_id) DO UPDATE SET
			announce = excluded.announce,
			allow_duplicates = excluded.allow_duplicates,
			volume = excluded.volume,
			updated_at = CURRENT_TIMESTAMP`,
		guildID, s.Announce, s.AllowDuplicates, s.Volume,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (b *sqliteBackend) AppendTrack(guildID string, rec TrackHistoryRecord, limit int) error {
	t := rec.Track
	return b.appendAndTrim("track_history", guildID, limit, `
		INSERT INTO track_history
			(guild_id, track_id, title, author, uri, duration_ms, thumbnail, source, requester_id, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		guildID, t.ID, t.Title, t.Author, t.URI, t.Duration.Milliseconds(), t.Thumbnail, t.Source, t.RequesterID, rec.PlayedAt.UTC(),
	)
}

func (b *sqliteBackend) Tracks(guildID string) ([]TrackHistoryRecord, error) {
	rows, err := b.db.Query(`
		SELECT track_id, title, author, uri, duration_ms, thumbnail, source, requester_id, played_at
		FROM track_history WHERE guild_id = ? ORDER BY id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query track history: %w", err)
	}
	defer rows.Close()

	out := []TrackHistoryRecord{}
	for rows.Next() {
		var (
			t          sources.Track
			durationMS int64
			author     sql.NullString
			thumbnail  sql.NullString
			requester  sql.NullString
			playedAt   time.Time
		)
		if err := rows.Scan(&t.ID, &t.Title, &author, &t.URI, &durationMS, &thumbnail, &t.Source, &requester, &playedAt); err != nil {
			return nil, fmt.Errorf("scan track history: %w", err)
		}
		t.Author, t.Thumbnail, t.RequesterID = author.String, thumbnail.String, requester.String
		t.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, TrackHistoryRecord{Track: t, PlayedAt: playedAt})
	}
	return out, rows.Err()
}

func (b *sqliteBackend) AppendCommand(guildID string, rec CommandHistoryRecord, limit int) error {
	return b.appendAndTrim("command_history", guildID, limit, `
		INSERT INTO command_history
			(guild_id, channel_id, channel_name, guild_name, user_id, username, command, param, datetime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		guildID, rec.ChannelID, rec.ChannelName, rec.GuildName, rec.UserID, rec.Username, rec.Command, rec.Param, rec.Datetime.UTC(),
	)
}

func (b *sqliteBackend) Commands(guildID string) ([]CommandHistoryRecord, error) {
	rows, err := b.db.Query(`
		SELECT channel_id, channel_name, guild_name, user_id, username, command, param, datetime
		FROM command_history WHERE guild_id = ? ORDER BY id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query command history: %w", err)
	}
	defer rows.Close()

	out := []CommandHistoryRecord{}
	for rows.Next() {
		var rec CommandHistoryRecord
		var channelID, channelName, guildName, username, param sql.NullString
		if err := rows.Scan(&channelID, &channelName, &guildName, &rec.UserID, &username, &rec.Command, &param, &rec.Datetime); err != nil {
			return nil, fmt.Errorf("scan command history: %w", err)
		}
		rec.ChannelID, rec.ChannelName, rec.GuildName = channelID.String, channelName.String, guildName.String
		rec.Username, rec.Param = username.String, param.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// appendAndTrim inserts one row and drops the guild's rows beyond limit,
// in one transaction.
func (b *sqliteBackend) appendAndTrim(table, guildID string, limit int, insert string, args ...any) error {
	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(insert, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	if limit > 0 {
		trim := fmt.Sprintf(`
			DELETE FROM %[1]s WHERE guild_id = ? AND id NOT IN (
				SELECT id FROM %[1]s WHERE guild_id = ? ORDER BY id DESC LIMIT ?
			)`, table)
		if _, err := tx.Exec(trim, guildID, guildID, limit); err != nil {
			return fmt.Errorf("trim %s: %w", table, err)
		}
	}
	return tx.Commit()
}
