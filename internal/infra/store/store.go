// Package store persists per-room settings in SQLite.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/osa030/sonicbox/internal/domain/room"
)

// RoomSettings are the persisted settings of a room.
type RoomSettings struct {
	RoomID    string
	Autoplay  room.Mode
	UpdatedAt time.Time
}

// Store is a SQLite-backed room settings store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create data dir")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure database")
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS room_settings (
			room_id       TEXT PRIMARY KEY,
			autoplay_mode TEXT NOT NULL DEFAULT 'none',
			updated_at    DATETIME NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create room_settings table")
	}

	zlog.Debug().Msgf("store: opened: path=%s", path)
	return &Store{db: db}, nil
}

// Load returns the settings of a room. ok is false when nothing was saved.
func (s *Store) Load(ctx context.Context, roomID string) (settings RoomSettings, ok bool, err error) {
	var mode string
	var updatedAt time.Time
	err = s.db.QueryRowContext(ctx,
		`SELECT autoplay_mode, updated_at FROM room_settings WHERE room_id = ?`, roomID,
	).Scan(&mode, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RoomSettings{RoomID: roomID}, false, nil
	}
	if err != nil {
		return RoomSettings{}, false, errors.Wrapf(err, "failed to load room settings: room=%s", roomID)
	}

	m, err := room.ParseMode(mode)
	if err != nil {
		zlog.Warn().Msgf("store: ignoring stored autoplay mode: room=%s mode=%q", roomID, mode)
		m = room.ModeNone
	}
	return RoomSettings{RoomID: roomID, Autoplay: m, UpdatedAt: updatedAt}, true, nil
}

// SaveAutoplay stores the autoplay mode of a room.
func (s *Store) SaveAutoplay(ctx context.Context, roomID string, mode room.Mode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_settings (room_id, autoplay_mode, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			autoplay_mode = excluded.autoplay_mode,
			updated_at    = excluded.updated_at
	`, roomID, mode.String(), time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to save autoplay mode: room=%s", roomID)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
