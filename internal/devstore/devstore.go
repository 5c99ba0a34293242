// Package devstore keeps a small local history of controller connections
// and playback runs, so the IDE can show "last seen" firmware per device.
package devstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is the history database. A nil *Store is valid and records nothing,
// so callers never branch on whether history is configured.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history DB at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open devstore: %w", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS connects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device TEXT NOT NULL,
			firmware TEXT,
			at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			device TEXT NOT NULL,
			records INTEGER NOT NULL,
			with_music INTEGER NOT NULL,
			started INTEGER NOT NULL,
			ended INTEGER
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init devstore: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// RecordConnect logs a successful connect with the firmware string reported
// by the controller ("" if the version query failed).
func (s *Store) RecordConnect(device, firmware string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec("INSERT INTO connects (device, firmware, at) VALUES (?, ?, ?)",
		device, firmware, time.Now().Unix())
	return err
}

// LastFirmware returns the most recently recorded firmware for device.
func (s *Store) LastFirmware(device string) (string, error) {
	if s == nil {
		return "", nil
	}
	var fw sql.NullString
	err := s.db.QueryRow(
		"SELECT firmware FROM connects WHERE device = ? ORDER BY at DESC, id DESC LIMIT 1", device).Scan(&fw)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return fw.String, nil
}

// BeginRun logs a playback start and returns its run id.
func (s *Store) BeginRun(device string, records int, withMusic bool) (string, error) {
	runID := uuid.NewString()
	if s == nil {
		return runID, nil
	}
	m := 0
	if withMusic {
		m = 1
	}
	_, err := s.db.Exec(
		"INSERT INTO runs (run_id, device, records, with_music, started) VALUES (?, ?, ?, ?, ?)",
		runID, device, records, m, time.Now().Unix())
	return runID, err
}

// EndRun stamps a run's completion time.
func (s *Store) EndRun(runID string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec("UPDATE runs SET ended = ? WHERE run_id = ?", time.Now().Unix(), runID)
	return err
}

// RunCount reports how many playback runs are on record for device.
func (s *Store) RunCount(device string) (int, error) {
	if s == nil {
		return 0, nil
	}
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM runs WHERE device = ?", device).Scan(&n)
	return n, err
}
