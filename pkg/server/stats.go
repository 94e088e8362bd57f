package server

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// StatsStore persists a handful of lifetime operational counters —
// sessions ever created, messages ever sent — across restarts. It holds no
// message content and no usernames: this is the operational-counters
// store, not a message history, which the core deliberately never builds.
type StatsStore struct {
	db *sql.DB
}

// OpenStatsStore opens (creating if needed) the counters database at path.
func OpenStatsStore(path string) (*StatsStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("server: open stats db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("server: enable WAL: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("server: create counters table: %w", err)
	}
	return &StatsStore{db: db}, nil
}

// Incr adds delta to the named counter, creating it at delta if absent.
func (s *StatsStore) Incr(name string, delta int64) error {
	_, err := s.db.Exec(`
		INSERT INTO counters(name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = value + excluded.value
	`, name, delta)
	return err
}

// Set overwrites the named counter with value, creating it if absent. Used
// to periodically snapshot a live in-memory total rather than accumulate
// deltas.
func (s *StatsStore) Set(name string, value int64) error {
	_, err := s.db.Exec(`
		INSERT INTO counters(name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, name, value)
	return err
}

// Get returns the current value of the named counter (0 if never set).
func (s *StatsStore) Get(name string) (int64, error) {
	var v int64
	err := s.db.QueryRow(`SELECT value FROM counters WHERE name = ?`, name).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return v, err
}

// All returns every counter and its current value.
func (s *StatsStore) All() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT name, value FROM counters`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// Close releases the underlying database connection.
func (s *StatsStore) Close() error {
	return s.db.Close()
}
