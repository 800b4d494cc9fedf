// Package state persists the single watch-state snapshot between runs.
package state

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	_ "modernc.org/sqlite"
)

// WatchState is the last-known watch outcome, carried from one run to the
// next. Exactly one snapshot exists per database.
type WatchState struct {
	LastInStock         bool
	LastFingerprint     string
	LastDailyReportDate string // YYYY-MM-DD of the last daily report, empty if none yet
}

// Store reads and writes the snapshot in a SQLite database.
type Store struct {
	sql *sql.DB
}

// DefaultPath resolves the state database location used when no explicit
// path is configured.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "stockwatch", "stockwatch.sqlite"), nil
}

// Open opens (or creates) the state database at path. An empty path uses
// DefaultPath. A corrupt database file is removed and recreated once, losing
// the snapshot but keeping the watcher alive; worst case is one duplicate
// daily email.
func Open(path string) (*Store, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := open(path)
	if err != nil {
		// Corrupt or unreadable file: start fresh.
		_ = os.Remove(path)
		db, err = open(path)
		if err != nil {
			return nil, err
		}
	}
	return &Store{sql: db}, nil
}

func open(path string) (*sql.DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS watch_state (
  id                     INTEGER PRIMARY KEY CHECK (id = 1),
  last_in_stock          INTEGER NOT NULL CHECK (last_in_stock IN (0,1)),
  last_fingerprint       TEXT NOT NULL,
  last_daily_report_date TEXT NOT NULL
);
	`); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (s *Store) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}
	return s.sql.Close()
}

// Load returns the persisted snapshot and whether one existed. It never
// fails: any read problem resolves to the zero WatchState with found=false,
// so a damaged snapshot can only ever cost one duplicate notification.
func (s *Store) Load(ctx context.Context) (WatchState, bool) {
	var (
		inStock int
		st      WatchState
	)
	row := s.sql.QueryRowContext(ctx, "SELECT last_in_stock, last_fingerprint, last_daily_report_date FROM watch_state WHERE id = 1")
	if err := row.Scan(&inStock, &st.LastFingerprint, &st.LastDailyReportDate); err != nil {
		return WatchState{}, false
	}
	st.LastInStock = inStock == 1
	return st, true
}

// Save writes the snapshot as a single upsert. This is the only write a run
// performs against the store, done as its final step.
func (s *Store) Save(ctx context.Context, st WatchState) error {
	inStock := 0
	if st.LastInStock {
		inStock = 1
	}
	_, err := s.sql.ExecContext(ctx, `
INSERT INTO watch_state (id, last_in_stock, last_fingerprint, last_daily_report_date)
VALUES (1, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  last_in_stock = excluded.last_in_stock,
  last_fingerprint = excluded.last_fingerprint,
  last_daily_report_date = excluded.last_daily_report_date
	`, inStock, st.LastFingerprint, st.LastDailyReportDate)
	return err
}

// Reset deletes the snapshot, returning the watcher to first-run behavior.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.sql.ExecContext(ctx, "DELETE FROM watch_state WHERE id = 1")
	return err
}
