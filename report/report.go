// Package report records merge outcomes in a SQLite database: one row per
// run, one row per processed class.
package report

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound indicates the requested run doesn't exist.
var ErrRunNotFound = errors.New("run not found")

// Store handles SQLite storage for merge reports.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// ClassRow is one processed class within a run.
type ClassRow struct {
	Class   string
	Added   int
	Skipped int
	Dropped int
	Output  string
}

// Run is one recorded invocation.
type Run struct {
	ID        int64
	Started   time.Time
	Manifest  string
	Overwrite bool
}

// Open creates or opens the report database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating report directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started TEXT NOT NULL,
		manifest TEXT NOT NULL,
		overwrite INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS classes (
		run_id INTEGER NOT NULL REFERENCES runs(id),
		class TEXT NOT NULL,
		added INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		dropped INTEGER NOT NULL,
		output TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating classes table: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BeginRun records the start of an invocation and returns its id.
func (s *Store) BeginRun(manifestPath string, overwrite bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"INSERT INTO runs (started, manifest, overwrite) VALUES (?, ?, ?)",
		time.Now().UTC().Format(time.RFC3339), manifestPath, boolInt(overwrite),
	)
	if err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}
	return res.LastInsertId()
}

// RecordClass records the outcome for one class within a run.
func (s *Store) RecordClass(runID int64, row ClassRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO classes (run_id, class, added, skipped, dropped, output) VALUES (?, ?, ?, ?, ?, ?)",
		runID, row.Class, row.Added, row.Skipped, row.Dropped, row.Output,
	)
	if err != nil {
		return fmt.Errorf("recording class %s: %w", row.Class, err)
	}
	return nil
}

// LastRun returns the most recently started run.
func (s *Store) LastRun() (*Run, error) {
	row := s.db.QueryRow(
		"SELECT id, started, manifest, overwrite FROM runs ORDER BY id DESC LIMIT 1")
	return scanRun(row)
}

// GetRun returns one run by id.
func (s *Store) GetRun(id int64) (*Run, error) {
	row := s.db.QueryRow(
		"SELECT id, started, manifest, overwrite FROM runs WHERE id = ?", id)
	return scanRun(row)
}

// Classes returns the per-class rows of a run, in insertion order.
func (s *Store) Classes(runID int64) ([]ClassRow, error) {
	rows, err := s.db.Query(
		"SELECT class, added, skipped, dropped, output FROM classes WHERE run_id = ? ORDER BY rowid",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying classes: %w", err)
	}
	defer rows.Close()

	var out []ClassRow
	for rows.Next() {
		var r ClassRow
		if err := rows.Scan(&r.Class, &r.Added, &r.Skipped, &r.Dropped, &r.Output); err != nil {
			return nil, fmt.Errorf("scanning class row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRun(row *sql.Row) (*Run, error) {
	var r Run
	var started string
	var overwrite int
	err := row.Scan(&r.ID, &started, &r.Manifest, &overwrite)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}
	r.Started, err = time.Parse(time.RFC3339, started)
	if err != nil {
		return nil, fmt.Errorf("parsing run timestamp: %w", err)
	}
	r.Overwrite = overwrite != 0
	return &r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
