// Package history stores benchmark runs in SQLite so successive runs of the
// same program can be compared.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("artvm.history")

// Run is one recorded benchmark.
type Run struct {
	ID         string
	Program    string // file name or label given by the caller
	CodeHash   string // hex SHA-256 of the bytecode
	Iterations int
	Min        time.Duration
	Max        time.Duration
	Median     time.Duration
	Mean       time.Duration
	Exit       string
	RecordedAt time.Time
}

// Store is a benchmark history database.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		program     TEXT NOT NULL,
		code_hash   TEXT NOT NULL,
		iterations  INTEGER NOT NULL,
		min_ns      INTEGER NOT NULL,
		max_ns      INTEGER NOT NULL,
		median_ns   INTEGER NOT NULL,
		mean_ns     INTEGER NOT NULL,
		exit        TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Record saves a run. ID and RecordedAt are filled in when empty.
func (s *Store) Record(ctx context.Context, r Run) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, program, code_hash, iterations, min_ns, max_ns, median_ns, mean_ns, exit, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Program, r.CodeHash, r.Iterations,
		int64(r.Min), int64(r.Max), int64(r.Median), int64(r.Mean),
		r.Exit, r.RecordedAt.UnixNano(),
	)
	if err != nil {
		return r, fmt.Errorf("saving run: %w", err)
	}
	log.Debugf("recorded run %s for %s", r.ID, r.Program)
	return r, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	return s.query(ctx, `SELECT id, program, code_hash, iterations, min_ns, max_ns, median_ns, mean_ns, exit, recorded_at
		FROM runs ORDER BY recorded_at DESC, rowid DESC LIMIT ?`, limit)
}

// ForCode returns up to limit runs of the bytecode with the given hash, newest first.
func (s *Store) ForCode(ctx context.Context, codeHash string, limit int) ([]Run, error) {
	return s.query(ctx, `SELECT id, program, code_hash, iterations, min_ns, max_ns, median_ns, mean_ns, exit, recorded_at
		FROM runs WHERE code_hash = ? ORDER BY recorded_at DESC, rowid DESC LIMIT ?`, codeHash, limit)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var minNs, maxNs, medianNs, meanNs, at int64
		if err := rows.Scan(&r.ID, &r.Program, &r.CodeHash, &r.Iterations,
			&minNs, &maxNs, &medianNs, &meanNs, &r.Exit, &at); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Min = time.Duration(minNs)
		r.Max = time.Duration(maxNs)
		r.Median = time.Duration(medianNs)
		r.Mean = time.Duration(meanNs)
		r.RecordedAt = time.Unix(0, at)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
