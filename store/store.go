// Package store keeps a history of compiled programs and their runs in a SQL
// database. SQLite (modernc.org/sqlite) is the default backend; DuckDB is
// available in cgo builds.
package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/tapevm/compiler"
	"github.com/chazu/tapevm/image"
)

// ErrProgramNotFound indicates the requested program hash is not stored.
var ErrProgramNotFound = errors.New("program not found")

var log = commonlog.GetLogger("tape.store")

// Run statuses.
const (
	StatusOK          = "ok"
	StatusLexError    = "lex-error"
	StatusParseError  = "parse-error"
	StatusStepLimit   = "step-limit"
	StatusCancelled   = "cancelled"
	StatusOutputError = "output-error"
)

// Run is one recorded execution.
type Run struct {
	ID          string
	ProgramHash string // empty when the source did not compile
	Status      string
	Input       []byte
	Output      []byte
	Steps       uint64
	Error       string
	CreatedAt   time.Time
}

// Store handles SQL storage for programs and runs.
type Store struct {
	db     *sql.DB
	driver string
	mu     sync.Mutex
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS programs (
		hash TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		commands BIGINT NOT NULL,
		depth BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		program_hash TEXT NOT NULL,
		status TEXT NOT NULL,
		input BLOB,
		output BLOB,
		steps BIGINT NOT NULL,
		error TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
}

// Open opens (creating if needed) the history database at path using the
// named database/sql driver ("sqlite" or "duckdb").
func Open(driver, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if driver == "sqlite" {
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting busy timeout: %w", err)
		}
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating table: %w", err)
		}
	}

	log.Debugf("opened %s store at %s", driver, path)
	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// HashString formats a program's content hash as stored.
func HashString(prog compiler.Program) string {
	h := image.Hash(prog)
	return hex.EncodeToString(h[:])
}

// SaveProgram stores a program under its content hash and returns the hash.
// Saving the same program twice is a no-op.
func (s *Store) SaveProgram(prog compiler.Program) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := HashString(prog)
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO programs (hash, source, commands, depth) VALUES (?, ?, ?, ?)",
		hash, prog.String(), int64(prog.CommandCount()), int64(prog.MaxDepth()),
	)
	if err != nil {
		return "", fmt.Errorf("saving program: %w", err)
	}
	return hash, nil
}

// Program loads and recompiles a stored program.
func (s *Store) Program(hash string) (compiler.Program, error) {
	var source string
	err := s.db.QueryRow("SELECT source FROM programs WHERE hash = ?", hash).Scan(&source)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProgramNotFound
		}
		return nil, fmt.Errorf("querying program: %w", err)
	}
	prog, err := compiler.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("stored program %s: %w", hash, err)
	}
	return prog, nil
}

// RecordRun inserts a run. ID and CreatedAt are filled in when empty.
func (s *Store) RecordRun(r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO runs (id, program_hash, status, input, output, steps, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProgramHash, r.Status, r.Input, r.Output,
		int64(r.Steps), r.Error, r.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	log.Debugf("recorded run %s (%s)", r.ID, r.Status)
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, program_hash, status, input, output, steps, error, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var steps, created int64
		if err := rows.Scan(&r.ID, &r.ProgramHash, &r.Status, &r.Input, &r.Output, &steps, &r.Error, &created); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Steps = uint64(steps)
		r.CreatedAt = time.Unix(0, created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunsFor returns the number of recorded runs of a program.
func (s *Store) RunsFor(hash string) (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM runs WHERE program_hash = ?", hash).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting runs: %w", err)
	}
	return n, nil
}
