// Package ledger records finished conversions in a SQLite database so that a
// later batch run can skip inputs whose content has not changed.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FocuswithJustin/teijson/core/errors"
	"github.com/FocuswithJustin/teijson/core/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversions (
	input_path    TEXT PRIMARY KEY,
	input_blake3  TEXT NOT NULL,
	input_sha256  TEXT NOT NULL,
	output_path   TEXT NOT NULL,
	output_sha256 TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	documents     INTEGER NOT NULL,
	paragraphs    INTEGER NOT NULL,
	converted_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversions_run ON conversions(run_id);
`

// Entry is one recorded conversion.
type Entry struct {
	InputPath    string    `json:"input_path"`
	InputBLAKE3  string    `json:"input_blake3"`
	InputSHA256  string    `json:"input_sha256"`
	OutputPath   string    `json:"output_path"`
	OutputSHA256 string    `json:"output_sha256"`
	RunID        string    `json:"run_id"`
	Documents    int       `json:"documents"`
	Paragraphs   int       `json:"paragraphs"`
	ConvertedAt  time.Time `json:"converted_at"`
}

// Ledger is a conversion ledger backed by one SQLite file. It is safe for
// concurrent use.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open opens or creates the ledger at path.
func Open(path string) (*Ledger, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	// One connection serializes writers from parallel batch workers and keeps
	// ":memory:" ledgers on a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return &Ledger{db: db, path: path}, nil
}

// Path returns the database path the ledger was opened with.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record inserts or replaces the entry for e.InputPath.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.ConvertedAt.IsZero() {
		e.ConvertedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO conversions (input_path, input_blake3, input_sha256, output_path,
			output_sha256, run_id, documents, paragraphs, converted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(input_path) DO UPDATE SET
			input_blake3 = excluded.input_blake3,
			input_sha256 = excluded.input_sha256,
			output_path = excluded.output_path,
			output_sha256 = excluded.output_sha256,
			run_id = excluded.run_id,
			documents = excluded.documents,
			paragraphs = excluded.paragraphs,
			converted_at = excluded.converted_at`,
		e.InputPath, e.InputBLAKE3, e.InputSHA256, e.OutputPath, e.OutputSHA256,
		e.RunID, e.Documents, e.Paragraphs, e.ConvertedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording %s: %w", e.InputPath, err)
	}
	return nil
}

// Lookup returns the entry recorded for inputPath.
func (l *Ledger) Lookup(ctx context.Context, inputPath string) (Entry, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT input_path, input_blake3, input_sha256, output_path, output_sha256,
			run_id, documents, paragraphs, converted_at
		FROM conversions WHERE input_path = ?`, inputPath)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return Entry{}, errors.NewNotFound("ledger entry", inputPath)
	}
	return e, err
}

// Unchanged reports whether inputPath was last converted from content with
// the given BLAKE3 hash into outputPath.
func (l *Ledger) Unchanged(ctx context.Context, inputPath, blake3, outputPath string) (bool, error) {
	e, err := l.Lookup(ctx, inputPath)
	if errors.Is(err, errors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.InputBLAKE3 == blake3 && e.OutputPath == outputPath, nil
}

// List returns every entry, most recent first.
func (l *Ledger) List(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT input_path, input_blake3, input_sha256, output_path, output_sha256,
			run_id, documents, paragraphs, converted_at
		FROM conversions ORDER BY converted_at DESC, input_path`)
	if err != nil {
		return nil, fmt.Errorf("listing ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var at string
	err := s.Scan(&e.InputPath, &e.InputBLAKE3, &e.InputSHA256, &e.OutputPath,
		&e.OutputSHA256, &e.RunID, &e.Documents, &e.Paragraphs, &at)
	if err != nil {
		return Entry{}, err
	}
	e.ConvertedAt, err = time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger entry %s: bad timestamp %q: %w", e.InputPath, at, err)
	}
	return e, nil
}
