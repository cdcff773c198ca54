// Package history keeps a ledger of processed files in SQLite.
//
// A Store is also a progress.Reporter: attached to a job, it records one run
// per finished file, whatever its outcome.
package history

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	// registers the sqlite3 driver
	_ "github.com/mattn/go-sqlite3"

	gferrors "github.com/vnykmshr/parcsv/pkg/common/errors"
	"github.com/vnykmshr/parcsv/pkg/progress"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id      TEXT NOT NULL,
	input       TEXT NOT NULL,
	output      TEXT NOT NULL,
	status      TEXT NOT NULL,
	rows        INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	dropped     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_job_id ON runs (job_id);
`

// Run is one recorded file.
type Run struct {
	ID        int64
	JobID     string
	Input     string
	Output    string
	Status    progress.Status
	Rows      int64
	Succeeded int64
	Failed    int64
	Dropped   int64
	Error     string
	Started   time.Time
	Finished  time.Time
}

// Store records runs in a SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database at path. Errors from the reporter
// methods are logged to logger.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, gferrors.NewOperationError("history", "Open", err).WithContext(path)
	}
	// one writer at a time keeps sqlite free of busy errors
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, gferrors.NewOperationError("history", "Open", err).WithContext(path)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// Record stores the summary of one file.
func (s *Store) Record(ctx context.Context, sum progress.Summary) error {
	var errText string
	if sum.Err != nil {
		errText = sum.Err.Error()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (job_id, input, output, status, rows, succeeded, failed, dropped, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.JobID, sum.Input, sum.Output, string(sum.Status),
		sum.Rows, sum.Succeeded, sum.Failed, sum.Dropped, errText,
		sum.Started.UTC().Format(time.RFC3339Nano), sum.Finished.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return gferrors.NewOperationError("history", "Record", err).WithContext(sum.Input)
	}
	return nil
}

// Runs returns the recorded runs of a job in the order they finished. An
// empty jobID returns every run.
func (s *Store) Runs(ctx context.Context, jobID string) ([]Run, error) {
	query := `SELECT id, job_id, input, output, status, rows, succeeded, failed, dropped, error, started_at, finished_at
		FROM runs`
	var args []any
	if jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, gferrors.NewOperationError("history", "Runs", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var status, started, finished string
		if err := rows.Scan(&r.ID, &r.JobID, &r.Input, &r.Output, &status,
			&r.Rows, &r.Succeeded, &r.Failed, &r.Dropped, &r.Error, &started, &finished); err != nil {
			return nil, gferrors.NewOperationError("history", "Runs", err)
		}
		r.Status = progress.Status(status)
		r.Started, _ = time.Parse(time.RFC3339Nano, started)
		r.Finished, _ = time.Parse(time.RFC3339Nano, finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, gferrors.NewOperationError("history", "Runs", err)
	}
	return runs, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) FileStarted(progress.FileInfo) {}

func (s *Store) RowWritten(progress.FileInfo, progress.Row) {}

// FileFinished records the summary, logging any failure.
func (s *Store) FileFinished(sum progress.Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Record(ctx, sum); err != nil {
		s.logger.Error("history record failed",
			slog.String("input", sum.Input),
			slog.String("error", err.Error()),
		)
	}
}
