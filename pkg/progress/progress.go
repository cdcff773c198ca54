// Package progress reports per-file progress of a mapping job.
//
// The pipeline calls a Reporter from its coordinating goroutine only, in
// this order for every file: FileStarted, RowWritten once per row that
// reached the output, then FileFinished. Reporters that are shared with
// other goroutines must synchronise themselves.
package progress

import (
	"time"
)

// Status is the final state of one input file.
type Status string

const (
	// StatusCompleted means every input record was processed.
	StatusCompleted Status = "completed"

	// StatusStopped means a transform requested a stop.
	StatusStopped Status = "stopped"

	// StatusFailed means a read or write error ended the file early.
	StatusFailed Status = "failed"

	// StatusCancelled means the job was interrupted.
	StatusCancelled Status = "cancelled"
)

// FileInfo identifies the file being processed.
type FileInfo struct {
	JobID   string
	Input   string
	Output  string
	Fields  []string
	Started time.Time
}

// Summary describes how one file ended.
type Summary struct {
	JobID  string
	Input  string
	Output string

	// Rows counts data rows written to the output.
	Rows int64

	// Succeeded and Failed split Rows by transform outcome.
	Succeeded int64
	Failed    int64

	// Dropped counts rows that could not be serialised.
	Dropped int64

	Status   Status
	Err      error
	Started  time.Time
	Finished time.Time
}

// Totals returns the row counts of the summary.
func (s Summary) Totals() Counts {
	return Counts{Rows: s.Rows, Succeeded: s.Succeeded, Failed: s.Failed, Dropped: s.Dropped}
}

// Duration returns how long the file took.
func (s Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

// Counts are running row totals of one file.
type Counts struct {
	Rows      int64
	Succeeded int64
	Failed    int64
	Dropped   int64
}

// Row describes a row that reached the output. Totals already include it,
// so a reporter that sees only some rows still publishes exact counts.
type Row struct {
	Seq       int64
	Succeeded bool
	Totals    Counts
}

// Reporter receives progress events.
type Reporter interface {
	// FileStarted is called after the output header was written.
	FileStarted(info FileInfo)

	// RowWritten is called after a row reached the output.
	RowWritten(info FileInfo, row Row)

	// FileFinished is called once per started file.
	FileFinished(summary Summary)
}

// Nop is a Reporter that ignores every event.
type Nop struct{}

func (Nop) FileStarted(FileInfo)     {}
func (Nop) RowWritten(FileInfo, Row) {}
func (Nop) FileFinished(Summary)     {}

// Funcs adapts plain functions to a Reporter. Nil fields are skipped.
type Funcs struct {
	OnFileStarted  func(info FileInfo)
	OnRowWritten   func(info FileInfo, row Row)
	OnFileFinished func(summary Summary)
}

func (f Funcs) FileStarted(info FileInfo) {
	if f.OnFileStarted != nil {
		f.OnFileStarted(info)
	}
}

func (f Funcs) RowWritten(info FileInfo, row Row) {
	if f.OnRowWritten != nil {
		f.OnRowWritten(info, row)
	}
}

func (f Funcs) FileFinished(summary Summary) {
	if f.OnFileFinished != nil {
		f.OnFileFinished(summary)
	}
}

// multi fans events out to several reporters.
type multi []Reporter

// Multi returns a Reporter that forwards every event to each non-nil
// reporter, in order.
func Multi(reporters ...Reporter) Reporter {
	out := make(multi, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multi) FileStarted(info FileInfo) {
	for _, r := range m {
		r.FileStarted(info)
	}
}

func (m multi) RowWritten(info FileInfo, row Row) {
	for _, r := range m {
		r.RowWritten(info, row)
	}
}

func (m multi) FileFinished(summary Summary) {
	for _, r := range m {
		r.FileFinished(summary)
	}
}
