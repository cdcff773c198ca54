package writer

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	gferrors "github.com/vnykmshr/parcsv/pkg/common/errors"
	"github.com/vnykmshr/parcsv/pkg/common/validation"
	"github.com/vnykmshr/parcsv/pkg/metrics"
)

// ErrWriterClosed is returned when attempting to write to a closed writer.
var ErrWriterClosed = errors.New("writer is closed")

// ErrRowDropped is wrapped by the error of a row that could not be
// serialised. Nothing was written for that row and the writer stays usable.
var ErrRowDropped = errors.New("row dropped")

// Row is one output record.
type Row struct {
	// Seq is the 1-based position of the input record.
	Seq int64

	// Succeeded is written as true or false.
	Succeeded bool

	// Values holds the declared field values. Ignored when Succeeded is false.
	Values map[string]string
}

// Stats holds statistics about the writer.
type Stats struct {
	// RowsWritten is the number of data rows written.
	RowsWritten int64

	// RowsDropped is the number of rows rejected by serialisation.
	RowsDropped int64

	// BytesWritten is the total number of bytes written, header included.
	BytesWritten int64

	// FlushCount is the number of completed writes, header included.
	FlushCount int64

	// SyncCount is the number of fsync calls.
	SyncCount int64

	// ErrorCount is the number of failed write or sync attempts.
	ErrorCount int64

	// TotalWriteTime is the total time spent writing.
	TotalWriteTime time.Duration

	// AverageWriteTime is the average time per write.
	AverageWriteTime time.Duration

	// LastWriteTime is the timestamp of the last write.
	LastWriteTime time.Time
}

// Config holds configuration options for Writer.
type Config struct {
	// RowField names the sequence number column.
	// Default: "row"
	RowField string

	// SucceededField names the success flag column.
	// Default: "succeeded"
	SucceededField string

	// IgnoreExtra drops values for undeclared fields instead of rejecting
	// the row.
	IgnoreExtra bool

	// Sync calls fsync after every row when the destination supports it.
	Sync bool

	// MaxRetries is the number of times to retry a failed write.
	// Default: 3
	MaxRetries int

	// RetryDelay is the delay between retries.
	// Default: 100ms
	RetryDelay time.Duration

	// Name labels this writer's metrics.
	// Default: "output"
	Name string

	// Metrics receives flush and byte counts when set.
	Metrics *metrics.Registry

	// OnError is called when a write, sync or serialisation error occurs.
	OnError func(error)

	// OnFlush is called after each row reaches the destination.
	OnFlush func(bytesWritten int, duration time.Duration)
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		RowField:       "row",
		SucceededField: "succeeded",
		MaxRetries:     3,
		RetryDelay:     100 * time.Millisecond,
		Name:           "output",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validation.ValidateNotEmpty("writer", "row_field", c.RowField); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty("writer", "succeeded_field", c.SucceededField); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("writer", "max_retries", c.MaxRetries); err != nil {
		return err
	}
	return validation.ValidateNonNegativeDuration("writer", "retry_delay", c.RetryDelay)
}

type syncer interface {
	Sync() error
}

// Writer writes result rows as CSV. Every row is serialised completely before
// a single write to the destination, so a row is either whole or absent.
type Writer struct {
	mu     sync.Mutex
	dst    io.Writer
	syncer syncer
	closer io.Closer
	config Config

	header   []string
	declared map[string]struct{}
	fields   []string

	buf    bytes.Buffer
	csv    *csv.Writer
	closed bool
	stats  Stats
}

// Create creates or truncates the file at path and writes the header.
func Create(path string, fields []string, config Config) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, gferrors.NewOperationError("writer", "Create", err).WithContext(path)
	}

	w, err := NewWithConfig(f, fields, config)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// New creates a Writer over dst with the default configuration.
func New(dst io.Writer, fields []string) (*Writer, error) {
	return NewWithConfig(dst, fields, DefaultConfig())
}

// NewWithConfig creates a Writer over dst and writes the header row: the
// sequence column, the success column, then fields in order. If dst has a
// Sync method it is used when Config.Sync is set.
func NewWithConfig(dst io.Writer, fields []string, config Config) (*Writer, error) {
	defaults := DefaultConfig()
	if config.RowField == "" {
		config.RowField = defaults.RowField
	}
	if config.SucceededField == "" {
		config.SucceededField = defaults.SucceededField
	}
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	header := make([]string, 0, len(fields)+2)
	header = append(header, config.RowField, config.SucceededField)
	header = append(header, fields...)
	if err := validation.ValidateFieldNames("writer", "header", header); err != nil {
		return nil, err
	}

	w := &Writer{
		dst:      dst,
		config:   config,
		header:   header,
		fields:   header[2:],
		declared: make(map[string]struct{}, len(fields)),
	}
	for _, f := range fields {
		w.declared[f] = struct{}{}
	}
	if s, ok := dst.(syncer); ok {
		w.syncer = s
	}
	w.csv = csv.NewWriter(&w.buf)

	if err := w.emit(context.Background(), header); err != nil {
		return nil, err
	}
	return w, nil
}

// Header returns the header row.
func (w *Writer) Header() []string {
	return w.header
}

// WriteRow writes one row and flushes it to the destination before
// returning. An error wrapping ErrRowDropped means only this row was lost;
// any other error means the destination is no longer usable.
func (w *Writer) WriteRow(ctx context.Context, row Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	record, err := w.encode(row)
	if err != nil {
		w.stats.RowsDropped++
		if w.config.OnError != nil {
			w.config.OnError(err)
		}
		return err
	}

	if err := w.emit(ctx, record); err != nil {
		return err
	}
	w.stats.RowsWritten++
	return nil
}

// encode builds the column values for row.
func (w *Writer) encode(row Row) ([]string, error) {
	record := make([]string, 0, len(w.header))
	record = append(record, strconv.FormatInt(row.Seq, 10), strconv.FormatBool(row.Succeeded))

	if !row.Succeeded {
		for range w.fields {
			record = append(record, "")
		}
		return record, nil
	}

	if !w.config.IgnoreExtra {
		for name := range row.Values {
			if _, ok := w.declared[name]; !ok {
				return nil, fmt.Errorf("%w: row %d: field %q is not declared", ErrRowDropped, row.Seq, name)
			}
		}
	}

	for _, name := range w.fields {
		v := row.Values[name]
		if !utf8.ValidString(v) {
			return nil, fmt.Errorf("%w: row %d: field %q is not valid UTF-8", ErrRowDropped, row.Seq, name)
		}
		record = append(record, v)
	}
	return record, nil
}

// emit serialises record into the buffer and writes it out in one piece.
func (w *Writer) emit(ctx context.Context, record []string) error {
	w.buf.Reset()
	if err := w.csv.Write(record); err != nil {
		return fmt.Errorf("%w: %v", ErrRowDropped, err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrRowDropped, err)
	}

	start := time.Now()
	n, err := w.writeWithRetries(ctx, w.buf.Bytes())
	if err == nil && w.config.Sync && w.syncer != nil {
		err = w.syncer.Sync()
		if err == nil {
			w.stats.SyncCount++
		}
	}
	duration := time.Since(start)

	w.stats.BytesWritten += int64(n)
	if err != nil {
		w.stats.ErrorCount++
		err = gferrors.NewOperationError("writer", "WriteRow", err).WithContext(w.config.Name)
		if w.config.OnError != nil {
			w.config.OnError(err)
		}
		return err
	}

	w.stats.FlushCount++
	w.stats.TotalWriteTime += duration
	w.stats.LastWriteTime = time.Now()

	if w.config.Metrics != nil {
		w.config.Metrics.WriterFlushes.WithLabelValues(w.config.Name).Inc()
		w.config.Metrics.WriterBytesWritten.WithLabelValues(w.config.Name).Add(float64(n))
	}
	if w.config.OnFlush != nil {
		w.config.OnFlush(n, duration)
	}
	return nil
}

// writeWithRetries writes data with retry logic. A retry resumes after the
// bytes that were already accepted.
func (w *Writer) writeWithRetries(ctx context.Context, data []byte) (int, error) {
	var totalWritten int
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			w.stats.ErrorCount++
			select {
			case <-time.After(w.config.RetryDelay):
			case <-ctx.Done():
				return totalWritten, ctx.Err()
			}
		}

		written, err := w.dst.Write(data[totalWritten:])
		totalWritten += written

		if err != nil {
			lastErr = err
			continue
		}

		if totalWritten >= len(data) {
			return totalWritten, nil
		}
		lastErr = io.ErrShortWrite
	}

	return totalWritten, lastErr
}

// Stats returns statistics about the writer.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := w.stats
	if stats.FlushCount > 0 {
		stats.AverageWriteTime = time.Duration(int64(stats.TotalWriteTime) / stats.FlushCount)
	}
	return stats
}

// Close closes the destination when the Writer was created by Create. Rows
// are already flushed, so there is nothing left to write.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
