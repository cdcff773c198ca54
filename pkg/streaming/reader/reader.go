// Package reader streams CSV files as field-name keyed records.
//
// The first line is the header. Every following line becomes one record
// mapping each header name to the value in the same column. Rows shorter
// than the header get empty values for the missing columns; extra values are
// ignored. An empty input has no header and yields no records.
package reader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	gferrors "github.com/vnykmshr/parcsv/pkg/common/errors"
)

// Reader reads records one at a time without loading the whole input.
type Reader struct {
	csv    *csv.Reader
	closer io.Closer
	header []string
	rows   int64
	done   bool
}

// Open opens the CSV file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, gferrors.NewOperationError("reader", "Open", err).WithContext(path)
	}

	r, err := New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// New creates a Reader over r and reads the header line.
func New(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	rd := &Reader{csv: cr}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		rd.done = true
		return rd, nil
	}
	if err != nil {
		return nil, gferrors.NewOperationError("reader", "Header", err)
	}
	rd.header = append([]string(nil), header...)
	return rd, nil
}

// Header returns the field names from the first line. It is empty for an
// empty input.
func (r *Reader) Header() []string {
	return r.header
}

// Rows returns the number of records read so far.
func (r *Reader) Rows() int64 {
	return r.rows
}

// Next returns the next record, or io.EOF once the input is exhausted.
func (r *Reader) Next() (map[string]string, error) {
	if r.done {
		return nil, io.EOF
	}

	values, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		r.done = true
		return nil, io.EOF
	}
	if err != nil {
		line, _ := r.csv.FieldPos(0)
		return nil, gferrors.NewOperationError("reader", "Next", err).
			WithContext(fmt.Sprintf("line %d", line))
	}

	rec := make(map[string]string, len(r.header))
	for i, name := range r.header {
		if i < len(values) {
			rec[name] = values[i]
		} else {
			rec[name] = ""
		}
	}
	r.rows++
	return rec, nil
}

// Close releases the underlying file when the Reader was created by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
