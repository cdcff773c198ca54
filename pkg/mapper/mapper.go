package mapper

import (
	"context"
	"maps"
)

// Record is one row as a field name to value mapping.
type Record map[string]string

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Select returns a new record holding only the given fields. Missing fields
// map to the empty string.
func (r Record) Select(fields []string) Record {
	out := make(Record, len(fields))
	for _, f := range fields {
		out[f] = r[f]
	}
	return out
}

// Mapper transforms one input record into one output record.
type Mapper interface {
	// Fields returns the declared output fields, in output column order.
	Fields() []string

	// Transform maps rec to a record keyed by the declared fields.
	// Incidental output belongs in diag. Return an error built with Stop to
	// halt processing of the current file; any other error fails the row.
	Transform(ctx context.Context, rec Record, diag *Diagnostics) (Record, error)
}

// Cloner is implemented by mappers that carry configuration which must not be
// shared between workers.
type Cloner interface {
	// Clone returns an independent copy for one worker.
	Clone() Mapper
}

// CopyFor returns the mapper value a single worker should use.
func CopyFor(m Mapper) Mapper {
	if c, ok := m.(Cloner); ok {
		return c.Clone()
	}
	return m
}

// TransformFunc is the function form of Mapper.Transform.
type TransformFunc func(ctx context.Context, rec Record, diag *Diagnostics) (Record, error)

// funcMapper adapts a TransformFunc to the Mapper interface.
type funcMapper struct {
	fields []string
	fn     TransformFunc
}

// Func creates a Mapper from a list of declared fields and a transform function.
func Func(fields []string, fn TransformFunc) Mapper {
	return &funcMapper{fields: append([]string(nil), fields...), fn: fn}
}

func (f *funcMapper) Fields() []string {
	return f.fields
}

func (f *funcMapper) Transform(ctx context.Context, rec Record, diag *Diagnostics) (Record, error) {
	return f.fn(ctx, rec, diag)
}
