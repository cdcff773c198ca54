/*
Package mapper defines the unit of work applied to every input row and the
adapter that makes a single invocation safe to run inside a worker.

A Mapper declares the output columns it produces and transforms one input
Record into one output Record:

	type Mapper interface {
		Fields() []string
		Transform(ctx context.Context, rec Record, diag *Diagnostics) (Record, error)
	}

Func builds a Mapper from a function:

	m := mapper.Func([]string{"a", "b"}, func(ctx context.Context, rec mapper.Record, diag *mapper.Diagnostics) (mapper.Record, error) {
		diag.Printf("seen %s", rec["id"])
		return mapper.Record{"a": "1", "b": "2"}, nil
	})

Diagnostics:

Incidental output of a transform goes into the Diagnostics buffers passed to
it, never into process-wide streams. The Adapter forwards captured output to
the job logger tagged with the row, so it never appears in output columns.

Failures:

An ordinary error returned by Transform, or a panic, marks the row as failed;
processing continues with the next row. Returning an error built with Stop
requests a halt: the Adapter logs it and propagates it, and the pipeline stops
processing the current file.

	if rec["id"] == "" {
		return nil, mapper.Stop("missing id column")
	}

State:

Each worker receives its own copy of the Mapper (via Cloner when implemented,
otherwise the value itself is shared read-only). A Mapper must be treated as
stateless across invocations: rows are spread across workers in no
particular order, so state mutated by one call is invisible to calls running on
other workers, and relying on it is a correctness hazard, not a supported
pattern.
*/
package mapper
