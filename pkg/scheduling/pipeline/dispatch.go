package pipeline

import (
	"context"
	"errors"
	"io"

	"github.com/vnykmshr/parcsv/pkg/mapper"
	"github.com/vnykmshr/parcsv/pkg/scheduling/workerpool"
	"github.com/vnykmshr/parcsv/pkg/streaming/reader"
)

// dispatch streams records from src into tasks, numbering them from 1 in
// read order. It closes tasks when the input is exhausted, and stops early
// once the run has ended. A read error ends the input at the last good
// record and is returned.
func (j *Job) dispatch(src *reader.Reader, run workerpool.Run[mapper.Result], tasks chan<- workerpool.Task[mapper.Result]) error {
	defer close(tasks)

	var seq int64
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		seq++

		select {
		case tasks <- j.task(seq, rec):
		case <-run.Done():
			return nil
		}
	}
}

// task wraps one record. The sequence number travels with the task and
// comes back inside the result.
func (j *Job) task(seq int64, rec mapper.Record) workerpool.Task[mapper.Result] {
	return workerpool.TaskFunc[mapper.Result](func(ctx context.Context) (mapper.Result, error) {
		m := j.mapper
		if id, ok := workerpool.WorkerID(ctx); ok && id < len(j.mappers) {
			m = j.mappers[id]
		}
		return j.adapter.Apply(ctx, m, seq, rec)
	})
}
