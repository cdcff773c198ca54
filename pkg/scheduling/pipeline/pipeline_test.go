package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/parcsv/internal/testutil"
	gferrors "github.com/vnykmshr/parcsv/pkg/common/errors"
	"github.com/vnykmshr/parcsv/pkg/common/logging"
	"github.com/vnykmshr/parcsv/pkg/mapper"
	"github.com/vnykmshr/parcsv/pkg/metrics"
	"github.com/vnykmshr/parcsv/pkg/progress"
)

func testOptions(workers int) Options {
	opts := DefaultOptions()
	opts.Workers = workers
	opts.Logger = logging.Discard()
	opts.ErrOut = &bytes.Buffer{}
	return opts
}

// doubling declares "double" and fails rows whose id is not a number.
func doubling() mapper.Mapper {
	return mapper.Func([]string{"double"}, func(_ context.Context, rec mapper.Record, _ *mapper.Diagnostics) (mapper.Record, error) {
		n, err := strconv.Atoi(rec["id"])
		if err != nil {
			return nil, err
		}
		return mapper.Record{"double": strconv.Itoa(2 * n)}, nil
	})
}

// jittered delays every row by up to a millisecond so workers finish out of order.
func jittered(inner mapper.Mapper) mapper.Mapper {
	return mapper.Func(inner.Fields(), func(ctx context.Context, rec mapper.Record, diag *mapper.Diagnostics) (mapper.Record, error) {
		time.Sleep(time.Duration(rand.Intn(1000)) * time.Microsecond)
		return inner.Transform(ctx, rec, diag)
	})
}

func assertRows(t *testing.T, got, want [][]string) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("output mismatch\n got: %v\nwant: %v", got, want)
	}
}

func TestProcessConstantFields(t *testing.T) {
	dir := t.TempDir()
	input := testutil.WriteCSV(t, dir, "data.csv", testutil.NumberedRows(3))

	m := mapper.Constant([]string{"a", "b"}, mapper.Record{"a": "1", "b": "2"})
	outputs, err := Process(context.Background(), m, []string{input}, testOptions(2))
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, len(outputs), 1)
	testutil.AssertEqual(t, outputs[0], filepath.Join(dir, "data_mapped.csv"))
	assertRows(t, testutil.ReadCSV(t, outputs[0]), [][]string{
		{"row", "succeeded", "a", "b"},
		{"1", "true", "1", "2"},
		{"2", "true", "1", "2"},
		{"3", "true", "1", "2"},
	})
}

func TestProcessAllSucceed(t *testing.T) {
	const rows = 200
	input := testutil.WriteCSV(t, t.TempDir(), "in.csv", testutil.NumberedRows(rows))

	for _, batch := range []int{1, 7, 64} {
		t.Run(fmt.Sprintf("batch=%d", batch), func(t *testing.T) {
			opts := testOptions(4)
			opts.BatchSize = batch

			outputs, err := Process(context.Background(), jittered(doubling()), []string{input}, opts)
			testutil.AssertNoError(t, err)

			got := testutil.ReadCSV(t, outputs[0])
			testutil.AssertEqual(t, len(got), rows+1)
			for i, row := range got[1:] {
				want := []string{strconv.Itoa(i + 1), "true", strconv.Itoa(2 * (i + 1))}
				if !reflect.DeepEqual(row, want) {
					t.Fatalf("row %d = %v, want %v", i+1, row, want)
				}
			}
		})
	}
}

func TestProcessAllFail(t *testing.T) {
	const rows = 25
	input := testutil.WriteCSV(t, t.TempDir(), "in.csv", testutil.NumberedRows(rows))

	outputs, err := Process(context.Background(), mapper.Failing([]string{"a", "b"}, "boom"), []string{input}, testOptions(3))
	testutil.AssertNoError(t, err)

	got := testutil.ReadCSV(t, outputs[0])
	testutil.AssertEqual(t, len(got), rows+1)
	for i, row := range got[1:] {
		want := []string{strconv.Itoa(i + 1), "false", "", ""}
		if !reflect.DeepEqual(row, want) {
			t.Fatalf("row %d = %v, want %v", i+1, row, want)
		}
	}
}

func TestProcessOrderIndependentOfWorkers(t *testing.T) {
	input := testutil.WriteCSV(t, t.TempDir(), "in.csv", testutil.NumberedRows(150))

	// odd rows fail so the output mixes both outcomes
	m := jittered(mapper.Func([]string{"id"}, func(_ context.Context, rec mapper.Record, _ *mapper.Diagnostics) (mapper.Record, error) {
		n, _ := strconv.Atoi(rec["id"])
		if n%2 == 1 {
			return nil, errors.New("odd")
		}
		return mapper.Record{"id": rec["id"]}, nil
	}))

	var outputs [][][]string
	for _, workers := range []int{1, 8} {
		opts := testOptions(workers)
		opts.BatchSize = 3
		opts.Suffix = fmt.Sprintf("_w%d", workers)

		out, err := Process(context.Background(), m, []string{input}, opts)
		testutil.AssertNoError(t, err)
		outputs = append(outputs, testutil.ReadCSV(t, out[0]))
	}
	assertRows(t, outputs[1], outputs[0])
}

func TestProcessPanicFailsRow(t *testing.T) {
	input := testutil.WriteCSV(t, t.TempDir(), "in.csv", testutil.NumberedRows(4))

	m := mapper.Func([]string{"id"}, func(_ context.Context, rec mapper.Record, _ *mapper.Diagnostics) (mapper.Record, error) {
		if rec["id"] == "3" {
			panic("bad row")
		}
		return mapper.Record{"id": rec["id"]}, nil
	})

	outputs, err := Process(context.Background(), m, []string{input}, testOptions(2))
	testutil.AssertNoError(t, err)
	assertRows(t, testutil.ReadCSV(t, outputs[0]), [][]string{
		{"row", "succeeded", "id"},
		{"1", "true", "1"},
		{"2", "true", "2"},
		{"3", "false", ""},
		{"4", "true", "4"},
	})
}

func TestProcessDiagnosticsOnlyReachLogger(t *testing.T) {
	input := testutil.WriteCSV(t, t.TempDir(), "in.csv", testutil.NumberedRows(5))

	m := mapper.Func([]string{"id"}, func(_ context.Context, rec mapper.Record, diag *mapper.Diagnostics) (mapper.Record, error) {
		diag.Printf("chatty row %s", rec["id"])
		diag.Eprintf("warning for row %s", rec["id"])
		if rec["id"] == "2" {
			return nil, errors.New("rejected")
		}
		return mapper.Record{"id": rec["id"]}, nil
	})

	var logs bytes.Buffer
	opts := testOptions(2)
	opts.Logger = logging.NewWithWriter(&logs, slog.LevelInfo, "json")

	outputs, err := Process(context.Background(), m, []string{input}, opts)
	testutil.AssertNoError(t, err)

	data, err := os.ReadFile(outputs[0])
	testutil.AssertNoError(t, err)
	if strings.Contains(string(data), "chatty") || strings.Contains(string(data), "warning") {
		t.Fatalf("diagnostics leaked into output:\n%s", data)
	}

	for _, want := range []string{"chatty row 1", "warning for row 4", "rejected", "transform failed"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("log missing %q", want)
		}
	}
}

func TestProcessDroppedRow(t *testing.T) {
	input := testutil.WriteCSV(t, t.TempDir(), "in.csv", testutil.NumberedRows(3))

	m := mapper.Func([]string{"id"}, func(_ context.Context, rec mapper.Record, _ *mapper.Diagnostics) (mapper.Record, error) {
		if rec["id"] == "2" {
			return mapper.Record{"id": "2", "surprise": "x"}, nil
		}
		return mapper.Record{"id": rec["id"]}, nil
	})

	var rows []progress.Row
	opts := testOptions(2)
	opts.Reporter = progress.Funcs{
		OnRowWritten: func(_ progress.FileInfo, row progress.Row) { rows = append(rows, row) },
	}

	job, err := NewJob(m, opts)
	testutil.AssertNoError(t, err)
	defer job.Close()

	outputs, err := job.Run(context.Background(), []string{input})
	testutil.AssertNoError(t, err)
	assertRows(t, testutil.ReadCSV(t, outputs[0]), [][]string{
		{"row", "succeeded", "id"},
		{"1", "true", "1"},
		{"3", "true", "3"},
	})

	testutil.AssertEqual(t, len(rows), 2)
	testutil.AssertEqual(t, rows[0].Totals, progress.Counts{Rows: 1, Succeeded: 1})
	testutil.AssertEqual(t, rows[1].Seq, int64(3))
	testutil.AssertEqual(t, rows[1].Totals, progress.Counts{Rows: 2, Succeeded: 2, Dropped: 1})

	summaries := job.Summaries()
	testutil.AssertEqual(t, len(summaries), 1)
	testutil.AssertEqual(t, summaries[0].Status, progress.StatusCompleted)
	testutil.AssertEqual(t, summaries[0].Rows, int64(2))
	testutil.AssertEqual(t, summaries[0].Dropped, int64(1))
}

func TestProcessIgnoreExtraFields(t *testing.T) {
	input := testutil.WriteCSV(t, t.TempDir(), "in.csv", testutil.NumberedRows(2))

	m := mapper.Func([]string{"id"}, func(_ context.Context, rec mapper.Record, _ *mapper.Diagnostics) (mapper.Record, error) {
		return mapper.Record{"id": rec["id"], "extra": "x"}, nil
	})

	opts := testOptions(1)
	opts.IgnoreExtraFields = true
	outputs, err := Process(context.Background(), m, []string{input}, opts)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(testutil.ReadCSV(t, outputs[0])), 3)
}

// The stop request is scoped to the current file by default. StopJob is
// the stricter reading where one stop ends the whole job; both are covered
// because the expected behavior is ambiguous.
func TestProcessStop(t *testing.T) {
	tests := []struct {
		name        string
		scope       StopScope
		wantErr     bool
		wantOutputs int
		wantSecond  bool
	}{
		{name: "file scope", scope: StopFile, wantOutputs: 2, wantSecond: true},
		{name: "job scope", scope: StopJob, wantErr: true, wantOutputs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			first := testutil.WriteCSV(t, dir, "first.csv", testutil.NumberedRows(20))
			second := testutil.WriteCSV(t, dir, "second.csv", testutil.NumberedRows(5))

			opts := testOptions(4)
			opts.StopScope = tt.scope
			opts.BatchSize = 2

			// stops on row 4, so exactly rows 1..3 are written
			m := jittered(mapper.StopWhen(mapper.Identity("id"), "id", "4"))

			job, err := NewJob(m, opts)
			testutil.AssertNoError(t, err)
			defer job.Close()

			outputs, err := job.Run(context.Background(), []string{first, second})
			if tt.wantErr {
				testutil.AssertError(t, err)
				if !errors.Is(err, mapper.ErrStop) {
					t.Fatalf("error = %v, want it to wrap ErrStop", err)
				}
				testutil.AssertEqual(t, ExitCode(err), 1)
			} else {
				testutil.AssertNoError(t, err)
			}
			testutil.AssertEqual(t, len(outputs), tt.wantOutputs)

			assertRows(t, testutil.ReadCSV(t, outputs[0]), [][]string{
				{"row", "succeeded", "id"},
				{"1", "true", "1"},
				{"2", "true", "2"},
				{"3", "true", "3"},
			})
			testutil.AssertEqual(t, job.Summaries()[0].Status, progress.StatusStopped)

			// "second.csv" has ids 1..5, so row 4 stops it too
			secondOut := filepath.Join(dir, "second_mapped.csv")
			_, statErr := os.Stat(secondOut)
			testutil.AssertEqual(t, statErr == nil, tt.wantSecond)
		})
	}
}

func TestProcessMissingFileContinues(t *testing.T) {
	dir := t.TempDir()
	present := testutil.WriteCSV(t, dir, "present.csv", testutil.NumberedRows(2))
	missing := filepath.Join(dir, "missing.csv")

	outputs, err := Process(context.Background(), doubling(), []string{missing, present}, testOptions(2))
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, ExitCode(err), 1)

	testutil.AssertEqual(t, len(outputs), 1)
	testutil.AssertEqual(t, outputs[0], filepath.Join(dir, "present_mapped.csv"))
	testutil.AssertEqual(t, len(testutil.ReadCSV(t, outputs[0])), 3)
}

func TestProcessMultipleFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 3; i++ {
		paths = append(paths, testutil.WriteCSV(t, dir, fmt.Sprintf("f%d.csv", i), testutil.NumberedRows(10*(i+1))))
	}

	var mu sync.Mutex
	var started []string
	opts := testOptions(3)
	opts.Suffix = "_out"
	opts.Extension = "txt"
	opts.Reporter = progress.Funcs{
		OnFileStarted: func(info progress.FileInfo) {
			mu.Lock()
			started = append(started, filepath.Base(info.Input))
			mu.Unlock()
		},
	}

	outputs, err := Process(context.Background(), doubling(), paths, opts)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, len(outputs), 3)
	for i, out := range outputs {
		testutil.AssertEqual(t, filepath.Base(out), fmt.Sprintf("f%d_out.txt", i))
		testutil.AssertEqual(t, len(testutil.ReadCSV(t, out)), 10*(i+1)+1)
	}
	assertRows(t, [][]string{started}, [][]string{{"f0.csv", "f1.csv", "f2.csv"}})
}

func TestProcessEmptyInput(t *testing.T) {
	dir := t.TempDir()
	headerOnly := testutil.WriteCSV(t, dir, "header.csv", [][]string{{"id"}})
	empty := filepath.Join(dir, "empty.csv")
	testutil.AssertNoError(t, os.WriteFile(empty, nil, 0o644))

	outputs, err := Process(context.Background(), doubling(), []string{headerOnly, empty}, testOptions(2))
	testutil.AssertNoError(t, err)
	for _, out := range outputs {
		assertRows(t, testutil.ReadCSV(t, out), [][]string{{"row", "succeeded", "double"}})
	}
}

func TestProcessInterrupt(t *testing.T) {
	const k = 5
	dir := t.TempDir()
	first := testutil.WriteCSV(t, dir, "first.csv", testutil.NumberedRows(50))
	second := testutil.WriteCSV(t, dir, "second.csv", testutil.NumberedRows(5))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// rows past k only finish once the workers are torn down
	m := mapper.Func([]string{"id"}, func(ctx context.Context, rec mapper.Record, _ *mapper.Diagnostics) (mapper.Record, error) {
		if n, _ := strconv.Atoi(rec["id"]); n > k {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return mapper.Record{"id": rec["id"]}, nil
	})

	var errOut bytes.Buffer
	registry := metrics.NewRegistry(prometheus.NewRegistry())
	opts := testOptions(4)
	opts.ErrOut = &errOut
	opts.Metrics = registry
	opts.Reporter = progress.Funcs{
		OnRowWritten: func(_ progress.FileInfo, row progress.Row) {
			if row.Seq == k {
				cancel()
			}
		},
	}

	job, err := NewJob(m, opts)
	testutil.AssertNoError(t, err)

	outputs, err := job.Run(ctx, []string{first, second})
	testutil.AssertNoError(t, job.Close())

	if !errors.Is(err, gferrors.ErrInterrupted) {
		t.Fatalf("error = %v, want ErrInterrupted", err)
	}
	testutil.AssertEqual(t, ExitCode(err), ExitInterrupted)
	testutil.AssertEqual(t, job.Controller().State(), Terminated)
	testutil.AssertEqual(t, strings.TrimSpace(errOut.String()), CancelNotice)
	testutil.AssertEqual(t, promtestutil.ToFloat64(registry.JobsCancelled), float64(1))

	testutil.AssertEqual(t, len(outputs), 1)
	got := testutil.ReadCSV(t, outputs[0])
	testutil.AssertEqual(t, len(got), k+1)
	for i, row := range got[1:] {
		testutil.AssertEqual(t, row[0], strconv.Itoa(i+1))
	}

	_, statErr := os.Stat(filepath.Join(dir, "second_mapped.csv"))
	if !os.IsNotExist(statErr) {
		t.Fatalf("second file was touched: %v", statErr)
	}
	testutil.AssertEqual(t, job.Summaries()[0].Status, progress.StatusCancelled)
}

func TestProcessCancelledBeforeStart(t *testing.T) {
	input := testutil.WriteCSV(t, t.TempDir(), "in.csv", testutil.NumberedRows(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outputs, err := Process(ctx, doubling(), []string{input}, testOptions(2))
	testutil.AssertEqual(t, ExitCode(err), ExitInterrupted)
	testutil.AssertEqual(t, len(outputs), 0)
}

func TestProcessPerWorkerMappers(t *testing.T) {
	input := testutil.WriteCSV(t, t.TempDir(), "in.csv", testutil.NumberedRows(40))

	m := &countingMapper{}
	opts := testOptions(4)
	_, err := Process(context.Background(), m, []string{input}, opts)
	testutil.AssertNoError(t, err)

	// the original is never used once per-worker copies exist
	testutil.AssertEqual(t, m.calls, 0)
}

type countingMapper struct {
	calls int
}

func (c *countingMapper) Fields() []string { return []string{"calls"} }

func (c *countingMapper) Transform(context.Context, mapper.Record, *mapper.Diagnostics) (mapper.Record, error) {
	c.calls++
	return mapper.Record{"calls": strconv.Itoa(c.calls)}, nil
}

func (c *countingMapper) Clone() mapper.Mapper { return &countingMapper{} }

func TestNewJobValidation(t *testing.T) {
	_, err := NewJob(nil, testOptions(1))
	testutil.AssertError(t, err)

	opts := testOptions(1)
	opts.BatchSize = 0
	_, err = NewJob(doubling(), opts)
	if !gferrors.IsValidationError(err) {
		t.Fatalf("error = %v, want a validation error", err)
	}
}

func TestJobStats(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteCSV(t, dir, "a.csv", [][]string{{"id"}, {"1"}, {"x"}, {"3"}})
	b := testutil.WriteCSV(t, dir, "b.csv", testutil.NumberedRows(2))

	job, err := NewJob(doubling(), testOptions(2))
	testutil.AssertNoError(t, err)
	defer job.Close()

	_, err = job.Run(context.Background(), []string{a, b})
	testutil.AssertNoError(t, err)

	stats := job.Stats()
	testutil.AssertEqual(t, stats.Files, 2)
	testutil.AssertEqual(t, stats.Completed, 2)
	testutil.AssertEqual(t, stats.Rows, int64(5))
	testutil.AssertEqual(t, stats.Succeeded, int64(4))
	testutil.AssertEqual(t, stats.FailedRow, int64(1))
}

func TestExitCode(t *testing.T) {
	testutil.AssertEqual(t, ExitCode(nil), 0)
	testutil.AssertEqual(t, ExitCode(errors.New("x")), 1)
	testutil.AssertEqual(t, ExitCode(fmt.Errorf("wrapped: %w", gferrors.ErrInterrupted)), ExitInterrupted)
}
