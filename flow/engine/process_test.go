package engine

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

// TestMain doubles as the process-worker entry point: when the test binary
// is re-exec'd by a process job it answers the worker request and exits
// instead of running the tests.
func TestMain(m *testing.M) {
	if IsProcWorker() {
		os.Exit(ProcWorkerMain())
	}
	os.Exit(m.Run())
}

// Worker functions must be registered at init time so both the parent test
// process and the re-exec'd child know them. Arguments and results cross
// the boundary as JSON, so numbers arrive as float64.
func init() {
	RegisterFunc("test.double", func(_ context.Context, args []any) (any, error) {
		return args[0].(float64) * 2, nil
	})
	RegisterFunc("test.fail", func(_ context.Context, _ []any) (any, error) {
		return nil, errors.New("worker says no")
	})
	RegisterFunc("test.sleep", func(_ context.Context, _ []any) (any, error) {
		time.Sleep(time.Minute)
		return nil, nil
	})
}

func TestProcessJob_RunsInSubprocess(t *testing.T) {
	e := New(Settings{MaxThreads: 1, MaxProcesses: 2})
	j := mustJob(t, JobConfig{Type: Process, ProcFunc: "test.double", Args: []any{21.0}})
	if err := e.Submit(j); err != nil {
		t.Fatal(err)
	}
	if err := e.WaitJob(context.Background(), j, WithTimeout(30*time.Second)); err != nil {
		t.Fatal(err)
	}
	if st := j.Status(); st != StatusDone {
		t.Fatalf("status = %q, want done (err: %v)", st, j.Err())
	}
	if got := j.Result(); got != 42.0 {
		t.Fatalf("Result = %v, want 42.0", got)
	}
	if got := e.ProcessCount(); got != 2 {
		t.Fatalf("process count after drain = %d, want 2", got)
	}
}

func TestProcessJob_WorkerErrorFailsJob(t *testing.T) {
	e := New(DefaultSettings())
	j := mustJob(t, JobConfig{Type: Process, ProcFunc: "test.fail"})
	if err := e.Submit(j); err != nil {
		t.Fatal(err)
	}
	if err := e.WaitJob(context.Background(), j, WithTimeout(30*time.Second)); err != nil {
		t.Fatal(err)
	}
	if st := j.Status(); st != StatusFailed {
		t.Fatalf("status = %q, want failed", st)
	}
	if err := j.Err(); err == nil || !strings.Contains(err.Error(), "worker says no") {
		t.Fatalf("Err = %v, want the worker error", err)
	}
}

func TestProcessJob_UnregisteredFunction(t *testing.T) {
	e := New(DefaultSettings())
	j := mustJob(t, JobConfig{Type: Process, ProcFunc: "test.missing"})
	if err := e.Submit(j); err != nil {
		t.Fatal(err)
	}
	if err := e.WaitJob(context.Background(), j, WithTimeout(30*time.Second)); err != nil {
		t.Fatal(err)
	}
	if st := j.Status(); st != StatusFailed {
		t.Fatalf("status = %q, want failed", st)
	}
}

func TestProcessJob_CancelKillsWorker(t *testing.T) {
	e := New(Settings{MaxThreads: 1, MaxProcesses: 1})
	j := mustJob(t, JobConfig{Type: Process, ProcFunc: "test.sleep"})
	if err := e.Submit(j); err != nil {
		t.Fatal(err)
	}
	// Give the subprocess a moment to start before terminating it.
	time.Sleep(300 * time.Millisecond)
	if err := j.Cancel(); err != nil {
		t.Fatal(err)
	}
	if st := j.Status(); st != StatusCanceled {
		t.Fatalf("status = %q, want canceled", st)
	}
	if got := len(e.Jobs(StatusRunning)); got != 0 {
		t.Fatalf("running = %d, want 0", got)
	}
	// The kill races the wait goroutine; the slot must be released exactly
	// once regardless of which side finishes first.
	time.Sleep(200 * time.Millisecond)
	if got := e.ProcessCount(); got != 1 {
		t.Fatalf("process count = %d, want 1", got)
	}
}

func TestProcessJob_ResourceLimit(t *testing.T) {
	e := New(Settings{MaxThreads: 1, MaxProcesses: 1})
	j1 := mustJob(t, JobConfig{Type: Process, ProcFunc: "test.double", Args: []any{1.0}})
	j2 := mustJob(t, JobConfig{Type: Process, ProcFunc: "test.double", Args: []any{2.0}})
	if err := e.Submit(j1); err != nil {
		t.Fatal(err)
	}
	if err := e.Submit(j2); err != nil {
		t.Fatal(err)
	}
	if got := e.ProcessCount(); got != 0 {
		t.Fatalf("process count with job in flight = %d, want 0", got)
	}
	if err := e.Wait(context.Background(), WithTimeout(60*time.Second)); err != nil {
		t.Fatal(err)
	}
	if j1.Status() != StatusDone || j2.Status() != StatusDone {
		t.Fatalf("statuses = %q/%q, want done/done", j1.Status(), j2.Status())
	}
}
