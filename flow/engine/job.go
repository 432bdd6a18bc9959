package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a job's position in its state machine:
// pending -> running -> {done, failed, canceled}, with terminal states
// re-enterable through Emit.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Statuses lists every valid status in store order.
var Statuses = []Status{StatusPending, StatusRunning, StatusDone, StatusFailed, StatusCanceled}

// Valid reports whether s is one of the five statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusDone, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether s is done, failed or canceled.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCanceled
}

// JobType selects the worker a job runs on.
type JobType string

const (
	// Local runs inline on the submitting goroutine. No resource accounting.
	Local JobType = "local"

	// Thread runs on a dedicated goroutine and consumes one MaxThreads
	// slot. Cancellation is cooperative through the job context.
	Thread JobType = "thread"

	// Process runs a registered function in a subprocess and consumes one
	// MaxProcesses slot. Cancellation kills the subprocess.
	Process JobType = "process"
)

// Valid reports whether t is a supported job type.
func (t JobType) Valid() bool {
	return t == Local || t == Thread || t == Process
}

// ErrInvalidJobType rejects job types outside {local, thread, process}.
var ErrInvalidJobType = errors.New("invalid job type")

// ErrNotSubmitted is returned by job operations that need an engine before
// Submit attached one.
var ErrNotSubmitted = errors.New("job not submitted to an engine")

// JobEmitError reports an Emit on a running job.
type JobEmitError struct {
	JobID  string
	Status Status
}

// Error implements the error interface.
func (e *JobEmitError) Error() string {
	return fmt.Sprintf("job %s: emit from status %q (must not be running)", e.JobID, e.Status)
}

// Func is the unit of work a job executes.
type Func func(ctx context.Context, args []any) (any, error)

// JobConfig declares a job.
type JobConfig struct {
	// Type selects the worker; empty means Local.
	Type JobType

	// NodeID ties the job to the node that submitted it, for events and
	// history records. Optional.
	NodeID string

	// Func is the work. Required for local and thread jobs.
	Func Func

	// ProcFunc is the registered function name run by process jobs.
	ProcFunc string

	// Args is the argument list handed to the function.
	Args []any

	// OnSuccess receives the function result before the job transitions to
	// done, so downstream work it submits is visible in the stores while
	// this job is still running.
	OnSuccess func(res any)

	// OnError receives the function error before the job transitions to
	// failed.
	OnError func(err error)

	// Result, when set, overrides what Job.Result returns for a done job
	// (compute nodes route their output caches through it).
	Result func() any
}

// Job is one scheduled execution of a function, retained in the engine's
// per-status stores for introspection and re-emission.
type Job struct {
	id       string
	kind     JobType
	nodeID   string
	fn       Func
	procName string
	args     []any

	onSuccess func(res any)
	onError   func(err error)
	resultFn  func() any

	mu        sync.Mutex
	eng       *Engine
	status    Status
	finishing bool
	doneCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	proc      *exec.Cmd
	result    any
	err       error

	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
}

// NewJob builds a pending job from a config.
func NewJob(cfg JobConfig) (*Job, error) {
	kind := cfg.Type
	if kind == "" {
		kind = Local
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidJobType, kind)
	}
	if kind == Process && cfg.ProcFunc == "" {
		return nil, fmt.Errorf("%w: process job needs a registered function name", ErrInvalidJobType)
	}
	if kind != Process && cfg.Func == nil {
		return nil, errors.New("job needs a function")
	}
	return &Job{
		id:        uuid.NewString(),
		kind:      kind,
		nodeID:    cfg.NodeID,
		fn:        cfg.Func,
		procName:  cfg.ProcFunc,
		args:      cfg.Args,
		onSuccess: cfg.OnSuccess,
		onError:   cfg.OnError,
		resultFn:  cfg.Result,
		status:    StatusPending,
		createdAt: time.Now(),
	}, nil
}

// ID returns the job's stable identifier.
func (j *Job) ID() string { return j.id }

// Type returns the worker kind.
func (j *Job) Type() JobType { return j.kind }

// NodeID returns the submitting node's id, if any.
func (j *Job) NodeID() string { return j.nodeID }

// Status returns the job's current status.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Err returns the function error of a failed job.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Result returns the job's result once it is done, nil otherwise.
func (j *Job) Result() any {
	j.mu.Lock()
	st := j.status
	res := j.result
	j.mu.Unlock()
	if st != StatusDone {
		return nil
	}
	if j.resultFn != nil {
		return j.resultFn()
	}
	return res
}

func (j *Job) engine() *Engine {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.eng
}

// armLocked prepares the job for a run: a fresh join latch and a fresh
// cancelable run context. Caller holds j.mu.
func (j *Job) armLocked() {
	j.doneCh = make(chan struct{})
	j.runCtx, j.runCancel = context.WithCancel(context.Background())
	j.finishing = false
	j.proc = nil
	j.startedAt = time.Now()
	j.status = StatusRunning
}

// hasResource reports whether the engine currently has a free slot for the
// job's worker kind. Caller holds the engine mutex.
func (j *Job) hasResource(e *Engine) bool {
	switch j.kind {
	case Thread:
		return e.threadCount > 0
	case Process:
		return e.processCount > 0
	}
	return true
}

// Emit re-runs the job. Valid from pending and every terminal status;
// emitting a running job returns a JobEmitError. When no worker slot is
// free the job is parked in the pending store and picked up by the
// scheduler's first-fit scan once a slot frees.
func (j *Job) Emit() error {
	e := j.engine()
	if e == nil {
		return ErrNotSubmitted
	}
	e.mu.Lock()
	j.mu.Lock()
	st := j.status
	if st == StatusRunning {
		j.mu.Unlock()
		e.mu.Unlock()
		return &JobEmitError{JobID: j.id, Status: st}
	}
	e.stores[st].remove(j)
	if !j.hasResource(e) {
		e.stores[StatusPending].add(j)
		j.status = StatusPending
		j.mu.Unlock()
		e.mu.Unlock()
		e.afterTransition(j, st, StatusPending, nil)
		return nil
	}
	e.consumeResource(j.kind)
	e.stores[StatusRunning].add(j)
	j.armLocked()
	j.mu.Unlock()
	e.mu.Unlock()
	e.afterTransition(j, st, StatusRunning, nil)
	e.startJob(j)
	return nil
}

// Cancel aborts a running job: the subprocess is killed, a thread job's
// context is canceled, and the job transitions to canceled with its
// resource slot released. Cancel on a job that is not running is a no-op;
// when cancellation races a natural completion, whichever terminal
// transition runs first wins and the other is a no-op.
func (j *Job) Cancel() error {
	e := j.engine()
	if e == nil {
		return nil
	}
	e.mu.Lock()
	j.mu.Lock()
	if j.status != StatusRunning {
		j.mu.Unlock()
		e.mu.Unlock()
		return nil
	}
	cancelFn := j.runCancel
	proc := j.proc
	e.stores[StatusRunning].remove(j)
	e.stores[StatusCanceled].add(j)
	e.releaseResource(j.kind)
	close(j.doneCh)
	j.status = StatusCanceled
	j.finishedAt = time.Now()
	j.mu.Unlock()
	next := e.activateLocked()
	e.mu.Unlock()

	// Abort the worker; failures here are swallowed, the status transition
	// already happened.
	if cancelFn != nil {
		cancelFn()
	}
	if proc != nil && proc.Process != nil {
		_ = proc.Process.Kill()
	}
	e.afterTransition(j, StatusRunning, StatusCanceled, nil)
	e.startPromoted(next)
	return nil
}

// Join blocks until the job's next terminal transition. The latch is armed
// on entry to running; joining a job that is not running returns
// immediately.
func (j *Job) Join(ctx context.Context) error {
	j.mu.Lock()
	var ch chan struct{}
	if j.status == StatusRunning {
		ch = j.doneCh
	}
	j.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
