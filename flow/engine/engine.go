package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nanguage/sunmao-core/flow/emit"
	"github.com/Nanguage/sunmao-core/flow/store"
)

// ErrWaitTimeout is returned by Wait when the timeout elapses before the
// selected job set drains.
var ErrWaitTimeout = errors.New("wait timed out")

// jobStore is an insertion-ordered job collection; the order matters for
// the scheduler's first-fit scan.
type jobStore struct {
	order []string
	byID  map[string]*Job
}

func newJobStore() *jobStore {
	return &jobStore{byID: map[string]*Job{}}
}

func (s *jobStore) add(j *Job) {
	if _, ok := s.byID[j.id]; ok {
		return
	}
	s.byID[j.id] = j
	s.order = append(s.order, j.id)
}

func (s *jobStore) remove(j *Job) {
	if _, ok := s.byID[j.id]; !ok {
		return
	}
	delete(s.byID, j.id)
	for i, id := range s.order {
		if id == j.id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *jobStore) list() []*Job {
	out := make([]*Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *jobStore) len() int { return len(s.byID) }

// Engine schedules jobs against bounded thread and process worker slots.
// Jobs live in five per-status stores; pending jobs are admitted first-fit
// whenever a submission or a terminal transition frees capacity, one job
// per activation.
type Engine struct {
	id       string
	settings Settings

	mu           sync.Mutex
	threadCount  int
	processCount int
	stores       map[Status]*jobStore
	submitted    int64

	emitter emit.Emitter
	metrics *Metrics
	history store.Store
}

// Option configures an engine.
type Option func(*Engine)

// WithEmitter routes engine events to em. The default discards them.
func WithEmitter(em emit.Emitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithHistory records every job status transition in st.
func WithHistory(st store.Store) Option {
	return func(e *Engine) { e.history = st }
}

// New creates an engine with the given resource limits.
func New(settings Settings, opts ...Option) *Engine {
	if settings.MaxThreads <= 0 {
		settings.MaxThreads = DefaultSettings().MaxThreads
	}
	if settings.MaxProcesses <= 0 {
		settings.MaxProcesses = DefaultSettings().MaxProcesses
	}
	e := &Engine{
		id:           uuid.NewString(),
		settings:     settings,
		threadCount:  settings.MaxThreads,
		processCount: settings.MaxProcesses,
		stores:       map[Status]*jobStore{},
		emitter:      emit.NewNullEmitter(),
	}
	for _, st := range Statuses {
		e.stores[st] = newJobStore()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ID returns the engine's stable identifier.
func (e *Engine) ID() string { return e.id }

// Settings returns the resource limits the engine was built with.
func (e *Engine) Settings() Settings { return e.settings }

// Emitter returns the engine's event emitter.
func (e *Engine) Emitter() emit.Emitter { return e.emitter }

// ThreadCount returns the number of free thread slots.
func (e *Engine) ThreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threadCount
}

// ProcessCount returns the number of free process slots.
func (e *Engine) ProcessCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processCount
}

// TotalSubmitted returns the number of jobs tracked by the engine; it
// equals the sum of the per-status store sizes at all times (ClearTerminal
// drops cleared jobs from the count).
func (e *Engine) TotalSubmitted() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitted
}

// Jobs returns the jobs in a status store, in insertion order.
func (e *Engine) Jobs(status Status) []*Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stores[status].list()
}

// Counts returns a snapshot of the store sizes.
func (e *Engine) Counts() map[Status]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[Status]int{}
	for st, s := range e.stores {
		out[st] = s.len()
	}
	return out
}

// Job looks a job up by id across all stores.
func (e *Engine) Job(id string) (*Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.stores {
		if j, ok := s.byID[id]; ok {
			return j, true
		}
	}
	return nil, false
}

// ClearTerminal drops done, failed and canceled jobs from the stores.
func (e *Engine) ClearTerminal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, st := range []Status{StatusDone, StatusFailed, StatusCanceled} {
		n := e.stores[st].len()
		e.stores[st] = newJobStore()
		e.submitted -= int64(n)
		if e.metrics != nil {
			e.metrics.jobs.WithLabelValues(string(st)).Sub(float64(n))
		}
	}
}

// Submit admits a pending job: it joins the pending store and the scheduler
// immediately promotes the first pending job that has a free slot.
func (e *Engine) Submit(j *Job) error {
	if st := j.Status(); st != StatusPending {
		return fmt.Errorf("submit requires a pending job, got %q", st)
	}
	e.mu.Lock()
	j.mu.Lock()
	j.eng = e
	j.mu.Unlock()
	e.stores[StatusPending].add(j)
	e.submitted++
	next := e.activateLocked()
	e.mu.Unlock()

	e.metrics.incSubmitted()
	e.emitJob("job_submitted", j, nil)
	e.record(j, StatusPending, "")
	e.startPromoted(next)
	return nil
}

// Activate runs one first-fit scheduling pass: the first pending job with a
// free slot moves to running and starts. Submissions and terminal
// transitions call this automatically; it is exported for callers that
// changed resource availability out of band.
func (e *Engine) Activate() {
	e.mu.Lock()
	next := e.activateLocked()
	e.mu.Unlock()
	e.startPromoted(next)
}

// activateLocked scans the pending store in insertion order and promotes
// the first job whose resources are available. At most one job is promoted
// per call; every terminal transition triggers another call, so pending
// work drains greedily. Caller holds e.mu.
func (e *Engine) activateLocked() *Job {
	for _, id := range e.stores[StatusPending].order {
		j := e.stores[StatusPending].byID[id]
		if !j.hasResource(e) {
			continue
		}
		e.consumeResource(j.kind)
		e.stores[StatusPending].remove(j)
		e.stores[StatusRunning].add(j)
		j.mu.Lock()
		j.armLocked()
		j.mu.Unlock()
		return j
	}
	return nil
}

// startPromoted reports and starts a job promoted by activateLocked.
func (e *Engine) startPromoted(j *Job) {
	if j == nil {
		return
	}
	e.afterTransition(j, StatusPending, StatusRunning, nil)
	e.startJob(j)
}

func (e *Engine) consumeResource(kind JobType) {
	switch kind {
	case Thread:
		e.threadCount--
	case Process:
		e.processCount--
	}
}

func (e *Engine) releaseResource(kind JobType) {
	switch kind {
	case Thread:
		e.threadCount++
	case Process:
		e.processCount++
	}
}

// complete applies a natural terminal transition. The success or error
// callback runs first, before the job leaves the running store, so work
// submitted by a callback is never observable in a drained engine. A job
// already canceled (or completed by a racing path) is left untouched and
// its callbacks are not invoked.
func (e *Engine) complete(j *Job, res any, err error) {
	j.mu.Lock()
	if j.status != StatusRunning || j.finishing {
		j.mu.Unlock()
		return
	}
	j.finishing = true
	j.mu.Unlock()

	if err == nil {
		if j.onSuccess != nil {
			j.onSuccess(res)
		}
	} else if j.onError != nil {
		j.onError(err)
	}

	target := StatusDone
	if err != nil {
		target = StatusFailed
	}
	e.mu.Lock()
	j.mu.Lock()
	if j.status != StatusRunning {
		// Cancel won the race during the callback.
		j.mu.Unlock()
		e.mu.Unlock()
		return
	}
	j.result = res
	j.err = err
	e.stores[StatusRunning].remove(j)
	e.stores[target].add(j)
	e.releaseResource(j.kind)
	close(j.doneCh)
	j.status = target
	j.finishedAt = time.Now()
	j.mu.Unlock()
	next := e.activateLocked()
	e.mu.Unlock()

	e.afterTransition(j, StatusRunning, target, err)
	e.startPromoted(next)
}

// afterTransition reports a status change to the emitter, metrics and the
// history store. Locks are not held.
func (e *Engine) afterTransition(j *Job, from, to Status, err error) {
	e.metrics.observeTransition(from, to)
	if to.Terminal() {
		j.mu.Lock()
		d := j.finishedAt.Sub(j.startedAt)
		j.mu.Unlock()
		e.metrics.observeDuration(j.kind, to, d)
	}
	e.mu.Lock()
	threadsUsed := e.settings.MaxThreads - e.threadCount
	procsUsed := e.settings.MaxProcesses - e.processCount
	e.mu.Unlock()
	e.metrics.setInUse(threadsUsed, procsUsed)

	meta := map[string]any{"job_type": string(j.kind), "status": string(to)}
	detail := ""
	if err != nil {
		meta["error"] = err.Error()
		detail = err.Error()
	}
	e.emitJob("job_"+string(to), j, meta)
	e.record(j, to, detail)
}

func (e *Engine) emitJob(msg string, j *Job, meta map[string]any) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{
		JobID:  j.id,
		NodeID: j.nodeID,
		Msg:    msg,
		Meta:   meta,
	})
}

func (e *Engine) record(j *Job, status Status, detail string) {
	if e.history == nil {
		return
	}
	rec := store.Record{
		JobID:  j.id,
		NodeID: j.nodeID,
		Status: string(status),
		Detail: detail,
		At:     time.Now(),
	}
	if err := e.history.Append(context.Background(), rec); err != nil {
		e.emitJob("history_error", j, map[string]any{"error": err.Error()})
	}
}

// waitConfig carries Wait's knobs.
type waitConfig struct {
	timeout  time.Duration
	interval time.Duration
	sel      func(e *Engine) []*Job
}

// WaitOption configures Wait.
type WaitOption func(*waitConfig)

// WithTimeout bounds the wait; ErrWaitTimeout is returned on expiry. Zero
// means no bound.
func WithTimeout(d time.Duration) WaitOption {
	return func(c *waitConfig) { c.timeout = d }
}

// WithPollInterval sets the polling delay. The default is 10ms.
func WithPollInterval(d time.Duration) WaitOption {
	return func(c *waitConfig) { c.interval = d }
}

// WithSelect waits until the job subset returned by sel is empty instead of
// the default running store.
func WithSelect(sel func(e *Engine) []*Job) WaitOption {
	return func(c *waitConfig) { c.sel = sel }
}

// Wait polls until the selected job set is empty — by default until no job
// is running. Completion callbacks run before terminal transitions, so a
// drained running store means no callback is about to submit more work.
func (e *Engine) Wait(ctx context.Context, opts ...WaitOption) error {
	cfg := waitConfig{interval: 10 * time.Millisecond}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sel == nil {
		cfg.sel = func(e *Engine) []*Job { return e.Jobs(StatusRunning) }
	}
	var deadline <-chan time.Time
	if cfg.timeout > 0 {
		t := time.NewTimer(cfg.timeout)
		defer t.Stop()
		deadline = t.C
	}
	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()
	for {
		if len(cfg.sel(e)) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return ErrWaitTimeout
		case <-ticker.C:
		}
	}
}

// WaitJob blocks until one specific job leaves the pending and running
// stores.
func (e *Engine) WaitJob(ctx context.Context, j *Job, opts ...WaitOption) error {
	sel := func(*Engine) []*Job {
		if st := j.Status(); st == StatusPending || st == StatusRunning {
			return []*Job{j}
		}
		return nil
	}
	opts = append([]WaitOption{WithSelect(sel)}, opts...)
	return e.Wait(ctx, opts...)
}
