package engine

import (
	"context"
	"fmt"
)

// startJob hands a freshly promoted running job to its worker. Local jobs
// run inline on the calling goroutine; thread and process jobs run on their
// own goroutine and report back through complete.
func (e *Engine) startJob(j *Job) {
	j.mu.Lock()
	ctx := j.runCtx
	j.mu.Unlock()
	switch j.kind {
	case Thread:
		go func() {
			res, err := invoke(ctx, j.fn, j.args)
			e.complete(j, res, err)
		}()
	case Process:
		go func() {
			res, err := e.runSubprocess(j)
			e.complete(j, res, err)
		}()
	default:
		res, err := invoke(ctx, j.fn, j.args)
		e.complete(j, res, err)
	}
}

// invoke runs a job function, converting panics into job failures so a
// worker can never crash the driver.
func invoke(ctx context.Context, fn Func, args []any) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx, args)
}
