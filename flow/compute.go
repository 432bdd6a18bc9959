package flow

import (
	"context"
	"fmt"

	"github.com/Nanguage/sunmao-core/flow/emit"
	"github.com/Nanguage/sunmao-core/flow/engine"
)

// Func is the shape of a node's computation. args holds one value per input
// data port in port order. The context is the activation context; thread
// jobs cancel it on Job.Cancel, so long computations should watch it.
type Func func(ctx context.Context, args []any) (any, error)

// Tuple marks a multi-valued result. A returned Tuple of length >= 2 is
// spread across the node's output ports in order; any other result is
// pushed whole to output port 0.
type Tuple []any

// Definition declares a compute node: ordered port blueprints, the callable,
// and defaults for firing mode and job type. This is the contract any
// node-declaration surface (e.g. a function-introspection layer) produces.
type Definition struct {
	// Name names node instances and, for process jobs, keys the function in
	// the process-worker registry.
	Name string

	// Inputs and Outputs are the ordered port blueprints. Func's arity must
	// equal the number of non-exec input blueprints.
	Inputs  []Blueprint
	Outputs []Blueprint

	// Func is the computation run on each firing.
	Func Func

	// FiringMode is the default mode for instances; empty means FireAll.
	FiringMode FiringMode

	// JobType is the default worker for instances; empty means thread.
	JobType engine.JobType
}

// ComputeNode is a Node that, on firing, wraps its function in a job and
// submits it to the session's engine. On success the result is routed to
// the output ports and propagated downstream; on failure the job is marked
// failed and output caches stay untouched.
type ComputeNode struct {
	Node
	def     Definition
	jobType engine.JobType
	lastJob *engine.Job
}

// NewComputeNode instantiates a definition. The node registers in the
// ambient current flow unless WithFlow is given; WithFiringMode and
// WithJobType override the definition defaults.
func NewComputeNode(def Definition, opts ...NodeOption) (*ComputeNode, error) {
	cfg := nodeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	mode := def.FiringMode
	if cfg.mode != "" {
		mode = cfg.mode
	}
	if mode == "" {
		mode = FireAll
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFiringMode, mode)
	}
	jobType := def.JobType
	if cfg.jobType != "" {
		jobType = cfg.jobType
	}
	if jobType == "" {
		jobType = engine.Thread
	}
	if !jobType.Valid() {
		return nil, fmt.Errorf("%w: %q", engine.ErrInvalidJobType, jobType)
	}

	c := &ComputeNode{def: def, jobType: jobType}
	if err := c.Node.init(def.Name, def.Inputs, def.Outputs, mode); err != nil {
		return nil, err
	}
	c.Node.fire = c.run
	c.Node.clone = func(target *Flow) (*Node, error) {
		cc, err := NewComputeNode(c.def,
			WithFlow(target),
			WithFiringMode(c.FiringMode()),
			WithJobType(c.jobType))
		if err != nil {
			return nil, err
		}
		return &cc.Node, nil
	}
	c.Node.attach(cfg.flow)
	if jobType == engine.Process {
		engine.RegisterFunc(def.Name, engine.Func(def.Func))
	}
	return c, nil
}

// Definition returns the definition the node was built from.
func (c *ComputeNode) Definition() Definition { return c.def }

// JobType returns the worker kind used for the node's jobs.
func (c *ComputeNode) JobType() engine.JobType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jobType
}

// SetJobType switches the worker kind for subsequent firings.
func (c *ComputeNode) SetJobType(t engine.JobType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", engine.ErrInvalidJobType, t)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobType = t
	if t == engine.Process {
		engine.RegisterFunc(c.def.Name, engine.Func(c.def.Func))
	}
	return nil
}

// run wraps the function in a job and submits it. The success callback
// routes the result to SetOutputs on the completion path; the job is
// recorded on the node and returned to Call through lastJob.
func (c *ComputeNode) run(ctx context.Context, args []any) error {
	c.mu.Lock()
	jobType := c.jobType
	c.mu.Unlock()

	job, err := engine.NewJob(engine.JobConfig{
		Type:     jobType,
		NodeID:   c.id,
		Func:     engine.Func(c.def.Func),
		ProcFunc: c.def.Name,
		Args:     args,
		OnSuccess: func(res any) {
			if err := c.SetOutputs(ctx, res); err != nil {
				if em := c.emitter(); em != nil {
					em.Emit(emit.Event{
						NodeID: c.id,
						FlowID: c.flowID(),
						Msg:    "propagation_error",
						Meta:   map[string]any{"node": c.name, "error": err.Error()},
					})
				}
			}
		},
		Result: func() any { return c.Caches() },
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.jobIDs = append(c.jobIDs, job.ID())
	c.lastJob = job
	c.mu.Unlock()
	return c.flow.session.Engine().Submit(job)
}

// SetOutputs routes a function result to the output ports and triggers the
// propagation protocol on each. A Tuple of length >= 2 spreads across ports
// by index; anything else goes whole to port 0. Exec output ports always
// push a bare signal.
func (c *ComputeNode) SetOutputs(ctx context.Context, res any) error {
	outs := c.Node.outputs
	if len(outs) == 0 {
		return nil
	}
	values := map[int]any{}
	if vs, ok := res.(Tuple); ok && len(vs) >= 2 {
		for i, v := range vs {
			if i >= len(outs) {
				break
			}
			values[i] = v
		}
	} else {
		values[0] = res
	}
	var firstErr error
	for i, out := range outs {
		var err error
		if out.IsExec() {
			err = out.PushEmpty(ctx)
		} else if v, ok := values[i]; ok {
			err = out.Push(ctx, v)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Caches returns the output caches: the single cache value for one output
// port, a Tuple of cache values otherwise.
func (c *ComputeNode) Caches() any {
	outs := c.Node.outputs
	if len(outs) == 1 {
		return outs[0].CacheValue()
	}
	vals := make(Tuple, len(outs))
	for i, out := range outs {
		vals[i] = out.CacheValue()
	}
	return vals
}

// Call invokes the node with positional arguments: bind by index, then
// substitute port defaults, validate eagerly, enqueue signals and activate.
// It returns the job submitted by this activation, nil when the firing rule
// was not satisfied.
func (c *ComputeNode) Call(ctx context.Context, args ...any) (*engine.Job, error) {
	return c.CallNamed(ctx, args, nil)
}

// CallNamed invokes the node with positional and named arguments. Binding
// order per input data port: positional index, then name, then the port
// default; a port left unbound is an error, as is an unknown name or more
// positional arguments than data ports. All values are validated before any
// signal is enqueued, so a check failure leaves the graph untouched.
func (c *ComputeNode) CallNamed(ctx context.Context, args []any, named map[string]any) (*engine.Job, error) {
	var dataPorts []*InputPort
	for _, in := range c.Node.inputs {
		if !in.IsExec() {
			dataPorts = append(dataPorts, in)
		}
	}
	if len(args) > len(dataPorts) {
		return nil, fmt.Errorf("node %q takes %d arguments, got %d", c.name, len(dataPorts), len(args))
	}
	byName := map[string]*InputPort{}
	for _, in := range dataPorts {
		byName[in.name] = in
	}
	for name := range named {
		if byName[name] == nil {
			return nil, fmt.Errorf("%w: %q on node %q", ErrNoSuchPort, name, c.name)
		}
	}

	values := make([]any, len(dataPorts))
	for i, in := range dataPorts {
		switch {
		case i < len(args):
			if _, dup := named[in.name]; dup {
				return nil, fmt.Errorf("node %q: port %q bound both positionally and by name", c.name, in.name)
			}
			values[i] = args[i]
		default:
			v, ok := named[in.name]
			if !ok {
				if !in.desc.HasDefault {
					return nil, fmt.Errorf("node %q: missing argument for port %q", c.name, in.name)
				}
				v = in.desc.Default
			}
			values[i] = v
		}
	}
	for i, in := range dataPorts {
		if err := in.desc.Check(values[i]); err != nil {
			return nil, err
		}
	}

	for i, in := range dataPorts {
		in.PutSignal(values[i])
	}
	for _, in := range c.Node.inputs {
		if in.IsExec() {
			in.PutEmptySignal()
		}
	}

	c.mu.Lock()
	c.lastJob = nil
	c.mu.Unlock()
	if err := c.Node.Activate(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastJob, nil
}
